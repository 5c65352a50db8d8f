package services

import (
	"sort"
	"sync"
	"time"

	"github.com/sercha/retrieval-core/internal/core/domain"
	"github.com/sercha/retrieval-core/internal/logger"
)

// rrfK is the reciprocal-rank-fusion smoothing constant (spec §4.6).
const rrfK = 60.0

// Critical-latency escape hatch thresholds (spec §4.6).
const (
	latencyEMAAlpha     = 0.2
	latencyEMASeed      = 100 * time.Millisecond
	latencyShrinkThresh = 1500 * time.Millisecond
	latencyBypassThresh = 4000 * time.Millisecond
	shrunkRetrievalMul  = 3
)

// intentWeights holds the semantic/keyword blend and retrieval-limit
// multiplier for one intent (spec §4.6).
type intentWeights struct {
	semantic       float64
	keyword        float64
	limitMultiplier int
}

func weightsFor(intent domain.IntentType) intentWeights {
	switch intent {
	case domain.IntentDefinition, domain.IntentProcedure:
		return intentWeights{semantic: 0.35, keyword: 0.65, limitMultiplier: 3}
	case domain.IntentSummary:
		return intentWeights{semantic: 0.7, keyword: 0.3, limitMultiplier: 6}
	default: // General, Example
		return intentWeights{semantic: 0.5, keyword: 0.5, limitMultiplier: 4}
	}
}

// FusionEngine merges dense and sparse result lists with reciprocal-rank
// fusion, intent-aware weighting, and chunk-type/hierarchy boosts. It
// also owns the per-instance latency EMA that drives the critical-
// latency escape hatch (spec §4.6, §9 — scoped to the engine instance,
// never a process-wide singleton).
type FusionEngine struct {
	mu         sync.Mutex
	latencyEMA time.Duration
}

// NewFusionEngine constructs a FusionEngine with the EMA seeded per spec.
func NewFusionEngine() *FusionEngine {
	return &FusionEngine{latencyEMA: latencyEMASeed}
}

// RetrievalPlan describes how much to retrieve on each side, and whether
// dense search should be skipped this query.
type RetrievalPlan struct {
	Limit       int
	BypassDense bool
}

// Plan computes the retrieval limit and dense-bypass decision for the
// current latency regime and intent.
func (f *FusionEngine) Plan(intent domain.IntentType, limit int) RetrievalPlan {
	f.mu.Lock()
	ema := f.latencyEMA
	f.mu.Unlock()

	w := weightsFor(intent)
	retrievalLimit := limit * w.limitMultiplier

	if ema > latencyBypassThresh && intent != domain.IntentSummary {
		logger.Warn("fusion: latency EMA %s exceeds critical threshold, bypassing dense search", ema)
		return RetrievalPlan{Limit: limit * shrunkRetrievalMul, BypassDense: true}
	}

	if ema > latencyShrinkThresh {
		logger.Debug("fusion: latency EMA %s exceeds shrink threshold, reducing retrieval limit", ema)
		retrievalLimit = limit * shrunkRetrievalMul
	}

	return RetrievalPlan{Limit: retrievalLimit}
}

// RecordLatency folds one query's total latency into the EMA.
func (f *FusionEngine) RecordLatency(total time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latencyEMA = time.Duration((1-latencyEMAAlpha)*float64(f.latencyEMA) + latencyEMAAlpha*float64(total))
}

// candidateRank tracks a chunk's 1-indexed position on each side of the
// fused inputs; zero means absent from that side.
type candidateRank struct {
	semantic int
	keyword  int
}

// Fuse merges dense and sparse into one ranked list. Sort is stable by
// insertion (first-seen) order on score ties.
func (f *FusionEngine) Fuse(dense, sparse []domain.SearchResult, intent domain.IntentType) []domain.SearchResult {
	w := weightsFor(intent)

	byID := make(map[int64]*domain.SearchResult)
	ranks := make(map[int64]candidateRank)
	order := make([]int64, 0, len(dense)+len(sparse))

	for i, r := range dense {
		rank := i + 1
		rc := ranks[r.ChunkID]
		rc.semantic = rank
		ranks[r.ChunkID] = rc
		if _, ok := byID[r.ChunkID]; !ok {
			cp := r
			byID[r.ChunkID] = &cp
			order = append(order, r.ChunkID)
		}
	}

	for i, r := range sparse {
		rank := i + 1
		rc := ranks[r.ChunkID]
		rc.keyword = rank
		ranks[r.ChunkID] = rc
		if _, ok := byID[r.ChunkID]; !ok {
			cp := r
			byID[r.ChunkID] = &cp
			order = append(order, r.ChunkID)
		}
	}

	fused := make([]domain.SearchResult, 0, len(order))
	for _, id := range order {
		result := *byID[id]
		rc := ranks[id]

		var score float64
		if rc.semantic > 0 {
			score += w.semantic * (1.0 / (rrfK + float64(rc.semantic)))
		}
		if rc.keyword > 0 {
			score += w.keyword * (1.0 / (rrfK + float64(rc.keyword)))
		}
		score += chunkTypeBoost(intent, result.ChunkType, rc)
		score += hierarchyBoost(intent, result.HeadingLevel)

		result.Score = score
		result.SemanticRank = rc.semantic
		result.KeywordRank = rc.keyword
		fused = append(fused, result)
	}

	sort.SliceStable(fused, func(i, j int) bool { return fused[i].Score > fused[j].Score })
	return fused
}

// chunkTypeBoost implements the fixed per-intent chunk-type boost table
// (spec §4.6), applied on the side(s) the candidate appeared on.
func chunkTypeBoost(intent domain.IntentType, chunkType string, rc candidateRank) float64 {
	var boost float64
	switch {
	case intent == domain.IntentDefinition && chunkType == domain.ChunkTypeDefinition:
		if rc.semantic > 0 {
			boost += 0.5
		}
		if rc.keyword > 0 {
			boost += 0.3
		}
	case intent == domain.IntentSummary && chunkType == domain.ChunkTypeSummary:
		if rc.semantic > 0 {
			boost += 0.5
		}
		if rc.keyword > 0 {
			boost += 0.3
		}
	case intent == domain.IntentProcedure && chunkType == domain.ChunkTypeList:
		if rc.semantic > 0 {
			boost += 0.3
		}
	case intent == domain.IntentExample && chunkType == domain.ChunkTypeExample:
		if rc.semantic > 0 {
			boost += 0.4
		}
	}
	return boost
}

// hierarchyBoost implements the heading-level boosts (spec §4.6).
func hierarchyBoost(intent domain.IntentType, headingLevel int) float64 {
	var boost float64
	if intent == domain.IntentSummary && headingLevel == 1 {
		boost += 0.2
	}
	if intent == domain.IntentDefinition && headingLevel > 1 {
		boost += 0.1
	}
	return boost
}
