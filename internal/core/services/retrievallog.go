package services

import (
	"context"
	"time"

	"github.com/sercha/retrieval-core/internal/core/domain"
	"github.com/sercha/retrieval-core/internal/core/ports/driven"
)

// boostIncrement is added to boost_factor on a non-exploration click
// (spec §4.9, §6).
const boostIncrement = 0.1

// RetrievalLogWriter appends one audit row per fused query and applies
// feedback-driven boost increments, quarantining exploration clicks from
// the boost signal.
type RetrievalLogWriter struct {
	store driven.Store
}

// NewRetrievalLogWriter constructs a RetrievalLogWriter.
func NewRetrievalLogWriter(store driven.Store) *RetrievalLogWriter {
	return &RetrievalLogWriter{store: store}
}

// QueryTiming carries the per-stage latencies recorded during one query.
type QueryTiming struct {
	Embedding time.Duration
	Search    time.Duration
	Fusion    time.Duration
	Rerank    time.Duration
}

// LogQuery appends one retrieval-log row summarizing a completed query.
func (w *RetrievalLogWriter) LogQuery(ctx context.Context, query string, results []domain.SearchResult, timing QueryTiming, mmrPenaltyTotal float64, rankDelta *int, stability float64) error {
	entry := domain.RetrievalLogEntry{
		Query:            query,
		LatencyEmbedding: timing.Embedding,
		LatencySearch:    timing.Search,
		LatencyFusion:    timing.Fusion,
		LatencyRerank:    timing.Rerank,
		MMRPenaltyTotal:  mmrPenaltyTotal,
		RankDelta:        rankDelta,
		Stability:        stability,
		FinalRank:        1,
	}

	if len(results) > 0 {
		top := results[0]
		entry.SemanticRank = top.SemanticRank
		entry.KeywordRank = top.KeywordRank
		entry.TopScore = top.Score
		entry.IsExploration = top.IsExploration
	}

	return w.store.AppendRetrievalLog(ctx, entry)
}

// RecordInteraction appends a feedback row for a single result click and,
// unless it was an exploration-tagged candidate, increments the chunk's
// boost_factor by delta (spec §4.9, §6 — the increment is a parameter,
// defaulting to +0.1 at the caller, so a caller can apply a different
// weight to distinct interaction types). Exploration clicks are
// quarantined: they are logged but never touch boost_factor.
func (w *RetrievalLogWriter) RecordInteraction(ctx context.Context, chunkID int64, isExploration bool, delta float64) error {
	entry := domain.RetrievalLogEntry{
		IsExploration: isExploration,
		FinalRank:     1,
	}
	if err := w.store.AppendRetrievalLog(ctx, entry); err != nil {
		return err
	}

	if isExploration {
		return nil
	}
	return w.store.BoostChunk(ctx, chunkID, delta)
}
