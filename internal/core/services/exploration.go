package services

import (
	"github.com/sercha/retrieval-core/internal/core/domain"
)

// Exploration-probe tunables (spec §4.9).
const (
	explorationStabilityFloor = 0.6
	explorationCosineFloor    = 0.65
	explorationTrustCeiling   = 1.0
	explorationScoreDiscount  = 0.95
	explorationInsertPosition = 2 // 1-indexed
)

// ExplorationProbe inserts an uncertain, never-clicked dense candidate
// into the result list to gather feedback on under-explored chunks,
// subject to stability and intent gates.
type ExplorationProbe struct {
	stabilityFloor float64
	cosineFloor    float64
}

// NewExplorationProbe constructs an ExplorationProbe using the spec
// §4.9 default gates.
func NewExplorationProbe() *ExplorationProbe {
	return &ExplorationProbe{stabilityFloor: explorationStabilityFloor, cosineFloor: explorationCosineFloor}
}

// SetGates overrides the default stability and cosine gates from
// configuration; either value left at zero keeps its spec §4.9 default.
func (p *ExplorationProbe) SetGates(stabilityFloor, cosineFloor float64) {
	if stabilityFloor > 0 {
		p.stabilityFloor = stabilityFloor
	}
	if cosineFloor > 0 {
		p.cosineFloor = cosineFloor
	}
}

// Eligible reports whether the exploration probe should run for this
// query (spec §4.9).
func (p *ExplorationProbe) Eligible(enabled bool, stability float64, intent domain.IntentType, results []domain.SearchResult) bool {
	if !enabled || len(results) == 0 {
		return false
	}
	if stability < p.stabilityFloor {
		return false
	}
	if intent == domain.IntentDefinition || intent == domain.IntentProcedure {
		return false
	}
	return true
}

// denseCandidate pairs a dense-search hit with its raw cosine score,
// which fusion discards after computing RRF contributions.
type denseCandidate struct {
	Result domain.SearchResult
	Cosine float64
}

// Insert scans dense results beyond position limit for the first
// never-clicked, moderately-similar candidate and splices it into fused
// at position 2 (1-indexed), displacing the rest down by one. Returns
// fused unchanged if no eligible candidate exists.
func (p *ExplorationProbe) Insert(fused []domain.SearchResult, dense []denseCandidate, limit int) []domain.SearchResult {
	if len(fused) == 0 {
		return fused
	}

	var probe *domain.SearchResult
	for i := limit; i < len(dense); i++ {
		cand := dense[i]
		if cand.Result.TrustScore <= explorationTrustCeiling && cand.Cosine > p.cosineFloor {
			cp := cand.Result
			probe = &cp
			break
		}
	}
	if probe == nil {
		return fused
	}

	probe.IsExploration = true
	probe.Score = fused[0].Score * explorationScoreDiscount

	insertAt := explorationInsertPosition - 1
	if insertAt > len(fused) {
		insertAt = len(fused)
	}

	out := make([]domain.SearchResult, 0, len(fused)+1)
	out = append(out, fused[:insertAt]...)
	out = append(out, *probe)
	out = append(out, fused[insertAt:]...)
	return out
}
