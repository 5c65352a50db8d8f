package services

import (
	"context"
	"sort"

	"github.com/sercha/retrieval-core/internal/core/domain"
	"github.com/sercha/retrieval-core/internal/core/ports/driven"
)

// stabilityHistoryLimit bounds how many recent non-exploration log rows
// feed the stability computation (spec §4.7).
const stabilityHistoryLimit = 10

// defaultStability is used when a query has no retrieval history.
const defaultStability = 1.0

// stabilityRankDeltaScale caps the influence of a single row's rank
// delta on the stability score.
const stabilityRankDeltaScale = 5.0

// stabilityBiasWeight scales the stability x intent-factor product into
// the additive score bias applied during re-sorting.
const stabilityBiasWeight = 0.1

func intentStabilityFactor(intent domain.IntentType) float64 {
	switch intent {
	case domain.IntentDefinition:
		return 2.0
	case domain.IntentProcedure:
		return 1.5
	case domain.IntentSummary:
		return 1.0
	default:
		return 0.5
	}
}

// StabilityRegulator computes a per-query stability score from recent
// retrieval-log history and biases fused results toward already-stable
// rankings (spec §4.7 — counteracts rank churn from the adaptive stages
// that follow).
type StabilityRegulator struct {
	store driven.Store
}

// NewStabilityRegulator constructs a StabilityRegulator.
func NewStabilityRegulator(store driven.Store) *StabilityRegulator {
	return &StabilityRegulator{store: store}
}

// Stability returns the query's stability score: 1 minus the average
// absolute rank delta (scaled by 5) over up to the 10 most recent
// non-exploration log rows for this exact query string, floored at 0.
// A query with no history is maximally stable.
func (s *StabilityRegulator) Stability(ctx context.Context, query string) (float64, error) {
	logs, err := s.store.RecentLogs(ctx, query, stabilityHistoryLimit)
	if err != nil {
		return 0, err
	}
	if len(logs) == 0 {
		return defaultStability, nil
	}

	var sum float64
	var n int
	for _, entry := range logs {
		if entry.RankDelta == nil {
			continue
		}
		delta := *entry.RankDelta
		if delta < 0 {
			delta = -delta
		}
		sum += float64(delta)
		n++
	}
	if n == 0 {
		return defaultStability, nil
	}

	avgAbsDelta := sum / float64(n)
	stability := 1 - avgAbsDelta/stabilityRankDeltaScale
	if stability < 0 {
		stability = 0
	}
	return stability, nil
}

// Apply adds the stability bias to every result's score and re-sorts.
// It also stamps Stability onto each result for downstream logging.
func (s *StabilityRegulator) Apply(results []domain.SearchResult, intent domain.IntentType, stability float64) []domain.SearchResult {
	bias := stability * intentStabilityFactor(intent) * stabilityBiasWeight

	for i := range results {
		results[i].Score += bias
		results[i].Stability = stability
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results
}
