package services

import (
	"math"
	"sync"

	"github.com/sercha/retrieval-core/internal/core/domain"
)

// mmrLambdaSteepness is the sigmoid steepness used by lambda selection.
const mmrLambdaSteepness = 5.0

const (
	mmrLambdaMin = 0.2
	mmrLambdaMax = 0.8
)

const (
	mmrDocPenaltyWeight     = 0.15
	mmrDocPenaltyBase       = 1.1
	mmrHeadingPenaltyWeight = 0.1
)

const (
	mmrEntropyAlphaWarmup = 0.3
	mmrEntropyAlphaSteady = 0.1
	mmrEntropyWarmupLimit = 10
)

// SessionEntropyTracker owns the per-session EMA of document-distribution
// entropy the adaptive MMR stage penalizes against (spec §4.8). One
// tracker instance corresponds to one user session (keyed externally,
// typically by a google/uuid session identifier).
type SessionEntropyTracker struct {
	mu         sync.Mutex
	queryCount int
	avgEntropy float64
}

// NewSessionEntropyTracker constructs a tracker with a zero-valued EMA;
// the first observed query seeds it directly.
func NewSessionEntropyTracker() *SessionEntropyTracker {
	return &SessionEntropyTracker{}
}

// Update folds one query's document-distribution entropy into the EMA
// and returns the updated average.
func (t *SessionEntropyTracker) Update(entropy float64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	alpha := mmrEntropyAlphaWarmup
	if t.queryCount >= mmrEntropyWarmupLimit {
		alpha = mmrEntropyAlphaSteady
	}

	if t.queryCount == 0 {
		t.avgEntropy = entropy
	} else {
		t.avgEntropy = (1-alpha)*t.avgEntropy + alpha*entropy
	}
	t.queryCount++
	return t.avgEntropy
}

// docEntropyBits computes the Shannon entropy, in bits, of the docId
// distribution over a result list.
func docEntropyBits(results []domain.SearchResult) float64 {
	if len(results) == 0 {
		return 0
	}

	counts := make(map[string]int, len(results))
	for _, r := range results {
		counts[r.DocID]++
	}

	total := float64(len(results))
	var entropy float64
	for _, c := range counts {
		p := float64(c) / total
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// mmrLambda computes the sigmoid-tuned diversification weight for one
// query (spec §4.8).
func mmrLambda(query string, intent domain.IntentType) float64 {
	lambda := mmrLambdaSigmoid(query, intent)
	if lambda < mmrLambdaMin {
		lambda = mmrLambdaMin
	}
	if lambda > mmrLambdaMax {
		lambda = mmrLambdaMax
	}
	return lambda
}

// mmrLambdaSigmoid is the unclamped sigmoid of the query-complexity
// estimate; mmrLambda and Diversifier each clamp it to their own bounds.
func mmrLambdaSigmoid(query string, intent domain.IntentType) float64 {
	wordCount := float64(len(splitWords(query)))
	c := wordCount / 10
	if intent == domain.IntentSummary || intent == domain.IntentProcedure {
		c += 0.5
	}
	return 1 / (1 + math.Exp(-mmrLambdaSteepness*(c-0.5)))
}

func splitWords(s string) []string {
	var words []string
	start := -1
	for i, r := range s {
		if r == ' ' || r == '\t' || r == '\n' {
			if start >= 0 {
				words = append(words, s[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		words = append(words, s[start:])
	}
	return words
}

// Diversifier applies adaptive MMR re-ranking to a fused result list.
type Diversifier struct {
	entropy   *SessionEntropyTracker
	lambdaMin float64
	lambdaMax float64
}

// NewDiversifier constructs a Diversifier bound to one session's entropy
// tracker, using the spec §4.8 default lambda bounds.
func NewDiversifier(entropy *SessionEntropyTracker) *Diversifier {
	return &Diversifier{entropy: entropy, lambdaMin: mmrLambdaMin, lambdaMax: mmrLambdaMax}
}

// SetLambdaBounds overrides the default lambda clamp range from
// configuration; either bound left at zero keeps its spec §4.8 default.
func (d *Diversifier) SetLambdaBounds(min, max float64) {
	if min > 0 {
		d.lambdaMin = min
	}
	if max > 0 {
		d.lambdaMax = max
	}
}

// Diversify greedily re-selects limit results from candidates, seeding
// with the top-1 result and penalizing repeat docIds and heading paths
// (spec §4.8). Returns the selected, re-ordered list and the total
// penalty applied, for retrieval-log reporting. A candidate list of one
// or fewer items is returned unchanged with a zero penalty.
func (d *Diversifier) Diversify(query string, intent domain.IntentType, candidates []domain.SearchResult, limit int) ([]domain.SearchResult, float64) {
	if len(candidates) <= 1 {
		return candidates, 0
	}

	lambda := mmrLambdaSigmoid(query, intent)
	if lambda < d.lambdaMin {
		lambda = d.lambdaMin
	}
	if lambda > d.lambdaMax {
		lambda = d.lambdaMax
	}
	avgDocEntropy := d.entropy.Update(docEntropyBits(candidates))

	remaining := make([]domain.SearchResult, len(candidates))
	copy(remaining, candidates)

	selected := []domain.SearchResult{remaining[0]}
	remaining = remaining[1:]

	selectedDocIDs := map[string]bool{selected[0].DocID: true}
	selectedHeadings := map[string]bool{selected[0].HeadingPath: true}

	var penaltyTotal float64

	for len(selected) < limit && len(remaining) > 0 {
		bestIdx := -1
		var bestMMR, bestPenalty float64

		for i, cand := range remaining {
			var penalty float64
			if selectedDocIDs[cand.DocID] {
				penalty += mmrDocPenaltyWeight * (mmrDocPenaltyBase - avgDocEntropy)
			}
			if selectedHeadings[cand.HeadingPath] {
				penalty += mmrHeadingPenaltyWeight
			}

			mmr := lambda*cand.Score - (1-lambda)*penalty
			if bestIdx < 0 || mmr > bestMMR {
				bestIdx = i
				bestMMR = mmr
				bestPenalty = penalty
			}
		}

		chosen := remaining[bestIdx]
		selected = append(selected, chosen)
		selectedDocIDs[chosen.DocID] = true
		selectedHeadings[chosen.HeadingPath] = true
		penaltyTotal += bestPenalty

		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	return selected, penaltyTotal
}
