package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sercha/retrieval-core/internal/core/domain"
)

func TestMMRLambda_ClampedToRange(t *testing.T) {
	short := mmrLambda("cache", domain.IntentGeneral)
	assert.GreaterOrEqual(t, short, mmrLambdaMin)
	assert.LessOrEqual(t, short, mmrLambdaMax)

	long := mmrLambda("explain the relationship between caches memory hierarchies and latency in modern processors today", domain.IntentSummary)
	assert.LessOrEqual(t, long, mmrLambdaMax)
}

func TestMMRLambda_SummaryAndProcedureBoostComplexity(t *testing.T) {
	general := mmrLambda("how caches work", domain.IntentGeneral)
	summary := mmrLambda("how caches work", domain.IntentSummary)
	assert.GreaterOrEqual(t, summary, general)
}

func TestDocEntropyBits_UniformDistributionIsMaximal(t *testing.T) {
	results := []domain.SearchResult{
		{DocID: "a"}, {DocID: "b"}, {DocID: "c"}, {DocID: "d"},
	}
	entropy := docEntropyBits(results)
	assert.InDelta(t, 2.0, entropy, 0.0001) // log2(4) == 2 bits
}

func TestDocEntropyBits_SingleDocIsZero(t *testing.T) {
	results := []domain.SearchResult{{DocID: "a"}, {DocID: "a"}, {DocID: "a"}}
	assert.Equal(t, 0.0, docEntropyBits(results))
}

func TestSessionEntropyTracker_SeedsOnFirstUpdate(t *testing.T) {
	tracker := NewSessionEntropyTracker()
	avg := tracker.Update(2.0)
	assert.Equal(t, 2.0, avg)
}

func TestSessionEntropyTracker_WarmupAlphaThenSteady(t *testing.T) {
	tracker := NewSessionEntropyTracker()
	tracker.Update(1.0)
	warm := tracker.Update(2.0)
	assert.InDelta(t, 1.0*(1-mmrEntropyAlphaWarmup)+2.0*mmrEntropyAlphaWarmup, warm, 0.0001)

	for i := 0; i < mmrEntropyWarmupLimit-2; i++ {
		tracker.Update(2.0)
	}
	before := tracker.avgEntropy
	steady := tracker.Update(0.0)
	assert.InDelta(t, before*(1-mmrEntropyAlphaSteady), steady, 0.0001)
}

func TestDiversifier_SingleCandidateUnchanged(t *testing.T) {
	d := NewDiversifier(NewSessionEntropyTracker())
	candidates := []domain.SearchResult{{ChunkID: 1, Score: 1}}
	selected, penalty := d.Diversify("q", domain.IntentGeneral, candidates, 5)
	assert.Equal(t, candidates, selected)
	assert.Equal(t, 0.0, penalty)
}

func TestDiversifier_PenalizesRepeatedDocID(t *testing.T) {
	d := NewDiversifier(NewSessionEntropyTracker())
	candidates := []domain.SearchResult{
		{ChunkID: 1, DocID: "doc-a", HeadingPath: "h1", Score: 1.0},
		{ChunkID: 2, DocID: "doc-a", HeadingPath: "h1", Score: 0.5},
		{ChunkID: 3, DocID: "doc-b", HeadingPath: "h2", Score: 0.9},
	}

	selected, penalty := d.Diversify("q", domain.IntentGeneral, candidates, 3)

	assert.Len(t, selected, 3)
	assert.Equal(t, int64(1), selected[0].ChunkID)
	// doc-b should be preferred over the second doc-a candidate despite
	// its lower raw score, because doc-a is already selected.
	assert.Equal(t, int64(3), selected[1].ChunkID)
	assert.Greater(t, penalty, 0.0)
}

func TestDiversifier_StopsAtLimit(t *testing.T) {
	d := NewDiversifier(NewSessionEntropyTracker())
	candidates := []domain.SearchResult{
		{ChunkID: 1, DocID: "a", Score: 1.0},
		{ChunkID: 2, DocID: "b", Score: 0.9},
		{ChunkID: 3, DocID: "c", Score: 0.8},
	}
	selected, _ := d.Diversify("q", domain.IntentGeneral, candidates, 2)
	assert.Len(t, selected, 2)
}
