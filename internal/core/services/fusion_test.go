package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sercha/retrieval-core/internal/core/domain"
)

func TestFusionEngine_Plan_DefaultIsSeeded(t *testing.T) {
	f := NewFusionEngine()
	plan := f.Plan(domain.IntentGeneral, 10)
	assert.Equal(t, 40, plan.Limit) // General multiplier x4
	assert.False(t, plan.BypassDense)
}

func TestFusionEngine_Plan_PerIntentMultiplier(t *testing.T) {
	f := NewFusionEngine()
	assert.Equal(t, 30, f.Plan(domain.IntentDefinition, 10).Limit)
	assert.Equal(t, 30, f.Plan(domain.IntentProcedure, 10).Limit)
	assert.Equal(t, 60, f.Plan(domain.IntentSummary, 10).Limit)
	assert.Equal(t, 40, f.Plan(domain.IntentExample, 10).Limit)
}

func TestFusionEngine_Plan_ShrinksAboveShrinkThreshold(t *testing.T) {
	f := NewFusionEngine()
	// Ten 2s samples lift the EMA from its 100ms seed to about 1.8s: past
	// the shrink threshold, short of the bypass threshold.
	for i := 0; i < 10; i++ {
		f.RecordLatency(2 * time.Second)
	}
	plan := f.Plan(domain.IntentGeneral, 10)
	assert.Equal(t, 30, plan.Limit) // limit x3
	assert.False(t, plan.BypassDense)
}

func TestFusionEngine_Plan_BypassesDenseAboveCriticalThreshold(t *testing.T) {
	f := NewFusionEngine()
	// Drive the EMA well past the critical threshold with repeated samples.
	for i := 0; i < 20; i++ {
		f.RecordLatency(6 * time.Second)
	}
	plan := f.Plan(domain.IntentGeneral, 10)
	assert.True(t, plan.BypassDense)
	assert.Equal(t, 30, plan.Limit)
}

func TestFusionEngine_Plan_SummaryNeverBypassesDense(t *testing.T) {
	f := NewFusionEngine()
	for i := 0; i < 20; i++ {
		f.RecordLatency(6 * time.Second)
	}
	plan := f.Plan(domain.IntentSummary, 10)
	assert.False(t, plan.BypassDense)
}

func TestFusionEngine_Fuse_RanksUnionOfBothSides(t *testing.T) {
	f := NewFusionEngine()
	dense := []domain.SearchResult{{ChunkID: 1}, {ChunkID: 2}, {ChunkID: 3}}
	sparse := []domain.SearchResult{{ChunkID: 3}, {ChunkID: 4}}

	fused := f.Fuse(dense, sparse, domain.IntentGeneral)

	assert.Len(t, fused, 4)
	// Chunk 3 appears on both sides and should outrank chunks present on
	// only one side.
	assert.Equal(t, int64(3), fused[0].ChunkID)
}

func TestFusionEngine_Fuse_RecordsRanksPerSide(t *testing.T) {
	f := NewFusionEngine()
	dense := []domain.SearchResult{{ChunkID: 1}}
	sparse := []domain.SearchResult{{ChunkID: 1}, {ChunkID: 2}}

	fused := f.Fuse(dense, sparse, domain.IntentGeneral)

	byID := make(map[int64]domain.SearchResult)
	for _, r := range fused {
		byID[r.ChunkID] = r
	}
	assert.Equal(t, 1, byID[1].SemanticRank)
	assert.Equal(t, 1, byID[1].KeywordRank)
	assert.Equal(t, 0, byID[2].SemanticRank)
	assert.Equal(t, 2, byID[2].KeywordRank)
}

func TestFusionEngine_Fuse_ChunkTypeBoostForDefinitionIntent(t *testing.T) {
	f := NewFusionEngine()
	dense := []domain.SearchResult{
		{ChunkID: 1, ChunkType: domain.ChunkTypeDefinition},
		{ChunkID: 2, ChunkType: domain.ChunkTypeText},
	}

	fused := f.Fuse(dense, nil, domain.IntentDefinition)

	assert.Equal(t, int64(1), fused[0].ChunkID)
	assert.Greater(t, fused[0].Score, fused[1].Score)
}

func TestFusionEngine_Fuse_HierarchyBoostForSummaryTopLevel(t *testing.T) {
	f := NewFusionEngine()
	dense := []domain.SearchResult{
		{ChunkID: 1, HeadingLevel: 1},
		{ChunkID: 2, HeadingLevel: 3},
	}

	fused := f.Fuse(dense, nil, domain.IntentSummary)

	assert.Equal(t, int64(1), fused[0].ChunkID)
}

func TestFusionEngine_Fuse_EmptyInputsYieldEmptyOutput(t *testing.T) {
	f := NewFusionEngine()
	fused := f.Fuse(nil, nil, domain.IntentGeneral)
	assert.Empty(t, fused)
}
