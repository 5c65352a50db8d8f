package services

import (
	"context"
	"sort"
	"time"

	"github.com/sercha/retrieval-core/internal/core/domain"
	"github.com/sercha/retrieval-core/internal/core/ports/driven"
	"github.com/sercha/retrieval-core/internal/core/vectormath"
	"github.com/sercha/retrieval-core/internal/logger"
)

const trustRecencyFloor = 0.5
const trustRecencyWindow = 30 * 24 * time.Hour

// DenseSearcher performs brute-force cosine-similarity search over every
// chunk in the store (spec §4.2 — no ANN index by design; workspaces are
// sized for in-memory traversal).
type DenseSearcher struct {
	store driven.Store
}

// NewDenseSearcher constructs a DenseSearcher over store.
func NewDenseSearcher(store driven.Store) *DenseSearcher {
	return &DenseSearcher{store: store}
}

// Search returns the top-K chunks by cosine similarity to query, each
// carrying its trust score (boost_factor × recency factor).
func (d *DenseSearcher) Search(ctx context.Context, query []float32, k int) ([]domain.SearchResult, error) {
	chunks, err := d.store.ScanAllChunks(ctx)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	now := time.Now()
	results := make([]domain.SearchResult, len(chunks))
	for i, chunk := range chunks {
		results[i] = chunkToResult(chunk)
		results[i].Score = vectormath.CosineSimilarity(query, chunk.Embedding)
		results[i].TrustScore = chunk.BoostFactor * recencyFactor(chunk.CreatedAt, now)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	if k > 0 && len(results) > k {
		results = results[:k]
	}

	logger.Debug("dense search: scanned %d chunks, returning top %d", len(chunks), len(results))
	return results, nil
}

// recencyFactor is 1 - age/30 days, floored at 0.5: it decays linearly
// from 1.0 and reaches the floor at 15 days.
func recencyFactor(createdAt, now time.Time) float64 {
	if createdAt.IsZero() {
		return trustRecencyFloor
	}
	age := now.Sub(createdAt)
	factor := 1 - float64(age)/float64(trustRecencyWindow)
	if factor < trustRecencyFloor {
		return trustRecencyFloor
	}
	return factor
}

func chunkToResult(c domain.Chunk) domain.SearchResult {
	return domain.SearchResult{
		ChunkID:      c.ID,
		Text:         c.Text,
		SourceFile:   c.SourceFile,
		DocID:        c.DocID,
		PageNum:      c.PageNum,
		HeadingPath:  c.HeadingPath,
		HeadingLevel: c.HeadingLevel,
		ChunkType:    c.ChunkType,
	}
}
