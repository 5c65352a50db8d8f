package services

import (
	"context"

	"github.com/sercha/retrieval-core/internal/core/domain"
	"github.com/sercha/retrieval-core/internal/core/ports/driven"
	"github.com/sercha/retrieval-core/internal/logger"
)

// sparsePlaceholderScore is the uninformative score sparse search assigns:
// only dense search and rerank carry a meaningful absolute score, sparse
// rank matters to fusion, not this value (spec §4.3).
const sparsePlaceholderScore = 0.5

// SparseSearcher wraps the store's full-text query as a search stage.
type SparseSearcher struct {
	store driven.Store
}

// NewSparseSearcher constructs a SparseSearcher over store.
func NewSparseSearcher(store driven.Store) *SparseSearcher {
	return &SparseSearcher{store: store}
}

// Search runs query against the inverted index verbatim, returning up to
// limit chunks with structural metadata and a placeholder score.
func (s *SparseSearcher) Search(ctx context.Context, query string, limit int) ([]domain.SearchResult, error) {
	if query == "" {
		return nil, nil
	}

	chunks, err := s.store.KeywordQuery(ctx, query, limit)
	if err != nil {
		logger.Warn("sparse search: keyword query failed: %v", err)
		return nil, err
	}

	results := make([]domain.SearchResult, len(chunks))
	for i, chunk := range chunks {
		results[i] = chunkToResult(chunk)
		results[i].Score = sparsePlaceholderScore
	}

	logger.Debug("sparse search: %d matches for %q", len(results), query)
	return results, nil
}
