package driving

import (
	"context"

	"github.com/sercha/retrieval-core/internal/core/domain"
)

// RetrievalEngine is the primary driving port: the hybrid retrieval
// pipeline exposed to CLI commands, embedders, or any other external
// actor. One RetrievalEngine is scoped to a single workspace instance,
// never shared as a process-wide singleton (spec §9).
type RetrievalEngine interface {
	// Query runs the full pipeline — cache, intent classification,
	// dense+sparse fan-out, fusion, stability bias, MMR diversification,
	// exploration insertion, rerank — and returns only the final,
	// ordered result set.
	Query(ctx context.Context, query string, opts domain.SearchOptions) ([]domain.SearchResult, error)

	// QueryStaged runs the same pipeline as Query but invokes obs after
	// each stage completes, so a caller can stream intermediate state
	// (e.g. show dense hits before rerank finishes) instead of waiting
	// for the final result alone. A nil obs behaves like Query.
	QueryStaged(ctx context.Context, query string, opts domain.SearchOptions, obs StageObserver) ([]domain.SearchResult, error)

	// RecordInteraction registers a click/feedback signal against a
	// previously returned chunk. Exploration-tagged hits are quarantined
	// here: the boost adjustment is skipped entirely rather than applied
	// and reversed (spec §4.9).
	RecordInteraction(ctx context.Context, chunkID int64, isExploration bool, delta float64) error
}

// StageObserver receives one callback per pipeline stage as
// QueryStaged executes. Implementations must return quickly; the
// engine does not buffer or retry observer calls.
type StageObserver interface {
	CacheHit(result []domain.SearchResult)
	IntentDetected(intent domain.IntentType)
	DenseResults(results []domain.SearchResult)
	SparseResults(results []domain.SearchResult)
	Fused(results []domain.SearchResult)
	StabilityApplied(results []domain.SearchResult)
	Diversified(results []domain.SearchResult)
	ExplorationInserted(results []domain.SearchResult)
	Reranked(results []domain.SearchResult)
	Finish(results []domain.SearchResult)
}

// NoopObserver is a StageObserver that does nothing, for callers that
// only want Query's final result but still go through QueryStaged.
type NoopObserver struct{}

var _ StageObserver = NoopObserver{}

func (NoopObserver) CacheHit(_ []domain.SearchResult)           {}
func (NoopObserver) IntentDetected(_ domain.IntentType)         {}
func (NoopObserver) DenseResults(_ []domain.SearchResult)       {}
func (NoopObserver) SparseResults(_ []domain.SearchResult)      {}
func (NoopObserver) Fused(_ []domain.SearchResult)              {}
func (NoopObserver) StabilityApplied(_ []domain.SearchResult)   {}
func (NoopObserver) Diversified(_ []domain.SearchResult)        {}
func (NoopObserver) ExplorationInserted(_ []domain.SearchResult) {}
func (NoopObserver) Reranked(_ []domain.SearchResult)           {}
func (NoopObserver) Finish(_ []domain.SearchResult)             {}
