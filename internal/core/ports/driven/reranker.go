package driven

import "context"

// RerankHit is one surviving candidate's normalized score from a
// reranker batch call. Index is the candidate's position in the texts
// slice originally submitted to ScoreBatch, so callers can map a hit
// back to its source candidate even when the batch drops outliers and
// the returned slice is shorter than the request.
type RerankHit struct {
	Index int
	Score float64
}

// RerankStats are the persisted rolling calibration statistics for one
// reranker model (spec §4.10, §6).
type RerankStats struct {
	Mean    float64
	Std     float64
	Samples int
}

// Reranker is the reranking capability set, modeled as an interface
// rather than a polymorphic strategy hierarchy: synchronous scoring and
// asynchronous scoring. Persisted-statistics load/save is not part of
// this interface; the rerank adapter's Client takes persisted values in
// its Config and reports current values through its Stats method. A new
// backend is a new struct implementing this interface, never a new
// subclass. The only backend is rerank.Client; no descriptor tag selects
// among backends.
type Reranker interface {
	// ModelName identifies the reranker for metadata-key namespacing
	// (spec §6: "<reranker_display_name>_mean" / "_std").
	ModelName() string

	// ScoreBatch scores query against texts synchronously, returning one
	// RerankHit per surviving candidate (outliers are dropped), each
	// tagged with its original index into texts so the caller can map
	// scores back onto the submitted candidates.
	ScoreBatch(ctx context.Context, query string, texts []string) ([]RerankHit, error)

	// ScoreBatchAsync scores off the calling goroutine, delivering the
	// result (or error) on the returned channel exactly once.
	ScoreBatchAsync(ctx context.Context, query string, texts []string) <-chan RerankBatchResult
}

// RerankBatchResult is delivered on the channel returned by
// ScoreBatchAsync.
type RerankBatchResult struct {
	Hits []RerankHit
	Err  error
}
