package services

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/sercha/retrieval-core/internal/core/domain"
	"github.com/sercha/retrieval-core/internal/core/ports/driven"
	"github.com/sercha/retrieval-core/internal/core/ports/driving"
	"github.com/sercha/retrieval-core/internal/logger"
)

// defaultLimit is used when SearchOptions.Limit is unset.
const defaultLimit = 10

// EngineOption configures an Engine at construction time.
type EngineOption func(*Engine)

// WithReranker attaches an optional cross-encoder reranker (spec §4.10).
// Without one, EnableRerank in query options has no effect.
func WithReranker(r driven.Reranker) EngineOption {
	return func(e *Engine) { e.reranker = r }
}

// WithPoolSize overrides the dense/sparse fan-out worker pool size.
// Default is max(2, runtime.NumCPU()/2) (spec §5).
func WithPoolSize(size int) EngineOption {
	return func(e *Engine) { e.poolSize = size }
}

// WithSemanticThreshold overrides the Layer 2 query cache's
// cosine-similarity floor from its spec §4.5 default of 0.95.
func WithSemanticThreshold(threshold float64) EngineOption {
	return func(e *Engine) { e.semanticThreshold = threshold }
}

// WithCacheCapacity overrides the query cache's semantic-layer entry cap
// from its spec §4.5 default of 100.
func WithCacheCapacity(capacity int) EngineOption {
	return func(e *Engine) { e.cacheCapacity = capacity }
}

// WithMMRLambdaBounds overrides the adaptive MMR lambda clamp range from
// its spec §4.8 defaults of [0.2, 0.8].
func WithMMRLambdaBounds(min, max float64) EngineOption {
	return func(e *Engine) { e.mmrLambdaMin, e.mmrLambdaMax = min, max }
}

// WithExplorationGates overrides the exploration probe's stability and
// cosine gates from its spec §4.9 defaults of 0.6 and 0.65.
func WithExplorationGates(stabilityFloor, cosineFloor float64) EngineOption {
	return func(e *Engine) { e.explorationStabilityFloor, e.explorationCosineFloor = stabilityFloor, cosineFloor }
}

// Engine implements driving.RetrievalEngine, wiring together every
// pipeline stage described in spec §2's control-flow list: cache lookup
// → intent detect → parallel dense+sparse retrieve → RRF fusion →
// stability bias → MMR → exploration → rerank → cache insert → log.
type Engine struct {
	store    driven.Store
	reranker driven.Reranker
	poolSize int

	semanticThreshold         float64
	cacheCapacity             int
	mmrLambdaMin              float64
	mmrLambdaMax              float64
	explorationStabilityFloor float64
	explorationCosineFloor    float64

	cache     *QueryCache
	fusion    *FusionEngine
	stability *StabilityRegulator
	diversify *Diversifier
	exploreP  *ExplorationProbe
	logWriter *RetrievalLogWriter
	entropyMu sync.Mutex
	sessions  map[string]*SessionEntropyTracker
	sessionID string
	pool      *ants.Pool
}

var _ driving.RetrievalEngine = (*Engine)(nil)

// NewEngine constructs an Engine bound to one workspace store.
func NewEngine(store driven.Store, opts ...EngineOption) (*Engine, error) {
	e := &Engine{
		store:     store,
		poolSize:  max(2, runtime.NumCPU()/2), // spec §5
		fusion:    NewFusionEngine(),
		stability: NewStabilityRegulator(store),
		exploreP:  NewExplorationProbe(),
		logWriter: NewRetrievalLogWriter(store),
		sessions:  make(map[string]*SessionEntropyTracker),
		sessionID: uuid.NewString(),
	}
	for _, opt := range opts {
		opt(e)
	}

	cache, err := NewQueryCache(e.semanticThreshold)
	if err != nil {
		return nil, fmt.Errorf("engine: construct query cache: %w", err)
	}
	cache.SetCapacity(e.cacheCapacity)
	e.cache = cache

	pool, err := ants.NewPool(e.poolSize)
	if err != nil {
		return nil, fmt.Errorf("engine: construct worker pool: %w", err)
	}
	e.pool = pool

	e.diversify = NewDiversifier(e.sessionEntropyTracker(e.sessionID))
	e.diversify.SetLambdaBounds(e.mmrLambdaMin, e.mmrLambdaMax)
	e.exploreP.SetGates(e.explorationStabilityFloor, e.explorationCosineFloor)

	return e, nil
}

// Close releases the engine's cache and worker pool.
func (e *Engine) Close() {
	e.cache.Close()
	e.pool.Release()
}

func (e *Engine) sessionEntropyTracker(sessionID string) *SessionEntropyTracker {
	e.entropyMu.Lock()
	defer e.entropyMu.Unlock()

	t, ok := e.sessions[sessionID]
	if !ok {
		t = NewSessionEntropyTracker()
		e.sessions[sessionID] = t
	}
	return t
}

// Query runs the full pipeline and returns only the final result set.
func (e *Engine) Query(ctx context.Context, query string, opts domain.SearchOptions) ([]domain.SearchResult, error) {
	return e.QueryStaged(ctx, query, opts, driving.NoopObserver{})
}

// QueryStaged runs the pipeline, invoking obs after each stage.
func (e *Engine) QueryStaged(ctx context.Context, query string, opts domain.SearchOptions, obs driving.StageObserver) ([]domain.SearchResult, error) {
	if obs == nil {
		obs = driving.NoopObserver{}
	}
	start := time.Now()
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	if cached, ok := e.cache.LookupExact(query); ok {
		obs.CacheHit(cached)
		obs.Finish(cached)
		return cached, nil
	}
	if len(opts.Embedding) > 0 {
		if cached, ok := e.cache.LookupSemantic(opts.Embedding); ok {
			obs.CacheHit(cached)
			obs.Finish(cached)
			return cached, nil
		}
	}

	intent := ClassifyIntent(query)
	obs.IntentDetected(intent)

	plan := e.fusion.Plan(intent, limit)

	searchStart := time.Now()
	dense, denseCandidates, sparse, err := e.retrieve(ctx, query, opts, plan)
	if err != nil {
		return nil, err
	}
	searchLatency := time.Since(searchStart)
	obs.DenseResults(dense)
	obs.SparseResults(sparse)

	baselineTopDenseID := int64(0)
	if len(dense) > 0 {
		baselineTopDenseID = dense[0].ChunkID
	}

	fusionStart := time.Now()
	fused := e.fusion.Fuse(dense, sparse, intent)
	fusionLatency := time.Since(fusionStart)
	obs.Fused(fused)

	stability, err := e.stability.Stability(ctx, query)
	if err != nil {
		return nil, err
	}
	fused = e.stability.Apply(fused, intent, stability)
	obs.StabilityApplied(fused)

	var mmrPenalty float64
	if opts.EnableMMR && len(fused) > 1 {
		fused, mmrPenalty = e.diversify.Diversify(query, intent, fused, limit)
	} else if len(fused) > limit {
		fused = fused[:limit]
	}
	obs.Diversified(fused)

	if e.exploreP.Eligible(opts.EnableExploration, stability, intent, fused) {
		fused = e.exploreP.Insert(fused, denseCandidates, limit)
	}
	obs.ExplorationInserted(fused)

	var rerankLatency time.Duration
	if opts.EnableRerank && e.reranker != nil {
		rerankStart := time.Now()
		fused = e.rerank(ctx, query, fused)
		rerankLatency = time.Since(rerankStart)
	}
	obs.Reranked(fused)

	if len(fused) > limit {
		fused = fused[:limit]
	}

	e.cache.Insert(query, opts.Embedding, fused)

	var rankDelta *int
	if len(fused) > 0 && baselineTopDenseID != 0 {
		delta := 0
		for i, r := range fused {
			if r.ChunkID == baselineTopDenseID {
				delta = i
				break
			}
		}
		rankDelta = &delta
	}

	timing := QueryTiming{Search: searchLatency, Fusion: fusionLatency, Rerank: rerankLatency}
	if err := e.logWriter.LogQuery(ctx, query, fused, timing, mmrPenalty, rankDelta, stability); err != nil {
		logger.Warn("engine: failed to append retrieval log: %v", err)
	}

	e.fusion.RecordLatency(time.Since(start))
	obs.Finish(fused)
	return fused, nil
}

// retrieve runs dense and sparse search concurrently on the worker pool,
// each against its own cloned store handle (spec §5).
func (e *Engine) retrieve(ctx context.Context, query string, opts domain.SearchOptions, plan RetrievalPlan) (dense []domain.SearchResult, denseCandidates []denseCandidate, sparse []domain.SearchResult, err error) {
	var wg sync.WaitGroup
	var denseErr, sparseErr error

	if !plan.BypassDense && len(opts.Embedding) > 0 {
		wg.Add(1)
		submitErr := e.pool.Submit(func() {
			defer wg.Done()
			clone, cloneErr := e.store.Clone(ctx)
			if cloneErr != nil {
				denseErr = cloneErr
				return
			}
			defer clone.Close()

			searcher := NewDenseSearcher(clone)
			dense, denseErr = searcher.Search(ctx, opts.Embedding, plan.Limit)
			denseCandidates = toDenseCandidates(dense, opts.Embedding)
		})
		if submitErr != nil {
			return nil, nil, nil, fmt.Errorf("engine: submit dense search: %w", submitErr)
		}
	}

	wg.Add(1)
	submitErr := e.pool.Submit(func() {
		defer wg.Done()
		clone, cloneErr := e.store.Clone(ctx)
		if cloneErr != nil {
			sparseErr = cloneErr
			return
		}
		defer clone.Close()

		searcher := NewSparseSearcher(clone)
		sparse, sparseErr = searcher.Search(ctx, query, plan.Limit)
	})
	if submitErr != nil {
		return nil, nil, nil, fmt.Errorf("engine: submit sparse search: %w", submitErr)
	}

	wg.Wait()

	if denseErr != nil {
		return nil, nil, nil, denseErr
	}
	if sparseErr != nil {
		return nil, nil, nil, sparseErr
	}
	return dense, denseCandidates, sparse, nil
}

// toDenseCandidates keeps each dense hit's raw cosine, which is its Score
// as returned by dense search (fusion overwrites Score with the RRF value,
// but the exploration probe needs the cosine).
func toDenseCandidates(dense []domain.SearchResult, _ []float32) []denseCandidate {
	out := make([]denseCandidate, len(dense))
	for i, r := range dense {
		out[i] = denseCandidate{Result: r, Cosine: r.Score}
	}
	return out
}

// rerank scores the first 10 fused candidates through the cross-encoder
// backend and re-sorts by normalized score, preserving rerankRank. Hits
// are mapped back onto their source candidate by RerankHit.Index rather
// than by position, since the backend may drop outliers and return
// fewer hits than candidates submitted (spec §4.10, §7). A candidate
// whose hit was dropped as an outlier keeps its pre-rerank score and
// falls after every scored candidate, rather than being discarded from
// the result set. On any backend error, the pre-rerank list is returned
// unchanged.
func (e *Engine) rerank(ctx context.Context, query string, fused []domain.SearchResult) []domain.SearchResult {
	n := len(fused)
	if n > maxBatchCandidatesLocal {
		n = maxBatchCandidatesLocal
	}
	if n == 0 {
		return fused
	}

	texts := make([]string, n)
	for i := 0; i < n; i++ {
		texts[i] = fused[i].Text
	}

	hits, err := e.reranker.ScoreBatch(ctx, query, texts)
	if err != nil {
		logger.Warn("engine: rerank backend failed, returning pre-rerank order: %v", err)
		return fused
	}
	if len(hits) == 0 {
		return fused
	}

	scored := make([]domain.SearchResult, 0, len(hits))
	dropped := make([]domain.SearchResult, 0, n-len(hits))
	seen := make(map[int]bool, len(hits))
	for _, hit := range hits {
		if hit.Index < 0 || hit.Index >= n {
			continue
		}
		r := fused[hit.Index]
		r.RerankRank = hit.Index + 1
		r.Score = hit.Score
		scored = append(scored, r)
		seen[hit.Index] = true
	}
	for i := 0; i < n; i++ {
		if !seen[i] {
			dropped = append(dropped, fused[i])
		}
	}

	sortByScoreDesc(scored)

	out := make([]domain.SearchResult, 0, len(fused))
	out = append(out, scored...)
	out = append(out, dropped...)
	out = append(out, fused[n:]...)
	return out
}

// maxBatchCandidatesLocal mirrors the reranker's own batch cap so the
// engine never asks for more scores than the backend contract promises.
const maxBatchCandidatesLocal = 10

func sortByScoreDesc(results []domain.SearchResult) {
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j].Score > results[j-1].Score; j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
}

// RecordInteraction registers a click against a previously returned
// chunk. Exploration hits are quarantined from the boost signal.
func (e *Engine) RecordInteraction(ctx context.Context, chunkID int64, isExploration bool, delta float64) error {
	return e.logWriter.RecordInteraction(ctx, chunkID, isExploration, delta)
}
