package services

import (
	"strings"
	"sync"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/sercha/retrieval-core/internal/core/domain"
	"github.com/sercha/retrieval-core/internal/core/vectormath"
	"github.com/sercha/retrieval-core/internal/logger"
)

// cacheCapacity bounds both cache layers (spec §4.5).
const cacheCapacity = 100

// defaultSemanticThreshold is the cosine-similarity floor for a Layer 2
// hit, overridable via configuration.
const defaultSemanticThreshold = 0.95

// semanticEntry is one Layer 2 (semantic) cache row.
type semanticEntry struct {
	embedding []float32
	results   []domain.SearchResult
}

// QueryCache is the two-layer exact + semantic query cache (spec §4.5).
// Both layers share a single mutex rather than independent locks, since
// lookups on one layer often fall through to the other. The exact layer
// charges each entry a cost of 1, so it holds about cacheCapacity entries.
type QueryCache struct {
	mu                sync.Mutex
	exact             *ristretto.Cache[string, []domain.SearchResult]
	semantic          []semanticEntry
	semanticThreshold float64
	capacity          int
}

// NewQueryCache constructs a QueryCache. A zero semanticThreshold falls
// back to the default of 0.95 (spec §4.5).
func NewQueryCache(semanticThreshold float64) (*QueryCache, error) {
	if semanticThreshold <= 0 {
		semanticThreshold = defaultSemanticThreshold
	}

	exact, err := ristretto.NewCache(&ristretto.Config[string, []domain.SearchResult]{
		NumCounters:        cacheCapacity * 10,
		MaxCost:            cacheCapacity,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}

	return &QueryCache{
		exact:             exact,
		semanticThreshold: semanticThreshold,
		capacity:          cacheCapacity,
	}, nil
}

// SetCapacity overrides the semantic layer's entry cap from its
// spec §4.5 default of 100. The exact layer's ristretto sizing is fixed
// at construction and unaffected; n <= 0 is ignored.
func (c *QueryCache) SetCapacity(n int) {
	if n <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.capacity = n
	for len(c.semantic) > c.capacity {
		c.semantic = c.semantic[1:]
	}
}

// Close releases the cache's background goroutines.
func (c *QueryCache) Close() {
	c.exact.Close()
}

// canonicalize trims and lowercases a query string for exact-layer keys.
func canonicalize(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

// LookupExact checks Layer 1 by canonical query text.
func (c *QueryCache) LookupExact(query string) ([]domain.SearchResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	results, ok := c.exact.Get(canonicalize(query))
	if ok {
		logger.Debug("cache: exact hit for %q", query)
	}
	return results, ok
}

// LookupSemantic scans Layer 2 for an entry whose embedding has cosine
// similarity above the configured threshold.
func (c *QueryCache) LookupSemantic(embedding []float32) ([]domain.SearchResult, bool) {
	if len(embedding) == 0 {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, entry := range c.semantic {
		if vectormath.CosineSimilarity(embedding, entry.embedding) > c.semanticThreshold {
			logger.Debug("cache: semantic hit")
			return entry.results, true
		}
	}
	return nil, false
}

// Insert writes the fused result into Layer 1, and into Layer 2 if an
// embedding is available.
func (c *QueryCache) Insert(query string, embedding []float32, results []domain.SearchResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.exact.Set(canonicalize(query), results, 1)

	if len(embedding) == 0 {
		return
	}

	if len(c.semantic) >= c.capacity {
		c.semantic = c.semantic[1:]
	}
	c.semantic = append(c.semantic, semanticEntry{embedding: embedding, results: results})
}
