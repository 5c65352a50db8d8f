package domain

import "time"

// SearchOptions configures a retrieval query.
type SearchOptions struct {
	// Limit is the maximum number of results to return.
	Limit int

	// Semantic marks that the caller supplied a query embedding. The
	// engine does not read it: dense search runs whenever Embedding is
	// non-empty.
	Semantic bool

	// Hybrid marks a request for combined keyword + semantic search. The
	// engine does not read it: sparse search always runs, and dense
	// search runs whenever Embedding is non-empty.
	Hybrid bool

	// Embedding is the caller-supplied query embedding. Required for
	// dense/hybrid search; nil falls back to sparse-only.
	Embedding []float32

	// EnableMMR turns on adaptive MMR diversification (spec §4.8).
	EnableMMR bool

	// EnableExploration turns on the exploration probe (spec §4.9).
	EnableExploration bool

	// EnableRerank turns on cross-encoder reranking (spec §4.10), only
	// effective if the engine was constructed with a Reranker.
	EnableRerank bool
}

// SearchResult is a single ranked retrieval hit, carrying the fields spec
// §6 requires at minimum.
type SearchResult struct {
	ChunkID      int64
	Text         string
	SourceFile   string
	DocID        string
	PageNum      int
	HeadingPath  string
	HeadingLevel int
	ChunkType    string

	// Score is the final fused (and, if enabled, reranked) score.
	Score float64

	// SemanticRank and KeywordRank are the 1-indexed ranks of this chunk
	// in the dense and sparse result lists respectively; 0 if absent from
	// that side.
	SemanticRank int
	KeywordRank  int

	// RerankRank is the 1-indexed position this chunk held before
	// cross-encoder reranking; 0 if reranking did not run.
	RerankRank int

	// TrustScore is BoostFactor x recency factor (spec §4.2, Glossary).
	TrustScore float64

	// IsExploration marks a candidate inserted by the exploration probe.
	IsExploration bool

	// Stability is the per-query stability score applied during biasing.
	Stability float64
}

// RetrievalLogEntry is one append-only audit row per fused query.
type RetrievalLogEntry struct {
	ID               int64
	Query            string
	SemanticRank     int
	KeywordRank      int
	FinalRank        int
	LatencyEmbedding time.Duration
	LatencySearch    time.Duration
	LatencyFusion    time.Duration
	LatencyRerank    time.Duration
	TopScore         float64
	MMRPenaltyTotal  float64
	IsExploration    bool
	// RankDelta is the difference between the fused top rank and the
	// baseline dense top rank. Nil on rows from a workspace migrated
	// before this column existed (spec §9) — the Stability Regulator
	// must treat a nil RankDelta as "no history" for that row.
	RankDelta *int
	Stability float64
	CreatedAt time.Time
}

// Reserved workspace metadata keys (spec §6).
const (
	MetaEmbeddingDimension = "embedding_dimension"
)

// RerankerMeanKey and RerankerStdKey build the per-reranker persisted
// calibration-statistics metadata keys.
func RerankerMeanKey(model string) string { return model + "_mean" }
func RerankerStdKey(model string) string  { return model + "_std" }
