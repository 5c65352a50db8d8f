package driven

import (
	"context"
	"io"

	"github.com/sercha/retrieval-core/internal/core/domain"
)

// Store is the persistent store port (spec §4.1). It owns chunk storage,
// the full-text index, the retrieval log, and workspace metadata for one
// workspace database.
type Store interface {
	// InsertChunk persists a chunk and its full-text index row atomically,
	// returning the assigned ID. On failure it logs and returns
	// (0, false) rather than an error — a storage-recoverable failure per
	// spec §7 — except when the chunk's embedding dimension does not
	// match the registered embedding_dimension, which returns
	// domain.ErrDimensionMismatch.
	InsertChunk(ctx context.Context, chunk domain.Chunk) (id int64, ok bool, err error)

	// ScanAllChunks returns every chunk in the workspace, for brute-force
	// dense search (spec §4.2 — no ANN index by design).
	ScanAllChunks(ctx context.Context) ([]domain.Chunk, error)

	// KeywordQuery runs the query string against the full-text index
	// verbatim, returning up to limit matching chunks in ranked order.
	// Malformed FTS queries return an empty slice, never an error
	// (spec §4.3, §7).
	KeywordQuery(ctx context.Context, query string, limit int) ([]domain.Chunk, error)

	// GetChunk fetches a single chunk by ID.
	GetChunk(ctx context.Context, id int64) (*domain.Chunk, error)

	// ChunkContext returns the text of the chunk at chunkIdx+offset within
	// docID, or domain.ErrNotFound if there is none.
	ChunkContext(ctx context.Context, docID string, chunkIdx, offset int) (string, error)

	// BoostChunk increments a chunk's boost_factor by delta. Callers must
	// never call this for exploration-tagged interactions (spec §4.9).
	BoostChunk(ctx context.Context, id int64, delta float64) error

	// GetMetadata reads a workspace metadata value.
	GetMetadata(ctx context.Context, key string) (value string, ok bool, err error)

	// SetMetadata upserts a workspace metadata value.
	SetMetadata(ctx context.Context, key, value string) error

	// AppendRetrievalLog appends one audit row (spec §4.11). Append-only.
	AppendRetrievalLog(ctx context.Context, entry domain.RetrievalLogEntry) error

	// RecentLogs returns up to limit of the most recent non-exploration
	// retrieval-log rows for an exact query string, newest first — the
	// Stability Regulator's read path (spec §4.7).
	RecentLogs(ctx context.Context, query string, limit int) ([]domain.RetrievalLogEntry, error)

	// Count returns the number of chunks in the workspace.
	Count(ctx context.Context) (int, error)

	// Clear deletes every chunk, full-text row, and retrieval log in the
	// workspace. Metadata is preserved.
	Clear(ctx context.Context) error

	// ExportChunksCSV writes id, source file, and text for every chunk to
	// w in CSV form.
	ExportChunksCSV(ctx context.Context, w io.Writer) error

	// Clone opens an independent handle to the same underlying database
	// for concurrent read use by a worker (spec §5). Migrations are not
	// re-run. The caller must Close the clone when done.
	Clone(ctx context.Context) (Store, error)

	// Close releases the store's resources.
	Close() error
}
