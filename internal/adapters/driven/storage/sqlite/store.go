package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/csv"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/sercha/retrieval-core/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/sercha/retrieval-core/internal/core/domain"
	"github.com/sercha/retrieval-core/internal/core/ports/driven"
	"github.com/sercha/retrieval-core/internal/core/vectormath"
	"github.com/sercha/retrieval-core/internal/logger"
)

// Store is the SQLite-backed implementation of driven.Store.
type Store struct {
	db   *sql.DB
	path string
}

var _ driven.Store = (*Store)(nil)

// NewStore opens (creating if needed) the workspace database at dataDir.
// If dataDir is empty, defaults to ~/.sercha/data/retrieve.db.
func NewStore(dataDir string) (*Store, error) {
	path, err := resolvePath(dataDir)
	if err != nil {
		return nil, err
	}

	db, err := openDB(path)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: running migrations: %v", domain.ErrStorageFatal, err)
	}

	return s, nil
}

func resolvePath(dataDir string) (string, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("%w: getting home directory: %v", domain.ErrStorageFatal, err)
		}
		dataDir = filepath.Join(home, ".sercha", "data")
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return "", fmt.Errorf("%w: creating data directory: %v", domain.ErrStorageFatal, err)
	}
	return filepath.Join(dataDir, "retrieve.db"), nil
}

func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("%w: opening database: %v", domain.ErrStorageFatal, err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: enabling foreign keys: %v", domain.ErrStorageFatal, err)
	}
	return db, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close releases the store's resources.
func (s *Store) Close() error {
	return s.db.Close()
}

// Clone opens an independent handle to the same database file for
// concurrent read use by a worker (spec §5); migrations are already
// applied, so Clone skips them entirely.
func (s *Store) Clone(_ context.Context) (driven.Store, error) {
	db, err := openDB(s.path)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, path: s.path}, nil
}

// migrate runs every pending *.up.sql migration and advances
// PRAGMA user_version to match, mirroring the database's own schema
// version counter rather than a tracking table.
func (s *Store) migrate(fsys embed.FS) error {
	var currentVersion int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&currentVersion); err != nil {
		return fmt.Errorf("reading user_version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		version, ok := migrationVersion(name)
		if !ok || version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}

		if _, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", version)); err != nil {
			return fmt.Errorf("advancing user_version to %d: %w", version, err)
		}

		logger.Debug("applied migration %s (now at version %d)", name, version)
		currentVersion = version
	}

	return nil
}

func migrationVersion(filename string) (int, bool) {
	idx := strings.IndexByte(filename, '_')
	if idx <= 0 {
		return 0, false
	}
	version, err := strconv.Atoi(filename[:idx])
	if err != nil {
		return 0, false
	}
	return version, true
}

// InsertChunk persists a chunk and its full-text index row atomically.
func (s *Store) InsertChunk(ctx context.Context, chunk domain.Chunk) (int64, bool, error) {
	if err := s.checkDimension(ctx, len(chunk.Embedding)); err != nil {
		return 0, false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		logger.Warn("insert chunk: beginning transaction: %v", err)
		return 0, false, nil
	}
	defer tx.Rollback() //nolint:errcheck

	boost := chunk.BoostFactor
	if boost == 0 {
		boost = 1.0
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO embeddings (
			source_file, text_chunk, vector_blob, doc_id, page_num, chunk_idx,
			model_sig, model_dim, boost_factor, heading_path, heading_level,
			chunk_type, list_type, list_length, sentence_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, chunk.SourceFile, chunk.Text, vectormath.VectorToBlob(chunk.Embedding), chunk.DocID,
		chunk.PageNum, chunk.ChunkIdx, chunk.ModelSig, len(chunk.Embedding), boost,
		chunk.HeadingPath, chunk.HeadingLevel, chunk.ChunkType, chunk.ListType,
		chunk.ListLength, chunk.SentenceCount)
	if err != nil {
		logger.Warn("insert chunk: %v", err)
		return 0, false, nil
	}

	id, err := res.LastInsertId()
	if err != nil {
		logger.Warn("insert chunk: reading last insert id: %v", err)
		return 0, false, nil
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO embeddings_fts(rowid, text_chunk) VALUES (?, ?)`, id, indexedText(chunk.HeadingPath, chunk.Text)); err != nil {
		logger.Warn("insert chunk: indexing fts row: %v", err)
		return 0, false, nil
	}

	if err := tx.Commit(); err != nil {
		logger.Warn("insert chunk: committing transaction: %v", err)
		return 0, false, nil
	}

	return id, true, nil
}

// headingPunctuation matches everything that isn't a letter, digit, or
// whitespace, mirroring the original indexer's heading normalization.
var headingPunctuation = regexp.MustCompile(`[^a-zA-Z0-9\s]`)

// indexedText builds the string actually indexed into embeddings_fts:
// the chunk's heading path, punctuation stripped so breadcrumb
// separators don't glue words together, prefixed onto the chunk body so
// heading terms are keyword-searchable (spec §3).
func indexedText(headingPath, text string) string {
	tokens := headingPunctuation.ReplaceAllString(headingPath, " ")
	return fmt.Sprintf("[CONTEXT: %s] %s", tokens, text)
}

// checkDimension enforces that every inserted embedding matches the
// workspace's registered dimension, registering it on the first insert.
func (s *Store) checkDimension(ctx context.Context, dim int) error {
	if dim == 0 {
		return nil
	}

	value, ok, err := s.GetMetadata(ctx, domain.MetaEmbeddingDimension)
	if err != nil {
		return err
	}
	if !ok {
		return s.SetMetadata(ctx, domain.MetaEmbeddingDimension, strconv.Itoa(dim))
	}

	registered, err := strconv.Atoi(value)
	if err != nil {
		return nil // corrupt metadata value: don't block inserts over it
	}
	if registered != dim {
		return domain.ErrDimensionMismatch
	}
	return nil
}

// ScanAllChunks returns every chunk, for brute-force dense search.
func (s *Store) ScanAllChunks(ctx context.Context) ([]domain.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, chunkSelectColumns+" FROM embeddings")
	if err != nil {
		return nil, fmt.Errorf("%w: scanning chunks: %v", domain.ErrStorageFatal, err)
	}
	defer rows.Close()

	var chunks []domain.Chunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scanning chunk row: %v", domain.ErrStorageFatal, err)
		}
		chunks = append(chunks, *chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating chunks: %v", domain.ErrStorageFatal, err)
	}
	return chunks, nil
}

// KeywordQuery runs query against the full-text index. A malformed FTS
// query (unbalanced quotes, bad operator) returns an empty result rather
// than an error, matching spec §7's treatment of sparse search as a
// best-effort signal.
func (s *Store) KeywordQuery(ctx context.Context, query string, limit int) ([]domain.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, chunkSelectColumns+`
		FROM embeddings
		JOIN (
			SELECT rowid AS fts_id, rank AS fts_rank FROM embeddings_fts
			WHERE embeddings_fts MATCH ? ORDER BY rank LIMIT ?
		) AS hits ON hits.fts_id = embeddings.id
		ORDER BY hits.fts_rank
	`, query, limit)
	if err != nil {
		logger.Debug("keyword query %q failed, treating as no matches: %v", query, err)
		return nil, nil
	}
	defer rows.Close()

	var chunks []domain.Chunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			logger.Warn("keyword query: scanning row: %v", err)
			continue
		}
		chunks = append(chunks, *chunk)
	}
	if err := rows.Err(); err != nil {
		logger.Debug("keyword query %q: iteration error, returning partial results: %v", query, err)
	}
	return chunks, nil
}

// GetChunk fetches a single chunk by ID.
func (s *Store) GetChunk(ctx context.Context, id int64) (*domain.Chunk, error) {
	row := s.db.QueryRowContext(ctx, chunkSelectColumns+" FROM embeddings WHERE id = ?", id)
	chunk, err := scanChunkRow(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageFatal, err)
	}
	return chunk, nil
}

// ChunkContext returns the text of the chunk at chunkIdx+offset in docID.
func (s *Store) ChunkContext(ctx context.Context, docID string, chunkIdx, offset int) (string, error) {
	var text string
	err := s.db.QueryRowContext(ctx, `
		SELECT text_chunk FROM embeddings WHERE doc_id = ? AND chunk_idx = ?
	`, docID, chunkIdx+offset).Scan(&text)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", domain.ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", domain.ErrStorageFatal, err)
	}
	return text, nil
}

// BoostChunk increments a chunk's boost_factor by delta.
func (s *Store) BoostChunk(ctx context.Context, id int64, delta float64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE embeddings SET boost_factor = boost_factor + ? WHERE id = ?`, delta, id)
	if err != nil {
		return fmt.Errorf("%w: boosting chunk %d: %v", domain.ErrStorageFatal, id, err)
	}
	return nil
}

// GetMetadata reads a workspace metadata value.
func (s *Store) GetMetadata(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM workspace_metadata WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: reading metadata %q: %v", domain.ErrStorageFatal, key, err)
	}
	return value, true, nil
}

// SetMetadata upserts a workspace metadata value.
func (s *Store) SetMetadata(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workspace_metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("%w: writing metadata %q: %v", domain.ErrStorageFatal, key, err)
	}
	return nil
}

// AppendRetrievalLog appends one audit row.
func (s *Store) AppendRetrievalLog(ctx context.Context, entry domain.RetrievalLogEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO retrieval_logs (
			query, semantic_rank, keyword_rank, final_rank,
			latency_embedding, latency_search, latency_fusion, latency_rerank,
			top_score, mmr_penalty_total, is_exploration, rank_delta, stability
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.Query, entry.SemanticRank, entry.KeywordRank, entry.FinalRank,
		entry.LatencyEmbedding.Microseconds(), entry.LatencySearch.Microseconds(),
		entry.LatencyFusion.Microseconds(), entry.LatencyRerank.Microseconds(),
		entry.TopScore, entry.MMRPenaltyTotal, entry.IsExploration, entry.RankDelta, entry.Stability)
	if err != nil {
		return fmt.Errorf("%w: appending retrieval log: %v", domain.ErrStorageFatal, err)
	}
	return nil
}

// RecentLogs returns up to limit of the most recent non-exploration
// retrieval-log rows for an exact query string, newest first.
func (s *Store) RecentLogs(ctx context.Context, query string, limit int) ([]domain.RetrievalLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, query, semantic_rank, keyword_rank, final_rank,
			latency_embedding, latency_search, latency_fusion, latency_rerank,
			top_score, mmr_penalty_total, is_exploration, rank_delta, stability, created_at
		FROM retrieval_logs
		WHERE query = ? AND is_exploration = 0
		ORDER BY created_at DESC
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: querying retrieval logs: %v", domain.ErrStorageFatal, err)
	}
	defer rows.Close()

	var entries []domain.RetrievalLogEntry
	for rows.Next() {
		entry, err := scanRetrievalLog(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scanning retrieval log: %v", domain.ErrStorageFatal, err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating retrieval logs: %v", domain.ErrStorageFatal, err)
	}
	return entries, nil
}

// Count returns the number of chunks in the workspace.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings`).Scan(&count); err != nil {
		return 0, fmt.Errorf("%w: counting chunks: %v", domain.ErrStorageFatal, err)
	}
	return count, nil
}

// Clear deletes every chunk, full-text row, and retrieval log. Metadata
// is preserved.
func (s *Store) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: beginning clear transaction: %v", domain.ErrStorageFatal, err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, stmt := range []string{
		`DELETE FROM embeddings_fts`,
		`DELETE FROM embeddings`,
		`DELETE FROM retrieval_logs`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: clearing workspace: %v", domain.ErrStorageFatal, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing clear: %v", domain.ErrStorageFatal, err)
	}
	return nil
}

// ExportChunksCSV writes id, source file, and text for every chunk to w.
func (s *Store) ExportChunksCSV(ctx context.Context, w io.Writer) error {
	rows, err := s.db.QueryContext(ctx, `SELECT id, source_file, text_chunk FROM embeddings ORDER BY id`)
	if err != nil {
		return fmt.Errorf("%w: exporting chunks: %v", domain.ErrStorageFatal, err)
	}
	defer rows.Close()

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "source_file", "text"}); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}

	for rows.Next() {
		var id int64
		var sourceFile, text string
		if err := rows.Scan(&id, &sourceFile, &text); err != nil {
			return fmt.Errorf("%w: scanning export row: %v", domain.ErrStorageFatal, err)
		}
		if err := cw.Write([]string{strconv.FormatInt(id, 10), sourceFile, text}); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: iterating export rows: %v", domain.ErrStorageFatal, err)
	}

	cw.Flush()
	return cw.Error()
}

const chunkSelectColumns = `
	SELECT id, source_file, text_chunk, vector_blob, doc_id, page_num, chunk_idx,
		model_sig, model_dim, boost_factor, heading_path, heading_level,
		chunk_type, list_type, list_length, sentence_count, created_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChunk(rows *sql.Rows) (*domain.Chunk, error) { return scanChunkRow(rows) }

func scanChunkRow(row rowScanner) (*domain.Chunk, error) {
	var c domain.Chunk
	var vectorBlob []byte
	var docID, modelSig, headingPath, chunkType, listType sql.NullString
	var pageNum, chunkIdx, modelDim, headingLevel, listLength, sentenceCount sql.NullInt64
	var boostFactor sql.NullFloat64
	var createdAt time.Time

	if err := row.Scan(
		&c.ID, &c.SourceFile, &c.Text, &vectorBlob, &docID, &pageNum, &chunkIdx,
		&modelSig, &modelDim, &boostFactor, &headingPath, &headingLevel,
		&chunkType, &listType, &listLength, &sentenceCount, &createdAt,
	); err != nil {
		return nil, err
	}

	c.Embedding = vectormath.BlobFromVector(vectorBlob)
	c.DocID = docID.String
	c.PageNum = int(pageNum.Int64)
	c.ChunkIdx = int(chunkIdx.Int64)
	c.ModelSig = modelSig.String
	c.ModelDim = int(modelDim.Int64)
	c.HeadingPath = headingPath.String
	c.HeadingLevel = int(headingLevel.Int64)
	c.ChunkType = chunkType.String
	c.ListType = listType.String
	c.ListLength = int(listLength.Int64)
	c.SentenceCount = int(sentenceCount.Int64)
	c.CreatedAt = createdAt
	if boostFactor.Valid {
		c.BoostFactor = boostFactor.Float64
	} else {
		c.BoostFactor = 1.0
	}

	return &c, nil
}

func scanRetrievalLog(rows *sql.Rows) (*domain.RetrievalLogEntry, error) {
	var e domain.RetrievalLogEntry
	var latEmbed, latSearch, latFusion, latRerank sql.NullInt64
	var rankDelta sql.NullInt64
	var stability sql.NullFloat64

	if err := rows.Scan(
		&e.ID, &e.Query, &e.SemanticRank, &e.KeywordRank, &e.FinalRank,
		&latEmbed, &latSearch, &latFusion, &latRerank,
		&e.TopScore, &e.MMRPenaltyTotal, &e.IsExploration, &rankDelta, &stability, &e.CreatedAt,
	); err != nil {
		return nil, err
	}

	e.LatencyEmbedding = time.Duration(latEmbed.Int64) * time.Microsecond
	e.LatencySearch = time.Duration(latSearch.Int64) * time.Microsecond
	e.LatencyFusion = time.Duration(latFusion.Int64) * time.Microsecond
	e.LatencyRerank = time.Duration(latRerank.Int64) * time.Microsecond

	if rankDelta.Valid {
		v := int(rankDelta.Int64)
		e.RankDelta = &v
	}
	if stability.Valid {
		e.Stability = stability.Float64
	} else {
		e.Stability = 1.0
	}

	return &e, nil
}
