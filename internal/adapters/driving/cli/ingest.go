package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sercha/retrieval-core/internal/core/domain"
	"github.com/sercha/retrieval-core/internal/logger"
)

var ingestFile string

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load already-embedded chunks into the workspace",
	Long: "Reads JSON Lines records, one chunk per line, and inserts each into the\n" +
		"workspace store. Chunking and embedding generation happen upstream; ingest\n" +
		"only persists what it's given.",
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestFile, "file", "-", "JSON Lines file to read, or - for stdin")
	rootCmd.AddCommand(ingestCmd)
}

// ingestRecord mirrors domain.Chunk's externally-settable fields. ID,
// CreatedAt, and BoostFactor are assigned by the store, never accepted
// from the ingest stream.
type ingestRecord struct {
	SourceFile    string    `json:"source_file"`
	DocID         string    `json:"doc_id"`
	PageNum       int       `json:"page_num"`
	ChunkIdx      int       `json:"chunk_idx"`
	Text          string    `json:"text"`
	Embedding     []float32 `json:"embedding"`
	ModelSig      string    `json:"model_sig"`
	HeadingPath   string    `json:"heading_path"`
	HeadingLevel  int       `json:"heading_level"`
	ChunkType     string    `json:"chunk_type"`
	ListType      string    `json:"list_type"`
	ListLength    int       `json:"list_length"`
	SentenceCount int       `json:"sentence_count"`
}

func runIngest(cmd *cobra.Command, args []string) error {
	var r io.Reader = os.Stdin
	if ingestFile != "-" {
		f, err := os.Open(ingestFile)
		if err != nil {
			return fmt.Errorf("open %s: %w", ingestFile, err)
		}
		defer f.Close()
		r = f
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	var inserted, skipped int
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec ingestRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return fmt.Errorf("decode chunk record: %w", err)
		}

		chunk := domain.Chunk{
			SourceFile:    rec.SourceFile,
			DocID:         rec.DocID,
			PageNum:       rec.PageNum,
			ChunkIdx:      rec.ChunkIdx,
			Text:          rec.Text,
			Embedding:     rec.Embedding,
			ModelSig:      rec.ModelSig,
			ModelDim:      len(rec.Embedding),
			HeadingPath:   rec.HeadingPath,
			HeadingLevel:  rec.HeadingLevel,
			ChunkType:     rec.ChunkType,
			ListType:      rec.ListType,
			ListLength:    rec.ListLength,
			SentenceCount: rec.SentenceCount,
		}

		id, ok, err := store.InsertChunk(ctx, chunk)
		if err != nil {
			return fmt.Errorf("insert chunk from %s: %w", rec.SourceFile, err)
		}
		if !ok {
			skipped++
			logger.Warn("ingest: skipped chunk from %s (storage-recoverable failure)", rec.SourceFile)
			continue
		}
		inserted++
		logger.Debug("ingest: inserted chunk %d from %s", id, rec.SourceFile)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "inserted %d chunks, skipped %d\n", inserted, skipped)
	return nil
}
