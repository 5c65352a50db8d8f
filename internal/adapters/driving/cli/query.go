package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sercha/retrieval-core/internal/core/domain"
)

var (
	queryLimit        int
	queryMMR          bool
	queryExplore      bool
	queryRerank       bool
	queryEmbeddingHex string
)

var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Run a hybrid retrieval query against the workspace",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runQuery,
}

func init() {
	queryCmd.Flags().IntVar(&queryLimit, "limit", 10, "maximum number of results")
	queryCmd.Flags().BoolVar(&queryMMR, "mmr", true, "enable adaptive MMR diversification")
	queryCmd.Flags().BoolVar(&queryExplore, "explore", true, "enable the exploration probe")
	queryCmd.Flags().BoolVar(&queryRerank, "rerank", false, "enable cross-encoder reranking (requires a configured reranker)")
	queryCmd.Flags().StringVar(&queryEmbeddingHex, "embedding", "", "query embedding as comma-separated floats; omitted means sparse-only")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")

	engine, store, client, err := newEngine()
	if err != nil {
		return err
	}
	defer store.Close()
	defer engine.Close()
	defer saveRerankStats(store, client)

	opts := domain.SearchOptions{
		Limit:             queryLimit,
		Hybrid:            true,
		EnableMMR:         queryMMR,
		EnableExploration: queryExplore,
		EnableRerank:      queryRerank,
	}
	if queryEmbeddingHex != "" {
		emb, err := parseEmbedding(queryEmbeddingHex)
		if err != nil {
			return fmt.Errorf("parse --embedding: %w", err)
		}
		opts.Embedding = emb
		opts.Semantic = true
	}

	results, err := engine.Query(context.Background(), text, opts)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}

	return renderResults(cmd, results)
}

func parseEmbedding(csv string) ([]float32, error) {
	parts := strings.Split(csv, ",")
	out := make([]float32, 0, len(parts))
	for _, p := range parts {
		var f float64
		if _, err := fmt.Sscanf(strings.TrimSpace(p), "%f", &f); err != nil {
			return nil, fmt.Errorf("invalid embedding component %q: %w", p, err)
		}
		out = append(out, float32(f))
	}
	return out, nil
}

func renderResults(cmd *cobra.Command, results []domain.SearchResult) error {
	if jsonOutput || !isTTY() {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	out := cmd.OutOrStdout()
	if len(results) == 0 {
		fmt.Fprintln(out, "no results")
		return nil
	}
	for i, r := range results {
		tag := ""
		if r.IsExploration {
			tag = "  [exploration]"
		}
		fmt.Fprintf(out, "%2d. %-40s score=%.4f  %s > %s%s\n", i+1, r.SourceFile, r.Score, r.DocID, r.HeadingPath, tag)
		snippet := r.Text
		if len(snippet) > 160 {
			snippet = snippet[:160] + "..."
		}
		fmt.Fprintf(out, "    %s\n", strings.ReplaceAll(snippet, "\n", " "))
	}
	return nil
}
