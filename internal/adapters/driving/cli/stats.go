package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sercha/retrieval-core/internal/core/domain"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show workspace chunk count and embedding metadata",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	count, err := store.Count(ctx)
	if err != nil {
		return fmt.Errorf("count chunks: %w", err)
	}

	dim, hasDim, err := store.GetMetadata(ctx, domain.MetaEmbeddingDimension)
	if err != nil {
		return fmt.Errorf("read embedding dimension: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "chunks: %d\n", count)
	if hasDim {
		fmt.Fprintf(out, "embedding dimension: %s\n", dim)
	} else {
		fmt.Fprintln(out, "embedding dimension: (none registered yet)")
	}
	return nil
}
