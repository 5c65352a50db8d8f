package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var (
	feedbackExploration bool
	feedbackDelta       float64
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback <chunk-id>",
	Short: "Record an interaction signal against a previously returned chunk",
	Args:  cobra.ExactArgs(1),
	RunE:  runFeedback,
}

func init() {
	feedbackCmd.Flags().BoolVar(&feedbackExploration, "exploration", false, "mark this interaction as an exploration-probe click (quarantined from boosting)")
	feedbackCmd.Flags().Float64Var(&feedbackDelta, "delta", 0.1, "boost_factor increment for non-exploration interactions")
	rootCmd.AddCommand(feedbackCmd)
}

func runFeedback(cmd *cobra.Command, args []string) error {
	chunkID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chunk id %q: %w", args[0], err)
	}

	engine, store, _, err := newEngine()
	if err != nil {
		return err
	}
	defer store.Close()
	defer engine.Close()

	if err := engine.RecordInteraction(context.Background(), chunkID, feedbackExploration, feedbackDelta); err != nil {
		return fmt.Errorf("record interaction: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "recorded interaction for chunk %d (exploration=%v)\n", chunkID, feedbackExploration)
	return nil
}
