// Package cli wires the retrieval engine to a cobra command tree: query,
// ingest, feedback, and stats. Ingestion and embedding generation remain
// external collaborators — ingest only loads already-embedded chunks
// produced upstream, it never calls an embedding model itself.
package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	configfile "github.com/sercha/retrieval-core/internal/adapters/driven/config/file"
	"github.com/sercha/retrieval-core/internal/adapters/driven/rerank"
	"github.com/sercha/retrieval-core/internal/adapters/driven/storage/sqlite"
	"github.com/sercha/retrieval-core/internal/core/domain"
	"github.com/sercha/retrieval-core/internal/core/services"
	"github.com/sercha/retrieval-core/internal/logger"
)

const version = "0.1.0"

var (
	workspaceDir string
	jsonOutput   bool
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:           "sercha-retrieve",
	Short:         "Hybrid dense+sparse retrieval over a local chunk workspace",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&workspaceDir, "workspace", "", "workspace data directory (default ~/.sercha/data)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit machine-readable JSON instead of a table")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable verbose pipeline logging")

	cobra.OnInitialize(func() {
		logger.SetVerbose(verbose)
	})
}

// Execute runs the CLI's root command.
func Execute() error {
	return rootCmd.Execute()
}

// isTTY reports whether stdout is an interactive terminal, used to pick
// a sensible default render mode when --json is not explicit.
func isTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// openStore opens the sqlite store at the configured workspace directory.
func openStore() (*sqlite.Store, error) {
	dir := workspaceDir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		dir = filepath.Join(home, ".sercha", "data")
	}
	return sqlite.NewStore(dir)
}

// newEngine opens the store and config, and constructs an Engine. If a
// rerank API key is configured, a Client is wired in as the optional
// cross-encoder reranker and returned alongside so the caller can
// persist its rolling calibration statistics after use.
func newEngine() (*services.Engine, *sqlite.Store, *rerank.Client, error) {
	store, err := openStore()
	if err != nil {
		return nil, nil, nil, err
	}

	cfg, err := configfile.NewConfigStore(workspaceDir)
	if err != nil {
		_ = store.Close()
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	opts := []services.EngineOption{
		services.WithSemanticThreshold(cfg.SemanticThreshold()),
		services.WithCacheCapacity(cfg.CacheCapacity()),
		services.WithMMRLambdaBounds(cfg.MMRLambdaMin(), cfg.MMRLambdaMax()),
		services.WithExplorationGates(cfg.ExplorationStabilityFloor(), cfg.ExplorationCosineFloor()),
	}
	var client *rerank.Client
	if apiKey := cfg.RerankAPIKey(); apiKey != "" {
		seeded, mean, std := loadRerankStats(store, cfg.RerankModel())
		client, err = rerank.NewClient(rerank.Config{
			APIKey:      apiKey,
			BaseURL:     cfg.RerankBaseURL(),
			Model:       cfg.RerankModel(),
			Seeded:      seeded,
			InitialMean: mean,
			InitialStd:  std,
		})
		if err != nil {
			_ = store.Close()
			return nil, nil, nil, fmt.Errorf("construct reranker: %w", err)
		}
		opts = append(opts, services.WithReranker(client))
	}

	engine, err := services.NewEngine(store, opts...)
	if err != nil {
		_ = store.Close()
		return nil, nil, nil, err
	}
	return engine, store, client, nil
}

// saveRerankStats persists a reranker's rolling calibration statistics
// to workspace metadata (spec §4.10, §6) so the next process picks up
// where this one left off.
func saveRerankStats(store *sqlite.Store, client *rerank.Client) {
	if client == nil {
		return
	}
	stats := client.Stats()
	if stats.Samples == 0 {
		return
	}
	ctx := context.Background()
	model := client.ModelName()
	if err := store.SetMetadata(ctx, domain.RerankerMeanKey(model), fmt.Sprintf("%f", stats.Mean)); err != nil {
		logger.Warn("cli: failed to persist reranker mean: %v", err)
	}
	if err := store.SetMetadata(ctx, domain.RerankerStdKey(model), fmt.Sprintf("%f", stats.Std)); err != nil {
		logger.Warn("cli: failed to persist reranker std: %v", err)
	}
}

// loadRerankStats reads persisted rolling calibration statistics for
// model from workspace metadata (spec §4.10, §6).
func loadRerankStats(store *sqlite.Store, model string) (seeded bool, mean, std float64) {
	if model == "" {
		return false, 0, 0
	}
	ctx := context.Background()
	meanStr, ok, err := store.GetMetadata(ctx, domain.RerankerMeanKey(model))
	if err != nil || !ok {
		return false, 0, 0
	}
	stdStr, ok, err := store.GetMetadata(ctx, domain.RerankerStdKey(model))
	if err != nil || !ok {
		return false, 0, 0
	}
	var m, s float64
	if _, err := fmt.Sscanf(meanStr, "%f", &m); err != nil {
		return false, 0, 0
	}
	if _, err := fmt.Sscanf(stdStr, "%f", &s); err != nil {
		return false, 0, 0
	}
	return true, m, s
}
