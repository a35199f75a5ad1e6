package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/knoguchi/tourney/internal/comparator"
	"github.com/knoguchi/tourney/internal/config"
	"github.com/knoguchi/tourney/internal/repository"
	"github.com/knoguchi/tourney/internal/repository/postgres"
	"github.com/knoguchi/tourney/internal/service"
	"github.com/knoguchi/tourney/internal/tournament"
	"github.com/knoguchi/tourney/internal/vectorstore"
)

var (
	verbose bool
	cfg     *config.Config
	logger  *slog.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tourney",
	Short: "Listwise tournament reranker",
	Long: `tourney reranks first-stage retrieval results with a tournament of
listwise comparisons.

Configuration comes from the environment (and a .env file); flags override it.

Example usage:
  tourney convert --input rerank.jsonl.gz --output records.jsonl
  tourney run --input records.jsonl --format records --output run.txt
  tourney serve
  tourney token --subject batch-client`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// initConfig sets up logging and loads configuration.
func initConfig() error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Set up structured logging
	logLevel := slog.LevelInfo
	if verbose || cfg.LogLevel == "debug" {
		logLevel = slog.LevelDebug
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	return nil
}

// backends holds the optional infrastructure shared by run and serve.
type backends struct {
	db     *postgres.DB
	qdrant *vectorstore.QdrantStore
}

func (b *backends) Close() {
	if b.db != nil {
		b.db.Close()
	}
	if b.qdrant != nil {
		if err := b.qdrant.Close(); err != nil {
			logger.Warn("failed to close qdrant client", "error", err)
		}
	}
}

// buildService validates configuration and wires the comparator, engine and
// optional storage into a RerankService.
func buildService(ctx context.Context, opts ...service.RerankServiceOption) (*service.RerankService, *backends, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	cmp, err := service.NewComparator(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	engine, err := tournament.NewEngine(cmp, cfg.Tournament(), tournament.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}

	b := &backends{}
	opts = append(opts, service.WithLogger(logger))

	if cfg.DatabaseURL != "" {
		db, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		b.db = db
		if err := postgres.Migrate(ctx, db.Pool); err != nil {
			b.Close()
			return nil, nil, err
		}
		logger.Info("connected to PostgreSQL")
		opts = append(opts, service.WithRunRepository(postgres.NewRunRepo(db.Pool), cfg.RunTag))
	}

	if cfg.QdrantCollection != "" {
		store, err := vectorstore.NewQdrantStore(ctx, cfg.QdrantGRPCURL, cfg.QdrantCollection)
		if err != nil {
			b.Close()
			return nil, nil, fmt.Errorf("failed to connect to Qdrant: %w", err)
		}
		b.qdrant = store
		logger.Info("connected to Qdrant", "collection", cfg.QdrantCollection)
		opts = append(opts, service.WithHydrator(vectorstore.NewHydrator(store, logger)))
	}

	logger.Info("tournament configured",
		"topk", cfg.TopK,
		"listwise_k", cfg.ListwiseK,
		"out_k", cfg.OutK,
		"rerank_topk", cfg.RerankTopK,
		"bsize", cfg.BatchSize,
		"truncation", cfg.Truncation,
		"backend", cmp.Name(),
	)

	return service.NewRerankService(engine, opts...), b, nil
}

// Ensure interfaces are satisfied at compile time
var (
	_ repository.RunRepository = (*postgres.RunRepo)(nil)
	_ vectorstore.PassageStore = (*vectorstore.QdrantStore)(nil)
	_ comparator.Comparator    = (*comparator.LLMComparator)(nil)
	_ comparator.Comparator    = (*comparator.EmbeddingComparator)(nil)
	_ comparator.Comparator    = (*comparator.HTTPComparator)(nil)
)
