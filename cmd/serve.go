package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"chatllm/api"
	"chatllm/db"
	"chatllm/internal/chat"
	"chatllm/internal/config"
	"chatllm/internal/conversation"
	"chatllm/internal/database"
	"chatllm/internal/filestore"
	"chatllm/internal/ingest"
	"chatllm/internal/provider"
	"chatllm/internal/retrieval"
	"chatllm/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// runServe is the composition root: config, database, migrations, services,
// HTTP server. It blocks until SIGINT or SIGTERM.
func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	logger := newLogger()
	logger.Info("starting chatllm", "version", AppVersion)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := db.Migrate(cfg.DatabaseURL()); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}

	pool, err := database.Connect(ctx, cfg.DatabaseURL())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	storage, err := filestore.New(cfg.UploadDir)
	if err != nil {
		return fmt.Errorf("opening file store: %w", err)
	}

	st := store.New(pool, logger)
	providerClient := provider.New(provider.Config{
		DefaultModel:    cfg.ChatModel,
		EmbedModel:      cfg.EmbedModel,
		EmbedDimension:  cfg.EmbedDimension,
		Timeout:         cfg.ProviderTimeout,
		EmbedRatePerSec: cfg.EmbedRatePerSec,
		EmbedRateBurst:  cfg.EmbedRateBurst,
	}, logger)

	conversations := conversation.NewService(st, logger)
	retriever := retrieval.New(retrieval.Config{
		Limit:       cfg.RetrievalLimit,
		MaxDistance: cfg.MaxDistance,
	}, providerClient, st, logger)
	orchestrator := chat.New(providerClient, retriever, logger)
	ingestor := ingest.New(ingest.Config{
		ChunkSize:          cfg.ChunkSize,
		ChunkOverlap:       cfg.ChunkOverlap,
		BatchSize:          cfg.EmbedBatchSize,
		MaxConcurrentFiles: 4,
	}, providerClient, st, logger)

	server := api.NewServer(api.Deps{
		Pool:          pool,
		Auth:          api.HeaderAuthenticator{},
		Conversations: conversations,
		Chat:          orchestrator,
		Retriever:     retriever,
		Models:        providerClient,
		Ingest:        ingestor,
		Files:         st,
		Storage:       storage,
		Logger:        logger,
	})

	return server.Run(ctx, cfg.ListenAddr)
}
