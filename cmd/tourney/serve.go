package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/knoguchi/tourney/internal/auth"
	"github.com/knoguchi/tourney/internal/repository/postgres"
	"github.com/knoguchi/tourney/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the reranker over HTTP",
	Long: `Start the HTTP API: POST /v1/rerank, GET /v1/runs/{id} (with DATABASE_URL),
/healthz, /readyz and /metrics.

Authentication is enabled when API_KEY or JWT_SECRET is set.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "HTTP port (default HTTP_PORT)")
	addTournamentFlags(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	applyFlags(cmd.Flags())
	if cmd.Flags().Changed("port") {
		cfg.HTTPPort, _ = cmd.Flags().GetInt("port")
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	logger.Info("starting reranker service",
		"http_port", cfg.HTTPPort,
		"environment", cfg.Environment,
	)

	svc, b, err := buildService(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	var jwtManager *auth.JWTManager
	if cfg.JWTSecret != "" {
		jwtCfg := auth.DefaultJWTConfig(cfg.JWTSecret)
		jwtCfg.Expiry = cfg.JWTExpiry
		jwtManager = auth.NewJWTManager(jwtCfg)
	}
	authenticator := auth.NewAuthenticator(cfg.APIKey, jwtManager)
	if !authenticator.Enabled() {
		logger.Warn("authentication disabled: set API_KEY or JWT_SECRET")
	}

	checks := map[string]server.ReadinessCheck{}
	var runs server.RunReader
	if b.db != nil {
		checks["postgres"] = b.db.Pool.Ping
		runs = postgres.NewRunRepo(b.db.Pool)
	}

	httpServer, err := server.NewHTTPServer(server.HTTPServerConfig{
		Port:           cfg.HTTPPort,
		Logger:         logger,
		AllowedOrigins: []string{"*"}, // Configure in production
		Reranker:       svc,
		Keys:           cfg.Keys(),
		Auth:           authenticator,
		Checks:         checks,
		Runs:           runs,
	})
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.Start(); err != nil {
			errCh <- err
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("server stopped")
	return nil
}
