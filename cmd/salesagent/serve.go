package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/salessupport/salesagent/internal/config"
	"github.com/salessupport/salesagent/pkg/models"
	"github.com/salessupport/salesagent/pkg/server"
)

func runServe(ctx context.Context, debug bool) error {
	cfg, err := loadConfig(debug)
	if err != nil {
		return err
	}
	log.Info().Str("version", cfg.Version).Msg("💼 Sales agent starting...")

	srv, err := server.NewWithConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize server: %w", err)
	}

	// No WriteTimeout: the dashboard streams stay open indefinitely.
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", srv.Port),
		Handler:           srv.Handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", srv.Port).Msg("🔥 Sales agent is ready")
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		_ = srv.Shutdown(context.Background())
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("🛑 Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return errors.Join(httpServer.Shutdown(shutdownCtx), srv.Shutdown(shutdownCtx))
}

// runSummary builds the full stack, runs one summary and tears it down.
func runSummary(ctx context.Context, req models.SummaryRequest) (models.SummaryResult, error) {
	cfg, err := loadConfig(false)
	if err != nil {
		return models.SummaryResult{}, err
	}
	srv, err := server.NewWithConfig(ctx, cfg)
	if err != nil {
		return models.SummaryResult{}, fmt.Errorf("initialize server: %w", err)
	}
	defer func() {
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Warn().Err(err).Msg("Shutdown incomplete")
		}
	}()
	return srv.Orchestrator.Handle(ctx, req), nil
}

func loadConfig(debug bool) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	// A build-stamped version wins over the default but not over the env.
	if version != "dev" && os.Getenv("SALESAGENT_VERSION") == "" {
		cfg.Version = version
	}
	setupLogging(cfg.Log, debug)
	return cfg, nil
}
