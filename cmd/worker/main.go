// cmd/worker/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Aafimalek/prompt-to-animate/internal/app"
	"github.com/Aafimalek/prompt-to-animate/internal/config"
	"github.com/Aafimalek/prompt-to-animate/internal/logger"
	"github.com/Aafimalek/prompt-to-animate/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New("production", "info")
		fallback.Fatal().Err(err).Msg("load config")
	}
	log := logger.New(cfg.AppEnv, cfg.LogLevel).With().Str("process", "worker").Logger()

	// the ledger must be shared with the api, so no in-memory fallback here
	stores, err := app.OpenStores(ctx, cfg, false, log)
	if err != nil {
		log.Fatal().Err(err).Msg("open stores")
	}
	defer stores.Close()

	quota := service.NewQuotaService(stores.Quota, log.With().Str("component", "quota").Logger())
	pool, err := app.NewWorkerPool(ctx, cfg, stores, quota, cfg.Workers.Count, log)
	if err != nil {
		log.Fatal().Err(err).Msg("build worker pool")
	}

	log.Info().
		Int("workers", cfg.Workers.Count).
		Str("queue_key", cfg.Redis.QueueKey).
		Str("processing_key", cfg.Redis.ProcessingKey).
		Str("postgres_dsn", config.RedactDSN(cfg.Postgres.DSN)).
		Msg("worker started")

	pool.Run(ctx)

	log.Info().Msg("worker stopped")
}
