// cmd/api/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	_ "github.com/Aafimalek/prompt-to-animate/docs"
	"github.com/Aafimalek/prompt-to-animate/internal/app"
	"github.com/Aafimalek/prompt-to-animate/internal/collaborator/storage"
	"github.com/Aafimalek/prompt-to-animate/internal/config"
	"github.com/Aafimalek/prompt-to-animate/internal/logger"
	"github.com/Aafimalek/prompt-to-animate/internal/service"
	httptransport "github.com/Aafimalek/prompt-to-animate/internal/transport/http"
)

// @title prompt-to-animate API
// @version 1.0
// @description Admission-controlled animation generation jobs with live progress.
// @BasePath /
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New("production", "info")
		fallback.Fatal().Err(err).Msg("load config")
	}
	log := logger.New(cfg.AppEnv, cfg.LogLevel).With().Str("process", "api").Logger()

	embedded := cfg.Workers.Embedded > 0
	stores, err := app.OpenStores(ctx, cfg, embedded, log)
	if err != nil {
		log.Fatal().Err(err).Msg("open stores")
	}
	defer stores.Close()

	quota := service.NewQuotaService(stores.Quota, log.With().Str("component", "quota").Logger())
	jobs := service.NewJobService(quota, stores.Queue, cfg.Jobs.Timeout, cfg.Jobs.ResultTTL,
		log.With().Str("component", "admission").Logger())
	relay := service.NewRelay(stores.Progress, stores.Queue, cfg.Relay.PollInterval, cfg.Relay.PollBudget,
		log.With().Str("component", "relay").Logger())
	health := service.NewHealthService(stores.Queue, stores.PostgresPinger(), 2*time.Second)

	deps := httptransport.Deps{
		Jobs:          jobs,
		Relay:         relay,
		Quota:         quota,
		History:       stores.History,
		Health:        health,
		Auth:          httptransport.NewAuthenticator(cfg.Auth.JWTSecret),
		WebhookSecret: cfg.Auth.WebhookSecret,
		VideoDir:      cfg.Render.OutputDir,
	}
	objects, err := app.NewObjectStore(ctx, cfg)
	switch {
	case err == nil:
		deps.Objects = objects
	case errors.Is(err, storage.ErrNotConfigured):
	default:
		log.Fatal().Err(err).Msg("object storage")
	}

	handler := httptransport.NewHandler(deps, log.With().Str("component", "http").Logger())
	srv := httptransport.NewServer(httptransport.Routes(handler, log), httptransport.ServerOptions{
		Addr:        ":" + cfg.HTTP.Port,
		ReadTimeout: cfg.HTTP.ReadTimeout,
		IdleTimeout: cfg.HTTP.IdleTimeout,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Bool("jwt", deps.Auth.Enforced()).Msg("api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownWait)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if embedded {
		pool, err := app.NewWorkerPool(ctx, cfg, stores, quota, cfg.Workers.Embedded, log)
		if err != nil {
			log.Fatal().Err(err).Msg("build embedded worker pool")
		}
		g.Go(func() error {
			pool.Run(gctx)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("api stopped with error")
		return
	}
	log.Info().Msg("api stopped")
}
