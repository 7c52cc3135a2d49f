// Package app wires stores and workers shared by the api and worker binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Aafimalek/prompt-to-animate/internal/collaborator/llm"
	"github.com/Aafimalek/prompt-to-animate/internal/collaborator/render"
	"github.com/Aafimalek/prompt-to-animate/internal/collaborator/storage"
	"github.com/Aafimalek/prompt-to-animate/internal/config"
	"github.com/Aafimalek/prompt-to-animate/internal/entity"
	"github.com/Aafimalek/prompt-to-animate/internal/repository/memory"
	"github.com/Aafimalek/prompt-to-animate/internal/repository/postgresql"
	"github.com/Aafimalek/prompt-to-animate/internal/service"
	"github.com/Aafimalek/prompt-to-animate/internal/worker"
)

type HistoryStore interface {
	Save(ctx context.Context, g entity.Generation) (string, error)
	List(ctx context.Context, userID string, limit int) ([]entity.Generation, error)
	Get(ctx context.Context, userID, id string) (*entity.Generation, error)
	Delete(ctx context.Context, userID, id string) error
	Ping(ctx context.Context) error
}

type Stores struct {
	Redis    *redis.Client
	Postgres *pgxpool.Pool // nil when running on in-memory stores
	Queue    service.Queue
	Progress service.ProgressStore
	Quota    service.QuotaRepository
	History  HistoryStore
}

// OpenStores connects Redis and, when a DSN is configured, Postgres.
// allowMemory permits running without Postgres on process-local stores.
func OpenStores(ctx context.Context, cfg *config.Config, allowMemory bool, log zerolog.Logger) (*Stores, error) {
	rdb, err := NewRedis(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	st := &Stores{
		Redis:    rdb,
		Queue:    service.NewRedisQueue(rdb, cfg.Redis.QueueKey, cfg.Redis.ProcessingKey, cfg.Workers.LeaseTTL),
		Progress: service.NewRedisProgressStore(rdb, cfg.Jobs.ProgressTTL, cfg.Jobs.ResultTTL),
	}

	if cfg.Postgres.DSN == "" {
		if !allowMemory {
			_ = rdb.Close()
			return nil, errors.New("POSTGRES_DSN is required")
		}
		log.Warn().Msg("POSTGRES_DSN not set, using in-memory quota and history stores")
		st.Quota = memory.NewQuotaRepository()
		st.History = memory.NewHistoryRepository()
		return st, nil
	}

	pool, err := postgresql.NewPool(ctx, cfg.Postgres.DSN)
	if err != nil {
		_ = rdb.Close()
		return nil, err
	}
	if err := postgresql.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		_ = rdb.Close()
		return nil, err
	}
	log.Info().Str("postgres_dsn", config.RedactDSN(cfg.Postgres.DSN)).Msg("postgres connected")

	st.Postgres = pool
	st.Quota = postgresql.NewQuotaRepository(pool)
	st.History = postgresql.NewHistoryRepository(pool)
	return st, nil
}

// PostgresPinger is nil when Postgres is not in use.
func (s *Stores) PostgresPinger() service.Pinger {
	if s.Postgres == nil {
		return nil
	}
	return s.Postgres
}

func (s *Stores) Close() {
	if s.Postgres != nil {
		s.Postgres.Close()
	}
	_ = s.Redis.Close()
}

func NewRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	var opts *redis.Options
	if cfg.URL != "" {
		o, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = o
	} else {
		opts = &redis.Options{Addr: cfg.Addr, Password: cfg.Password}
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}
	return rdb, nil
}

// NewWorkerPool builds the collaborators and a pool of n workers.
func NewWorkerPool(ctx context.Context, cfg *config.Config, st *Stores, quota *service.QuotaService, n int, log zerolog.Logger) (*worker.Pool, error) {
	gen, err := llm.New(llm.Options{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.Timeout,
	})
	if err != nil {
		return nil, err
	}
	renderer, err := render.NewManim(render.Options{
		Python:    cfg.Render.Python,
		OutputDir: cfg.Render.OutputDir,
		ScriptDir: cfg.Render.ScriptDir,
		Timeout:   cfg.Render.Timeout,
	}, log.With().Str("component", "render").Logger())
	if err != nil {
		return nil, err
	}
	local, err := storage.NewLocal(renderer.OutputDir(), cfg.HTTP.PublicURL)
	if err != nil {
		return nil, err
	}

	deps := worker.Deps{
		Progress:  st.Progress,
		Generator: gen,
		Renderer:  renderer,
		Local:     local,
		History:   st.History,
		Quota:     quota,
	}
	s3, err := NewObjectStore(ctx, cfg)
	switch {
	case err == nil:
		deps.Uploader = s3
	case errors.Is(err, storage.ErrNotConfigured):
		log.Warn().Msg("S3_BUCKET_NAME not set, videos are served from local disk")
	default:
		return nil, err
	}

	host, _ := os.Hostname()
	if host == "" {
		host = "worker"
	}
	processor := worker.NewProcessor(deps, log.With().Str("component", "processor").Logger())
	return worker.NewPool(st.Queue, processor, worker.PoolOptions{
		Name:           fmt.Sprintf("%s-%d", host, os.Getpid()),
		Workers:        n,
		ClaimWait:      cfg.Workers.ClaimWait,
		Heartbeat:      cfg.Workers.Heartbeat,
		ReaperInterval: cfg.Workers.ReaperInterval,
	}, log.With().Str("component", "pool").Logger()), nil
}

func NewObjectStore(ctx context.Context, cfg *config.Config) (*storage.S3, error) {
	return storage.NewS3(ctx, storage.S3Options{
		Bucket:    cfg.Storage.Bucket,
		Region:    cfg.Storage.Region,
		Prefix:    cfg.Storage.Prefix,
		URLExpiry: cfg.Storage.URLExpiry,
	})
}
