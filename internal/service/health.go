package service

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	HealthHealthy   = "healthy"
	HealthDegraded  = "degraded"
	HealthUnhealthy = "unhealthy"

	depUp       = "connected"
	depDown     = "disconnected"
	depDisabled = "disabled"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Health struct {
	Status   string `json:"status"`
	Redis    string `json:"redis"`
	Postgres string `json:"postgres"`
}

// HealthService probes Redis and Postgres independently. A nil Postgres
// pinger means the process runs without it.
type HealthService struct {
	redis    Pinger
	postgres Pinger
	timeout  time.Duration
}

func NewHealthService(redis, postgres Pinger, timeout time.Duration) *HealthService {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HealthService{redis: redis, postgres: postgres, timeout: timeout}
}

func (h *HealthService) Check(ctx context.Context) Health {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	out := Health{Redis: depDown, Postgres: depDisabled}
	var g errgroup.Group
	g.Go(func() error {
		if h.redis != nil && h.redis.Ping(ctx) == nil {
			out.Redis = depUp
		}
		return nil
	})
	if h.postgres != nil {
		g.Go(func() error {
			if h.postgres.Ping(ctx) == nil {
				out.Postgres = depUp
			} else {
				out.Postgres = depDown
			}
			return nil
		})
	}
	_ = g.Wait()

	switch {
	case out.Redis == depUp && out.Postgres != depDown:
		out.Status = HealthHealthy
	case out.Redis == depDown && (out.Postgres == depDown || out.Postgres == depDisabled):
		out.Status = HealthUnhealthy
	default:
		out.Status = HealthDegraded
	}
	return out
}
