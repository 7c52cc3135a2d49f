package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Aafimalek/prompt-to-animate/internal/service"
)

type pinger struct{ err error }

func (p pinger) Ping(ctx context.Context) error { return p.err }

func TestHealthService_Check(t *testing.T) {
	down := errors.New("down")
	cases := []struct {
		name     string
		redis    service.Pinger
		postgres service.Pinger
		want     service.Health
	}{
		{"all_up", pinger{}, pinger{}, service.Health{Status: "healthy", Redis: "connected", Postgres: "connected"}},
		{"no_postgres", pinger{}, nil, service.Health{Status: "healthy", Redis: "connected", Postgres: "disabled"}},
		{"postgres_down", pinger{}, pinger{down}, service.Health{Status: "degraded", Redis: "connected", Postgres: "disconnected"}},
		{"redis_down", pinger{down}, pinger{}, service.Health{Status: "degraded", Redis: "disconnected", Postgres: "connected"}},
		{"all_down", pinger{down}, pinger{down}, service.Health{Status: "unhealthy", Redis: "disconnected", Postgres: "disconnected"}},
		{"redis_down_no_postgres", pinger{down}, nil, service.Health{Status: "unhealthy", Redis: "disconnected", Postgres: "disabled"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := service.NewHealthService(tc.redis, tc.postgres, time.Second).Check(context.Background())
			if got != tc.want {
				t.Fatalf("expected %+v, got %+v", tc.want, got)
			}
		})
	}
}
