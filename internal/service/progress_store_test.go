package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Aafimalek/prompt-to-animate/internal/entity"
	"github.com/Aafimalek/prompt-to-animate/internal/service"
)

func TestProgressStore_Checkpoint(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newRedis(t)
	store := service.NewRedisProgressStore(rdb, time.Hour, 24*time.Hour)

	if err := store.Checkpoint(ctx, "j1", entity.Progress{Step: 1, Status: "analyzing", Message: "Analyzing your prompt..."}); err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	p, err := store.Get(ctx, "j1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.Step != 1 || p.Status != "analyzing" {
		t.Fatalf("unexpected progress %+v", p)
	}
	if ttl := mr.TTL(service.ProgressKey("j1")); ttl != time.Hour {
		t.Fatalf("expected progress ttl 1h, got %s", ttl)
	}
	if _, err := store.Result(ctx, "j1"); !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("expected no result before terminal, got %v", err)
	}
}

func TestProgressStore_TerminalIsFinal(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newRedis(t)
	store := service.NewRedisProgressStore(rdb, time.Hour, 24*time.Hour)

	done := entity.Progress{Step: 6, Status: "complete", Message: "Video ready!", VideoURL: "https://cdn/v.mp4"}
	if err := store.Checkpoint(ctx, "j1", done); err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	res, err := store.Result(ctx, "j1")
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if res.VideoURL != done.VideoURL {
		t.Fatalf("expected mirrored result, got %+v", res)
	}
	if ttl := mr.TTL(service.ResultKey("j1")); ttl != 24*time.Hour {
		t.Fatalf("expected result ttl 24h, got %s", ttl)
	}

	err = store.Checkpoint(ctx, "j1", entity.FailedProgress("late"))
	if !errors.Is(err, service.ErrTerminal) {
		t.Fatalf("expected ErrTerminal, got %v", err)
	}
	p, _ := store.Get(ctx, "j1")
	if p.Step != 6 {
		t.Fatalf("terminal record was overwritten: %+v", p)
	}
}

func TestLookupProgress(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newRedis(t)
	store := service.NewRedisProgressStore(rdb, time.Hour, 24*time.Hour)

	p, err := service.LookupProgress(ctx, store, "unknown")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if p.Step != entity.StepPending {
		t.Fatalf("expected pending placeholder, got %+v", p)
	}

	if err := store.Checkpoint(ctx, "j1", entity.FailedProgress("Render failed")); err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	// live snapshot expired, result remains
	mr.Del(service.ProgressKey("j1"))

	p, err = service.LookupProgress(ctx, store, "j1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if p.Step != entity.StepFailed || p.Message != "Render failed" {
		t.Fatalf("expected result fallback, got %+v", p)
	}
}

func TestProgressStore_TerminalRewrite(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newRedis(t)
	store := service.NewRedisProgressStore(rdb, time.Hour, 24*time.Hour)

	failed := entity.FailedProgress("Job timed out")
	if err := store.Checkpoint(ctx, "j1", failed); err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	if err := store.Checkpoint(ctx, "j1", failed); err != nil {
		t.Fatalf("identical rewrite should succeed, got %v", err)
	}

	// live snapshot expired; the result still guards the job
	mr.Del(service.ProgressKey("j1"))
	if err := store.Checkpoint(ctx, "j1", entity.Progress{Step: 5, Status: "finalizing"}); !errors.Is(err, service.ErrTerminal) {
		t.Fatalf("expected ErrTerminal, got %v", err)
	}
}
