package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Aafimalek/prompt-to-animate/internal/entity"
	"github.com/Aafimalek/prompt-to-animate/internal/service"
)

type fakeAdmitter struct {
	calls    int
	decision entity.Decision
	err      error
}

func (a *fakeAdmitter) CanAdmit(ctx context.Context, userID string) (entity.Decision, error) {
	a.calls++
	return a.decision, a.err
}

type fakeJobQueue struct {
	jobs       []entity.Job
	enqueueErr error
}

func (q *fakeJobQueue) Enqueue(ctx context.Context, job entity.Job) (string, error) {
	if q.enqueueErr != nil {
		return "", q.enqueueErr
	}
	q.jobs = append(q.jobs, job)
	return job.ID, nil
}

func allow(tier entity.Tier) *fakeAdmitter {
	return &fakeAdmitter{decision: entity.Decision{Allowed: true, Tier: tier, Remaining: 3}}
}

func newJobService(a service.Admitter, q service.JobQueue) *service.JobService {
	return service.NewJobService(a, q, 10*time.Minute, time.Hour, zerolog.Nop())
}

func TestJobService_CreateJob_Enqueues(t *testing.T) {
	quota := allow(entity.TierFree)
	queue := &fakeJobQueue{}
	svc := newJobService(quota, queue)

	adm, err := svc.CreateJob(context.Background(), service.CreateJobRequest{
		UserID: "u1",
		Prompt: "  draw a circle ",
		Length: "Short (5s)",
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if adm.JobID == "" {
		t.Fatalf("expected job id")
	}
	if len(queue.jobs) != 1 {
		t.Fatalf("expected 1 enqueued job, got %d", len(queue.jobs))
	}

	job := queue.jobs[0]
	if job.ID != adm.JobID || job.UserID != "u1" || job.Prompt != "draw a circle" {
		t.Fatalf("unexpected job %+v", job)
	}
	if job.Length != entity.LengthShort {
		t.Fatalf("expected short length, got %q", job.Length)
	}
	if job.Timeout != 10*time.Minute || job.ResultTTL != time.Hour {
		t.Fatalf("expected timeout and result ttl from service, got %s %s", job.Timeout, job.ResultTTL)
	}
	if job.EnqueuedAt.IsZero() {
		t.Fatalf("expected enqueued_at")
	}
}

func TestJobService_CreateJob_MissingUserRejectedFirst(t *testing.T) {
	quota := allow(entity.TierFree)
	queue := &fakeJobQueue{}
	svc := newJobService(quota, queue)

	_, err := svc.CreateJob(context.Background(), service.CreateJobRequest{Prompt: "x"})
	if entity.KindOf(err) != entity.KindUnauthenticated {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
	if quota.calls != 0 || len(queue.jobs) != 0 {
		t.Fatalf("expected no quota read and no enqueue, got calls=%d jobs=%d", quota.calls, len(queue.jobs))
	}
}

func TestJobService_CreateJob_InvalidRequest(t *testing.T) {
	cases := []struct {
		name string
		req  service.CreateJobRequest
	}{
		{"empty_prompt", service.CreateJobRequest{UserID: "u1", Prompt: "   "}},
		{"bad_length", service.CreateJobRequest{UserID: "u1", Prompt: "x", Length: "forever"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			quota := allow(entity.TierFree)
			queue := &fakeJobQueue{}
			_, err := newJobService(quota, queue).CreateJob(context.Background(), tc.req)
			if entity.KindOf(err) != entity.KindInvalidRequest {
				t.Fatalf("expected invalid request, got %v", err)
			}
			if quota.calls != 0 || len(queue.jobs) != 0 {
				t.Fatalf("expected nothing touched")
			}
		})
	}
}

func TestJobService_CreateJob_DeniedNeverEnqueues(t *testing.T) {
	resetAt := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	quota := &fakeAdmitter{decision: entity.Decision{
		Allowed: false,
		Reason:  "Free tier limit reached",
		Tier:    entity.TierFree,
		ResetAt: resetAt,
	}}
	queue := &fakeJobQueue{}

	adm, err := newJobService(quota, queue).CreateJob(context.Background(), service.CreateJobRequest{UserID: "u1", Prompt: "x"})
	if entity.KindOf(err) != entity.KindAdmissionDenied {
		t.Fatalf("expected admission denied, got %v", err)
	}
	if entity.UserMessage(err) != "Free tier limit reached" {
		t.Fatalf("expected decision reason, got %q", entity.UserMessage(err))
	}
	if !adm.Decision.ResetAt.Equal(resetAt) {
		t.Fatalf("expected reset_at on denial, got %s", adm.Decision.ResetAt)
	}
	if adm.JobID != "" || len(queue.jobs) != 0 {
		t.Fatalf("denied request must not enqueue")
	}
}

func TestJobService_CreateJob_LengthAboveTierCeiling(t *testing.T) {
	queue := &fakeJobQueue{}
	_, err := newJobService(allow(entity.TierFree), queue).CreateJob(context.Background(), service.CreateJobRequest{
		UserID: "u1",
		Prompt: "x",
		Length: "Extended (5m)",
	})
	if entity.KindOf(err) != entity.KindAdmissionDenied {
		t.Fatalf("expected admission denied, got %v", err)
	}
	if len(queue.jobs) != 0 {
		t.Fatalf("expected no enqueue")
	}
}

func TestJobService_CreateJob_QualityCappedByTier(t *testing.T) {
	cases := []struct {
		name       string
		tier       entity.Tier
		resolution string
		want       entity.Quality
	}{
		{"free_asks_4k", entity.TierFree, "4k", entity.Quality720p30},
		{"free_asks_480p", entity.TierFree, "480p", entity.Quality480p15},
		{"basic_default", entity.TierBasic, "", entity.Quality1080p60},
		{"pro_asks_4k", entity.TierPro, "4k", entity.Quality4k60},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			queue := &fakeJobQueue{}
			adm, err := newJobService(allow(tc.tier), queue).CreateJob(context.Background(), service.CreateJobRequest{
				UserID:     "u1",
				Prompt:     "x",
				Resolution: tc.resolution,
			})
			if err != nil {
				t.Fatalf("expected nil error, got %v", err)
			}
			if adm.Quality != tc.want || queue.jobs[0].Quality != tc.want {
				t.Fatalf("expected quality %q, got %q / %q", tc.want, adm.Quality, queue.jobs[0].Quality)
			}
		})
	}
}

func TestJobService_CreateJob_QuotaReadFailure(t *testing.T) {
	quota := &fakeAdmitter{err: errors.New("db down")}
	queue := &fakeJobQueue{}
	_, err := newJobService(quota, queue).CreateJob(context.Background(), service.CreateJobRequest{UserID: "u1", Prompt: "x"})
	if entity.KindOf(err) != entity.KindInfrastructureFailure {
		t.Fatalf("expected infrastructure failure, got %v", err)
	}
	if len(queue.jobs) != 0 {
		t.Fatalf("expected no enqueue")
	}
}

func TestJobService_CreateJob_EnqueueFailure(t *testing.T) {
	queue := &fakeJobQueue{enqueueErr: errors.New("redis down")}
	adm, err := newJobService(allow(entity.TierFree), queue).CreateJob(context.Background(), service.CreateJobRequest{UserID: "u1", Prompt: "x"})
	if entity.KindOf(err) != entity.KindInfrastructureFailure {
		t.Fatalf("expected infrastructure failure, got %v", err)
	}
	if adm.JobID != "" {
		t.Fatalf("expected no job id, got %q", adm.JobID)
	}
}
