package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Aafimalek/prompt-to-animate/internal/entity"
)

// JobQueue is the enqueue half of Queue; admission never claims.
type JobQueue interface {
	Enqueue(ctx context.Context, job entity.Job) (string, error)
}

// Admitter is the read side of the quota ledger.
type Admitter interface {
	CanAdmit(ctx context.Context, userID string) (entity.Decision, error)
}

// JobService is the admission layer: identity, request shape, quota, then
// enqueue. Nothing is enqueued unless every check passes.
type JobService struct {
	quota     Admitter
	queue     JobQueue
	timeout   time.Duration
	resultTTL time.Duration
	log       zerolog.Logger
	now       func() time.Time
}

func NewJobService(quota Admitter, queue JobQueue, timeout, resultTTL time.Duration, log zerolog.Logger) *JobService {
	return &JobService{
		quota:     quota,
		queue:     queue,
		timeout:   timeout,
		resultTTL: resultTTL,
		log:       log,
		now:       time.Now,
	}
}

type CreateJobRequest struct {
	UserID     string
	Prompt     string
	Length     string
	Resolution string
}

// Admission is returned for admitted and denied requests alike; JobID is
// empty unless the job was enqueued.
type Admission struct {
	JobID    string
	Decision entity.Decision
	Length   entity.Length
	Quality  entity.Quality
}

func (s *JobService) CreateJob(ctx context.Context, req CreateJobRequest) (Admission, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return Admission{}, entity.NewError(entity.KindUnauthenticated, "User identity is required")
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return Admission{}, entity.NewError(entity.KindInvalidRequest, "prompt is required")
	}
	length, err := entity.ParseLength(req.Length)
	if err != nil {
		return Admission{}, entity.WrapError(entity.KindInvalidRequest, "invalid length", err)
	}

	dec, err := s.quota.CanAdmit(ctx, userID)
	if err != nil {
		return Admission{}, entity.WrapError(entity.KindInfrastructureFailure, "quota check failed", err)
	}
	adm := Admission{Decision: dec, Length: length}
	if !dec.Allowed {
		s.log.Info().Str("user_id", userID).Str("reason", dec.Reason).Msg("admission denied")
		return adm, entity.NewError(entity.KindAdmissionDenied, dec.Reason)
	}

	plan := dec.Tier.Plan()
	if length.Exceeds(plan.MaxLength) {
		msg := fmt.Sprintf("%s videos are not available on the %s tier. Upgrade to unlock longer videos.", length, dec.Tier)
		s.log.Info().Str("user_id", userID).Str("length", string(length)).Msg("admission denied: length")
		adm.Decision.Allowed = false
		adm.Decision.Reason = msg
		return adm, entity.NewError(entity.KindAdmissionDenied, msg)
	}
	adm.Quality = entity.ParseResolution(req.Resolution).Cap(plan.Quality)

	job := entity.Job{
		ID:         uuid.NewString(),
		UserID:     userID,
		Prompt:     prompt,
		Length:     length,
		Quality:    adm.Quality,
		Tier:       dec.Tier,
		EnqueuedAt: s.now().UTC(),
		Timeout:    s.timeout,
		ResultTTL:  s.resultTTL,
	}
	id, err := s.queue.Enqueue(ctx, job)
	if err != nil {
		return adm, entity.WrapError(entity.KindInfrastructureFailure, "Failed to queue job", err)
	}
	adm.JobID = id

	s.log.Info().
		Str("job_id", id).
		Str("user_id", userID).
		Str("tier", string(dec.Tier)).
		Str("length", string(length)).
		Str("quality", string(adm.Quality)).
		Msg("job enqueued")
	return adm, nil
}
