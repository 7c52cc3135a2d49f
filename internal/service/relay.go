package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/Aafimalek/prompt-to-animate/internal/entity"
)

const (
	msgRelayTimeout = "Job timed out. Please try again."
	msgJobFailed    = "Job failed"
)

// StatusReader is the poll side of the queue.
type StatusReader interface {
	Status(ctx context.Context, jobID string) (*entity.JobState, error)
}

// Relay turns progress snapshots into an event stream. The owning worker
// writes every progress step; the relay only writes a failure the worker
// could not, such as a queue timeout or a lost worker, so the first terminal
// event a caller sees is the one every later read returns.
type Relay struct {
	store    ProgressStore
	queue    StatusReader
	interval time.Duration
	budget   time.Duration
	log      zerolog.Logger
}

func NewRelay(store ProgressStore, queue StatusReader, interval, budget time.Duration, log zerolog.Logger) *Relay {
	return &Relay{store: store, queue: queue, interval: interval, budget: budget, log: log}
}

// Snapshot is the point-in-time poll for a handle. A terminal progress record
// always wins. A job the queue reports as failed is settled as a terminal
// failure even without a progress record.
func (r *Relay) Snapshot(ctx context.Context, jobID string) (entity.Progress, error) {
	p, err := LookupProgress(ctx, r.store, jobID)
	if err != nil {
		return entity.Progress{}, err
	}
	if p.Terminal() {
		return p, nil
	}

	st, err := r.queue.Status(ctx, jobID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			r.log.Warn().Err(err).Str("job_id", jobID).Msg("relay: queue status failed")
		}
		return p, nil
	}
	if st.Status == entity.StatusFailed {
		msg := st.Error
		if msg == "" {
			msg = msgJobFailed
		}
		return r.settle(ctx, jobID, entity.FailedProgress(msg))
	}
	return p, nil
}

// settle writes failed as the job's terminal record. When the worker got
// there first its record is returned instead.
func (r *Relay) settle(ctx context.Context, jobID string, failed entity.Progress) (entity.Progress, error) {
	err := r.store.Checkpoint(ctx, jobID, failed)
	switch {
	case err == nil:
		return failed, nil
	case errors.Is(err, ErrTerminal):
		return LookupProgress(ctx, r.store, jobID)
	default:
		r.log.Warn().Err(err).Str("job_id", jobID).Msg("relay: record failure")
		return failed, nil
	}
}

// Stream polls the handle every interval and calls emit when the step changes.
// It returns the terminal event once one is emitted. A cancelled ctx returns
// at once and performs no further reads; an emit error ends the stream with
// that error. When the budget runs out a timeout failure is recorded and
// emitted.
func (r *Relay) Stream(ctx context.Context, jobID string, emit func(entity.Progress) error) (entity.Progress, error) {
	deadline := time.Now().Add(r.budget)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	last := entity.StepPending
	for {
		if err := ctx.Err(); err != nil {
			return entity.Progress{}, err
		}

		p, err := r.Snapshot(ctx, jobID)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return entity.Progress{}, ctx.Err()
			}
			r.log.Warn().Err(err).Str("job_id", jobID).Msg("relay: progress read failed")
		case p.Step != last || p.Terminal():
			if err := emit(p); err != nil {
				return p, err
			}
			last = p.Step
			if p.Terminal() {
				return p, nil
			}
		}

		if !time.Now().Before(deadline) {
			p, err := r.settle(ctx, jobID, entity.FailedProgress(msgRelayTimeout))
			if err != nil {
				p = entity.FailedProgress(msgRelayTimeout)
			}
			if err := emit(p); err != nil {
				return p, err
			}
			if p.Step == entity.StepFailed && p.Message == msgRelayTimeout {
				return p, entity.NewError(entity.KindTimeoutFailure, msgRelayTimeout)
			}
			return p, nil
		}

		select {
		case <-ctx.Done():
			return entity.Progress{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Await blocks until the job reaches a terminal step. A failed job is
// returned with a CollaboratorFailure error carrying its message.
func (r *Relay) Await(ctx context.Context, jobID string) (entity.Progress, error) {
	p, err := r.Stream(ctx, jobID, func(entity.Progress) error { return nil })
	if err != nil {
		return p, err
	}
	if !p.Succeeded() {
		return p, entity.NewError(entity.KindCollaboratorFailure, p.Message)
	}
	return p, nil
}
