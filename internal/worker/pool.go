package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Aafimalek/prompt-to-animate/internal/entity"
	"github.com/Aafimalek/prompt-to-animate/internal/service"
)

type PoolOptions struct {
	Name           string
	Workers        int
	ClaimWait      time.Duration
	Heartbeat      time.Duration
	ReaperInterval time.Duration
}

// Pool runs a fixed number of workers. Each worker claims one job, runs it
// to a terminal state and only then claims the next.
type Pool struct {
	queue          service.Queue
	processor      *Processor
	name           string
	workers        int
	claimWait      time.Duration
	heartbeat      time.Duration
	reaperInterval time.Duration
	retryDelay     time.Duration
	log            zerolog.Logger
}

func NewPool(queue service.Queue, processor *Processor, opts PoolOptions, log zerolog.Logger) *Pool {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.ClaimWait <= 0 {
		opts.ClaimWait = 5 * time.Second
	}
	if opts.Name == "" {
		opts.Name = "worker"
	}
	return &Pool{
		queue:          queue,
		processor:      processor,
		name:           opts.Name,
		workers:        opts.Workers,
		claimWait:      opts.ClaimWait,
		heartbeat:      opts.Heartbeat,
		reaperInterval: opts.ReaperInterval,
		retryDelay:     time.Second,
		log:            log,
	}
}

// Run blocks until ctx is cancelled and every in-flight job has finished.
func (p *Pool) Run(ctx context.Context) {
	p.log.Info().Int("workers", p.workers).Str("pool", p.name).Msg("worker pool started")

	var wg sync.WaitGroup
	for i := 1; i <= p.workers; i++ {
		wg.Add(1)
		go func(workerID string) {
			defer wg.Done()
			p.loop(ctx, workerID)
		}(fmt.Sprintf("%s-%d", p.name, i))
	}
	if p.reaperInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.reap(ctx)
		}()
	}
	wg.Wait()

	p.log.Info().Msg("worker pool stopped")
}

func (p *Pool) loop(ctx context.Context, workerID string) {
	log := p.log.With().Str("worker", workerID).Logger()
	for ctx.Err() == nil {
		job, err := p.queue.Claim(ctx, workerID, p.claimWait)
		if err != nil {
			if errors.Is(err, service.ErrNoJob) || ctx.Err() != nil {
				continue
			}
			log.Warn().Err(err).Msg("claim failed")
			select {
			case <-ctx.Done():
			case <-time.After(p.retryDelay):
			}
			continue
		}
		p.handle(ctx, workerID, job, log)
	}
}

// handle runs a claimed job. Shutdown does not interrupt it: the job context
// is detached from ctx and only ends when the job does.
func (p *Pool) handle(ctx context.Context, workerID string, job *entity.Job, log zerolog.Logger) {
	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()

	hbDone := make(chan struct{})
	go func() {
		defer close(hbDone)
		p.keepLease(jobCtx, job.ID, workerID, log)
	}()

	err := p.processor.Process(jobCtx, job)
	cancel()
	<-hbDone

	status, errText := entity.StatusFinished, ""
	if err != nil {
		status, errText = entity.StatusFailed, entity.UserMessage(err)
	}
	if ferr := p.queue.Finish(context.WithoutCancel(ctx), job.ID, workerID, status, errText); ferr != nil {
		log.Error().Err(ferr).Str("job_id", job.ID).Msg("finish job")
	}
}

func (p *Pool) keepLease(ctx context.Context, jobID, workerID string, log zerolog.Logger) {
	if p.heartbeat <= 0 {
		return
	}
	ticker := time.NewTicker(p.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := p.queue.Heartbeat(ctx, jobID, workerID)
			switch {
			case err == nil:
			case errors.Is(err, service.ErrLeaseLost):
				log.Warn().Str("job_id", jobID).Msg("lease lost")
				return
			case ctx.Err() != nil:
				return
			default:
				log.Warn().Err(err).Str("job_id", jobID).Msg("heartbeat failed")
			}
		}
	}
}

// reap periodically clears processing entries left by dead workers.
func (p *Pool) reap(ctx context.Context) {
	ticker := time.NewTicker(p.reaperInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.queue.RecoverStale(ctx, 100)
			if err != nil {
				if ctx.Err() == nil {
					p.log.Warn().Err(err).Msg("recover stale jobs")
				}
				continue
			}
			if n > 0 {
				p.log.Info().Int64("recovered", n).Msg("recovered stale jobs from processing")
			}
		}
	}
}
