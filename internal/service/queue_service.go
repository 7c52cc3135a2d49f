package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Aafimalek/prompt-to-animate/internal/entity"
)

var (
	ErrNotFound  = entity.ErrNotFound
	ErrNoJob     = errors.New("no job available")
	ErrLeaseLost = errors.New("lease lost")
)

const (
	reasonTimedOut   = "Job timed out"
	reasonWorkerLost = "Worker stopped before the job completed"
)

type Queue interface {
	Enqueue(ctx context.Context, job entity.Job) (string, error)
	Claim(ctx context.Context, workerID string, wait time.Duration) (*entity.Job, error)
	Heartbeat(ctx context.Context, jobID, workerID string) error
	Finish(ctx context.Context, jobID, workerID string, status entity.JobStatus, errText string) error
	Status(ctx context.Context, jobID string) (*entity.JobState, error)
	RecoverStale(ctx context.Context, max int64) (int64, error)
	Ping(ctx context.Context) error
}

// redisQueue is a reliable FIFO built on Redis lists.
// Enqueue: HSET job:<id> + LPUSH queue
// Claim:   BRPOPLPUSH queue -> processing, then SET job:<id>:lease NX PX
// Finish:  status -> finished|failed, release lease, LREM processing
// Job hashes outlive the run by the job's result TTL.
type redisQueue struct {
	rdb           *redis.Client
	queueKey      string
	processingKey string
	leaseTTL      time.Duration
	now           func() time.Time
}

func NewRedisQueue(rdb *redis.Client, queueKey, processingKey string, leaseTTL time.Duration) Queue {
	if leaseTTL <= 0 {
		leaseTTL = 15 * time.Second
	}
	return &redisQueue{
		rdb:           rdb,
		queueKey:      queueKey,
		processingKey: processingKey,
		leaseTTL:      leaseTTL,
		now:           time.Now,
	}
}

func jobKey(id string) string   { return "job:" + id }
func leaseKey(id string) string { return "job:" + id + ":lease" }

func (q *redisQueue) Enqueue(ctx context.Context, job entity.Job) (string, error) {
	if job.ID == "" {
		return "", errors.New("job id is required")
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("encode job: %w", err)
	}

	key := jobKey(job.ID)
	_, err = q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key,
			"payload", payload,
			"status", string(entity.StatusPending),
			"enqueued_at", job.EnqueuedAt.UnixMilli(),
			"timeout_ms", job.Timeout.Milliseconds(),
			"result_ttl_ms", job.ResultTTL.Milliseconds(),
		)
		// abandoned hashes must not live forever
		if ttl := job.Timeout + job.ResultTTL; ttl > 0 {
			p.Expire(ctx, key, ttl)
		}
		p.LPush(ctx, q.queueKey, job.ID)
		return nil
	})
	if err != nil {
		return "", err
	}
	return job.ID, nil
}

// Claim blocks up to wait for the next handle. Handles that are already
// terminal, leased by another worker, or were lost by a crashed worker are
// dropped from processing and ErrNoJob is returned so the caller just loops.
func (q *redisQueue) Claim(ctx context.Context, workerID string, wait time.Duration) (*entity.Job, error) {
	id, err := q.rdb.BRPopLPush(ctx, q.queueKey, q.processingKey, wait).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoJob
		}
		return nil, err
	}

	ok, err := q.rdb.SetNX(ctx, leaseKey(id), workerID, q.leaseTTL).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		// someone else runs it; drop our duplicate entry
		_ = q.rdb.LRem(ctx, q.processingKey, 1, id).Err()
		return nil, ErrNoJob
	}

	job, started, err := q.start(ctx, id)
	if err != nil || !started {
		_ = q.releaseLease(ctx, id, workerID)
		_ = q.rdb.LRem(ctx, q.processingKey, 1, id).Err()
		if err != nil {
			return nil, err
		}
		return nil, ErrNoJob
	}
	return job, nil
}

// start moves a pending job to running. It reports started=false when the job
// must not execute.
func (q *redisQueue) start(ctx context.Context, id string) (*entity.Job, bool, error) {
	key := jobKey(id)
	var (
		job     entity.Job
		started bool
	)
	err := q.rdb.Watch(ctx, func(tx *redis.Tx) error {
		fields, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		if len(fields) == 0 {
			return nil
		}
		if err := json.Unmarshal([]byte(fields["payload"]), &job); err != nil {
			return fmt.Errorf("decode job %s: %w", id, err)
		}

		now := q.now()
		var (
			next    entity.JobStatus
			errText string
		)
		switch entity.JobStatus(fields["status"]) {
		case entity.StatusPending:
			if now.After(job.Deadline()) {
				next, errText = entity.StatusFailed, reasonTimedOut
			} else {
				next = entity.StatusRunning
			}
		case entity.StatusRunning:
			// a previous owner died mid-run; progress cannot restart from step 1
			next, errText = entity.StatusFailed, reasonWorkerLost
		default:
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			if next == entity.StatusRunning {
				p.HSet(ctx, key, "status", string(next), "started_at", now.UnixMilli())
				return nil
			}
			p.HSet(ctx, key, "status", string(next), "error", errText, "finished_at", now.UnixMilli())
			if job.ResultTTL > 0 {
				p.Expire(ctx, key, job.ResultTTL)
			}
			return nil
		})
		if err == nil && next == entity.StatusRunning {
			started = true
		}
		return err
	}, key)
	if err != nil {
		return nil, false, err
	}
	return &job, started, nil
}

func (q *redisQueue) Heartbeat(ctx context.Context, jobID, workerID string) error {
	key := leaseKey(jobID)
	return q.rdb.Watch(ctx, func(tx *redis.Tx) error {
		owner, err := tx.Get(ctx, key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrLeaseLost
			}
			return err
		}
		if owner != workerID {
			return ErrLeaseLost
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.PExpire(ctx, key, q.leaseTTL)
			return nil
		})
		return err
	}, key)
}

// Finish records the terminal queue status. A handle already failed by the
// timeout check keeps that status.
func (q *redisQueue) Finish(ctx context.Context, jobID, workerID string, status entity.JobStatus, errText string) error {
	if !status.Terminal() {
		return fmt.Errorf("finish with non-terminal status %q", status)
	}
	key := jobKey(jobID)
	err := q.rdb.Watch(ctx, func(tx *redis.Tx) error {
		fields, err := tx.HMGet(ctx, key, "status", "result_ttl_ms").Result()
		if err != nil {
			return err
		}
		cur, _ := fields[0].(string)
		if cur == "" {
			return ErrNotFound
		}
		ttl := durationField(fields[1])

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			if !entity.JobStatus(cur).Terminal() {
				p.HSet(ctx, key, "status", string(status), "error", errText, "finished_at", q.now().UnixMilli())
			}
			if ttl > 0 {
				p.Expire(ctx, key, ttl)
			}
			return nil
		})
		return err
	}, key)
	if err != nil {
		return err
	}

	if err := q.releaseLease(ctx, jobID, workerID); err != nil {
		return err
	}
	return q.rdb.LRem(ctx, q.processingKey, 1, jobID).Err()
}

func (q *redisQueue) releaseLease(ctx context.Context, jobID, workerID string) error {
	key := leaseKey(jobID)
	return q.rdb.Watch(ctx, func(tx *redis.Tx) error {
		owner, err := tx.Get(ctx, key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil
			}
			return err
		}
		if owner != workerID {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Del(ctx, key)
			return nil
		})
		return err
	}, key)
}

// Status is the caller-facing poll. Pending or running handles past their
// deadline are marked failed here; the worker is not stopped.
func (q *redisQueue) Status(ctx context.Context, jobID string) (*entity.JobState, error) {
	key := jobKey(jobID)
	fields, err := q.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	st := stateFromFields(jobID, fields)

	timeout := durationField(fields["timeout_ms"])
	if st.Status.Terminal() || timeout <= 0 || !q.now().After(st.EnqueuedAt.Add(timeout)) {
		return st, nil
	}

	marked, err := q.markTimedOut(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !marked {
		// lost the race against Finish; reread
		fields, err = q.rdb.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, err
		}
		return stateFromFields(jobID, fields), nil
	}
	now := q.now()
	st.Status = entity.StatusFailed
	st.Error = reasonTimedOut
	st.FinishedAt = &now
	return st, nil
}

func (q *redisQueue) markTimedOut(ctx context.Context, jobID string) (bool, error) {
	return q.failIf(ctx, jobID, reasonTimedOut, entity.StatusPending, entity.StatusRunning)
}

// failIf sets status=failed when the current status is one of from.
func (q *redisQueue) failIf(ctx context.Context, jobID, reason string, from ...entity.JobStatus) (bool, error) {
	key := jobKey(jobID)
	var marked bool
	err := q.rdb.Watch(ctx, func(tx *redis.Tx) error {
		fields, err := tx.HMGet(ctx, key, "status", "result_ttl_ms").Result()
		if err != nil {
			return err
		}
		cur, _ := fields[0].(string)
		match := false
		for _, s := range from {
			if entity.JobStatus(cur) == s {
				match = true
			}
		}
		if !match {
			return nil
		}
		ttl := durationField(fields[1])
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, key, "status", string(entity.StatusFailed), "error", reason, "finished_at", q.now().UnixMilli())
			if ttl > 0 {
				p.Expire(ctx, key, ttl)
			}
			return nil
		})
		marked = err == nil
		return err
	}, key)
	return marked, err
}

// RecoverStale is the reaper. Entries in processing without a live lease
// belong to a crashed worker: running jobs are marked failed, jobs that were
// never started go back to the queue.
func (q *redisQueue) RecoverStale(ctx context.Context, max int64) (int64, error) {
	if max <= 0 {
		max = 100
	}
	ids, err := q.rdb.LRange(ctx, q.processingKey, -max, -1).Result()
	if err != nil {
		return 0, err
	}

	var recovered int64
	for _, id := range ids {
		leased, err := q.rdb.Exists(ctx, leaseKey(id)).Result()
		if err != nil {
			return recovered, err
		}
		if leased > 0 {
			continue
		}

		status, err := q.rdb.HGet(ctx, jobKey(id), "status").Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return recovered, err
		}

		switch entity.JobStatus(status) {
		case entity.StatusPending:
			_, err = q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
				p.LRem(ctx, q.processingKey, 1, id)
				p.RPush(ctx, q.queueKey, id)
				return nil
			})
		case entity.StatusRunning:
			if _, err = q.failIf(ctx, id, reasonWorkerLost, entity.StatusRunning); err == nil {
				err = q.rdb.LRem(ctx, q.processingKey, 1, id).Err()
			}
		default:
			err = q.rdb.LRem(ctx, q.processingKey, 1, id).Err()
		}
		if err != nil {
			return recovered, err
		}
		recovered++
	}
	return recovered, nil
}

func (q *redisQueue) Ping(ctx context.Context) error {
	return q.rdb.Ping(ctx).Err()
}

func stateFromFields(id string, fields map[string]string) *entity.JobState {
	st := &entity.JobState{
		ID:         id,
		Status:     entity.JobStatus(fields["status"]),
		Error:      fields["error"],
		EnqueuedAt: timeField(fields["enqueued_at"]),
	}
	if v := fields["started_at"]; v != "" {
		t := timeField(v)
		st.StartedAt = &t
	}
	if v := fields["finished_at"]; v != "" {
		t := timeField(v)
		st.FinishedAt = &t
	}
	return st
}

func timeField(v string) time.Time {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func durationField(v any) time.Duration {
	var s string
	switch x := v.(type) {
	case string:
		s = x
	case nil:
		return 0
	default:
		s = fmt.Sprint(x)
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}
