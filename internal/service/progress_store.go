package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Aafimalek/prompt-to-animate/internal/entity"
)

// ErrTerminal is returned when a checkpoint targets a record that already
// holds a terminal step.
var ErrTerminal = errors.New("progress record is terminal")

type ProgressStore interface {
	Checkpoint(ctx context.Context, jobID string, p entity.Progress) error
	Get(ctx context.Context, jobID string) (*entity.Progress, error)
	Result(ctx context.Context, jobID string) (*entity.Progress, error)
	Ping(ctx context.Context) error
}

func ProgressKey(jobID string) string { return "job:" + jobID + ":progress" }
func ResultKey(jobID string) string   { return "job:" + jobID + ":result" }

type redisProgressStore struct {
	rdb         *redis.Client
	progressTTL time.Duration
	resultTTL   time.Duration
}

func NewRedisProgressStore(rdb *redis.Client, progressTTL, resultTTL time.Duration) ProgressStore {
	return &redisProgressStore{rdb: rdb, progressTTL: progressTTL, resultTTL: resultTTL}
}

// Checkpoint overwrites the latest snapshot. Terminal snapshots are also
// copied to the longer-lived result key. Once a job has a terminal record
// every later write fails with ErrTerminal, except an identical rewrite of
// that record, which is a no-op.
func (s *redisProgressStore) Checkpoint(ctx context.Context, jobID string, p entity.Progress) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}

	key, resKey := ProgressKey(jobID), ResultKey(jobID)
	return s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		for _, k := range []string{key, resKey} {
			cur, err := tx.Get(ctx, k).Bytes()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
			if len(cur) == 0 {
				continue
			}
			var prev entity.Progress
			if err := json.Unmarshal(cur, &prev); err == nil && prev.Terminal() {
				if bytes.Equal(cur, data) {
					return nil
				}
				return ErrTerminal
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.progressTTL)
			if p.Terminal() {
				pipe.Set(ctx, resKey, data, s.resultTTL)
			}
			return nil
		})
		return err
	}, key, resKey)
}

func (s *redisProgressStore) Get(ctx context.Context, jobID string) (*entity.Progress, error) {
	return s.read(ctx, ProgressKey(jobID))
}

func (s *redisProgressStore) Result(ctx context.Context, jobID string) (*entity.Progress, error) {
	return s.read(ctx, ResultKey(jobID))
}

func (s *redisProgressStore) read(ctx context.Context, key string) (*entity.Progress, error) {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var p entity.Progress
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &p, nil
}

func (s *redisProgressStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// LookupProgress is the point-in-time poll: the live snapshot, then the
// terminal cache, then a pending placeholder.
func LookupProgress(ctx context.Context, store ProgressStore, jobID string) (entity.Progress, error) {
	p, err := store.Get(ctx, jobID)
	if err == nil {
		return *p, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return entity.Progress{}, err
	}
	p, err = store.Result(ctx, jobID)
	if err == nil {
		return *p, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return entity.Progress{}, err
	}
	return entity.PendingProgress(), nil
}
