// Package memory holds process-local stores used in tests and when the api
// runs without Postgres.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/Aafimalek/prompt-to-animate/internal/entity"
)

var ErrNotFound = entity.ErrNotFound

type QuotaRepository struct {
	mu    sync.Mutex
	users map[string]*entity.QuotaState
}

func NewQuotaRepository() *QuotaRepository {
	return &QuotaRepository{users: make(map[string]*entity.QuotaState)}
}

func (r *QuotaRepository) GetOrCreate(_ context.Context, userID string, now time.Time) (entity.QuotaState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.users[userID]
	if !ok {
		def := entity.NewQuotaState(userID, now)
		st = &def
		r.users[userID] = st
	}
	return *st, nil
}

func (r *QuotaRepository) Reset(_ context.Context, userID string, prev, next, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.users[userID]
	if !ok {
		return false, ErrNotFound
	}
	if !st.ResetAt.Equal(prev) {
		return false, nil
	}
	st.MonthlyCount = 0
	st.ResetAt = next
	st.UpdatedAt = now
	return true, nil
}

func (r *QuotaRepository) Consume(_ context.Context, userID string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.users[userID]
	if !ok {
		return false, ErrNotFound
	}
	st.UpdatedAt = now
	if st.BasicCredits > 0 {
		st.BasicCredits--
		return true, nil
	}
	st.MonthlyCount++
	return false, nil
}

func (r *QuotaRepository) AddCredits(_ context.Context, userID string, n int, now time.Time) error {
	return r.update(userID, func(st *entity.QuotaState) {
		st.BasicCredits += n
		st.UpdatedAt = now
	})
}

func (r *QuotaRepository) ActivatePro(_ context.Context, userID string, resetAt, now time.Time) error {
	return r.update(userID, func(st *entity.QuotaState) {
		st.Tier = entity.TierPro
		st.MonthlyCount = 0
		st.ResetAt = resetAt
		st.UpdatedAt = now
	})
}

func (r *QuotaRepository) SetTier(_ context.Context, userID string, tier entity.Tier, now time.Time) error {
	return r.update(userID, func(st *entity.QuotaState) {
		st.Tier = tier
		st.UpdatedAt = now
	})
}

// Put replaces a user's row. Tests use it to seed counters.
func (r *QuotaRepository) Put(st entity.QuotaState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := st
	r.users[st.UserID] = &cp
}

func (r *QuotaRepository) update(userID string, fn func(*entity.QuotaState)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.users[userID]
	if !ok {
		return ErrNotFound
	}
	fn(st)
	return nil
}
