package postgresql

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Aafimalek/prompt-to-animate/internal/entity"
)

var ErrNotFound = entity.ErrNotFound

type QuotaRepository struct {
	pool *pgxpool.Pool
}

func NewQuotaRepository(pool *pgxpool.Pool) *QuotaRepository {
	return &QuotaRepository{pool: pool}
}

func (r *QuotaRepository) GetOrCreate(ctx context.Context, userID string, now time.Time) (entity.QuotaState, error) {
	def := entity.NewQuotaState(userID, now)

	const ins = `
INSERT INTO user_quotas (user_id, tier, monthly_count, reset_at, basic_credits, created_at, updated_at)
VALUES ($1, $2, 0, $3, 0, $4, $4)
ON CONFLICT (user_id) DO NOTHING;
`
	if _, err := r.pool.Exec(ctx, ins, userID, string(def.Tier), def.ResetAt, now); err != nil {
		return entity.QuotaState{}, err
	}

	const q = `
SELECT user_id, tier, monthly_count, reset_at, basic_credits, created_at, updated_at
FROM user_quotas
WHERE user_id = $1;
`
	var (
		st   entity.QuotaState
		tier string
	)
	if err := r.pool.QueryRow(ctx, q, userID).Scan(
		&st.UserID,
		&tier,
		&st.MonthlyCount,
		&st.ResetAt,
		&st.BasicCredits,
		&st.CreatedAt,
		&st.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return entity.QuotaState{}, ErrNotFound
		}
		return entity.QuotaState{}, err
	}
	st.Tier = entity.Tier(tier)
	st.ResetAt = st.ResetAt.UTC()
	return st, nil
}

// Reset is a compare-and-set on reset_at, so a boundary is crossed once.
func (r *QuotaRepository) Reset(ctx context.Context, userID string, prev, next, now time.Time) (bool, error) {
	const q = `
UPDATE user_quotas
SET monthly_count = 0, reset_at = $3, updated_at = $4
WHERE user_id = $1 AND reset_at = $2;
`
	tag, err := r.pool.Exec(ctx, q, userID, prev, next, now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *QuotaRepository) Consume(ctx context.Context, userID string, now time.Time) (bool, error) {
	const q = `
WITH prev AS (
    SELECT basic_credits FROM user_quotas WHERE user_id = $1 FOR UPDATE
)
UPDATE user_quotas u
SET basic_credits = CASE WHEN prev.basic_credits > 0 THEN u.basic_credits - 1 ELSE u.basic_credits END,
    monthly_count = CASE WHEN prev.basic_credits > 0 THEN u.monthly_count ELSE u.monthly_count + 1 END,
    updated_at = $2
FROM prev
WHERE u.user_id = $1
RETURNING prev.basic_credits > 0;
`
	var usedCredit bool
	if err := r.pool.QueryRow(ctx, q, userID, now).Scan(&usedCredit); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrNotFound
		}
		return false, err
	}
	return usedCredit, nil
}

func (r *QuotaRepository) AddCredits(ctx context.Context, userID string, n int, now time.Time) error {
	const q = `UPDATE user_quotas SET basic_credits = basic_credits + $2, updated_at = $3 WHERE user_id = $1;`
	return r.exec(ctx, q, userID, n, now)
}

func (r *QuotaRepository) ActivatePro(ctx context.Context, userID string, resetAt, now time.Time) error {
	const q = `
UPDATE user_quotas
SET tier = 'pro', monthly_count = 0, reset_at = $2, updated_at = $3
WHERE user_id = $1;
`
	return r.exec(ctx, q, userID, resetAt, now)
}

func (r *QuotaRepository) SetTier(ctx context.Context, userID string, tier entity.Tier, now time.Time) error {
	const q = `UPDATE user_quotas SET tier = $2, updated_at = $3 WHERE user_id = $1;`
	return r.exec(ctx, q, userID, string(tier), now)
}

func (r *QuotaRepository) exec(ctx context.Context, q string, args ...any) error {
	tag, err := r.pool.Exec(ctx, q, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
