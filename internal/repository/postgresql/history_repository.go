package postgresql

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Aafimalek/prompt-to-animate/internal/entity"
)

// HistoryRepository stores completed generations ("chats").
type HistoryRepository struct {
	pool *pgxpool.Pool
}

func NewHistoryRepository(pool *pgxpool.Pool) *HistoryRepository {
	return &HistoryRepository{pool: pool}
}

func (r *HistoryRepository) Save(ctx context.Context, g entity.Generation) (string, error) {
	id := uuid.New()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}

	const q = `
INSERT INTO generations (id, user_id, job_id, prompt, length, video_url, storage_key, code, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
`
	if _, err := r.pool.Exec(ctx, q, id, g.UserID, g.JobID, g.Prompt, string(g.Length), g.VideoURL, g.StorageKey, g.Code, g.CreatedAt); err != nil {
		return "", err
	}
	return id.String(), nil
}

func (r *HistoryRepository) List(ctx context.Context, userID string, limit int) ([]entity.Generation, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	const q = `
SELECT id, user_id, job_id, prompt, length, video_url, storage_key, code, created_at
FROM generations
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2;
`
	rows, err := r.pool.Query(ctx, q, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]entity.Generation, 0)
	for rows.Next() {
		g, err := scanGeneration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *HistoryRepository) Get(ctx context.Context, userID, id string) (*entity.Generation, error) {
	gid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrNotFound
	}
	const q = `
SELECT id, user_id, job_id, prompt, length, video_url, storage_key, code, created_at
FROM generations
WHERE id = $1 AND user_id = $2;
`
	g, err := scanGeneration(r.pool.QueryRow(ctx, q, gid, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &g, nil
}

// Delete removes a generation; only its owner can delete it.
func (r *HistoryRepository) Delete(ctx context.Context, userID, id string) error {
	gid, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	const q = `DELETE FROM generations WHERE id = $1 AND user_id = $2;`

	tag, err := r.pool.Exec(ctx, q, gid, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *HistoryRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func scanGeneration(row pgx.Row) (entity.Generation, error) {
	var (
		g      entity.Generation
		id     uuid.UUID
		length string
	)
	if err := row.Scan(&id, &g.UserID, &g.JobID, &g.Prompt, &length, &g.VideoURL, &g.StorageKey, &g.Code, &g.CreatedAt); err != nil {
		return entity.Generation{}, err
	}
	g.ID = id.String()
	g.Length = entity.Length(length)
	return g, nil
}
