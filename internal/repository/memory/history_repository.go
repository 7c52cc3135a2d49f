package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Aafimalek/prompt-to-animate/internal/entity"
)

// HistoryRepository keeps generations in a map, newest first on read.
type HistoryRepository struct {
	mu    sync.RWMutex
	items map[string]entity.Generation
}

func NewHistoryRepository() *HistoryRepository {
	return &HistoryRepository{items: make(map[string]entity.Generation)}
}

func (r *HistoryRepository) Save(_ context.Context, g entity.Generation) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g.ID = uuid.NewString()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	r.items[g.ID] = g
	return g.ID, nil
}

func (r *HistoryRepository) List(_ context.Context, userID string, limit int) ([]entity.Generation, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	r.mu.RLock()
	out := make([]entity.Generation, 0)
	for _, g := range r.items {
		if g.UserID == userID {
			out = append(out, g)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *HistoryRepository) Get(_ context.Context, userID, id string) (*entity.Generation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.items[id]
	if !ok || g.UserID != userID {
		return nil, ErrNotFound
	}
	return &g, nil
}

func (r *HistoryRepository) Delete(_ context.Context, userID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.items[id]
	if !ok || g.UserID != userID {
		return ErrNotFound
	}
	delete(r.items, id)
	return nil
}

func (r *HistoryRepository) Ping(context.Context) error { return nil }
