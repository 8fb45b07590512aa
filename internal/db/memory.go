package db

import (
	"context"
	"slices"
	"sync"

	"willitrain/internal/types"
)

// MemoryStore is an in-process saved query store used when DATABASE_URL is
// unset. Contents are lost on restart. Safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	clock   types.Clock
	queries []*types.SavedQuery // newest first
}

func NewMemoryStore(clock types.Clock) *MemoryStore {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &MemoryStore{clock: clock}
}

// List returns up to limit saved queries, newest first.
func (s *MemoryStore) List(_ context.Context, limit int) ([]*types.SavedQuery, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	n := min(limit, len(s.queries))
	out := make([]*types.SavedQuery, 0, n)
	for _, q := range s.queries[:n] {
		out = append(out, cloneSavedQuery(q))
	}
	return out, nil
}

// Create stores a copy of q at the head of the list.
func (s *MemoryStore) Create(_ context.Context, q *types.SavedQuery) error {
	if q.CreatedAt.IsZero() {
		q.CreatedAt = s.clock.Now()
	}
	if q.Conditions == nil {
		q.Conditions = []string{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = slices.Insert(s.queries, 0, cloneSavedQuery(q))
	return nil
}

// GetByID returns a copy of one saved query or ErrCodeNotFoundSavedQuery.
func (s *MemoryStore) GetByID(_ context.Context, id string) (*types.SavedQuery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, q := range s.queries {
		if q.ID == id {
			return cloneSavedQuery(q), nil
		}
	}
	return nil, types.NewAppError(types.ErrCodeNotFoundSavedQuery, "saved query not found", nil)
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.IndexFunc(s.queries, func(q *types.SavedQuery) bool { return q.ID == id })
	if i < 0 {
		return types.NewAppError(types.ErrCodeNotFoundSavedQuery, "saved query not found", nil)
	}
	s.queries = slices.Delete(s.queries, i, i+1)
	return nil
}

func cloneSavedQuery(q *types.SavedQuery) *types.SavedQuery {
	c := *q
	c.Conditions = slices.Clone(q.Conditions)
	if q.Temperature != nil {
		t := *q.Temperature
		c.Temperature = &t
	}
	return &c
}
