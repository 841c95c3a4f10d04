package runstore

import (
	"context"
	"sync"

	"spoon/internal/model"
)

// Store keeps the most recent cleanup run of each restaurant.
type Store interface {
	SaveRun(ctx context.Context, run *model.CleanupRun) error
	// LastRun returns nil when no run was recorded.
	LastRun(ctx context.Context, restaurantID int64) (*model.CleanupRun, error)
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[int64]model.CleanupRun
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[int64]model.CleanupRun)}
}

func (s *MemoryStore) SaveRun(_ context.Context, run *model.CleanupRun) error {
	cp := *run
	cp.MenuIDs = append([]int64(nil), run.MenuIDs...)

	s.mu.Lock()
	s.runs[run.RestaurantID] = cp
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) LastRun(_ context.Context, restaurantID int64) (*model.CleanupRun, error) {
	s.mu.RLock()
	run, ok := s.runs[restaurantID]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	run.MenuIDs = append([]int64(nil), run.MenuIDs...)
	return &run, nil
}
