package operations

import (
	"context"
	"sort"
	"sync"

	"dicommart/internal/errors"
	"dicommart/pkg/contracts/domain"
)

// MemoryRunStore keeps runs in memory. History is bounded; the oldest
// finished runs are evicted first.
type MemoryRunStore struct {
	mu      sync.RWMutex
	runs    map[string]*domain.Run
	order   []string
	maxRuns int
}

// NewMemoryRunStore creates a store holding at most maxRuns runs. Zero means
// unbounded.
func NewMemoryRunStore(maxRuns int) *MemoryRunStore {
	return &MemoryRunStore{
		runs:    make(map[string]*domain.Run),
		maxRuns: maxRuns,
	}
}

// CreateRun stores a new run.
func (s *MemoryRunStore) CreateRun(ctx context.Context, run *domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.ID]; exists {
		return errors.NewConflictError("run already exists").WithContext("run_id", run.ID)
	}

	s.runs[run.ID] = copyRun(run)
	s.order = append(s.order, run.ID)
	s.evict()
	return nil
}

// UpdateRun replaces a stored run.
func (s *MemoryRunStore) UpdateRun(ctx context.Context, run *domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.ID]; !exists {
		return errors.NewNotFoundError("run").WithContext("run_id", run.ID)
	}
	s.runs[run.ID] = copyRun(run)
	return nil
}

// GetRun retrieves a run by ID.
func (s *MemoryRunStore) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, exists := s.runs[id]
	if !exists {
		return nil, errors.NewNotFoundError("run").WithContext("run_id", id)
	}
	return copyRun(run), nil
}

// ListRuns returns runs matching filter, newest first.
func (s *MemoryRunStore) ListRuns(ctx context.Context, filter RunFilter) ([]*domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Run, 0, len(s.runs))
	for _, run := range s.runs {
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		result = append(result, copyRun(run))
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// evict drops the oldest finished runs beyond maxRuns. Callers hold mu.
func (s *MemoryRunStore) evict() {
	if s.maxRuns <= 0 {
		return
	}
	for i := 0; len(s.runs) > s.maxRuns && i < len(s.order); {
		id := s.order[i]
		if run := s.runs[id]; run != nil && !run.Status.Terminal() {
			i++
			continue
		}
		delete(s.runs, id)
		s.order = append(s.order[:i], s.order[i+1:]...)
	}
}
