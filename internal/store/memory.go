package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/i474232898/fieldwork-weather-planner/internal/tasks"
)

var (
	// ErrNotFound is returned when no task exists for a given id.
	ErrNotFound = errors.New("task not found")
	// ErrConflict is returned when adding a task whose id is already taken.
	ErrConflict = errors.New("task already exists")
)

// MemoryStore is a concurrency-safe in-memory tasks.Store that keeps insertion order.
type MemoryStore struct {
	mu    sync.RWMutex
	order []string
	data  map[string]tasks.Task
}

// NewMemoryStore creates a MemoryStore holding a copy of initial.
func NewMemoryStore(initial ...tasks.Task) *MemoryStore {
	s := &MemoryStore{data: make(map[string]tasks.Task, len(initial))}
	for _, t := range initial {
		if _, dup := s.data[t.ID]; dup {
			continue
		}
		s.order = append(s.order, t.ID)
		s.data[t.ID] = t
	}
	return s
}

func (s *MemoryStore) List(_ context.Context) ([]tasks.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]tasks.Task, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.data[id])
	}
	return out, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (tasks.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.data[id]
	if !ok {
		return tasks.Task{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return t, nil
}

func (s *MemoryStore) Add(_ context.Context, t tasks.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[t.ID]; exists {
		return fmt.Errorf("%w: %s", ErrConflict, t.ID)
	}
	s.order = append(s.order, t.ID)
	s.data[t.ID] = t
	return nil
}

func (s *MemoryStore) Update(_ context.Context, t tasks.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[t.ID]; !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, t.ID)
	}
	s.data[t.ID] = t
	return nil
}
