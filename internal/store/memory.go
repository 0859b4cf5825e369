package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"intelliqueue/internal/domain"
)

// Store owns the canonical record of every task submitted since the last reset.
type Store struct {
	mu       sync.RWMutex
	tasks    map[string]*domain.Task
	order    []string
	capacity int
	now      func() time.Time
}

type Option func(*Store)

// WithCapacity bounds the number of tasks Create accepts. Zero means unbounded.
func WithCapacity(n int) Option {
	return func(s *Store) { s.capacity = n }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(opts ...Option) *Store {
	s := &Store{tasks: make(map[string]*domain.Task), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) Create(taskType domain.TaskType, payload string) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.capacity > 0 && len(s.tasks) >= s.capacity {
		return domain.Task{}, fmt.Errorf("%w: limit %d", domain.ErrCapacityExceeded, s.capacity)
	}
	now := s.now()
	t := &domain.Task{
		ID:        "tsk_" + uuid.NewString(),
		Type:      taskType,
		Payload:   payload,
		Status:    domain.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.tasks[t.ID] = t
	s.order = append(s.order, t.ID)
	return *t, nil
}

func (s *Store) Get(id string) (domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return domain.Task{}, fmt.Errorf("get %s: %w", id, domain.ErrNotFound)
	}
	return copyTask(t), nil
}

// List returns copies of all tasks in insertion order.
func (s *Store) List() []domain.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Task, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, copyTask(s.tasks[id]))
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

// SetStatus moves a task to status. CompletedAt is stamped the first time the
// task enters a terminal state; terminal tasks reject further changes.
func (s *Store) SetStatus(id string, status domain.Status) (domain.Task, error) {
	if !status.Valid() {
		return domain.Task{}, fmt.Errorf("set status %q: %w", status, domain.ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return domain.Task{}, fmt.Errorf("set status %s: %w", id, domain.ErrNotFound)
	}
	if t.Status.Terminal() {
		return domain.Task{}, fmt.Errorf("set status %s -> %s: %w", id, status, domain.ErrTerminal)
	}
	now := s.now()
	t.Status = status
	t.UpdatedAt = now
	if status.Terminal() && t.CompletedAt == nil {
		at := now
		t.CompletedAt = &at
	}
	return copyTask(t), nil
}

func (s *Store) IncrementRetry(id string) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return domain.Task{}, fmt.Errorf("increment retry %s: %w", id, domain.ErrNotFound)
	}
	if t.Status.Terminal() {
		return domain.Task{}, fmt.Errorf("increment retry %s: %w", id, domain.ErrTerminal)
	}
	t.RetryCount++
	t.UpdatedAt = s.now()
	return copyTask(t), nil
}

// Reset drops every task.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = make(map[string]*domain.Task)
	s.order = nil
}

func copyTask(t *domain.Task) domain.Task {
	c := *t
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		c.CompletedAt = &at
	}
	return c
}
