package queue

import (
	"fmt"
	"sync"

	"intelliqueue/internal/domain"
)

// FIFO is an ordered set of task ids awaiting dispatch. It holds ids only;
// task data stays in the store. Any number of goroutines may Enqueue while one
// consumer calls DequeueFront.
type FIFO struct {
	mu     sync.Mutex
	ids    []string
	queued map[string]struct{}
}

func NewFIFO() *FIFO {
	return &FIFO{queued: make(map[string]struct{})}
}

// Enqueue appends id at the tail. An id may appear at most once.
func (q *FIFO) Enqueue(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.queued[id]; ok {
		return fmt.Errorf("enqueue %s: %w", id, domain.ErrDuplicateEntry)
	}
	q.ids = append(q.ids, id)
	q.queued[id] = struct{}{}
	return nil
}

// DequeueFront removes and returns the head. It never blocks; ok is false
// when the queue is empty.
func (q *FIFO) DequeueFront() (id string, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.ids) == 0 {
		return "", false
	}
	id = q.ids[0]
	q.ids[0] = ""
	q.ids = q.ids[1:]
	delete(q.queued, id)
	return id, true
}

func (q *FIFO) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ids)
}

func (q *FIFO) Contains(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.queued[id]
	return ok
}

// IDs returns the queued ids head first.
func (q *FIFO) IDs() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, len(q.ids))
	copy(out, q.ids)
	return out
}

func (q *FIFO) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ids = nil
	q.queued = make(map[string]struct{})
}
