package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"intelliqueue/internal/domain"
)

// DefaultCapacity is how many notifications the log retains.
const DefaultCapacity = 100

// Log is an append-only ring of the most recent notifications.
type Log struct {
	mu   sync.RWMutex
	buf  []domain.Notification
	head int // index of the oldest entry
	size int
	now  func() time.Time
}

func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{buf: make([]domain.Notification, capacity), now: time.Now}
}

// Append records a notification, evicting the oldest entry when full.
func (l *Log) Append(typ domain.NotificationType, message, taskID string) domain.Notification {
	n := domain.Notification{
		ID:        "ntf_" + uuid.NewString(),
		Timestamp: l.now(),
		Type:      typ,
		Message:   message,
		TaskID:    taskID,
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	capacity := len(l.buf)
	if l.size < capacity {
		l.buf[(l.head+l.size)%capacity] = n
		l.size++
	} else {
		l.buf[l.head] = n
		l.head = (l.head + 1) % capacity
	}
	return n
}

// List returns the retained notifications, most recent first.
func (l *Log) List() []domain.Notification {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.Notification, l.size)
	capacity := len(l.buf)
	for i := 0; i < l.size; i++ {
		out[i] = l.buf[(l.head+l.size-1-i)%capacity]
	}
	return out
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.size
}

func (l *Log) Cap() int { return len(l.buf) }

func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.buf {
		l.buf[i] = domain.Notification{}
	}
	l.head, l.size = 0, 0
}
