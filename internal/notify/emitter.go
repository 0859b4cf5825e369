package notify

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"intelliqueue/internal/domain"
)

// Event is published for every notification the engine records. Task carries
// the task state right after the transition, or nil for system events.
type Event struct {
	Notification domain.Notification `json:"notification"`
	Task         *domain.Task        `json:"task,omitempty"`
}

// Handler receives engine events. Handlers run on the publishing goroutine and
// must not call back into the engine synchronously.
type Handler interface {
	HandleEvent(ctx context.Context, ev Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, ev Event) error

func (f HandlerFunc) HandleEvent(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Emitter fans events out to every registered handler.
type Emitter struct {
	mu       sync.RWMutex
	handlers []Handler
	logger   *zerolog.Logger
}

func NewEmitter(logger *zerolog.Logger) *Emitter {
	if logger == nil {
		logger = &log.Logger
	}
	l := logger.With().Str("component", "emitter").Logger()
	return &Emitter{logger: &l}
}

func (e *Emitter) Register(h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, h)
}

// Emit delivers ev to all handlers. A failing handler does not stop delivery
// to the rest; the first error is returned.
func (e *Emitter) Emit(ctx context.Context, ev Event) error {
	e.mu.RLock()
	handlers := make([]Handler, len(e.handlers))
	copy(handlers, e.handlers)
	e.mu.RUnlock()

	var firstErr error
	for i, h := range handlers {
		if err := h.HandleEvent(ctx, ev); err != nil {
			e.logger.Error().Err(err).
				Int("handler_index", i).
				Str("notification_id", ev.Notification.ID).
				Msg("event handler failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// LogHandler mirrors notifications into a zerolog logger at a level matching
// their type.
type LogHandler struct {
	Logger *zerolog.Logger
}

func (h LogHandler) HandleEvent(_ context.Context, ev Event) error {
	logger := h.Logger
	if logger == nil {
		logger = &log.Logger
	}
	var e *zerolog.Event
	switch ev.Notification.Type {
	case domain.NotificationError:
		e = logger.Error()
	case domain.NotificationWarning:
		e = logger.Warn()
	default:
		e = logger.Info()
	}
	e = e.Str("type", string(ev.Notification.Type))
	if ev.Task != nil {
		e = e.Str("task_id", ev.Task.ID).
			Str("status", string(ev.Task.Status)).
			Int("retry_count", ev.Task.RetryCount)
	}
	e.Msg(ev.Notification.Message)
	return nil
}
