// Package engine is the single-worker scheduler: it ties the task store, the
// FIFO queue and the notification log together behind one mutex and drives
// tasks through PENDING -> PROCESSING -> COMPLETED | FAILED with bounded retry.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"intelliqueue/internal/domain"
	"intelliqueue/internal/notify"
	"intelliqueue/internal/queue"
	"intelliqueue/internal/store"
	"intelliqueue/internal/worker"
)

var quickPayloads = []string{
	"user@example.com",
	"Monthly sales report",
	"Database snapshot",
	"New order #12345",
	"Sync user profiles",
}

type Engine struct {
	// mu serializes every transition. Only the run loop's processing delay and
	// idle wait happen without it.
	mu      sync.Mutex
	store   *store.Store
	queue   *queue.FIFO
	notes   *notify.Log
	emitter *notify.Emitter

	exec worker.Executor
	rand *worker.Simulator

	types    map[domain.TaskType]struct{}
	typeList []domain.TaskType

	running bool
	delay   time.Duration
	rate    int
	idle    time.Duration

	// epoch changes on every Reset so an attempt that straddles a reset is
	// dropped when it finishes.
	epoch   uint64
	current string

	wake   chan struct{}
	logger *zerolog.Logger
}

func New(opts Options) *Engine {
	o := opts.withDefaults()

	logger := o.Logger
	if logger == nil {
		logger = &log.Logger
	}
	l := logger.With().Str("component", "engine").Logger()

	sim := worker.NewSimulator(o.Random)
	var exec worker.Executor = sim
	if o.Executor != nil {
		exec = o.Executor
	}

	var storeOpts []store.Option
	if o.StoreCapacity > 0 {
		storeOpts = append(storeOpts, store.WithCapacity(o.StoreCapacity))
	}

	e := &Engine{
		store:   store.New(storeOpts...),
		queue:   queue.NewFIFO(),
		notes:   notify.NewLog(o.LogCapacity),
		emitter: notify.NewEmitter(&l),
		exec:    exec,
		rand:    sim,
		types:   make(map[domain.TaskType]struct{}, len(o.TaskTypes)),
		delay:   o.ProcessingDelay,
		rate:    o.FailureRate,
		idle:    o.IdleInterval,
		wake:    make(chan struct{}, 1),
		logger:  &l,
	}
	for _, t := range o.TaskTypes {
		if _, dup := e.types[t]; dup {
			continue
		}
		e.types[t] = struct{}{}
		e.typeList = append(e.typeList, t)
	}
	return e
}

// Subscribe registers h for every event the engine records. Handlers run
// while the engine is locked: they must be quick and must not call back into
// the engine.
func (e *Engine) Subscribe(h notify.Handler) {
	e.emitter.Register(h)
}

// Submit validates and enqueues a new task, returning its id.
func (e *Engine) Submit(taskType domain.TaskType, payload string) (string, error) {
	if _, ok := e.types[taskType]; !ok {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidTaskType, taskType)
	}
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return "", domain.ErrEmptyPayload
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	task, err := e.store.Create(taskType, payload)
	if err != nil {
		return "", err
	}
	if err := e.queue.Enqueue(task.ID); err != nil {
		return "", err
	}
	e.noteLocked(context.Background(), domain.NotificationInfo,
		fmt.Sprintf("Task %s created with type: %s", task.ShortID(), task.Type), &task)
	e.signal()
	return task.ID, nil
}

// QuickAdd submits a task of a random configured type with a canned payload.
func (e *Engine) QuickAdd() (string, error) {
	t := e.typeList[e.rand.Intn(len(e.typeList))]
	p := quickPayloads[e.rand.Intn(len(quickPayloads))]
	return e.Submit(t, p)
}

// Snapshot is a consistent point-in-time view of all engine state.
func (e *Engine) Snapshot() domain.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	tasks := e.store.List()
	return domain.Snapshot{
		Tasks:           tasks,
		QueueDepth:      e.queue.Depth(),
		Notifications:   e.notes.List(),
		Stats:           domain.CountStats(tasks),
		Running:         e.running,
		ProcessingDelay: e.delay,
		FailureRate:     e.rate,
	}
}

func (e *Engine) Task(id string) (domain.Task, error) {
	return e.store.Get(id)
}

func (e *Engine) Stats() domain.Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return domain.CountStats(e.store.List())
}

func (e *Engine) QueueDepth() int { return e.queue.Depth() }

func (e *Engine) Notifications() []domain.Notification { return e.notes.List() }

// TaskTypes returns the accepted task types in configured order.
func (e *Engine) TaskTypes() []domain.TaskType {
	out := make([]domain.TaskType, len(e.typeList))
	copy(out, e.typeList)
	return out
}

// Current is the id of the task being processed, or "" when the worker is idle.
func (e *Engine) Current() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// SetRunning starts or stops dispatch. Stopping never interrupts an attempt
// already in progress; it only keeps the next one from starting.
func (e *Engine) SetRunning(running bool) {
	e.mu.Lock()
	changed := e.running != running
	e.running = running
	e.mu.Unlock()

	if changed {
		e.logger.Info().Bool("running", running).Msg("worker state changed")
	}
	if running {
		e.signal()
	}
}

// SetProcessingDelay changes the simulated execution time. Only allowed while stopped.
func (e *Engine) SetProcessingDelay(d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("%w: processing delay %s is negative", domain.ErrInvalidArgument, d)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return fmt.Errorf("%w: stop the worker before changing the processing delay", domain.ErrPreconditionFailed)
	}
	e.delay = d
	return nil
}

// SetFailureRate changes the simulated failure percentage. Only allowed while stopped.
func (e *Engine) SetFailureRate(percent int) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("%w: failure rate %d outside [0,100]", domain.ErrInvalidArgument, percent)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return fmt.Errorf("%w: stop the worker before changing the failure rate", domain.ErrPreconditionFailed)
	}
	e.rate = percent
	return nil
}

// Reset stops the worker and empties the store, the queue and the log, then
// records a single reset notification.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.store.Reset()
	e.queue.Reset()
	e.notes.Clear()
	e.running = false
	e.current = ""
	e.epoch++
	e.noteLocked(context.Background(), domain.NotificationInfo, "System reset complete", nil)
}

func (e *Engine) ClearNotifications() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notes.Clear()
}

// noteLocked appends to the log and publishes the event. Caller holds e.mu.
func (e *Engine) noteLocked(ctx context.Context, typ domain.NotificationType, msg string, task *domain.Task) {
	taskID := ""
	if task != nil {
		taskID = task.ID
	}
	n := e.notes.Append(typ, msg, taskID)
	_ = e.emitter.Emit(ctx, notify.Event{Notification: n, Task: task})
}

func (e *Engine) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}
