package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"intelliqueue/internal/domain"
	"intelliqueue/internal/worker"
)

var errAttemptPanicked = errors.New("attempt panicked")

type attempt struct {
	task     domain.Task
	settings worker.Settings
	epoch    uint64
}

// Run drives the single worker until ctx is cancelled. It must be called from
// exactly one goroutine.
func (e *Engine) Run(ctx context.Context) {
	e.logger.Info().
		Dur("idle_interval", e.idle).
		Msg("worker loop started")
	for {
		if ctx.Err() != nil {
			e.logger.Info().Msg("worker loop stopped")
			return
		}
		if !e.step(ctx) {
			e.idleWait(ctx)
		}
	}
}

// step runs at most one dispatch. It reports whether it made progress, so the
// caller knows to skip the idle wait.
func (e *Engine) step(ctx context.Context) bool {
	a, progressed := e.dispatch(ctx)
	if a == nil {
		return progressed
	}
	outcome, err := e.execute(ctx, a)
	e.finish(ctx, a, outcome, err)
	return true
}

// dispatch pulls the next pending task and marks it PROCESSING. Queue entries
// that do not point at a PENDING task are dropped with an ERROR note.
func (e *Engine) dispatch(ctx context.Context) (*attempt, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return nil, false
	}
	id, ok := e.queue.DequeueFront()
	if !ok {
		return nil, false
	}

	task, err := e.store.Get(id)
	if err != nil {
		e.skipLocked(ctx, id, "task not found", nil)
		return nil, true
	}
	if task.Status != domain.StatusPending {
		e.skipLocked(ctx, id, fmt.Sprintf("status is %s", task.Status), &task)
		return nil, true
	}
	task, err = e.store.SetStatus(id, domain.StatusProcessing)
	if err != nil {
		e.skipLocked(ctx, id, err.Error(), nil)
		return nil, true
	}

	e.current = id
	e.noteLocked(ctx, domain.NotificationInfo,
		fmt.Sprintf("Worker picked task %s (%s) - Processing...", task.ShortID(), task.Type), &task)
	e.logger.Debug().
		Str("task_id", id).
		Int("retry_count", task.RetryCount).
		Dur("delay", e.delay).
		Int("failure_rate", e.rate).
		Msg("attempt started")

	return &attempt{
		task:     task,
		settings: worker.Settings{Delay: e.delay, FailureRate: e.rate},
		epoch:    e.epoch,
	}, true
}

// execute runs the attempt without holding the engine lock. A panicking or
// erroring executor counts as a failed attempt.
func (e *Engine) execute(ctx context.Context, a *attempt) (outcome worker.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().
				Str("task_id", a.task.ID).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("recovered from panic in executor")
			outcome, err = worker.Failed, errAttemptPanicked
		}
	}()
	return e.exec.Execute(ctx, a.task, a.settings)
}

func (e *Engine) finish(ctx context.Context, a *attempt, outcome worker.Outcome, execErr error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := a.task.ID
	if a.epoch != e.epoch {
		e.logger.Debug().Str("task_id", id).Msg("discarding attempt that straddled a reset")
		return
	}
	e.current = ""

	if execErr != nil && ctx.Err() != nil {
		// Cut short by shutdown: hand the task back without counting an attempt.
		task, err := e.store.SetStatus(id, domain.StatusPending)
		if err != nil {
			e.storeFaultLocked(ctx, id, "requeue after interrupt", err)
			return
		}
		if err := e.queue.Enqueue(id); err != nil {
			e.storeFaultLocked(ctx, id, "requeue after interrupt", err)
			return
		}
		e.logger.Info().
			Str("task_id", id).
			Err(execErr).
			Msg("attempt interrupted, task returned to queue")
		e.noteLocked(ctx, domain.NotificationInfo,
			fmt.Sprintf("Task %s interrupted by shutdown - Re-queued", task.ShortID()), &task)
		return
	}
	if execErr != nil {
		if !errors.Is(execErr, errAttemptPanicked) {
			e.logger.Warn().
				Str("task_id", id).
				Err(execErr).
				Msg("executor returned an error, counting as failed attempt")
		}
		outcome = worker.Failed
	}

	if outcome == worker.Succeeded {
		task, err := e.store.SetStatus(id, domain.StatusCompleted)
		if err != nil {
			e.storeFaultLocked(ctx, id, "complete", err)
			return
		}
		e.noteLocked(ctx, domain.NotificationSuccess,
			fmt.Sprintf("Task %s completed successfully! Payload: \"%s\"", task.ShortID(), task.Payload), &task)
		return
	}

	task, err := e.store.IncrementRetry(id)
	if err != nil {
		e.storeFaultLocked(ctx, id, "count retry", err)
		return
	}
	switch worker.Decide(task.RetryCount, domain.MaxRetries) {
	case worker.Retry:
		task, err = e.store.SetStatus(id, domain.StatusPending)
		if err != nil {
			e.storeFaultLocked(ctx, id, "retry", err)
			return
		}
		if err := e.queue.Enqueue(id); err != nil {
			e.storeFaultLocked(ctx, id, "retry", err)
			return
		}
		e.noteLocked(ctx, domain.NotificationWarning,
			fmt.Sprintf("Task %s failed. Retry %d/%d - Re-queuing...", task.ShortID(), task.RetryCount, domain.MaxRetries), &task)
	case worker.Fail:
		task, err = e.store.SetStatus(id, domain.StatusFailed)
		if err != nil {
			e.storeFaultLocked(ctx, id, "fail", err)
			return
		}
		e.noteLocked(ctx, domain.NotificationError,
			fmt.Sprintf("Task %s FAILED after %d retries. Payload: \"%s\"", task.ShortID(), domain.MaxRetries, task.Payload), &task)
	}
}

func (e *Engine) skipLocked(ctx context.Context, id, reason string, task *domain.Task) {
	e.logger.Error().Str("task_id", id).Str("reason", reason).Msg("skipping queue entry")
	e.noteLocked(ctx, domain.NotificationError,
		fmt.Sprintf("Skipped queue entry %s: %s", domain.ShortID(id), reason), task)
}

func (e *Engine) storeFaultLocked(ctx context.Context, id, op string, err error) {
	e.logger.Error().Err(err).Str("task_id", id).Str("op", op).Msg("task transition failed")
	e.noteLocked(ctx, domain.NotificationError,
		fmt.Sprintf("Task %s: %s failed: %v", domain.ShortID(id), op, err), nil)
}

func (e *Engine) idleWait(ctx context.Context) {
	t := time.NewTimer(e.idle)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-e.wake:
	case <-t.C:
	}
}
