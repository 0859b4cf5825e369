package engine

import (
	"time"

	"github.com/rs/zerolog"

	"intelliqueue/internal/domain"
	"intelliqueue/internal/worker"
)

const (
	DefaultProcessingDelay = 2 * time.Second
	DefaultFailureRate     = 30
	DefaultIdleInterval    = 500 * time.Millisecond
)

type Options struct {
	// TaskTypes is the closed set Submit accepts.
	TaskTypes []domain.TaskType

	ProcessingDelay time.Duration
	FailureRate     int
	// IdleInterval is how long the loop sleeps when stopped or the queue is
	// empty. Submit and SetRunning(true) cut the wait short.
	IdleInterval time.Duration

	LogCapacity   int
	StoreCapacity int // 0 = unbounded

	// Random feeds the default simulator and QuickAdd. Nil means time-seeded.
	Random worker.Source
	// Executor overrides the simulator.
	Executor worker.Executor

	Logger *zerolog.Logger
}

func (o *Options) withDefaults() Options {
	out := *o
	if len(out.TaskTypes) == 0 {
		out.TaskTypes = domain.DefaultTaskTypes
	}
	if out.ProcessingDelay < 0 {
		out.ProcessingDelay = DefaultProcessingDelay
	}
	if out.FailureRate < 0 || out.FailureRate > 100 {
		out.FailureRate = DefaultFailureRate
	}
	if out.IdleInterval <= 0 {
		out.IdleInterval = DefaultIdleInterval
	}
	return out
}

// DefaultOptions mirrors the stock worker settings.
func DefaultOptions() Options {
	return Options{
		TaskTypes:       domain.DefaultTaskTypes,
		ProcessingDelay: DefaultProcessingDelay,
		FailureRate:     DefaultFailureRate,
		IdleInterval:    DefaultIdleInterval,
	}
}
