package worker

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"intelliqueue/internal/domain"
)

// Source is the random source outcomes are drawn from. *rand.Rand satisfies it.
type Source interface {
	Intn(n int) int
}

type Outcome int

const (
	Succeeded Outcome = iota + 1
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Settings are captured when an attempt starts and stay fixed for it.
type Settings struct {
	Delay       time.Duration
	FailureRate int // percent, 0..100
}

// Executor runs one attempt of a task. The error is reserved for the attempt
// being cut short (context cancelled); a failed attempt is an Outcome.
type Executor interface {
	Execute(ctx context.Context, task domain.Task, s Settings) (Outcome, error)
}

// Simulator models execution as a delay followed by a weighted coin flip.
// Every attempt is independent of earlier attempts of the same task.
type Simulator struct {
	mu  sync.Mutex
	src Source
}

// NewSimulator returns a simulator drawing from src, or from a time-seeded
// source when src is nil.
func NewSimulator(src Source) *Simulator {
	if src == nil {
		src = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Simulator{src: src}
}

func (s *Simulator) Execute(ctx context.Context, _ domain.Task, st Settings) (Outcome, error) {
	if st.Delay > 0 {
		t := time.NewTimer(st.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-t.C:
		}
	} else if err := ctx.Err(); err != nil {
		return 0, err
	}
	// uniform in [0,100): succeeds with probability (100-rate)/100
	if s.Intn(100) < st.FailureRate {
		return Failed, nil
	}
	return Succeeded, nil
}

// Intn draws from the underlying source; safe for concurrent use.
func (s *Simulator) Intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.Intn(n)
}
