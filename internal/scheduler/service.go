// Package scheduler submits tasks to the engine on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"intelliqueue/internal/domain"
)

const DefaultCheckInterval = time.Second

// Submitter is the part of the engine the scheduler needs.
type Submitter interface {
	Submit(taskType domain.TaskType, payload string) (string, error)
	TaskTypes() []domain.TaskType
}

type Schedule struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	CronExpr string          `json:"cron_expr"`
	TaskType domain.TaskType `json:"task_type"`
	Payload  string          `json:"payload"`
	Enabled  bool            `json:"enabled"`
	LastRun  *time.Time      `json:"last_run,omitempty"`
	NextRun  time.Time       `json:"next_run"`
	// LastTaskID is the task created by the most recent run.
	LastTaskID string `json:"last_task_id,omitempty"`

	spec cron.Schedule
}

type CreateRequest struct {
	Name     string
	CronExpr string
	TaskType domain.TaskType
	Payload  string
	Enabled  bool
}

type Service struct {
	mu        sync.RWMutex
	schedules map[string]*Schedule
	submitter Submitter
	interval  time.Duration
	now       func() time.Time
	logger    *zerolog.Logger
}

func NewService(submitter Submitter, checkInterval time.Duration, logger *zerolog.Logger) *Service {
	if checkInterval <= 0 {
		checkInterval = DefaultCheckInterval
	}
	if logger == nil {
		logger = &log.Logger
	}
	l := logger.With().Str("component", "scheduler").Logger()
	return &Service{
		schedules: make(map[string]*Schedule),
		submitter: submitter,
		interval:  checkInterval,
		now:       time.Now,
		logger:    &l,
	}
}

// Create validates and registers a schedule. Its first run is the next cron
// activation after now.
func (s *Service) Create(req CreateRequest) (Schedule, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return Schedule{}, fmt.Errorf("%w: schedule name is required", domain.ErrInvalidArgument)
	}
	spec, err := cron.ParseStandard(req.CronExpr)
	if err != nil {
		return Schedule{}, fmt.Errorf("%w: cron expression %q: %v", domain.ErrInvalidArgument, req.CronExpr, err)
	}
	if !s.knownType(req.TaskType) {
		return Schedule{}, fmt.Errorf("%w: %q", domain.ErrInvalidTaskType, req.TaskType)
	}
	payload := strings.TrimSpace(req.Payload)
	if payload == "" {
		return Schedule{}, domain.ErrEmptyPayload
	}

	sc := &Schedule{
		ID:       "sch_" + uuid.NewString(),
		Name:     name,
		CronExpr: req.CronExpr,
		TaskType: req.TaskType,
		Payload:  payload,
		Enabled:  req.Enabled,
		NextRun:  spec.Next(s.now()),
		spec:     spec,
	}

	s.mu.Lock()
	s.schedules[sc.ID] = sc
	s.mu.Unlock()

	s.logger.Info().
		Str("schedule_id", sc.ID).
		Str("cron_expr", sc.CronExpr).
		Time("next_run", sc.NextRun).
		Msg("schedule created")
	return *sc, nil
}

func (s *Service) Get(id string) (Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.schedules[id]
	if !ok {
		return Schedule{}, fmt.Errorf("schedule %s: %w", id, domain.ErrNotFound)
	}
	return *sc, nil
}

// List returns schedules ordered by next run.
func (s *Service) List() []Schedule {
	s.mu.RLock()
	out := make([]Schedule, 0, len(s.schedules))
	for _, sc := range s.schedules {
		out = append(out, *sc)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].NextRun.Equal(out[j].NextRun) {
			return out[i].ID < out[j].ID
		}
		return out[i].NextRun.Before(out[j].NextRun)
	})
	return out
}

func (s *Service) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schedules[id]; !ok {
		return fmt.Errorf("schedule %s: %w", id, domain.ErrNotFound)
	}
	delete(s.schedules, id)
	return nil
}

func (s *Service) SetEnabled(id string, enabled bool) (Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.schedules[id]
	if !ok {
		return Schedule{}, fmt.Errorf("schedule %s: %w", id, domain.ErrNotFound)
	}
	sc.Enabled = enabled
	if enabled {
		sc.NextRun = sc.spec.Next(s.now())
	}
	return *sc, nil
}

func (s *Service) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.interval).Msg("schedule service started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("schedule service stopped")
			return
		case now := <-ticker.C:
			s.processDue(now)
		}
	}
}

// processDue submits one task for every enabled schedule whose next run is
// not after now. Missed activations are not replayed.
func (s *Service) processDue(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	fired := 0
	for _, sc := range s.schedules {
		if !sc.Enabled || sc.NextRun.After(now) {
			continue
		}
		at := now
		sc.LastRun = &at
		sc.NextRun = sc.spec.Next(now)

		taskID, err := s.submitter.Submit(sc.TaskType, sc.Payload)
		if err != nil {
			s.logger.Error().Err(err).Str("schedule_id", sc.ID).Msg("failed to submit scheduled task")
			continue
		}
		sc.LastTaskID = taskID
		fired++

		s.logger.Info().
			Str("schedule_id", sc.ID).
			Str("schedule_name", sc.Name).
			Str("task_id", taskID).
			Time("next_run", sc.NextRun).
			Msg("scheduled task submitted")
	}
	return fired
}

func (s *Service) knownType(t domain.TaskType) bool {
	for _, known := range s.submitter.TaskTypes() {
		if known == t {
			return true
		}
	}
	return false
}
