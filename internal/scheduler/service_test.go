package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intelliqueue/internal/domain"
)

type fakeSubmitter struct {
	mu        sync.Mutex
	submitted []string
	err       error
}

func (f *fakeSubmitter) Submit(taskType domain.TaskType, payload string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.submitted = append(f.submitted, string(taskType)+":"+payload)
	return "tsk_" + payload, nil
}

func (f *fakeSubmitter) TaskTypes() []domain.TaskType { return domain.DefaultTaskTypes }

func (f *fakeSubmitter) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.submitted...)
}

func newTestService(sub Submitter, now time.Time) *Service {
	nop := zerolog.Nop()
	s := NewService(sub, time.Millisecond, &nop)
	s.now = func() time.Time { return now }
	return s
}

var base = time.Date(2024, 3, 1, 10, 0, 30, 0, time.UTC)

func TestCreateValidates(t *testing.T) {
	s := newTestService(&fakeSubmitter{}, base)

	cases := []struct {
		name string
		req  CreateRequest
		want error
	}{
		{"missing name", CreateRequest{CronExpr: "* * * * *", TaskType: domain.TaskTypeEmail, Payload: "x"}, domain.ErrInvalidArgument},
		{"bad cron", CreateRequest{Name: "n", CronExpr: "every minute", TaskType: domain.TaskTypeEmail, Payload: "x"}, domain.ErrInvalidArgument},
		{"unknown type", CreateRequest{Name: "n", CronExpr: "* * * * *", TaskType: "FAX", Payload: "x"}, domain.ErrInvalidTaskType},
		{"blank payload", CreateRequest{Name: "n", CronExpr: "* * * * *", TaskType: domain.TaskTypeEmail, Payload: "  "}, domain.ErrEmptyPayload},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.Create(tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Empty(t, s.List())
}

func TestCreateComputesNextRun(t *testing.T) {
	s := newTestService(&fakeSubmitter{}, base)

	sc, err := s.Create(CreateRequest{Name: "nightly", CronExpr: "0 2 * * *", TaskType: domain.TaskTypeBackup, Payload: "db", Enabled: true})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 2, 2, 0, 0, 0, time.UTC), sc.NextRun)
	assert.Nil(t, sc.LastRun)

	got, err := s.Get(sc.ID)
	require.NoError(t, err)
	assert.Equal(t, sc.Name, got.Name)
}

func TestProcessDueSubmitsAndAdvances(t *testing.T) {
	sub := &fakeSubmitter{}
	s := newTestService(sub, base)

	due, err := s.Create(CreateRequest{Name: "minutely", CronExpr: "* * * * *", TaskType: domain.TaskTypeSync, Payload: "profiles", Enabled: true})
	require.NoError(t, err)
	_, err = s.Create(CreateRequest{Name: "off", CronExpr: "* * * * *", TaskType: domain.TaskTypeEmail, Payload: "off", Enabled: false})
	require.NoError(t, err)

	assert.Zero(t, s.processDue(base), "nothing due before the first activation")

	fireAt := due.NextRun.Add(5 * time.Second)
	assert.Equal(t, 1, s.processDue(fireAt))
	assert.Equal(t, []string{"SYNC:profiles"}, sub.calls())

	got, err := s.Get(due.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastRun)
	assert.Equal(t, fireAt, *got.LastRun)
	assert.Equal(t, due.NextRun.Add(time.Minute), got.NextRun)
	assert.Equal(t, "tsk_profiles", got.LastTaskID)

	assert.Zero(t, s.processDue(fireAt), "fires once per activation")
}

func TestProcessDueKeepsGoingOnSubmitError(t *testing.T) {
	sub := &fakeSubmitter{err: errors.New("capacity")}
	s := newTestService(sub, base)

	sc, err := s.Create(CreateRequest{Name: "m", CronExpr: "* * * * *", TaskType: domain.TaskTypeSync, Payload: "p", Enabled: true})
	require.NoError(t, err)

	assert.Zero(t, s.processDue(sc.NextRun))
	got, err := s.Get(sc.ID)
	require.NoError(t, err)
	assert.True(t, got.NextRun.After(sc.NextRun))
}

func TestDeleteAndEnable(t *testing.T) {
	s := newTestService(&fakeSubmitter{}, base)
	sc, err := s.Create(CreateRequest{Name: "m", CronExpr: "*/5 * * * *", TaskType: domain.TaskTypeSync, Payload: "p"})
	require.NoError(t, err)

	got, err := s.SetEnabled(sc.ID, true)
	require.NoError(t, err)
	assert.True(t, got.Enabled)

	require.NoError(t, s.Delete(sc.ID))
	assert.ErrorIs(t, s.Delete(sc.ID), domain.ErrNotFound)
	_, err = s.Get(sc.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = s.SetEnabled(sc.ID, false)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListOrderedByNextRun(t *testing.T) {
	s := newTestService(&fakeSubmitter{}, base)
	late, err := s.Create(CreateRequest{Name: "late", CronExpr: "0 23 * * *", TaskType: domain.TaskTypeSync, Payload: "p"})
	require.NoError(t, err)
	soon, err := s.Create(CreateRequest{Name: "soon", CronExpr: "* * * * *", TaskType: domain.TaskTypeSync, Payload: "p"})
	require.NoError(t, err)

	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, soon.ID, list[0].ID)
	assert.Equal(t, late.ID, list[1].ID)
}

func TestStartStopsOnCancel(t *testing.T) {
	s := newTestService(&fakeSubmitter{}, base)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
