package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intelliqueue/internal/domain"
)

func testLogger(buf io.Writer) *zerolog.Logger {
	l := zerolog.New(buf)
	return &l
}

func TestEmitterDeliversToAllHandlers(t *testing.T) {
	e := NewEmitter(testLogger(io.Discard))
	boom := errors.New("boom")

	var got []string
	e.Register(HandlerFunc(func(_ context.Context, ev Event) error {
		got = append(got, "a:"+ev.Notification.Message)
		return boom
	}))
	e.Register(HandlerFunc(func(_ context.Context, ev Event) error {
		got = append(got, "b:"+ev.Notification.Message)
		return nil
	}))

	err := e.Emit(context.Background(), Event{Notification: domain.Notification{Message: "hi"}})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"a:hi", "b:hi"}, got)
}

func TestEmitterNoHandlers(t *testing.T) {
	e := NewEmitter(nil)
	assert.NoError(t, e.Emit(context.Background(), Event{}))
}

func TestLogHandlerLevels(t *testing.T) {
	cases := []struct {
		typ   domain.NotificationType
		level string
	}{
		{domain.NotificationInfo, "info"},
		{domain.NotificationSuccess, "info"},
		{domain.NotificationWarning, "warn"},
		{domain.NotificationError, "error"},
	}
	for _, tc := range cases {
		t.Run(string(tc.typ), func(t *testing.T) {
			var buf bytes.Buffer
			h := LogHandler{Logger: testLogger(&buf)}
			task := &domain.Task{ID: "tsk_1", Status: domain.StatusPending, RetryCount: 2}
			require.NoError(t, h.HandleEvent(context.Background(), Event{
				Notification: domain.Notification{Type: tc.typ, Message: "m"},
				Task:         task,
			}))

			var line map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
			assert.Equal(t, tc.level, line["level"])
			assert.Equal(t, "m", line["message"])
			assert.Equal(t, "tsk_1", line["task_id"])
			assert.EqualValues(t, 2, line["retry_count"])
		})
	}
}

func TestWebhookDeliver(t *testing.T) {
	var mu sync.Mutex
	var received []Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var ev Event
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&ev))
		mu.Lock()
		received = append(received, ev)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, time.Second, 4, testLogger(io.Discard))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go wh.Run(ctx)

	require.NoError(t, wh.HandleEvent(ctx, Event{Notification: domain.Notification{ID: "ntf_1", Message: "hello"}}))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.Equal(t, "hello", received[0].Notification.Message)
	mu.Unlock()
}

func TestWebhookDeliverErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, time.Second, 1, testLogger(io.Discard))
	err := wh.Deliver(context.Background(), Event{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestWebhookDropsWhenFull(t *testing.T) {
	var buf bytes.Buffer
	wh := NewWebhook("http://127.0.0.1:1", time.Second, 1, testLogger(&buf))
	require.NoError(t, wh.HandleEvent(context.Background(), Event{}))
	require.NoError(t, wh.HandleEvent(context.Background(), Event{}))
	assert.Contains(t, buf.String(), "webhook buffer full")
}
