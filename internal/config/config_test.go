package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intelliqueue/internal/domain"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.Equal(t, "console", cfg.Server.LogFormat)
	assert.Equal(t, 2*time.Second, cfg.Worker.ProcessingDelay)
	assert.Equal(t, 30, cfg.Worker.FailureRate)
	assert.Equal(t, 500*time.Millisecond, cfg.Worker.IdleInterval)
	assert.Equal(t, 100, cfg.Worker.LogCapacity)
	assert.False(t, cfg.Worker.AutoStart)
	assert.Empty(t, cfg.Archive.Path)
	assert.Empty(t, cfg.Webhook.URL)
	assert.Equal(t, time.Second, cfg.Scheduler.CheckInterval)
	assert.Equal(t, domain.DefaultTaskTypes, cfg.TaskTypeList())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("INTELLIQUEUE_SERVER_ADDR", ":9090")
	t.Setenv("INTELLIQUEUE_SERVER_LOG_LEVEL", "debug")
	t.Setenv("INTELLIQUEUE_WORKER_PROCESSING_DELAY", "250ms")
	t.Setenv("INTELLIQUEUE_WORKER_FAILURE_RATE", "0")
	t.Setenv("INTELLIQUEUE_WORKER_AUTO_START", "true")
	t.Setenv("INTELLIQUEUE_ARCHIVE_PATH", "/tmp/history.db")
	t.Setenv("INTELLIQUEUE_TASK_TYPES", "RESIZE,TRANSCODE")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "debug", cfg.Server.LogLevel)
	assert.Equal(t, 250*time.Millisecond, cfg.Worker.ProcessingDelay)
	assert.Zero(t, cfg.Worker.FailureRate)
	assert.True(t, cfg.Worker.AutoStart)
	assert.Equal(t, "/tmp/history.db", cfg.Archive.Path)
	assert.Equal(t, []domain.TaskType{"RESIZE", "TRANSCODE"}, cfg.TaskTypeList())
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "intelliqueue.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":7000"
  log_format: json
worker:
  failure_rate: 10
  processing_delay: 1s
webhook:
  url: http://localhost:9999/hook
`), 0o600))
	t.Setenv("INTELLIQUEUE_WORKER_FAILURE_RATE", "55")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.Equal(t, "json", cfg.Server.LogFormat)
	assert.Equal(t, time.Second, cfg.Worker.ProcessingDelay)
	assert.Equal(t, 55, cfg.Worker.FailureRate, "environment wins over the file")
	assert.Equal(t, "http://localhost:9999/hook", cfg.Webhook.URL)
	assert.Equal(t, 5*time.Second, cfg.Webhook.Timeout)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadValidation(t *testing.T) {
	cases := map[string]map[string]string{
		"failure rate above 100": {"INTELLIQUEUE_WORKER_FAILURE_RATE": "101"},
		"negative delay":         {"INTELLIQUEUE_WORKER_PROCESSING_DELAY": "-1s"},
		"unknown log level":      {"INTELLIQUEUE_SERVER_LOG_LEVEL": "loud"},
		"unknown log format":     {"INTELLIQUEUE_SERVER_LOG_FORMAT": "xml"},
		"bad webhook url":        {"INTELLIQUEUE_WEBHOOK_URL": "not a url"},
		"zero idle interval":     {"INTELLIQUEUE_WORKER_IDLE_INTERVAL": "0s"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			assert.ErrorIs(t, err, domain.ErrInvalidArgument)
		})
	}
}
