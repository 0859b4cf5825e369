// Package config loads intelliqueue settings from defaults, an optional file
// and INTELLIQUEUE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"intelliqueue/internal/domain"
)

const EnvPrefix = "INTELLIQUEUE"

type Config struct {
	Server    ServerConfig    `mapstructure:"server" json:"server"`
	Worker    WorkerConfig    `mapstructure:"worker" json:"worker"`
	Archive   ArchiveConfig   `mapstructure:"archive" json:"archive"`
	Webhook   WebhookConfig   `mapstructure:"webhook" json:"webhook"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" json:"scheduler"`
	TaskTypes []string        `mapstructure:"task_types" json:"task_types" validate:"required,min=1,dive,required"`
}

type ServerConfig struct {
	Addr      string `mapstructure:"addr" json:"addr" validate:"required"`
	LogLevel  string `mapstructure:"log_level" json:"log_level" validate:"required,oneof=trace debug info warn error"`
	LogFormat string `mapstructure:"log_format" json:"log_format" validate:"required,oneof=console json"`
	// Debug mounts pprof.
	Debug bool `mapstructure:"debug" json:"debug"`
}

type WorkerConfig struct {
	ProcessingDelay time.Duration `mapstructure:"processing_delay" json:"processing_delay" validate:"gte=0"`
	FailureRate     int           `mapstructure:"failure_rate" json:"failure_rate" validate:"gte=0,lte=100"`
	IdleInterval    time.Duration `mapstructure:"idle_interval" json:"idle_interval" validate:"gt=0"`
	AutoStart       bool          `mapstructure:"auto_start" json:"auto_start"`
	LogCapacity     int           `mapstructure:"log_capacity" json:"log_capacity" validate:"gte=1,lte=10000"`
}

// ArchiveConfig enables the SQLite history when Path is set.
type ArchiveConfig struct {
	Path string `mapstructure:"path" json:"path"`
}

// WebhookConfig enables event delivery when URL is set.
type WebhookConfig struct {
	URL     string        `mapstructure:"url" json:"url" validate:"omitempty,url"`
	Timeout time.Duration `mapstructure:"timeout" json:"timeout" validate:"gt=0"`
}

type SchedulerConfig struct {
	CheckInterval time.Duration `mapstructure:"check_interval" json:"check_interval" validate:"gt=0"`
}

var validate = validator.New()

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "console")
	v.SetDefault("server.debug", false)

	v.SetDefault("worker.processing_delay", "2s")
	v.SetDefault("worker.failure_rate", 30)
	v.SetDefault("worker.idle_interval", "500ms")
	v.SetDefault("worker.auto_start", false)
	v.SetDefault("worker.log_capacity", 100)

	v.SetDefault("archive.path", "")

	v.SetDefault("webhook.url", "")
	v.SetDefault("webhook.timeout", "5s")

	v.SetDefault("scheduler.check_interval", "1s")

	types := make([]string, 0, len(domain.DefaultTaskTypes))
	for _, t := range domain.DefaultTaskTypes {
		types = append(types, string(t))
	}
	v.SetDefault("task_types", types)
}

// Load reads configuration. path may be empty, in which case only defaults
// and the environment apply. Environment variables win over the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	for i, t := range cfg.TaskTypes {
		cfg.TaskTypes[i] = strings.TrimSpace(t)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: invalid config: %s", domain.ErrInvalidArgument, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}

// TaskTypeList converts the configured names to domain task types.
func (c *Config) TaskTypeList() []domain.TaskType {
	out := make([]domain.TaskType, 0, len(c.TaskTypes))
	for _, t := range c.TaskTypes {
		out = append(out, domain.TaskType(t))
	}
	return out
}
