package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"intelliqueue/internal/config"
	"intelliqueue/internal/engine"
)

type cli struct {
	configPath string
	cfg        *config.Config
	logger     zerolog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "intelliqueue",
		Short:         "A single-worker task queue with retries and a live notification log",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(c.configPath)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.Server, os.Stdout)
			if err != nil {
				return err
			}
			c.cfg = cfg
			c.logger = logger
			log.Logger = logger
			return nil
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "path to a config file (yaml, json or toml)")

	root.AddCommand(
		serveCmd(c),
		simulateCmd(c),
		historyCmd(c),
		configCmd(c),
	)
	return root
}

func newLogger(cfg config.ServerConfig, out io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("log level: %w", err)
	}
	zerolog.TimeFieldFormat = time.RFC3339

	w := out
	if cfg.LogFormat == "console" {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}

func engineOptions(cfg *config.Config, logger *zerolog.Logger) engine.Options {
	return engine.Options{
		TaskTypes:       cfg.TaskTypeList(),
		ProcessingDelay: cfg.Worker.ProcessingDelay,
		FailureRate:     cfg.Worker.FailureRate,
		IdleInterval:    cfg.Worker.IdleInterval,
		LogCapacity:     cfg.Worker.LogCapacity,
		Logger:          logger,
	}
}
