package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"intelliqueue/internal/api"
	"intelliqueue/internal/archive"
	"intelliqueue/internal/engine"
	"intelliqueue/internal/notify"
	"intelliqueue/internal/scheduler"
)

func serveCmd(c *cli) *cobra.Command {
	var (
		addr      string
		autoStart bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the engine behind the HTTP control API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("addr") {
				c.cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("auto-start") {
				c.cfg.Worker.AutoStart = autoStart
			}
			return serve(cmd.Context(), c)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "HTTP bind address")
	cmd.Flags().BoolVar(&autoStart, "auto-start", false, "start the worker immediately")
	return cmd
}

func serve(parent context.Context, c *cli) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := c.cfg
	logger := &c.logger

	eng := engine.New(engineOptions(cfg, logger))
	eng.Subscribe(notify.LogHandler{Logger: logger})

	var wg sync.WaitGroup
	goRun := func(fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
		}()
	}

	// Sinks outlive the worker loop so the shutdown requeue still reaches them.
	sinkCtx, stopSinks := context.WithCancel(context.Background())
	defer stopSinks()
	var sinkWg sync.WaitGroup
	goSink := func(fn func(context.Context)) {
		sinkWg.Add(1)
		go func() {
			defer sinkWg.Done()
			fn(sinkCtx)
		}()
	}

	var history *archive.Recorder
	if cfg.Archive.Path != "" {
		db, err := archive.Open(cfg.Archive.Path)
		if err != nil {
			return err
		}
		defer db.Close()
		history = archive.NewRecorder(db, 0, logger)
		eng.Subscribe(history)
		goSink(history.Run)
		logger.Info().Str("path", cfg.Archive.Path).Msg("history archive enabled")
	}

	if cfg.Webhook.URL != "" {
		hook := notify.NewWebhook(cfg.Webhook.URL, cfg.Webhook.Timeout, 0, logger)
		eng.Subscribe(hook)
		goSink(hook.Run)
		logger.Info().Str("url", cfg.Webhook.URL).Msg("webhook sink enabled")
	}

	sched := scheduler.NewService(eng, cfg.Scheduler.CheckInterval, logger)
	goRun(sched.Start)
	goRun(eng.Run)

	if cfg.Worker.AutoStart {
		eng.SetRunning(true)
	}

	srv := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: api.NewServer(eng, api.Options{
			Schedules: sched,
			History:   history,
			Debug:     cfg.Server.Debug,
			Logger:    logger,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		stop()
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	wg.Wait()
	stopSinks()
	sinkWg.Wait()
	return serveErr
}
