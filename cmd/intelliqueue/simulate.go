package main

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"intelliqueue/internal/domain"
	"intelliqueue/internal/engine"
	"intelliqueue/internal/notify"
)

type simulateFlags struct {
	tasks       int
	delay       time.Duration
	failureRate int
	seed        int64
	timeout     time.Duration
	verbose     bool
}

func simulateCmd(c *cli) *cobra.Command {
	var f simulateFlags
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a batch of random tasks headless and print the outcome",
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.tasks <= 0 {
				return fmt.Errorf("%w: --tasks must be positive", domain.ErrInvalidArgument)
			}
			opts := engineOptions(c.cfg, &c.logger)
			if cmd.Flags().Changed("delay") {
				opts.ProcessingDelay = f.delay
			}
			if cmd.Flags().Changed("failure-rate") {
				opts.FailureRate = f.failureRate
			}
			if f.seed != 0 {
				opts.Random = rand.New(rand.NewSource(f.seed))
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if f.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, f.timeout)
				defer cancel()
			}

			eng := engine.New(opts)
			if f.verbose {
				eng.Subscribe(notify.LogHandler{Logger: &c.logger})
			}
			snap, err := simulate(ctx, eng, f.tasks)
			printSummary(cmd.OutOrStdout(), snap)
			return err
		},
	}
	cmd.Flags().IntVar(&f.tasks, "tasks", 10, "number of random tasks to submit")
	cmd.Flags().DurationVar(&f.delay, "delay", engine.DefaultProcessingDelay, "processing delay per attempt")
	cmd.Flags().IntVar(&f.failureRate, "failure-rate", engine.DefaultFailureRate, "percent of attempts that fail")
	cmd.Flags().Int64Var(&f.seed, "seed", 0, "random seed (0 = time based)")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "give up after this long (0 = no limit)")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "log every notification")
	return cmd
}

// simulate submits n quick tasks, runs the worker until every task is
// terminal or ctx ends, and returns the final snapshot.
func simulate(ctx context.Context, eng *engine.Engine, n int) (domain.Snapshot, error) {
	for i := 0; i < n; i++ {
		if _, err := eng.QuickAdd(); err != nil {
			return eng.Snapshot(), err
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		eng.Run(runCtx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()
	eng.SetRunning(true)

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		st := eng.Stats()
		if st.Completed+st.Failed == n {
			eng.SetRunning(false)
			return eng.Snapshot(), nil
		}
		select {
		case <-ctx.Done():
			eng.SetRunning(false)
			return eng.Snapshot(), fmt.Errorf("simulation interrupted: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func printSummary(w io.Writer, snap domain.Snapshot) {
	fmt.Fprintln(w, "--- Notifications (oldest first) ---")
	for i := len(snap.Notifications) - 1; i >= 0; i-- {
		n := snap.Notifications[i]
		fmt.Fprintf(w, "%s  %-7s  %s\n", n.Timestamp.Format("15:04:05.000"), n.Type, n.Message)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "--- Summary ---")
	fmt.Fprintf(w, "pending: %d\tprocessing: %d\tcompleted: %d\tfailed: %d\tqueue depth: %d\n",
		snap.Stats.Pending, snap.Stats.Processing, snap.Stats.Completed, snap.Stats.Failed, snap.QueueDepth)
}
