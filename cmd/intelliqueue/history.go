package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"intelliqueue/internal/archive"
	"intelliqueue/internal/domain"
)

func historyCmd(c *cli) *cobra.Command {
	var (
		dbPath string
		status string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show archived tasks and status counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := c.cfg.Archive.Path
			if dbPath != "" {
				path = dbPath
			}
			if path == "" {
				return fmt.Errorf("%w: no archive configured; set archive.path or pass --db", domain.ErrInvalidArgument)
			}
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("archive %s: %w", path, err)
			}

			db, err := archive.Open(path)
			if err != nil {
				return err
			}
			defer db.Close()
			rec := archive.NewRecorder(db, 0, &c.logger)

			ctx := cmd.Context()
			tasks, err := rec.ListTasks(ctx, domain.Status(status), limit)
			if err != nil {
				return fmt.Errorf("failed to list tasks: %w", err)
			}
			stats, err := rec.Stats(ctx)
			if err != nil {
				return fmt.Errorf("failed to get stats: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "--- Task Status ---")
			for _, s := range []domain.Status{domain.StatusPending, domain.StatusProcessing, domain.StatusCompleted, domain.StatusFailed} {
				fmt.Fprintf(out, "%s:\t%d\n", s, stats[s])
			}
			fmt.Fprintln(out)

			if len(tasks) == 0 {
				fmt.Fprintln(out, "No archived tasks found.")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTYPE\tSTATUS\tRETRIES\tUPDATED\tPAYLOAD")
			for _, t := range tasks {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
					t.ID, t.Type, t.Status, t.RetryCount, t.UpdatedAt.Local().Format("2006-01-02 15:04:05"), t.Payload)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "archive database path (defaults to archive.path)")
	cmd.Flags().StringVar(&status, "status", "", "filter by status (PENDING, PROCESSING, COMPLETED, FAILED)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of tasks to show")
	return cmd
}
