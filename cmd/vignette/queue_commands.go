package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"vignette/internal/api"
	"vignette/internal/config"
	"vignette/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the job queue",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueStatsCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				var statuses []queue.Status
				for _, raw := range listStatuses {
					status, ok := queue.ParseStatus(raw)
					if !ok {
						return fmt.Errorf("unknown status %q", raw)
					}
					statuses = append(statuses, status)
				}

				jobs, err := api.NewQueueService(store).List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if len(jobs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}

				rows := make([][]string, 0, len(jobs))
				for _, job := range jobs {
					rows = append(rows, []string{
						job.ID,
						job.Filename,
						job.Status,
						fmt.Sprintf("%.0f%%", job.Progress.Percent),
						formatQueueTime(job.CreatedAt),
					})
				}
				table := renderTable([]string{"ID", "File", "Status", "Progress", "Created"}, rows, 4)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "Filter by queue status (repeatable)")
	return cmd
}

func newQueueStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue status summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				stats, err := api.NewQueueService(store).Stats(cmd.Context())
				if err != nil {
					return err
				}
				if len(stats) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}

				names := make([]string, 0, len(stats))
				for name := range stats {
					names = append(names, name)
				}
				sort.Strings(names)
				rows := make([][]string, 0, len(names))
				for _, name := range names {
					rows = append(rows, []string{name, fmt.Sprintf("%d", stats[name])})
				}
				table := renderTable([]string{"Status", "Count"}, rows, 2)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	var retryAll bool

	cmd := &cobra.Command{
		Use:   "retry [job-id...]",
		Short: "Retry failed jobs from the beginning of the pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				out := cmd.OutOrStdout()
				if retryAll {
					if len(args) > 0 {
						return fmt.Errorf("--all cannot be combined with explicit job IDs")
					}
					updated, err := store.RetryFailed(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Retried %d failed job(s)\n", updated)
					return nil
				}
				if len(args) == 0 {
					return fmt.Errorf("provide job IDs or --all")
				}

				result, err := api.RetryFailedJobsByID(cmd.Context(), api.NewQueueActions(store), args)
				if err != nil {
					return err
				}
				for _, job := range result.Jobs {
					fmt.Fprintf(out, "%s: %s\n", job.ID, job.Outcome)
				}
				fmt.Fprintf(out, "Retried %d job(s)\n", result.UpdatedCount)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&retryAll, "all", false, "Retry every failed job")
	return cmd
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var clearCompleted bool
	var clearFailed bool
	var clearAll bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove jobs and their artifacts from the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				var removed int64
				var err error
				switch {
				case clearAll:
					removed, err = store.Clear(cmd.Context())
				case clearCompleted && clearFailed:
					return fmt.Errorf("choose one of --completed, --failed, or --all")
				case clearCompleted:
					removed, err = store.ClearCompleted(cmd.Context())
				case clearFailed:
					removed, err = store.ClearFailed(cmd.Context())
				default:
					return fmt.Errorf("choose one of --completed, --failed, or --all")
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d job(s)\n", removed)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&clearCompleted, "completed", false, "Remove completed jobs")
	cmd.Flags().BoolVar(&clearFailed, "failed", false, "Remove failed jobs")
	cmd.Flags().BoolVar(&clearAll, "all", false, "Remove every job")
	return cmd
}

func formatQueueTime(value string) string {
	if value == "" {
		return ""
	}
	t, err := time.Parse("2006-01-02T15:04:05.000Z07:00", value)
	if err != nil {
		if t, err = time.Parse(time.RFC3339, value); err != nil {
			return value
		}
	}
	return t.Local().Format("2006-01-02 15:04")
}
