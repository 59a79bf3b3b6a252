package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"vignette/internal/api"
	"vignette/internal/config"
	"vignette/internal/queue"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show the processing status of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				service := api.NewQueueService(store)
				view, err := service.Describe(cmd.Context(), strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				if view == nil {
					return fmt.Errorf("no job with ID %s", args[0])
				}

				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				fmt.Fprintln(out, renderStatusLine("Job", statusInfo, view.ID, colorize))
				fmt.Fprintln(out, renderStatusLine("File", statusInfo, view.Filename, colorize))
				fmt.Fprintln(out, renderStatusLine("Stage", stageStatusKind(view), view.Stage, colorize))
				fmt.Fprintln(out, renderStatusLine("Progress", statusInfo,
					fmt.Sprintf("%.1f%% %s", view.Progress.Percent, view.Progress.Message), colorize))
				if view.ErrorMessage != "" {
					fmt.Fprintln(out, renderStatusLine("Error", statusError, view.ErrorMessage, colorize))
				}
				if view.Terminal && view.Status == string(queue.StatusCompleted) {
					fmt.Fprintln(out, renderStatusLine("Artifacts", statusOK, view.ArtifactDir, colorize))
				}
				return nil
			})
		},
	}
}

func stageStatusKind(view *api.QueueJob) statusKind {
	switch view.Status {
	case string(queue.StatusCompleted):
		return statusOK
	case string(queue.StatusFailed):
		return statusError
	default:
		return statusInfo
	}
}
