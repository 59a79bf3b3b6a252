package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"vignette/internal/api"
	"vignette/internal/artifacts"
	"vignette/internal/config"
	"vignette/internal/queue"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show finished job artifacts",
	}

	showCmd.AddCommand(newShowTranscriptCommand(ctx))
	showCmd.AddCommand(newShowTimelineCommand(ctx))
	showCmd.AddCommand(newShowVideoCommand(ctx))

	return showCmd
}

func newShowTranscriptCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "transcript <job-id>",
		Short: "Print a job's merged transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				service := api.NewArtifactService(store, artifacts.NewStore(cfg))
				tr, err := service.Transcript(cmd.Context(), strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(cmd, tr)
				}
				for _, entry := range tr.Entries {
					fmt.Fprintf(cmd.OutOrStdout(), "[%8.1fs] %s\n", entry.StartSeconds, entry.Text)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit raw JSON")
	return cmd
}

func newShowTimelineCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "timeline <job-id>",
		Short: "Print a job's composed visual timeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				service := api.NewArtifactService(store, artifacts.NewStore(cfg))
				timeline, err := service.Timeline(cmd.Context(), strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				return printJSON(cmd, timeline)
			})
		},
	}
}

func newShowVideoCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "video <job-id>",
		Short: "Print the path of a job's finished video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				service := api.NewArtifactService(store, artifacts.NewStore(cfg))
				path, err := service.VideoPath(cmd.Context(), strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
				return nil
			})
		},
	}
}

func printJSON(cmd *cobra.Command, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
