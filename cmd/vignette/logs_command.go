package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"vignette/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lineLimit int
	var follow bool

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show daemon log output",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logPath := filepath.Join(cfg.Paths.LogDir, "vignetted.log")
			out := cmd.OutOrStdout()

			result, err := logs.Tail(cmd.Context(), logPath, logs.TailOptions{
				Offset: -1,
				Limit:  lineLimit,
			})
			if err != nil {
				return err
			}
			for _, line := range result.Lines {
				fmt.Fprintln(out, line)
			}
			if !follow {
				return nil
			}

			offset := result.Offset
			for {
				next, err := logs.Tail(cmd.Context(), logPath, logs.TailOptions{
					Offset: offset,
					Follow: true,
					Wait:   2 * time.Second,
				})
				if err != nil {
					if cmd.Context().Err() != nil {
						return nil
					}
					return err
				}
				for _, line := range next.Lines {
					fmt.Fprintln(out, line)
				}
				offset = next.Offset
			}
		},
	}

	cmd.Flags().IntVarP(&lineLimit, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep streaming new log lines")
	return cmd
}
