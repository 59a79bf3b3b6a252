package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"vignette/internal/notifications"
)

func newNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "notify",
		Short: "Send a test notification to the configured ntfy topic",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if strings.TrimSpace(cfg.Notifications.NtfyTopic) == "" {
				return fmt.Errorf("notifications.ntfy_topic is not configured")
			}
			svc := notifications.NewService(cfg)
			if err := svc.Publish(cmd.Context(), notifications.EventTest, nil); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Test notification sent")
			return nil
		},
	}
}
