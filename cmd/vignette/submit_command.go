package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"vignette/internal/api"
	"vignette/internal/artifacts"
	"vignette/internal/config"
	"vignette/internal/fileutil"
	"vignette/internal/queue"
	"vignette/internal/services/transcriber"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	opts := queue.DefaultOptions()

	cmd := &cobra.Command{
		Use:   "submit <audio-file>",
		Short: "Submit an audio file for processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				source, err := filepath.Abs(strings.TrimSpace(args[0]))
				if err != nil {
					return fmt.Errorf("resolve source path: %w", err)
				}
				info, err := os.Stat(source)
				if err != nil {
					return fmt.Errorf("stat source file: %w", err)
				}
				if info.IsDir() {
					return fmt.Errorf("source path %q is a directory", source)
				}

				probe := transcriber.NewClient(transcriber.Config{
					TimeoutSeconds: cfg.Transcriber.TimeoutSeconds,
				}, cfg.FFmpegBinary(), cfg.FFprobeBinary())
				duration, err := probe.ProbeDuration(cmd.Context(), source)
				if err != nil {
					return fmt.Errorf("probe audio duration: %w", err)
				}

				staged, err := stageUpload(cfg, source)
				if err != nil {
					return err
				}

				service := api.NewSubmitService(cfg, store, artifacts.NewStore(cfg))
				view, err := service.Submit(cmd.Context(), api.SubmitRequest{
					Filename:        info.Name(),
					AudioPath:       staged,
					FileSizeBytes:   info.Size(),
					DurationSeconds: duration,
					Options:         opts,
				})
				if err != nil {
					os.Remove(staged)
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Submitted %s (%.0fs of audio)\n", info.Name(), duration)
				fmt.Fprintf(out, "Job ID: %s\n", view.ID)
				fmt.Fprintf(out, "Poll with: vignette status %s\n", view.ID)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&opts.SegmentDurationSeconds, "segment-duration", opts.SegmentDurationSeconds, "Transcription segment length in seconds")
	cmd.Flags().IntVar(&opts.MaxQueries, "max-queries", opts.MaxQueries, "Maximum visual cues per job")
	cmd.Flags().BoolVar(&opts.GenerateImages, "generate-images", opts.GenerateImages, "Generate candidate images for cues")
	cmd.Flags().BoolVar(&opts.GenerateVideos, "generate-videos", opts.GenerateVideos, "Generate candidate video clips for cues")
	return cmd
}

// stageUpload copies the source audio into the staging uploads directory so
// the pipeline never depends on caller-owned paths.
func stageUpload(cfg *config.Config, source string) (string, error) {
	uploadsDir := filepath.Join(cfg.Paths.StagingDir, "uploads")
	if err := os.MkdirAll(uploadsDir, 0o755); err != nil {
		return "", fmt.Errorf("create uploads directory: %w", err)
	}
	dest := filepath.Join(uploadsDir, uuid.NewString()+strings.ToLower(filepath.Ext(source)))
	if err := fileutil.CopyFileVerified(source, dest); err != nil {
		return "", fmt.Errorf("stage upload: %w", err)
	}
	return dest, nil
}
