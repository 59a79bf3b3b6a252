package encoder

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"vignette/internal/services"
	"vignette/internal/storyboard"
)

const (
	defaultWidth  = 1920
	defaultHeight = 1080
	defaultFPS    = 30
)

// Config captures the composition target parameters.
type Config struct {
	FFmpegBinary   string
	Width          int
	Height         int
	FPS            int
	TimeoutSeconds int
}

// Client drives ffmpeg to compose the final video.
type Client struct {
	cfg           Config
	commandRunner func(ctx context.Context, name string, args ...string) error
}

// Option customizes the client.
type Option func(*Client)

// WithCommandRunner sets a custom command runner (for testing).
func WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) Option {
	return func(c *Client) {
		c.commandRunner = runner
	}
}

// NewClient constructs an encoder client.
func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.FFmpegBinary == "" {
		cfg.FFmpegBinary = "ffmpeg"
	}
	if cfg.Width <= 0 {
		cfg.Width = defaultWidth
	}
	if cfg.Height <= 0 {
		cfg.Height = defaultHeight
	}
	if cfg.FPS <= 0 {
		cfg.FPS = defaultFPS
	}
	client := &Client{cfg: cfg}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Compose renders one clip per timeline segment, concatenates them, and muxes
// the source audio into outputPath. Either the complete artifact is produced
// or an error is returned; intermediate clips live in workDir.
func (c *Client) Compose(ctx context.Context, audioPath string, timeline []storyboard.TimelineSegment, workDir, outputPath string) (storyboard.VideoArtifact, error) {
	var empty storyboard.VideoArtifact
	if len(timeline) == 0 {
		return empty, services.Wrap(services.ErrValidation, "encoder", "compose", "timeline is empty", nil)
	}
	if strings.TrimSpace(audioPath) == "" {
		return empty, services.Wrap(services.ErrValidation, "encoder", "compose", "audio path is empty", nil)
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return empty, fmt.Errorf("ensure work dir: %w", err)
	}

	if c.timeout() > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout())
		defer cancel()
	}

	clipPaths := make([]string, 0, len(timeline))
	for i, segment := range timeline {
		clipPath := filepath.Join(workDir, fmt.Sprintf("clip_%03d.mp4", i))
		if err := c.renderClip(ctx, segment, clipPath); err != nil {
			return empty, err
		}
		clipPaths = append(clipPaths, clipPath)
	}

	listPath := filepath.Join(workDir, "concat.txt")
	if err := writeConcatList(listPath, clipPaths); err != nil {
		return empty, err
	}

	silentPath := filepath.Join(workDir, "video_silent.mp4")
	concatArgs := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-f", "concat", "-safe", "0",
		"-i", listPath,
		"-c", "copy",
		silentPath,
	}
	if err := c.run(ctx, concatArgs...); err != nil {
		return empty, services.Wrap(services.ErrExternalTool, "encoder", "concat clips", "", err)
	}

	muxArgs := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", silentPath,
		"-i", audioPath,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", "aac",
		"-shortest",
		outputPath,
	}
	if err := c.run(ctx, muxArgs...); err != nil {
		return empty, services.Wrap(services.ErrExternalTool, "encoder", "mux audio", "", err)
	}

	artifact := storyboard.VideoArtifact{
		Path:                 outputPath,
		Width:                c.cfg.Width,
		Height:               c.cfg.Height,
		FPS:                  c.cfg.FPS,
		DurationSeconds:      timeline[len(timeline)-1].EndSeconds,
		TimelineSegmentCount: len(timeline),
		CreatedAt:            time.Now().UTC(),
	}
	if info, err := os.Stat(outputPath); err == nil {
		artifact.FileSizeBytes = info.Size()
	}
	return artifact, nil
}

func (c *Client) renderClip(ctx context.Context, segment storyboard.TimelineSegment, dest string) error {
	duration := segment.EndSeconds - segment.StartSeconds
	if duration <= 0 {
		return services.Wrap(services.ErrValidation, "encoder", "render clip", fmt.Sprintf("segment [%g,%g) has no duration", segment.StartSeconds, segment.EndSeconds), nil)
	}

	scaleFilter := fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2",
		c.cfg.Width, c.cfg.Height, c.cfg.Width, c.cfg.Height,
	)

	var args []string
	switch {
	case segment.VisualPath == "":
		// Interval with no resolved visual renders a black background.
		args = []string{
			"-y", "-hide_banner", "-loglevel", "error",
			"-f", "lavfi",
			"-i", fmt.Sprintf("color=c=black:s=%dx%d:r=%d", c.cfg.Width, c.cfg.Height, c.cfg.FPS),
			"-t", fmt.Sprintf("%g", duration),
			"-pix_fmt", "yuv420p",
			dest,
		}
	case segment.Kind == storyboard.MediaClip:
		args = []string{
			"-y", "-hide_banner", "-loglevel", "error",
			"-stream_loop", "-1",
			"-i", segment.VisualPath,
			"-t", fmt.Sprintf("%g", duration),
			"-vf", scaleFilter,
			"-r", fmt.Sprintf("%d", c.cfg.FPS),
			"-an",
			"-pix_fmt", "yuv420p",
			dest,
		}
	default:
		args = []string{
			"-y", "-hide_banner", "-loglevel", "error",
			"-loop", "1",
			"-i", segment.VisualPath,
			"-t", fmt.Sprintf("%g", duration),
			"-vf", scaleFilter,
			"-r", fmt.Sprintf("%d", c.cfg.FPS),
			"-pix_fmt", "yuv420p",
			dest,
		}
	}

	if err := c.run(ctx, args...); err != nil {
		return services.Wrap(services.ErrExternalTool, "encoder", "render clip", segment.VisualPath, err)
	}
	return nil
}

func writeConcatList(listPath string, clipPaths []string) error {
	var b strings.Builder
	for _, clip := range clipPaths {
		fmt.Fprintf(&b, "file '%s'\n", clip)
	}
	if err := os.WriteFile(listPath, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	return nil
}

// HealthCheck verifies the ffmpeg binary is available.
func (c *Client) HealthCheck(ctx context.Context) error {
	if _, err := exec.LookPath(c.cfg.FFmpegBinary); err != nil {
		return fmt.Errorf("encoder health: %s not found: %w", c.cfg.FFmpegBinary, err)
	}
	return nil
}

func (c *Client) run(ctx context.Context, args ...string) error {
	if c.commandRunner != nil {
		return c.commandRunner(ctx, c.cfg.FFmpegBinary, args...)
	}
	cmd := exec.CommandContext(ctx, c.cfg.FFmpegBinary, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", c.cfg.FFmpegBinary, err, strings.TrimSpace(string(output)))
	}
	return nil
}

func (c *Client) timeout() time.Duration {
	if c.cfg.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.cfg.TimeoutSeconds) * time.Second
}
