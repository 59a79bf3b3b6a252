package composing

import (
	"context"
	"fmt"
	"log/slog"

	"vignette/internal/artifacts"
	"vignette/internal/config"
	"vignette/internal/generating"
	"vignette/internal/logging"
	"vignette/internal/queue"
	"vignette/internal/stage"
	"vignette/internal/storyboard"
)

// Encoder is the rendering collaborator surface; satisfied by
// services/encoder.Client.
type Encoder interface {
	Compose(ctx context.Context, audioPath string, timeline []storyboard.TimelineSegment, workDir, outputPath string) (storyboard.VideoArtifact, error)
	HealthCheck(ctx context.Context) error
}

// OutputVideoName is the filename of the finished video inside the job's
// output directory.
const OutputVideoName = "video.mp4"

const compositionBandStart = 98.0

// Handler runs composition for one job.
type Handler struct {
	store   *queue.Store
	cfg     *config.Config
	art     *artifacts.Store
	encoder Encoder
	logger  *slog.Logger
}

// New constructs the composition stage handler.
func New(cfg *config.Config, store *queue.Store, art *artifacts.Store, encoder Encoder, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handler{
		store:   store,
		cfg:     cfg,
		art:     art,
		encoder: encoder,
		logger:  logger.With(logging.String(logging.FieldComponent, "composing")),
	}
}

// Prepare moves progress into the composition band.
func (h *Handler) Prepare(ctx context.Context, job *queue.Job) error {
	job.SetProgress("Composing", "assembling final video", compositionBandStart)
	return nil
}

// Execute builds the timeline from the visual manifest, renders the video,
// records the result, and seals the artifact directory. There is no partial
// success: either the sealed directory holds the finished video or the job
// fails.
func (h *Handler) Execute(ctx context.Context, job *queue.Job) error {
	var manifest generating.Manifest
	if err := h.art.ReadJSON(job.ID, artifacts.DocManifest, &manifest); err != nil {
		return err
	}

	logger := h.logger.With(logging.String(logging.FieldJobID, job.ID))

	timeline, err := storyboard.BuildTimeline(manifest.Resolved, job.DurationSeconds)
	if err != nil {
		return err
	}
	if err := h.art.WriteJSON(job.ID, artifacts.DocTimeline, timeline); err != nil {
		return err
	}

	workDir := h.art.SubDir(job.ID, artifacts.DirOutput)
	outputPath := h.art.OutputPath(job.ID, OutputVideoName)
	artifact, err := h.encoder.Compose(ctx, job.AudioPath, timeline, workDir, outputPath)
	if err != nil {
		return err
	}

	if err := h.art.WriteJSON(job.ID, artifacts.DocVideo, artifact); err != nil {
		return err
	}
	if err := h.art.Seal(job.ID); err != nil {
		return err
	}

	job.SetProgress("Composing",
		fmt.Sprintf("video ready (%d timeline segments)", artifact.TimelineSegmentCount),
		100,
	)
	job.ArtifactDir = h.art.JobDir(job.ID)
	logger.Info("composition complete",
		logging.String("output", outputPath),
		logging.Int("timeline_segments", artifact.TimelineSegmentCount),
		logging.Int64("size_bytes", artifact.FileSizeBytes),
	)
	return nil
}

// HealthCheck reports stage readiness.
func (h *Handler) HealthCheck(ctx context.Context) stage.Health {
	if err := h.encoder.HealthCheck(ctx); err != nil {
		return stage.Unhealthy("composing", err.Error())
	}
	return stage.Healthy("composing")
}
