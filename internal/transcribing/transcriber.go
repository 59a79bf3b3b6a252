package transcribing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"vignette/internal/artifacts"
	"vignette/internal/config"
	"vignette/internal/logging"
	"vignette/internal/queue"
	"vignette/internal/services"
	"vignette/internal/stage"
	"vignette/internal/transcript"
)

// Client is the collaborator surface this stage needs; satisfied by
// services/transcriber.Client.
type Client interface {
	ExtractSegment(ctx context.Context, source string, startSec, durationSec float64, dest string) error
	Transcribe(ctx context.Context, wavPath string) ([]transcript.Entry, error)
	HealthCheck(ctx context.Context) error
}

// Handler runs audio transcription for one job.
type Handler struct {
	store  *queue.Store
	cfg    *config.Config
	art    *artifacts.Store
	client Client
	logger *slog.Logger
}

// New constructs the transcription stage handler.
func New(cfg *config.Config, store *queue.Store, art *artifacts.Store, client Client, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handler{
		store:  store,
		cfg:    cfg,
		art:    art,
		client: client,
		logger: logger.With(logging.String(logging.FieldComponent, "transcribing")),
	}
}

// Prepare validates the job's audio and persists the segment plan.
func (h *Handler) Prepare(ctx context.Context, job *queue.Job) error {
	if job.DurationSeconds <= 0 {
		return services.Wrap(services.ErrValidation, "transcribing", "prepare",
			fmt.Sprintf("audio %s has no duration", job.Filename), nil)
	}
	if job.AudioPath == "" {
		return services.Wrap(services.ErrValidation, "transcribing", "prepare", "job has no audio path", nil)
	}

	opts := job.Options()
	segments, err := transcript.Split(job.DurationSeconds, opts.SegmentDurationSeconds)
	if err != nil {
		return services.Wrap(services.ErrValidation, "transcribing", "split audio", "", err)
	}
	if err := h.art.WriteJSON(job.ID, artifacts.DocSegments, segments); err != nil {
		return err
	}

	job.SetProgress("Transcribing", fmt.Sprintf("%d segments planned", len(segments)), 0)
	return nil
}

// Execute transcribes every segment with bounded workers and persists the
// merged transcript. Any segment exhausting its retries fails the stage with
// the segment index in the message; partial results are discarded.
func (h *Handler) Execute(ctx context.Context, job *queue.Job) error {
	var segments []transcript.Segment
	if err := h.art.ReadJSON(job.ID, artifacts.DocSegments, &segments); err != nil {
		return err
	}
	if len(segments) == 0 {
		return services.Wrap(services.ErrValidation, "transcribing", "execute", "no segments planned", nil)
	}

	logger := h.logger.With(logging.String(logging.FieldJobID, job.ID))
	segmentsDir := h.art.SubDir(job.ID, artifacts.DirSegments)
	transcriptsDir := h.art.SubDir(job.ID, artifacts.DirTranscripts)

	parts := make([][]transcript.Entry, len(segments))
	var (
		mu   sync.Mutex
		done int
	)

	workers := h.cfg.Transcriber.Workers
	if workers <= 0 {
		workers = 1
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)
	for i := range segments {
		segment := segments[i]
		group.Go(func() error {
			wavPath := filepath.Join(segmentsDir, fmt.Sprintf("segment_%03d.wav", segment.Index))
			if err := h.client.ExtractSegment(groupCtx, job.AudioPath, segment.StartSeconds, segment.Duration(), wavPath); err != nil {
				return fmt.Errorf("segment %d: %w", segment.Index, err)
			}
			entries, err := h.client.Transcribe(groupCtx, wavPath)
			if err != nil {
				return fmt.Errorf("segment %d: %w", segment.Index, err)
			}
			if err := h.art.WriteJSONIn(job.ID, artifacts.DirTranscripts, fmt.Sprintf("segment_%03d.json", segment.Index), entries); err != nil {
				return fmt.Errorf("segment %d: %w", segment.Index, err)
			}

			// Progress writes happen under the mutex so a slower worker
			// cannot commit an older count after a newer one; polled
			// progress must never decrease.
			mu.Lock()
			parts[segment.Index] = entries
			done++
			if done < len(segments) {
				h.reportProgress(groupCtx, job, done, len(segments))
			}
			mu.Unlock()

			logger.Info("segment transcribed",
				logging.Int("segment", segment.Index),
				logging.Int("entries", len(entries)),
			)
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		h.discardPartials(transcriptsDir, logger)
		return services.Wrap(classify(err), "transcribing", "transcribe", services.Message(err), nil)
	}

	merged, err := transcript.Merge(segments, parts)
	if err != nil {
		return services.Wrap(services.ErrValidation, "transcribing", "merge", "", err)
	}
	if err := h.art.WriteJSON(job.ID, artifacts.DocTranscript, merged); err != nil {
		return err
	}

	job.SetProgress("Transcribing", fmt.Sprintf("%d segments transcribed", len(segments)), transcriptionBand*float64(len(segments)-1)/float64(len(segments)))
	logger.Info("transcription complete",
		logging.Int("segments", len(segments)),
		logging.Int("entries", len(merged.Entries)),
	)
	return nil
}

const transcriptionBand = 70.0

func (h *Handler) reportProgress(ctx context.Context, job *queue.Job, done, total int) {
	copy := *job
	copy.SetProgress("Transcribing",
		fmt.Sprintf("segment %d of %d transcribed", done, total),
		transcriptionBand*float64(done)/float64(total),
	)
	if err := h.store.Update(ctx, &copy); err != nil {
		h.logger.Warn("failed to persist transcription progress", logging.Error(err))
	}
}

func (h *Handler) discardPartials(transcriptsDir string, logger *slog.Logger) {
	entries, err := os.ReadDir(transcriptsDir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(transcriptsDir, entry.Name())); err != nil {
			logger.Warn("failed to discard partial transcript", logging.Error(err))
		}
	}
}

func classify(err error) error {
	for _, marker := range []error{services.ErrConfiguration, services.ErrValidation, services.ErrNotFound, services.ErrExternalTool, services.ErrTimeout} {
		if errors.Is(err, marker) {
			return marker
		}
	}
	return services.ErrTransient
}

// HealthCheck reports stage readiness.
func (h *Handler) HealthCheck(ctx context.Context) stage.Health {
	if err := h.client.HealthCheck(ctx); err != nil {
		return stage.Unhealthy("transcribing", err.Error())
	}
	return stage.Healthy("transcribing")
}
