package analyzing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"vignette/internal/artifacts"
	"vignette/internal/config"
	"vignette/internal/logging"
	"vignette/internal/queue"
	"vignette/internal/services"
	"vignette/internal/services/analyzer"
	"vignette/internal/stage"
	"vignette/internal/storyboard"
	"vignette/internal/transcript"
)

// Client is the model collaborator surface this stage needs; satisfied by
// services/analyzer.Client.
type Client interface {
	Enabled() bool
	ExtractCues(ctx context.Context, windowText string, windowStart, windowEnd float64) ([]storyboard.Cue, error)
	HealthCheck(ctx context.Context) error
}

// Handler runs content analysis for one job.
type Handler struct {
	store  *queue.Store
	cfg    *config.Config
	art    *artifacts.Store
	client Client
	logger *slog.Logger
}

// New constructs the analysis stage handler.
func New(cfg *config.Config, store *queue.Store, art *artifacts.Store, client Client, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handler{
		store:  store,
		cfg:    cfg,
		art:    art,
		client: client,
		logger: logger.With(logging.String(logging.FieldComponent, "analyzing")),
	}
}

// Prepare loads nothing heavy; it just moves progress into the analysis band.
func (h *Handler) Prepare(ctx context.Context, job *queue.Job) error {
	job.SetProgress("Analyzing", "scanning transcript for visual cues", analysisBandStart)
	return nil
}

const (
	analysisBandStart = 70.0
	analysisBandWidth = 20.0
)

// Execute derives cue candidates from the transcript, applies the per-job
// budget, and persists the surviving cues in timestamp order. An empty
// transcript is not an error: it yields zero cues and the job proceeds.
func (h *Handler) Execute(ctx context.Context, job *queue.Job) error {
	var tr transcript.Transcript
	if err := h.art.ReadJSON(job.ID, artifacts.DocTranscript, &tr); err != nil {
		return err
	}

	logger := h.logger.With(logging.String(logging.FieldJobID, job.ID))
	opts := job.Options()

	var (
		candidates []storyboard.Cue
		err        error
	)
	if h.client != nil && h.client.Enabled() {
		candidates, err = h.modelCues(ctx, job, tr)
		if err != nil {
			return err
		}
	} else {
		candidates = analyzer.HeuristicCues(tr, h.cfg.Analyzer.WindowSeconds)
		logger.Info("analyzer collaborator not configured, used heuristic",
			logging.Int("candidates", len(candidates)),
		)
	}

	cues := storyboard.Budget(candidates, opts.MaxQueries)
	if err := h.art.WriteJSON(job.ID, artifacts.DocCues, cues); err != nil {
		return err
	}

	job.SetProgress("Analyzing",
		fmt.Sprintf("%d cues selected from %d candidates", len(cues), len(candidates)),
		analysisBandStart+analysisBandWidth*0.95,
	)
	logger.Info("analysis complete",
		logging.Int("candidates", len(candidates)),
		logging.Int("cues", len(cues)),
	)
	return nil
}

func (h *Handler) modelCues(ctx context.Context, job *queue.Job, tr transcript.Transcript) ([]storyboard.Cue, error) {
	windowSeconds := h.cfg.Analyzer.WindowSeconds
	if windowSeconds <= 0 {
		windowSeconds = 45
	}
	window := float64(windowSeconds)

	windowCount := 0
	for start := 0.0; start < tr.DurationSeconds; start += window {
		windowCount++
	}

	var candidates []storyboard.Cue
	index := 0
	for start := 0.0; start < tr.DurationSeconds; start += window {
		end := start + window
		if end > tr.DurationSeconds {
			end = tr.DurationSeconds
		}
		entries := tr.Window(start, end)
		text := (transcript.Transcript{Entries: entries}).FullText()
		if text == "" {
			index++
			continue
		}

		cues, err := h.client.ExtractCues(ctx, text, start, end)
		if err != nil {
			if errors.Is(err, services.ErrConfiguration) || errors.Is(err, services.ErrValidation) {
				return nil, err
			}
			// Transient window failures degrade that window rather than the
			// whole stage.
			h.logger.Warn("cue extraction failed for window",
				logging.String(logging.FieldJobID, job.ID),
				logging.Float64("window_start", start),
				logging.Error(err),
			)
			index++
			continue
		}
		candidates = append(candidates, cues...)

		index++
		if index < windowCount {
			copy := *job
			copy.SetProgress("Analyzing",
				fmt.Sprintf("window %d of %d analyzed", index, windowCount),
				analysisBandStart+analysisBandWidth*float64(index)/float64(windowCount),
			)
			if err := h.store.Update(ctx, &copy); err != nil {
				h.logger.Warn("failed to persist analysis progress", logging.Error(err))
			}
		}
	}
	return candidates, nil
}

// HealthCheck reports stage readiness. The stage is ready without a model
// collaborator because the heuristic needs nothing external.
func (h *Handler) HealthCheck(ctx context.Context) stage.Health {
	if h.client != nil && h.client.Enabled() {
		if err := h.client.HealthCheck(ctx); err != nil {
			return stage.Unhealthy("analyzing", err.Error())
		}
	}
	return stage.Healthy("analyzing")
}
