package generating

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"vignette/internal/artifacts"
	"vignette/internal/config"
	"vignette/internal/logging"
	"vignette/internal/queue"
	"vignette/internal/services"
	"vignette/internal/stage"
	"vignette/internal/storyboard"
)

// Searcher is the image search collaborator surface.
type Searcher interface {
	Search(ctx context.Context, cue storyboard.Cue) ([]storyboard.CandidateImage, error)
	Download(ctx context.Context, candidate storyboard.CandidateImage) (io.ReadCloser, string, error)
	HealthCheck(ctx context.Context) error
}

// Generator is the image/clip generation collaborator surface.
type Generator interface {
	GenerateImage(ctx context.Context, cue storyboard.Cue) (storyboard.CandidateImage, error)
	GenerateClip(ctx context.Context, cue storyboard.Cue) (storyboard.CandidateImage, error)
	Download(ctx context.Context, candidate storyboard.CandidateImage) (io.ReadCloser, string, error)
	HealthCheck(ctx context.Context) error
}

// Manifest records the outcome of visual resolution for operator inspection:
// the resolved visuals plus every cue that could not be illustrated.
type Manifest struct {
	Resolved []storyboard.CandidateImage `json:"resolved"`
	Dropped  []DroppedCue                `json:"dropped,omitempty"`
}

// DroppedCue names a cue that resolved no candidate and why.
type DroppedCue struct {
	Cue    storyboard.Cue `json:"cue"`
	Reason string         `json:"reason"`
}

// Handler runs visual generation for one job.
type Handler struct {
	store     *queue.Store
	cfg       *config.Config
	art       *artifacts.Store
	searcher  Searcher
	generator Generator
	logger    *slog.Logger
}

// New constructs the generation stage handler.
func New(cfg *config.Config, store *queue.Store, art *artifacts.Store, searcher Searcher, generator Generator, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handler{
		store:     store,
		cfg:       cfg,
		art:       art,
		searcher:  searcher,
		generator: generator,
		logger:    logger.With(logging.String(logging.FieldComponent, "generating")),
	}
}

const (
	generationBandStart = 90.0
	generationBandWidth = 8.0
)

// Prepare moves progress into the generation band.
func (h *Handler) Prepare(ctx context.Context, job *queue.Job) error {
	job.SetProgress("Generating visuals", "resolving cue imagery", generationBandStart)
	return nil
}

// Execute resolves every cue concurrently. A cue with no resolvable candidate
// is dropped and logged; the stage fails only when zero cues resolve while at
// least one was requested, or on a configuration error from a collaborator.
func (h *Handler) Execute(ctx context.Context, job *queue.Job) error {
	var cues []storyboard.Cue
	if err := h.art.ReadJSON(job.ID, artifacts.DocCues, &cues); err != nil {
		return err
	}

	logger := h.logger.With(logging.String(logging.FieldJobID, job.ID))
	if len(cues) == 0 {
		logger.Info("no cues to illustrate")
		return h.persistManifest(job, Manifest{})
	}

	opts := job.Options()
	resolved := make([]storyboard.CandidateImage, len(cues))
	found := make([]bool, len(cues))
	dropped := make([]DroppedCue, len(cues))
	droppedSet := make([]bool, len(cues))

	var (
		mu        sync.Mutex
		doneCount int
		fatal     error
	)

	workers := h.cfg.Generation.Workers
	if workers <= 0 {
		workers = 1
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)
	for i := range cues {
		index := i
		cue := cues[i]
		group.Go(func() error {
			candidate, err := h.resolveCue(groupCtx, job, cue, opts)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil && errors.Is(err, services.ErrConfiguration):
				// Credentials problems abort the whole stage.
				if fatal == nil {
					fatal = err
				}
				return err
			case err != nil:
				dropped[index] = DroppedCue{Cue: cue, Reason: services.Message(err)}
				droppedSet[index] = true
				logger.Warn("cue dropped",
					logging.String("query", cue.Query),
					logging.Float64("timestamp", cue.TimestampSeconds),
					logging.Error(err),
				)
			default:
				resolved[index] = candidate
				found[index] = true
			}
			doneCount++
			if doneCount < len(cues) {
				h.reportProgress(groupCtx, job, doneCount, len(cues))
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}
	if fatal != nil {
		return fatal
	}

	manifest := Manifest{}
	for i := range cues {
		if found[i] {
			manifest.Resolved = append(manifest.Resolved, resolved[i])
		} else if droppedSet[i] {
			manifest.Dropped = append(manifest.Dropped, dropped[i])
		}
	}
	if len(manifest.Resolved) == 0 {
		return services.Wrap(services.ErrExternalTool, "generating", "resolve cues",
			fmt.Sprintf("none of %d requested cues resolved a visual", len(cues)), nil)
	}

	// Composition consumes visuals in timeline order.
	sort.SliceStable(manifest.Resolved, func(i, j int) bool {
		return manifest.Resolved[i].Cue.TimestampSeconds < manifest.Resolved[j].Cue.TimestampSeconds
	})

	if err := h.persistManifest(job, manifest); err != nil {
		return err
	}
	logger.Info("generation complete",
		logging.Int("resolved", len(manifest.Resolved)),
		logging.Int("dropped", len(manifest.Dropped)),
	)
	return nil
}

func (h *Handler) persistManifest(job *queue.Job, manifest Manifest) error {
	if err := h.art.WriteJSON(job.ID, artifacts.DocManifest, manifest); err != nil {
		return err
	}
	job.SetProgress("Generating visuals",
		fmt.Sprintf("%d visuals resolved", len(manifest.Resolved)),
		generationBandStart+generationBandWidth*0.95,
	)
	return nil
}

// resolveCue gathers candidates from every enabled source, selects the best,
// and downloads it into the job's images directory.
func (h *Handler) resolveCue(ctx context.Context, job *queue.Job, cue storyboard.Cue, opts queue.Options) (storyboard.CandidateImage, error) {
	var empty storyboard.CandidateImage
	var candidates []storyboard.CandidateImage
	var lastErr error

	if h.searcher != nil {
		results, err := h.searcher.Search(ctx, cue)
		if err != nil {
			if errors.Is(err, services.ErrConfiguration) {
				return empty, err
			}
			lastErr = err
		} else {
			candidates = append(candidates, results...)
		}
	}
	if h.generator != nil && opts.GenerateImages {
		candidate, err := h.generator.GenerateImage(ctx, cue)
		if err != nil {
			if errors.Is(err, services.ErrConfiguration) {
				return empty, err
			}
			lastErr = err
		} else {
			candidates = append(candidates, candidate)
		}
	}
	if h.generator != nil && opts.GenerateVideos {
		candidate, err := h.generator.GenerateClip(ctx, cue)
		if err != nil {
			if errors.Is(err, services.ErrConfiguration) {
				return empty, err
			}
			lastErr = err
		} else {
			candidates = append(candidates, candidate)
		}
	}

	best, ok := storyboard.SelectBest(candidates)
	if !ok {
		if lastErr != nil {
			return empty, lastErr
		}
		return empty, services.Wrap(services.ErrNotFound, "generating", "resolve cue", "no candidates offered", nil)
	}

	body, ext, err := h.download(ctx, best)
	if err != nil {
		return empty, err
	}
	defer body.Close()

	localPath, err := h.art.SaveVisual(job.ID, best.Cue.TimestampSeconds, best.Cue.Query, string(best.Source), ext, body)
	if err != nil {
		return empty, err
	}
	best.LocalPath = localPath
	return best, nil
}

func (h *Handler) download(ctx context.Context, candidate storyboard.CandidateImage) (io.ReadCloser, string, error) {
	if candidate.Source == storyboard.SourceGenerated && h.generator != nil {
		return h.generator.Download(ctx, candidate)
	}
	if h.searcher != nil {
		return h.searcher.Download(ctx, candidate)
	}
	return nil, "", services.Wrap(services.ErrConfiguration, "generating", "download", "no collaborator can download candidates", nil)
}

func (h *Handler) reportProgress(ctx context.Context, job *queue.Job, done, total int) {
	copy := *job
	copy.SetProgress("Generating visuals",
		fmt.Sprintf("cue %d of %d resolved", done, total),
		generationBandStart+generationBandWidth*float64(done)/float64(total),
	)
	if err := h.store.Update(ctx, &copy); err != nil {
		h.logger.Warn("failed to persist generation progress", logging.Error(err))
	}
}

// HealthCheck reports stage readiness.
func (h *Handler) HealthCheck(ctx context.Context) stage.Health {
	if h.searcher != nil {
		if err := h.searcher.HealthCheck(ctx); err != nil {
			return stage.Unhealthy("generating", err.Error())
		}
	}
	if h.generator != nil {
		if err := h.generator.HealthCheck(ctx); err != nil {
			return stage.Unhealthy("generating", err.Error())
		}
	}
	return stage.Healthy("generating")
}
