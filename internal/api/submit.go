package api

import (
	"context"
	"fmt"
	"strings"

	"vignette/internal/artifacts"
	"vignette/internal/config"
	"vignette/internal/queue"
	"vignette/internal/services"
)

// SubmitRequest carries the upload-acceptance tuple for a new job. AudioPath
// must already point at a staged copy of the uploaded audio.
type SubmitRequest struct {
	Filename        string
	AudioPath       string
	FileSizeBytes   int64
	DurationSeconds float64
	Options         queue.Options
}

// SubmitService validates uploads and enqueues accepted jobs.
type SubmitService struct {
	cfg   *config.Config
	store *queue.Store
	art   *artifacts.Store
}

// NewSubmitService constructs a SubmitService.
func NewSubmitService(cfg *config.Config, store *queue.Store, art *artifacts.Store) *SubmitService {
	return &SubmitService{cfg: cfg, store: store, art: art}
}

// Submit validates the upload and creates the job in the uploaded state. The
// job's artifact directory tree is created up front so stages never race on
// it.
func (s *SubmitService) Submit(ctx context.Context, req SubmitRequest) (QueueJob, error) {
	if err := s.validate(req); err != nil {
		return QueueJob{}, err
	}

	job, err := s.store.Create(ctx, queue.NewJobParams{
		Filename:        req.Filename,
		AudioPath:       req.AudioPath,
		FileSize:        req.FileSizeBytes,
		DurationSeconds: req.DurationSeconds,
		Options:         req.Options,
	})
	if err != nil {
		return QueueJob{}, err
	}
	if _, err := s.art.EnsureJob(job.ID); err != nil {
		return QueueJob{}, err
	}
	return FromQueueJob(job), nil
}

func (s *SubmitService) validate(req SubmitRequest) error {
	name := strings.TrimSpace(req.Filename)
	if name == "" {
		return services.Wrap(services.ErrValidation, "", "submit", "filename is required", nil)
	}
	if !s.cfg.ExtensionAllowed(name) {
		return services.Wrap(services.ErrValidation, "", "submit",
			fmt.Sprintf("unsupported audio format %q (allowed: %s)", name, strings.Join(s.cfg.Upload.AllowedExtensions, ", ")), nil)
	}
	if strings.TrimSpace(req.AudioPath) == "" {
		return services.Wrap(services.ErrValidation, "", "submit", "audio path is required", nil)
	}
	if req.FileSizeBytes <= 0 {
		return services.Wrap(services.ErrValidation, "", "submit", "uploaded file is empty", nil)
	}
	if cap := s.cfg.MaxFileSizeBytes(); req.FileSizeBytes > cap {
		return services.Wrap(services.ErrValidation, "", "submit",
			fmt.Sprintf("file is %d bytes, above the %d MiB limit", req.FileSizeBytes, s.cfg.Upload.MaxFileSizeMiB), nil)
	}
	if req.DurationSeconds <= 0 {
		return services.Wrap(services.ErrValidation, "", "submit", "audio duration could not be determined", nil)
	}
	return nil
}
