package api

import (
	"context"
	"errors"

	"vignette/internal/artifacts"
	"vignette/internal/queue"
	"vignette/internal/services"
	"vignette/internal/storyboard"
	"vignette/internal/transcript"
)

// ArtifactService reads finished pipeline artifacts for a job.
type ArtifactService struct {
	store *queue.Store
	art   *artifacts.Store
}

// NewArtifactService constructs an ArtifactService.
func NewArtifactService(store *queue.Store, art *artifacts.Store) *ArtifactService {
	return &ArtifactService{store: store, art: art}
}

// Transcript returns the merged transcript for a job, once transcription has
// finished.
func (s *ArtifactService) Transcript(ctx context.Context, jobID string) (transcript.Transcript, error) {
	var tr transcript.Transcript
	if err := s.guard(ctx, jobID); err != nil {
		return tr, err
	}
	err := s.art.ReadJSON(jobID, artifacts.DocTranscript, &tr)
	return tr, err
}

// Timeline returns the composed timeline for a job.
func (s *ArtifactService) Timeline(ctx context.Context, jobID string) ([]storyboard.TimelineSegment, error) {
	if err := s.guard(ctx, jobID); err != nil {
		return nil, err
	}
	var timeline []storyboard.TimelineSegment
	err := s.art.ReadJSON(jobID, artifacts.DocTimeline, &timeline)
	return timeline, err
}

// Video returns the finished video record for a completed job.
func (s *ArtifactService) Video(ctx context.Context, jobID string) (storyboard.VideoArtifact, error) {
	var video storyboard.VideoArtifact
	if err := s.guard(ctx, jobID); err != nil {
		return video, err
	}
	err := s.art.ReadJSON(jobID, artifacts.DocVideo, &video)
	return video, err
}

// VideoPath returns the path of the finished video file for a completed job.
func (s *ArtifactService) VideoPath(ctx context.Context, jobID string) (string, error) {
	video, err := s.Video(ctx, jobID)
	if err != nil {
		return "", err
	}
	return video.Path, nil
}

func (s *ArtifactService) guard(ctx context.Context, jobID string) error {
	_, err := s.store.GetByID(ctx, jobID)
	if errors.Is(err, queue.ErrNotFound) {
		return services.Wrap(services.ErrNotFound, "", "artifacts", "unknown job "+jobID, nil)
	}
	return err
}
