package api

import (
	"context"
	"errors"

	"vignette/internal/queue"
)

// QueueReader abstracts queue persistence interactions needed for API queries.
type QueueReader interface {
	List(ctx context.Context, statuses ...queue.Status) ([]*queue.Job, error)
	Stats(ctx context.Context) (map[queue.Status]int, error)
	GetByID(ctx context.Context, id string) (*queue.Job, error)
}

// QueueService exposes read-only queue operations returning API DTOs.
type QueueService struct {
	store QueueReader
}

// NewQueueService constructs a QueueService around the provided reader.
func NewQueueService(store QueueReader) *QueueService {
	if store == nil {
		return nil
	}
	return &QueueService{store: store}
}

// List returns queue jobs filtered by status.
func (s *QueueService) List(ctx context.Context, statuses ...queue.Status) ([]QueueJob, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	jobs, err := s.store.List(ctx, statuses...)
	if err != nil {
		return nil, err
	}
	return FromQueueJobs(jobs), nil
}

// Stats returns queue summary counts keyed by status string.
func (s *QueueService) Stats(ctx context.Context) (map[string]int, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return MergeQueueStats(stats), nil
}

// Describe fetches a single queue job. The returned view is the polling
// status contract: stage, percent, message, and terminal flag.
func (s *QueueService) Describe(ctx context.Context, id string) (*QueueJob, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	job, err := s.store.GetByID(ctx, id)
	if errors.Is(err, queue.ErrNotFound) {
		return nil, nil
	}
	if err != nil || job == nil {
		return nil, err
	}
	dto := FromQueueJob(job)
	return &dto, nil
}
