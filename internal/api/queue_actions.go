package api

import (
	"context"

	"vignette/internal/queue"
)

// QueueActionService captures queue operations needed by per-job retry
// workflows.
type QueueActionService interface {
	Describe(ctx context.Context, id string) (*QueueJob, error)
	Retry(ctx context.Context, ids []string) (int64, error)
}

// QueueActions implements QueueActionService over the queue store.
type QueueActions struct {
	reader *QueueService
	store  *queue.Store
}

// NewQueueActions constructs QueueActions.
func NewQueueActions(store *queue.Store) *QueueActions {
	return &QueueActions{reader: NewQueueService(store), store: store}
}

// Describe fetches a single queue job view.
func (a *QueueActions) Describe(ctx context.Context, id string) (*QueueJob, error) {
	return a.reader.Describe(ctx, id)
}

// Retry moves the named failed jobs back to the uploaded state.
func (a *QueueActions) Retry(ctx context.Context, ids []string) (int64, error) {
	return a.store.RetryFailed(ctx, ids...)
}

type RetryJobOutcome string

const (
	RetryJobUpdated   RetryJobOutcome = "retried"
	RetryJobNotFound  RetryJobOutcome = "not_found"
	RetryJobNotFailed RetryJobOutcome = "not_failed"
)

type RetryJobResult struct {
	ID      string          `json:"id"`
	Outcome RetryJobOutcome `json:"outcome"`
}

type RetryJobsResult struct {
	UpdatedCount int64            `json:"updatedCount"`
	Jobs         []RetryJobResult `json:"jobs"`
}

// RetryFailedJobsByID validates IDs and retries only failed jobs. Completed
// jobs are never revived.
func RetryFailedJobsByID(ctx context.Context, service QueueActionService, ids []string) (RetryJobsResult, error) {
	result := RetryJobsResult{Jobs: make([]RetryJobResult, 0, len(ids))}
	for _, id := range ids {
		job, err := service.Describe(ctx, id)
		if err != nil {
			return RetryJobsResult{}, err
		}
		if job == nil {
			result.Jobs = append(result.Jobs, RetryJobResult{ID: id, Outcome: RetryJobNotFound})
			continue
		}
		status, ok := queue.ParseStatus(job.Status)
		if !ok || status != queue.StatusFailed {
			result.Jobs = append(result.Jobs, RetryJobResult{ID: id, Outcome: RetryJobNotFailed})
			continue
		}
		updated, err := service.Retry(ctx, []string{id})
		if err != nil {
			return RetryJobsResult{}, err
		}
		if updated > 0 {
			result.UpdatedCount += updated
			result.Jobs = append(result.Jobs, RetryJobResult{ID: id, Outcome: RetryJobUpdated})
			continue
		}
		result.Jobs = append(result.Jobs, RetryJobResult{ID: id, Outcome: RetryJobNotFailed})
	}
	return result, nil
}
