package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"vignette/internal/logging"
	"vignette/internal/notifications"
	"vignette/internal/queue"
	"vignette/internal/services"
)

func (m *Manager) transitionToProcessing(ctx context.Context, stg pipelineStage, job *queue.Job) error {
	now := time.Now().UTC()
	job.Status = stg.processingStatus
	job.ErrorMessage = ""
	job.LastHeartbeat = &now
	if err := m.store.Update(ctx, job); err != nil {
		return fmt.Errorf("persist processing transition: %w", err)
	}
	m.setLastJob(job)
	return nil
}

func (m *Manager) executeStage(ctx context.Context, stg pipelineStage, job *queue.Job) {
	logger := m.logger.With(
		logging.String(logging.FieldStage, stg.name),
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldCorrelationID, uuid.NewString()),
	)

	stageStart := time.Now()
	logger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("filename", job.Filename),
	)

	if err := stg.handler.Prepare(ctx, job); err != nil {
		m.handleStageFailure(ctx, logger, stg.name, job, err)
		return
	}
	if err := m.store.Update(ctx, job); err != nil {
		m.persistError(ctx, logger, "persist stage preparation", err)
		return
	}

	execErr := m.executeWithHeartbeat(ctx, stg, job)
	if execErr != nil {
		if errors.Is(execErr, context.Canceled) {
			logger.Debug("stage interrupted by shutdown")
			return
		}
		m.handleStageFailure(ctx, logger, stg.name, job, execErr)
		return
	}

	job.Status = stg.doneStatus
	job.LastHeartbeat = nil
	if job.Status == queue.StatusCompleted && job.ProgressPercent < 100 {
		job.ProgressPercent = 100
	}
	if err := m.store.Update(ctx, job); err != nil {
		m.persistError(ctx, logger, "persist stage result", err)
		return
	}
	m.setLastJob(job)
	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("next_status", string(job.Status)),
		logging.String("progress_message", strings.TrimSpace(job.ProgressMessage)),
		logging.Duration("stage_duration", time.Since(stageStart)),
	)

	m.signalWake()

	if job.Status == queue.StatusCompleted {
		m.notify(ctx, logger, notifications.EventJobCompleted, notifications.Payload{
			"filename":    job.Filename,
			"artifactDir": job.ArtifactDir,
		})
	}
}

func (m *Manager) notify(ctx context.Context, logger *slog.Logger, event notifications.Event, payload notifications.Payload) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Publish(ctx, event, payload); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("notification failed", logging.Error(err))
	}
}

func (m *Manager) executeWithHeartbeat(ctx context.Context, stg pipelineStage, job *queue.Job) error {
	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.StartLoop(hbCtx, &hbWG, job.ID)

	execErr := stg.handler.Execute(ctx, job)
	hbCancel()
	hbWG.Wait()
	return execErr
}

func (m *Manager) handleStageFailure(ctx context.Context, logger *slog.Logger, stageName string, job *queue.Job, stageErr error) {
	message := strings.TrimSpace(services.Message(stageErr))
	if message == "" {
		message = fmt.Sprintf("%s failed", stageName)
	}
	job.SetFailed(message)

	logger.Error("stage failed",
		logging.String(logging.FieldEventType, "stage_failure"),
		logging.String("error_message", message),
		logging.Error(stageErr),
	)

	if err := m.store.Update(ctx, job); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("shutting down, could not persist stage failure")
		} else {
			logger.Error("failed to persist stage failure", logging.Error(err))
		}
	}
	m.setLastError(stageErr)
	m.setLastJob(job)
	m.signalWake()

	m.notify(ctx, logger, notifications.EventJobFailed, notifications.Payload{
		"filename": job.Filename,
		"reason":   message,
	})
}

func (m *Manager) persistError(ctx context.Context, logger *slog.Logger, operation string, err error) {
	wrapped := fmt.Errorf("%s: %w", operation, err)
	if errors.Is(err, context.Canceled) {
		logger.Debug("shutting down, queue write cancelled", logging.String("operation", operation))
		return
	}
	logger.Error("queue write failed", logging.Error(wrapped))
	m.setLastError(wrapped)
}
