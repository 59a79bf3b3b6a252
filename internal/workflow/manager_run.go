package workflow

import (
	"context"
	"errors"
	"time"

	"vignette/internal/logging"
	"vignette/internal/queue"
)

// Start begins background processing. On startup, jobs stranded mid-stage by
// an earlier crash are reset to their stage boundary before polling begins.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if len(m.stages) == 0 {
		m.mu.Unlock()
		return errors.New("workflow stages not configured")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(1)
	m.mu.Unlock()

	if reset, err := m.store.ResetStuckProcessing(runCtx); err != nil {
		m.logger.Warn("failed to reset stuck jobs", logging.Error(err))
	} else if reset > 0 {
		m.logger.Info("reset stranded jobs to stage boundary", logging.Int64("count", reset))
	}

	go m.runLoop(runCtx)
	return nil
}

// Stop terminates background processing and waits for in-flight stages to
// finish. A job interrupted mid-stage is not failed; its heartbeat expires
// and the next daemon run reclaims it.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

func (m *Manager) runLoop(ctx context.Context) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case m.slots <- struct{}{}:
		}

		if err := m.heartbeat.ReclaimStale(ctx, m.logger); err != nil && !errors.Is(err, context.Canceled) {
			m.logger.Warn("reclaim stale processing failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "heartbeat_reclaim_failed"),
			)
		}

		job, err := m.store.NextForStatuses(ctx, m.startOrder...)
		if err != nil {
			<-m.slots
			if errors.Is(err, context.Canceled) {
				return
			}
			m.setLastError(err)
			m.logger.Error("failed to fetch next queue job",
				logging.Error(err),
				logging.String(logging.FieldEventType, "queue_fetch_failed"),
			)
			m.waitOrShutdown(ctx, time.Duration(m.cfg.Workflow.ErrorRetryInterval)*time.Second)
			continue
		}
		if job == nil {
			<-m.slots
			m.waitOrShutdown(ctx, m.pollInterval)
			continue
		}

		stg, ok := m.stageByStart[job.Status]
		if !ok {
			<-m.slots
			m.logger.Warn("no stage configured for status", logging.String("status", string(job.Status)))
			m.waitOrShutdown(ctx, m.pollInterval)
			continue
		}

		// Claim synchronously so the next poll cannot pick the same job.
		if err := m.transitionToProcessing(ctx, stg, job); err != nil {
			<-m.slots
			if errors.Is(err, context.Canceled) {
				return
			}
			m.setLastError(err)
			m.logger.Error("failed to transition job to processing", logging.Error(err))
			m.waitOrShutdown(ctx, time.Duration(m.cfg.Workflow.ErrorRetryInterval)*time.Second)
			continue
		}

		m.wg.Add(1)
		go func(stg pipelineStage, job *queue.Job) {
			defer m.wg.Done()
			defer func() { <-m.slots }()
			m.executeStage(ctx, stg, job)
		}(stg, job)
	}
}

func (m *Manager) waitOrShutdown(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		delay = time.Second
	}
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	case <-m.wake:
	}
}
