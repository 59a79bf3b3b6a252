package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"vignette/internal/logging"
	"vignette/internal/queue"
)

// HeartbeatMonitor keeps in-flight jobs alive and reclaims jobs whose worker
// stopped heartbeating.
type HeartbeatMonitor struct {
	store    *queue.Store
	logger   *slog.Logger
	interval time.Duration
	timeout  time.Duration
}

// NewHeartbeatMonitor creates a new monitor.
func NewHeartbeatMonitor(store *queue.Store, logger *slog.Logger, interval, timeout time.Duration) *HeartbeatMonitor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &HeartbeatMonitor{
		store:    store,
		logger:   logger,
		interval: interval,
		timeout:  timeout,
	}
}

// ReclaimStale resets processing jobs whose heartbeat expired back to their
// stage boundary so another worker can pick them up.
func (h *HeartbeatMonitor) ReclaimStale(ctx context.Context, logger *slog.Logger) error {
	if h.timeout <= 0 {
		return nil
	}
	cutoff := time.Now().Add(-h.timeout)
	reclaimed, err := h.store.ReclaimStaleProcessing(ctx, cutoff)
	if err != nil {
		return err
	}
	if reclaimed > 0 {
		logger.Info("reclaimed stale jobs", logging.Int64("count", reclaimed))
	}
	return nil
}

// StartLoop updates a job's heartbeat until the context is cancelled.
func (h *HeartbeatMonitor) StartLoop(ctx context.Context, wg *sync.WaitGroup, jobID string) {
	defer wg.Done()
	if h.interval <= 0 {
		return
	}
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	logger := h.logger.With(logging.String(logging.FieldComponent, "workflow-heartbeat"))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.store.UpdateHeartbeat(ctx, jobID); err != nil {
				if errors.Is(err, context.Canceled) {
					logger.Debug("shutting down, heartbeat update cancelled")
					return
				}
				logger.Warn("heartbeat update failed", logging.Error(err))
			}
		}
	}
}
