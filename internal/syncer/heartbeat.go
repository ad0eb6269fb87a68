package syncer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"fieldsync/internal/logging"
	"fieldsync/internal/queue"
)

// heartbeatMonitor keeps the heartbeat of a claimed item fresh so another run
// does not reclaim it mid-upload.
type heartbeatMonitor struct {
	store    *queue.Store
	logger   *slog.Logger
	interval time.Duration
}

func newHeartbeatMonitor(store *queue.Store, logger *slog.Logger, interval time.Duration) *heartbeatMonitor {
	return &heartbeatMonitor{
		store:    store,
		logger:   logging.NewComponentLogger(logger, "sync-heartbeat"),
		interval: interval,
	}
}

// run ticks until ctx is cancelled. A lost claim is logged once and ends the
// loop; the item's final transition will report it too.
func (h *heartbeatMonitor) run(ctx context.Context, wg *sync.WaitGroup, itemID string) {
	defer wg.Done()
	if h.interval <= 0 {
		return
	}
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	logger := logging.WithContext(ctx, h.logger)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := h.store.UpdateHeartbeat(ctx, itemID)
			switch {
			case err == nil:
			case errors.Is(err, context.Canceled):
				logger.Debug("heartbeat update cancelled")
				return
			case errors.Is(err, queue.ErrNotClaimed):
				logging.WarnWithContext(logger, "item claim lost during upload", "heartbeat_lost",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "raise sync.processing_timeout_seconds if uploads are slow"),
				)
				return
			default:
				logger.Warn("heartbeat update failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "heartbeat_failed"),
					logging.String(logging.FieldErrorHint, "check queue database access"),
				)
			}
		}
	}
}

// start launches run and returns a stop function that waits for it to exit.
func (h *heartbeatMonitor) start(ctx context.Context, itemID string) func() {
	hbCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go h.run(hbCtx, &wg, itemID)
	return func() {
		cancel()
		wg.Wait()
	}
}
