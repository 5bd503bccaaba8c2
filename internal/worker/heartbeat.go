package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pagepulse/crawlworker/internal/crawl"
	"github.com/pagepulse/crawlworker/internal/metrics"
)

// defaultHeartbeatInterval is the minimum spacing between lease renewals.
const defaultHeartbeatInterval = 15 * time.Second

// Heartbeat rate-limits lease renewals for the currently-held job. The last
// send timestamp is per-process state, reset whenever a new job is claimed.
// It is not safe for concurrent use; the worker drives it from its single
// control thread.
type Heartbeat struct {
	store    crawl.Store
	clock    crawl.Clock
	logger   *zap.Logger
	workerID string
	interval time.Duration
	last     time.Time
}

// NewHeartbeat constructs a Heartbeat controller.
func NewHeartbeat(store crawl.Store, clock crawl.Clock, logger *zap.Logger, workerID string, interval time.Duration) *Heartbeat {
	if interval <= 0 {
		interval = defaultHeartbeatInterval
	}
	return &Heartbeat{
		store:    store,
		clock:    clock,
		logger:   logger,
		workerID: workerID,
		interval: interval,
	}
}

// Reset clears the last-send timestamp so the next Maybe sends immediately.
func (h *Heartbeat) Reset() {
	h.last = time.Time{}
}

// Maybe renews the job lease when the interval has elapsed since the last
// attempt. The timestamp advances on every attempt, not only on success, so a
// failing store cannot turn the heartbeat into a tight retry loop. Failures
// are logged and swallowed: losing a lease is recoverable via rescue, whereas
// interrupting job progress is not.
func (h *Heartbeat) Maybe(ctx context.Context, jobID string) {
	now := h.clock.Now()
	if !h.last.IsZero() && now.Sub(h.last) < h.interval {
		return
	}
	h.last = now

	if err := h.store.Heartbeat(ctx, jobID, h.workerID); err != nil {
		h.logger.Warn("heartbeat failed",
			zap.String("job_id", jobID),
			zap.String("worker_id", h.workerID),
			zap.Error(err),
		)
		metrics.ObserveHeartbeat(false)
		return
	}
	metrics.ObserveHeartbeat(true)
}
