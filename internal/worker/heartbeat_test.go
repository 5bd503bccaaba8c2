package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type manualClock struct {
	t time.Time
}

func (c *manualClock) Now() time.Time { return c.t }

func TestHeartbeat_RateLimited(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	clock := &manualClock{t: time.Unix(1000, 0)}
	hb := NewHeartbeat(store, clock, zap.NewNop(), "worker-test", 15*time.Second)

	hb.Maybe(context.Background(), "job-1")
	require.Len(t, store.heartbeats, 1)

	// Within the interval, no renewal goes out.
	clock.t = clock.t.Add(5 * time.Second)
	hb.Maybe(context.Background(), "job-1")
	require.Len(t, store.heartbeats, 1)

	// Past the interval, renewal resumes.
	clock.t = clock.t.Add(11 * time.Second)
	hb.Maybe(context.Background(), "job-1")
	require.Len(t, store.heartbeats, 2)
}

func TestHeartbeat_ResetSendsImmediately(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	clock := &manualClock{t: time.Unix(1000, 0)}
	hb := NewHeartbeat(store, clock, zap.NewNop(), "worker-test", 15*time.Second)

	hb.Maybe(context.Background(), "job-1")
	require.Len(t, store.heartbeats, 1)

	// A fresh claim resets the spacing regardless of elapsed time.
	hb.Reset()
	hb.Maybe(context.Background(), "job-2")
	require.Equal(t, []string{"job-1", "job-2"}, store.heartbeats)
}

func TestHeartbeat_FailureIsSwallowedAndStillRateLimited(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.heartbeatErr = errors.New("lease lost")
	clock := &manualClock{t: time.Unix(1000, 0)}
	hb := NewHeartbeat(store, clock, zap.NewNop(), "worker-test", 15*time.Second)

	// Must not panic or propagate the error.
	hb.Maybe(context.Background(), "job-1")

	// The failed attempt still advances the timestamp, so a failing store
	// does not turn the heartbeat into a tight retry loop.
	store.heartbeatErr = nil
	clock.t = clock.t.Add(5 * time.Second)
	hb.Maybe(context.Background(), "job-1")
	require.Empty(t, store.heartbeats)

	clock.t = clock.t.Add(11 * time.Second)
	hb.Maybe(context.Background(), "job-1")
	require.Len(t, store.heartbeats, 1)
}

func TestHeartbeat_DefaultInterval(t *testing.T) {
	t.Parallel()

	hb := NewHeartbeat(newFakeStore(), &manualClock{t: time.Unix(1000, 0)}, zap.NewNop(), "worker-test", 0)
	require.Equal(t, defaultHeartbeatInterval, hb.interval)
}
