package tasks

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/medspa-inbox/internal/observability/metrics"
	"github.com/wolfman30/medspa-inbox/pkg/logging"
)

func TestDispatcherRunsSubmittedJobs(t *testing.T) {
	d := New(logging.New("error"), WithWorkers(3))
	d.Start()

	var ran int32
	for i := 0; i < 10; i++ {
		require.True(t, d.Submit("count", func(context.Context) error {
			atomic.AddInt32(&ran, 1)
			return nil
		}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, d.Shutdown(ctx))
	assert.EqualValues(t, 10, atomic.LoadInt32(&ran))
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	d := New(logging.New("error"), WithBuffer(1), WithMetrics(metrics.NewInboxMetrics(prometheus.NewRegistry())))

	// Not started, so the single slot fills and the next submit is dropped.
	assert.True(t, d.Submit("first", func(context.Context) error { return nil }))
	assert.False(t, d.Submit("second", func(context.Context) error { return nil }))
}

func TestDispatcherRejectsAfterShutdown(t *testing.T) {
	d := New(logging.New("error"))
	d.Start()
	require.NoError(t, d.Shutdown(context.Background()))

	assert.False(t, d.Submit("late", func(context.Context) error { return nil }))
	assert.ErrorIs(t, d.Shutdown(context.Background()), ErrClosed)
}

func TestDispatcherJobTimeoutAndPanics(t *testing.T) {
	d := New(logging.New("error"), WithWorkers(1), WithJobTimeout(20*time.Millisecond))
	d.Start()

	deadlineHit := make(chan error, 1)
	d.Submit("slow", func(ctx context.Context) error {
		<-ctx.Done()
		deadlineHit <- ctx.Err()
		return ctx.Err()
	})
	d.Submit("boom", func(context.Context) error { panic("kaboom") })

	var after int32
	d.Submit("after", func(context.Context) error {
		atomic.StoreInt32(&after, 1)
		return errors.New("ordinary failure")
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, d.Shutdown(ctx))
	assert.ErrorIs(t, <-deadlineHit, context.DeadlineExceeded)
	assert.EqualValues(t, 1, atomic.LoadInt32(&after), "worker survives a panicking job")
}

func TestDispatcherShutdownDeadline(t *testing.T) {
	d := New(logging.New("error"), WithWorkers(1), WithJobTimeout(time.Second))
	d.Start()

	release := make(chan struct{})
	d.Submit("stuck", func(context.Context) error {
		<-release
		return nil
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := d.Shutdown(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSafeRunRecoversPanic(t *testing.T) {
	err := safeRun(context.Background(), func(context.Context) error { panic("x") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic")
}
