package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestScheduler_RunNow(t *testing.T) {
	var runs atomic.Int32
	s := New("06:00", func(context.Context) { runs.Add(1) }, discardLogger())

	require.NoError(t, s.Start(true))
	defer s.Stop()

	assert.Eventually(t, func() bool { return runs.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestScheduler_StopCancelsJobContext(t *testing.T) {
	started := make(chan struct{})
	cancelled := make(chan struct{})
	s := New("06:00", func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(cancelled)
	}, discardLogger())

	require.NoError(t, s.Start(true))
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not start")
	}

	s.Stop()
	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("job context not cancelled")
	}
}

func TestScheduler_InvalidTime(t *testing.T) {
	s := New("25:99", func(context.Context) {}, discardLogger())
	require.Error(t, s.Start(false))
}
