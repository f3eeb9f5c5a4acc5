package source

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/covid-report-etl/internal/domain"
	"github.com/couchcryptid/covid-report-etl/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const body = "Province_State,Confirmed\nWashington,267\n"

func testFetcher(t *testing.T, h http.HandlerFunc) (*Fetcher, *atomic.Int32, *observability.Metrics) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		h(w, r)
	}))
	t.Cleanup(srv.Close)

	cache, err := NewDiskCache(t.TempDir())
	require.NoError(t, err)
	metrics := observability.NewMetricsForTesting()
	f := NewFetcher(testClient(srv.URL, metrics), cache, FetcherOptions{
		Attempts:   3,
		Backoff:    time.Millisecond,
		MaxBackoff: 4 * time.Millisecond,
	}, discardLogger(), metrics)
	return f, &calls, metrics
}

func TestFetcher_FetchThenCacheHit(t *testing.T) {
	f, calls, metrics := testFetcher(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, body)
	})

	first := f.Fetch(context.Background(), mar10(t))
	assert.Equal(t, domain.StatusFetched, first.Status)
	assert.Equal(t, body, string(first.Raw))

	second := f.Fetch(context.Background(), mar10(t))
	assert.Equal(t, domain.StatusCachedHit, second.Status)
	assert.Equal(t, first.Raw, second.Raw)
	assert.Equal(t, int32(1), calls.Load(), "second fetch served from disk")
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.FetchOutcomes.WithLabelValues("cached")), 1e-9)
}

func TestFetcher_NotFoundWritesMarker(t *testing.T) {
	f, calls, _ := testFetcher(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	snap := f.Fetch(context.Background(), mar10(t))
	assert.Equal(t, domain.StatusNotFound, snap.Status)
	assert.Nil(t, snap.Raw)

	again := f.Fetch(context.Background(), mar10(t))
	assert.Equal(t, domain.StatusNotFound, again.Status)
	assert.Equal(t, int32(1), calls.Load(), "marker prevents a second request")
}

func TestFetcher_RetriesThenSucceeds(t *testing.T) {
	var n atomic.Int32
	f, calls, _ := testFetcher(t, func(w http.ResponseWriter, _ *http.Request) {
		if n.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, body)
	})

	snap := f.Fetch(context.Background(), mar10(t))
	assert.Equal(t, domain.StatusFetched, snap.Status)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetcher_TransientAfterAttempts(t *testing.T) {
	f, calls, _ := testFetcher(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	snap := f.Fetch(context.Background(), mar10(t))
	assert.Equal(t, domain.StatusTransientError, snap.Status)
	var se *StatusError
	require.ErrorAs(t, snap.Err, &se)
	assert.Equal(t, int32(3), calls.Load())

	entry, _, err := f.cache.Lookup(mar10(t))
	require.NoError(t, err)
	assert.Equal(t, EntryMiss, entry, "transient failures are not cached")
}

func TestFetcher_EmptyBodyIsTransient(t *testing.T) {
	f, _, _ := testFetcher(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	snap := f.Fetch(context.Background(), mar10(t))
	assert.Equal(t, domain.StatusTransientError, snap.Status)
	require.Error(t, snap.Err)
}

func TestFetcher_CancelledContextStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f, _, _ := testFetcher(t, func(w http.ResponseWriter, _ *http.Request) {
		cancel()
		w.WriteHeader(http.StatusBadGateway)
	})

	snap := f.Fetch(ctx, mar10(t))
	assert.Equal(t, domain.StatusTransientError, snap.Status)
	assert.True(t, errors.Is(snap.Err, context.Canceled))
}

func TestFetcher_EvictForcesRefetch(t *testing.T) {
	f, calls, _ := testFetcher(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, body)
	})

	f.Fetch(context.Background(), mar10(t))
	require.NoError(t, f.Evict(mar10(t)))
	snap := f.Fetch(context.Background(), mar10(t))
	assert.Equal(t, domain.StatusFetched, snap.Status)
	assert.Equal(t, int32(2), calls.Load())
}

func TestNextBackoff(t *testing.T) {
	assert.Equal(t, 400*time.Millisecond, nextBackoff(200*time.Millisecond, 5*time.Second))
	assert.Equal(t, 5*time.Second, nextBackoff(4*time.Second, 5*time.Second))
}
