//go:build smoke

package source

import (
	"context"
	"testing"
	"time"

	"github.com/couchcryptid/covid-report-etl/internal/config"
	"github.com/couchcryptid/covid-report-etl/internal/domain"
	"github.com/couchcryptid/covid-report-etl/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests hit the real publisher.
// Run with: go test -tags=smoke ./internal/adapter/source/ -v -count=1

func smokeFetcher(t *testing.T) *Fetcher {
	t.Helper()
	metrics := observability.NewMetricsForTesting()
	cache, err := NewDiskCache(t.TempDir())
	require.NoError(t, err)
	client := NewClient(ClientOptions{BaseURL: config.DefaultBaseURL, Timeout: 30 * time.Second, RequestsPerSecond: 1}, discardLogger(), metrics)
	return NewFetcher(client, cache, FetcherOptions{Attempts: 3, Backoff: time.Second, MaxBackoff: 5 * time.Second}, discardLogger(), metrics)
}

func TestSmoke_PublishedDate(t *testing.T) {
	f := smokeFetcher(t)
	date, err := domain.ParseDate("04-12-2020")
	require.NoError(t, err)

	snap := f.Fetch(context.Background(), date)
	require.Equal(t, domain.StatusFetched, snap.Status, "err: %v", snap.Err)

	raw, err := domain.ParseSnapshot(snap.Raw)
	require.NoError(t, err)
	assert.NotEmpty(t, raw.Records)
}

func TestSmoke_UnpublishedDate(t *testing.T) {
	f := smokeFetcher(t)
	date, err := domain.ParseDate("01-01-2019")
	require.NoError(t, err)

	snap := f.Fetch(context.Background(), date)
	assert.Equal(t, domain.StatusNotFound, snap.Status)
}
