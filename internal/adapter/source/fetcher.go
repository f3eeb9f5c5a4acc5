package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/covid-report-etl/internal/domain"
	"github.com/couchcryptid/covid-report-etl/internal/observability"
)

// Getter performs one request for a date's report file.
type Getter interface {
	Get(ctx context.Context, date time.Time) (Response, error)
}

// FetcherOptions configures retries.
type FetcherOptions struct {
	Attempts   int
	Backoff    time.Duration
	MaxBackoff time.Duration
}

// Fetcher resolves a date to a Snapshot, consulting the disk cache first and
// retrying transient failures with exponential backoff.
type Fetcher struct {
	getter  Getter
	cache   *DiskCache
	opts    FetcherOptions
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewFetcher creates a Fetcher.
func NewFetcher(getter Getter, cache *DiskCache, opts FetcherOptions, logger *slog.Logger, metrics *observability.Metrics) *Fetcher {
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}
	return &Fetcher{getter: getter, cache: cache, opts: opts, logger: logger, metrics: metrics}
}

// Fetch returns the snapshot for date. It never returns an error: failures
// are reported through Snapshot.Status and Snapshot.Err. A cached body or
// missing marker short-circuits the network entirely.
func (f *Fetcher) Fetch(ctx context.Context, date time.Time) domain.Snapshot {
	snap := f.fetch(ctx, date)
	f.metrics.FetchOutcomes.WithLabelValues(snap.Status.String()).Inc()
	return snap
}

func (f *Fetcher) fetch(ctx context.Context, date time.Time) domain.Snapshot {
	snap := domain.Snapshot{Date: date}

	entry, body, err := f.cache.Lookup(date)
	if err != nil {
		f.logger.Warn("cache lookup failed, refetching", "error", err, "date", domain.FormatDate(date))
	}
	switch entry {
	case EntrySnapshot:
		snap.Raw, snap.Status = body, domain.StatusCachedHit
		return snap
	case EntryMissing:
		snap.Status = domain.StatusNotFound
		return snap
	}

	backoff := f.opts.Backoff
	var lastErr error
	for attempt := 1; attempt <= f.opts.Attempts; attempt++ {
		resp, err := f.getter.Get(ctx, date)
		switch {
		case err == nil && resp.StatusCode == http.StatusOK && len(resp.Body) > 0:
			if err := f.cache.PutSnapshot(date, resp.Body); err != nil {
				f.logger.Warn("cache write failed", "error", err, "date", domain.FormatDate(date))
			}
			snap.Raw, snap.Status = resp.Body, domain.StatusFetched
			return snap
		case err == nil && resp.StatusCode >= 400:
			detail := fmt.Sprintf("status %d", resp.StatusCode)
			if err := f.cache.PutMissing(date, detail); err != nil {
				f.logger.Warn("cache write failed", "error", err, "date", domain.FormatDate(date))
			}
			snap.Status = domain.StatusNotFound
			return snap
		case err == nil:
			lastErr = fmt.Errorf("unexpected response: status %d, %d bytes", resp.StatusCode, len(resp.Body))
		default:
			lastErr = err
		}

		if ctx.Err() != nil {
			lastErr = errors.Join(lastErr, ctx.Err())
			break
		}
		if attempt == f.opts.Attempts {
			break
		}
		f.logger.Debug("fetch attempt failed, retrying",
			"error", lastErr, "date", domain.FormatDate(date), "attempt", attempt, "backoff", backoff)
		if !sleepWithContext(ctx, backoff) {
			lastErr = errors.Join(lastErr, ctx.Err())
			break
		}
		backoff = nextBackoff(backoff, f.opts.MaxBackoff)
	}

	snap.Status, snap.Err = domain.StatusTransientError, lastErr
	return snap
}

// Evict drops the cached entry for date so the next Fetch goes to the
// network.
func (f *Fetcher) Evict(date time.Time) error {
	return f.cache.Evict(date)
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if maxBackoff > 0 && next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
