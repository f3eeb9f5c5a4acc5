package pipeline

import (
	"context"
	"time"

	"github.com/couchcryptid/covid-report-etl/internal/domain"
	"golang.org/x/sync/errgroup"
)

// prefetcher fetches upcoming dates ahead of the merge loop. At most
// 2×workers dates are in flight or waiting to be consumed, so a long range
// does not race far ahead of the merge.
type prefetcher struct {
	fetcher SnapshotFetcher
	results map[time.Time]chan domain.Snapshot
	window  chan struct{}
	cancel  context.CancelFunc
	done    chan struct{}
	group   errgroup.Group
}

func startPrefetch(ctx context.Context, f SnapshotFetcher, dates []time.Time, workers int) *prefetcher {
	pf := &prefetcher{fetcher: f, done: make(chan struct{})}
	if workers <= 0 || len(dates) == 0 {
		close(pf.done)
		return pf
	}

	ctx, pf.cancel = context.WithCancel(ctx)
	pf.results = make(map[time.Time]chan domain.Snapshot, len(dates))
	for _, d := range dates {
		pf.results[d] = make(chan domain.Snapshot, 1)
	}
	pf.window = make(chan struct{}, 2*workers)
	pf.group.SetLimit(workers)

	go func() {
		defer close(pf.done)
		for _, d := range dates {
			select {
			case pf.window <- struct{}{}:
			case <-ctx.Done():
				return
			}
			out := pf.results[d]
			pf.group.Go(func() error {
				out <- f.Fetch(ctx, d)
				return nil
			})
		}
	}()
	return pf
}

// get returns date's snapshot, waiting for its prefetch when one was
// scheduled and fetching inline otherwise.
func (pf *prefetcher) get(ctx context.Context, date time.Time) domain.Snapshot {
	out, ok := pf.results[date]
	if !ok {
		return pf.fetcher.Fetch(ctx, date)
	}
	select {
	case snap := <-out:
		<-pf.window
		return snap
	case <-ctx.Done():
		return domain.Snapshot{Date: date, Status: domain.StatusTransientError, Err: ctx.Err()}
	}
}

// stop cancels outstanding fetches and waits for them to return.
func (pf *prefetcher) stop() {
	if pf.cancel != nil {
		pf.cancel()
	}
	<-pf.done
	_ = pf.group.Wait()
}
