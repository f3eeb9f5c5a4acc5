// Package pipeline drives an ingestion run: fetch each date's snapshot,
// reconcile it against the accumulated schema, merge, checkpoint, and offer
// the merged rows to downstream sinks.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/covid-report-etl/internal/domain"
	"github.com/couchcryptid/covid-report-etl/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("covid-report-etl/pipeline")

// SnapshotFetcher resolves a date to its published snapshot. Fetch never
// fails outright; the outcome is carried by Snapshot.Status.
type SnapshotFetcher interface {
	Fetch(ctx context.Context, date time.Time) domain.Snapshot
	// Evict discards a cached snapshot that turned out to be unreadable.
	Evict(date time.Time) error
}

// Checkpointer durably records the table after each merge.
type Checkpointer interface {
	Commit(table *domain.Table, added []domain.Row, schemaChanged bool) error
}

// Publisher receives each date's merged rows. Failures are logged and
// counted; they never stop a run.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, date time.Time, schema domain.Schema, rows []domain.Row) error
}

// Options tunes a Pipeline.
type Options struct {
	Rules domain.Rules
	// RequiredColumns are logged as a warning when a snapshot lacks them.
	RequiredColumns []string
	// PrefetchWorkers bounds concurrent fetch-ahead. Zero fetches each date
	// only when it is reached.
	PrefetchWorkers int
	Publishers      []Publisher
}

// errInterrupted marks a date whose fetch was cut short by cancellation.
// The date stays pending and the run stops.
var errInterrupted = errors.New("interrupted")

const publishTimeout = 30 * time.Second

// Pipeline merges dates into one accumulated table, strictly in ascending
// order. Runs must not overlap; callers serialize them through the
// checkpoint lock.
type Pipeline struct {
	fetcher SnapshotFetcher
	store   Checkpointer
	table   *domain.Table
	opts    Options
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New creates a Pipeline that extends table, typically the one restored
// from the checkpoint store.
func New(f SnapshotFetcher, store Checkpointer, table *domain.Table, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	if opts.Rules.Scorer == nil && opts.Rules.Aliases == nil {
		opts.Rules = domain.DefaultRules()
	}
	p := &Pipeline{
		fetcher: f,
		store:   store,
		table:   table,
		opts:    opts,
		logger:  logger,
		metrics: metrics,
	}
	metrics.SchemaColumns.Set(float64(table.Schema().Len()))
	if last, ok := table.LastMerged(); ok {
		metrics.LastMergedDate.Set(float64(last.Unix()))
	}
	return p
}

// Run processes every date in r in ascending order. Dates already merged
// are skipped. Cancelling ctx stops the run between dates; the date being
// merged is always finished and checkpointed first. The returned error is
// non-nil only for a storage failure, which aborts the run; the report is
// returned either way.
func (p *Pipeline) Run(ctx context.Context, r domain.DateRange) (*domain.RunReport, error) {
	ctx, span := tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("range", r.String()),
		attribute.Int("dates", r.Len()),
	))
	defer span.End()

	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	report := &domain.RunReport{Range: r, StartedAt: time.Now().UTC()}
	p.logger.Info("ingestion started", "range", r.String(), "dates", r.Len(), "prefetch_workers", p.opts.PrefetchWorkers)

	var pending []time.Time
	for d := range r.All() {
		if !p.table.HasMerged(d) {
			pending = append(pending, d)
		}
	}
	pf := startPrefetch(ctx, p.fetcher, pending, p.opts.PrefetchWorkers)
	defer pf.stop()

	for date := range r.All() {
		if ctx.Err() != nil {
			report.Cancelled = true
			p.logger.Info("ingestion cancelled between dates", "next_date", domain.FormatDate(date))
			break
		}

		res, err := p.processDate(ctx, date, pf)
		if errors.Is(err, errInterrupted) {
			report.Cancelled = true
			p.logger.Info("ingestion cancelled during fetch", "date", domain.FormatDate(date))
			break
		}
		report.Results = append(report.Results, res)
		p.metrics.DatesProcessed.WithLabelValues(res.State.String()).Inc()
		if err != nil {
			report.Err = err
			report.FinishedAt = time.Now().UTC()
			span.RecordError(err)
			span.SetStatus(codes.Error, "storage failure")
			p.logger.Error("ingestion aborted", "error", err, "date", domain.FormatDate(date))
			return report, err
		}
	}

	report.FinishedAt = time.Now().UTC()
	p.logger.Info("ingestion finished",
		"range", r.String(),
		"merged", report.Count(domain.StateMerged),
		"already_merged", report.Count(domain.StateAlreadyMerged),
		"skipped", report.Count(domain.StateSkipped),
		"skipped_with_warning", report.Count(domain.StateSkippedWithWarning),
		"rows", report.RowsMerged(),
		"columns_added", report.ColumnsAdded(),
		"cancelled", report.Cancelled,
		"duration", report.FinishedAt.Sub(report.StartedAt),
	)
	return report, nil
}

// processDate moves one date from Pending to a terminal state. Only a
// checkpoint failure is returned as an error.
func (p *Pipeline) processDate(ctx context.Context, date time.Time, pf *prefetcher) (domain.DateResult, error) {
	res := domain.DateResult{Date: date, State: domain.StatePending}
	day := domain.FormatDate(date)
	log := p.logger.With("date", day)

	if p.table.HasMerged(date) {
		res.State = domain.StateAlreadyMerged
		log.Debug("date already merged", "state", res.State.String())
		return res, nil
	}

	ctx, span := tracer.Start(ctx, "pipeline.date", trace.WithAttributes(attribute.String("report_date", day)))
	defer span.End()

	res.State = domain.StateFetching
	snap := pf.get(ctx, date)
	res.Status = snap.Status
	span.SetAttributes(attribute.String("fetch_status", snap.Status.String()))

	switch snap.Status {
	case domain.StatusNotFound:
		res.State = domain.StateSkipped
		log.Info("no report published", "state", res.State.String(), "status", snap.Status.String())
		return res, nil
	case domain.StatusTransientError:
		if ctx.Err() != nil {
			return res, errInterrupted
		}
		res.State = domain.StateSkippedWithWarning
		res.Err = snap.Err
		log.Warn("fetch failed after retries", "state", res.State.String(), "status", snap.Status.String(), "error", snap.Err)
		return res, nil
	}

	res.State = domain.StateReconciling
	raw, err := domain.ParseSnapshot(snap.Raw)
	if err != nil {
		res.State = domain.StateSkippedWithWarning
		res.Err = err
		if evictErr := p.fetcher.Evict(date); evictErr != nil {
			log.Warn("evict unreadable snapshot", "error", evictErr)
		}
		log.Warn("snapshot unreadable, evicted from cache", "state", res.State.String(), "status", snap.Status.String(), "error", err)
		return res, nil
	}

	rec := domain.Reconcile(p.table.Schema(), raw.Columns, p.opts.Rules)
	for _, c := range rec.Conflicts {
		log.Warn("schema conflict", "column", c.Incoming, "reason", c.Reason, "candidates", c.Candidates, "chosen", c.Chosen)
	}
	if missing := rec.Missing(p.opts.RequiredColumns); len(missing) > 0 {
		log.Warn("snapshot lacks required columns", "columns", missing)
	}

	rows, issues := domain.Normalize(raw, rec, date)
	for _, is := range issues {
		log.Debug("value kept default", "row", is.Row, "column", is.Column, "value", is.Value, "error", is.Err)
	}
	if len(issues) > 0 {
		log.Warn("unparseable values kept defaults", "issues", len(issues), "first_column", issues[0].Column, "first_error", issues[0].Err)
	}

	changed, err := p.table.Merge(date, rec.Schema, rows)
	if err != nil {
		res.State = domain.StateSkippedWithWarning
		res.Err = err
		log.Warn("merge rejected", "state", res.State.String(), "error", err)
		return res, nil
	}

	res.State = domain.StateMerged
	res.Rows = len(rows)
	res.Added = rec.Added
	res.Renamed = rec.Renamed()
	res.Conflicts = rec.Conflicts
	res.Issues = len(issues)

	start := time.Now()
	if err := p.store.Commit(p.table, rows, changed); err != nil {
		res.Err = err
		span.RecordError(err)
		if !errors.Is(err, domain.ErrStorage) {
			err = fmt.Errorf("%w: %w", domain.ErrStorage, err)
		}
		return res, fmt.Errorf("checkpoint %s: %w", day, err)
	}
	p.metrics.CheckpointDuration.Observe(time.Since(start).Seconds())

	p.metrics.RowsMerged.Add(float64(len(rows)))
	p.metrics.ColumnsAdded.Add(float64(len(rec.Added)))
	p.metrics.SchemaConflicts.Add(float64(len(rec.Conflicts)))
	p.metrics.NormalizeIssues.Add(float64(len(issues)))
	p.metrics.SchemaColumns.Set(float64(p.table.Schema().Len()))
	if last, ok := p.table.LastMerged(); ok {
		p.metrics.LastMergedDate.Set(float64(last.Unix()))
	}

	log.Info("date merged",
		"state", res.State.String(),
		"status", snap.Status.String(),
		"rows", len(rows),
		"columns_added", rec.Added,
		"renamed", res.Renamed,
		"schema_columns", p.table.Schema().Len(),
	)

	p.publish(ctx, date, rows)
	return res, nil
}

// publish runs detached from cancellation so a date that was merged also
// reaches the sinks, bounded by publishTimeout.
func (p *Pipeline) publish(ctx context.Context, date time.Time, rows []domain.Row) {
	if len(rows) == 0 || len(p.opts.Publishers) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	schema := p.table.Schema()
	for _, pub := range p.opts.Publishers {
		if err := pub.Publish(ctx, date, schema, rows); err != nil {
			p.metrics.PublishErrors.WithLabelValues(pub.Name()).Inc()
			p.logger.Warn("publish failed", "sink", pub.Name(), "date", domain.FormatDate(date), "rows", len(rows), "error", err)
		}
	}
}
