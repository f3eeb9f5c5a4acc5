package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/couchcryptid/covid-report-etl/internal/adapter/checkpoint"
	kafkaadapter "github.com/couchcryptid/covid-report-etl/internal/adapter/kafka"
	"github.com/couchcryptid/covid-report-etl/internal/adapter/notify"
	"github.com/couchcryptid/covid-report-etl/internal/adapter/postgres"
	"github.com/couchcryptid/covid-report-etl/internal/adapter/source"
	"github.com/couchcryptid/covid-report-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/covid-report-etl/internal/domain"
	"github.com/couchcryptid/covid-report-etl/internal/pipeline"
)

// lockTTL bounds how long a crashed ingestion can hold the checkpoint.
const lockTTL = 6 * time.Hour

// ingestOptions are per-invocation overrides of the configured run.
type ingestOptions struct {
	start, end string
	export     bool
}

// withCheckpoint locks the checkpoint directory, restores the table, and
// calls fn with both. The lock is released when fn returns.
func (a *app) withCheckpoint(fn func(store *checkpoint.Store, table *domain.Table) error) error {
	store, err := checkpoint.Open(a.cfg.CheckpointDir, a.logger)
	if err != nil {
		return err
	}
	lock, err := store.Lock(lockTTL)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			a.logger.Warn("release checkpoint lock", "error", err)
		}
	}()

	table, err := store.Load()
	if err != nil {
		return err
	}
	return fn(store, table)
}

// ingest runs one ingestion. A nil report with a nil error means every date
// through yesterday was already merged.
func (a *app) ingest(ctx context.Context, opts ingestOptions) (*domain.RunReport, error) {
	var report *domain.RunReport
	err := a.withCheckpoint(func(store *checkpoint.Store, table *domain.Table) error {
		r, err := a.resolveRange(table, opts)
		if errors.Is(err, domain.ErrUpToDate) {
			a.logger.Info("checkpoint is up to date", "reason", err.Error())
			return nil
		}
		if err != nil {
			return err
		}

		fetcher, err := a.newFetcher()
		if err != nil {
			return err
		}
		publishers, closeAll, err := a.publishers(ctx)
		if err != nil {
			return err
		}
		defer closeAll()

		p := pipeline.New(fetcher, store, table, pipeline.Options{
			Rules:           a.reconcile,
			RequiredColumns: a.rules.RequiredColumns,
			PrefetchWorkers: a.cfg.PrefetchWorkers,
			Publishers:      publishers,
		}, a.logger, a.metrics)

		report, err = p.Run(ctx, r)
		if err != nil {
			return err
		}
		if opts.export && a.cfg.SQLitePath != "" {
			n, err := sqlite.Export(context.WithoutCancel(ctx), a.cfg.SQLitePath, table)
			if err != nil {
				a.logger.Error("sqlite export failed", "error", err, "path", a.cfg.SQLitePath)
			} else {
				a.logger.Info("sqlite export written", "path", a.cfg.SQLitePath, "rows", n)
			}
		}
		return nil
	})
	if report != nil {
		a.notify(ctx, report)
	}
	return report, err
}

func (a *app) resolveRange(table *domain.Table, opts ingestOptions) (domain.DateRange, error) {
	start, end := a.cfg.StartDate, a.cfg.EndDate
	if opts.start != "" || opts.end != "" {
		start, end = opts.start, opts.end
	}
	switch {
	case start != "" && end != "":
		return domain.ParseDateRange(start, end)
	case start != "" || end != "":
		return domain.DateRange{}, errors.New("--start and --end must be given together")
	}
	last, merged := table.LastMerged()
	return domain.DefaultRange(last, merged, a.cfg.LookbackDays)
}

func (a *app) newFetcher() (*source.Fetcher, error) {
	cache, err := source.NewDiskCache(a.cfg.CacheDir)
	if err != nil {
		return nil, err
	}
	client := source.NewClient(source.ClientOptions{
		BaseURL:           a.cfg.BaseURL,
		Timeout:           a.cfg.FetchTimeout,
		RequestsPerSecond: a.cfg.FetchRate,
	}, a.logger, a.metrics)
	return source.NewFetcher(client, cache, source.FetcherOptions{
		Attempts:   a.cfg.FetchAttempts,
		Backoff:    a.cfg.FetchBackoff,
		MaxBackoff: a.cfg.FetchMaxBackoff,
	}, a.logger, a.metrics), nil
}

// publishers connects the configured downstream sinks. The returned func
// closes them.
func (a *app) publishers(ctx context.Context) ([]pipeline.Publisher, func(), error) {
	var (
		out     []pipeline.Publisher
		closers []func()
	)
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	if len(a.cfg.KafkaBrokers) > 0 {
		w := kafkaadapter.NewWriter(a.cfg.KafkaBrokers, a.cfg.KafkaTopic, a.rules.GeoColumn, a.logger)
		out = append(out, w)
		closers = append(closers, func() {
			if err := w.Close(); err != nil {
				a.logger.Error("kafka writer close error", "error", err)
			}
		})
	}
	if a.cfg.PostgresDSN != "" {
		sink, err := postgres.New(ctx, a.cfg.PostgresDSN, a.logger)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("connect postgres sink: %w", err)
		}
		out = append(out, sink)
		closers = append(closers, sink.Close)
	}
	return out, closeAll, nil
}

// notify emails the run summary. Delivery failures are logged only.
func (a *app) notify(ctx context.Context, report *domain.RunReport) {
	if !a.cfg.NotifyEnabled() {
		return
	}
	mailer := notify.NewMailer(notify.SMTPConfig{
		Host:     a.cfg.SMTPHost,
		Port:     a.cfg.SMTPPort,
		Username: a.cfg.SMTPUsername,
		Password: a.cfg.SMTPPassword,
		From:     a.cfg.NotifyFrom,
		To:       a.cfg.NotifyTo,
	})
	if err := mailer.Send(context.WithoutCancel(ctx), report); err != nil {
		a.logger.Error("run summary not sent", "error", err)
		return
	}
	a.logger.Info("run summary sent", "to", a.cfg.NotifyTo)
}
