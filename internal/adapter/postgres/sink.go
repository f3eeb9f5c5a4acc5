// Package postgres stores merged rows in PostgreSQL as jsonb documents keyed
// by report date and row position, so republishing a date inserts nothing.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/covid-report-etl/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultBatch    = 200
	defaultMaxConns = 2
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS daily_report_rows (
	report_date date        NOT NULL,
	seq         integer     NOT NULL,
	data        jsonb       NOT NULL,
	loaded_at   timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (report_date, seq)
)`

const insertSQL = `
INSERT INTO daily_report_rows (report_date, seq, data)
VALUES ($1, $2, $3::jsonb)
ON CONFLICT (report_date, seq) DO NOTHING`

// Sink implements pipeline.Publisher over a pgx connection pool.
type Sink struct {
	pool   *pgxpool.Pool
	batch  int
	logger *slog.Logger
}

// New connects to dsn and ensures the table exists.
func New(ctx context.Context, dsn string, logger *slog.Logger) (*Sink, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > defaultMaxConns {
		cfg.MaxConns = defaultMaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &Sink{pool: pool, batch: defaultBatch, logger: logger}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the rows table if needed.
func (s *Sink) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create daily_report_rows: %w", err)
	}
	return nil
}

// Name identifies the sink in logs and metrics.
func (s *Sink) Name() string { return "postgres" }

// Publish inserts rows in batches. Rows already present for the date are
// left untouched.
func (s *Sink) Publish(ctx context.Context, date time.Time, schema domain.Schema, rows []domain.Row) error {
	inserted, err := s.insert(ctx, date, schema, rows)
	if err != nil {
		return fmt.Errorf("insert rows for %s: %w", domain.FormatDate(date), err)
	}
	s.logger.Debug("rows published", "sink", s.Name(), "date", domain.FormatDate(date), "rows", len(rows), "inserted", inserted)
	return nil
}

func (s *Sink) insert(ctx context.Context, date time.Time, schema domain.Schema, rows []domain.Row) (int, error) {
	docs, err := documents(schema, rows)
	if err != nil {
		return 0, err
	}

	total := 0
	for i := 0; i < len(docs); i += s.batch {
		j := min(i+s.batch, len(docs))
		b := &pgx.Batch{}
		for k := i; k < j; k++ {
			b.Queue(insertSQL, date, k, docs[k])
		}
		br := s.pool.SendBatch(ctx, b)
		for range j - i {
			tag, err := br.Exec()
			if err != nil {
				_ = br.Close()
				return total, err
			}
			total += int(tag.RowsAffected())
		}
		if err := br.Close(); err != nil {
			return total, err
		}
	}
	return total, nil
}

// CountRows returns the number of stored rows for date.
func (s *Sink) CountRows(ctx context.Context, date time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM daily_report_rows WHERE report_date = $1`, date).Scan(&n)
	return n, err
}

// Close releases the pool.
func (s *Sink) Close() {
	s.pool.Close()
}

// documents renders each row as its JSON record. seq is the row's position
// within the date, which is stable because a date is merged once.
func documents(schema domain.Schema, rows []domain.Row) ([]string, error) {
	out := make([]string, len(rows))
	for i, r := range rows {
		data, err := json.Marshal(r.Record(schema))
		if err != nil {
			return nil, fmt.Errorf("encode row %d: %w", i, err)
		}
		out[i] = string(data)
	}
	return out, nil
}
