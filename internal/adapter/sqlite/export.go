// Package sqlite exports the accumulated table to a standalone SQLite file
// for ad-hoc analysis.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/covid-report-etl/internal/domain"
	_ "modernc.org/sqlite"
)

// Export writes table to a fresh database at path, replacing any previous
// export once the new one is complete. It returns the number of rows written.
func Export(ctx context.Context, path string, table *domain.Table) (int, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("create export dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.Remove(tmp); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return 0, fmt.Errorf("remove stale export: %w", err)
	}

	n, err := write(ctx, tmp, table)
	if err != nil {
		_ = os.Remove(tmp)
		return 0, err
	}
	if err := os.Rename(tmp, path); err != nil {
		return 0, fmt.Errorf("replace export: %w", err)
	}
	return n, nil
}

func write(ctx context.Context, path string, table *domain.Table) (int, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return 0, fmt.Errorf("open sqlite: %w", err)
	}
	defer db.Close()

	schema := table.Schema()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for _, stmt := range []string{createColumnsSQL, createReportsSQL(schema)} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return 0, fmt.Errorf("create tables: %w", err)
		}
	}

	for i, c := range schema.Columns() {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO canonical_columns (position, name, kind) VALUES (?, ?, ?)`,
			i, c.Name, c.Kind.String()); err != nil {
			return 0, fmt.Errorf("insert column %s: %w", c.Name, err)
		}
	}

	insert, err := tx.PrepareContext(ctx, insertReportSQL(schema))
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer insert.Close()

	args := make([]any, schema.Len()+1)
	for n, r := range table.Rows() {
		for i, v := range r.Values {
			args[i] = sqlValue(v)
		}
		args[schema.Len()] = r.ReportDate.Format(domain.ISODateLayout)
		if _, err := insert.ExecContext(ctx, args...); err != nil {
			return 0, fmt.Errorf("insert row %d: %w", n, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit export: %w", err)
	}
	return table.Len(), nil
}

const createColumnsSQL = `CREATE TABLE canonical_columns (
	position INTEGER PRIMARY KEY,
	name     TEXT NOT NULL UNIQUE,
	kind     TEXT NOT NULL
)`

func createReportsSQL(schema domain.Schema) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE daily_reports (\n")
	for _, c := range schema.Columns() {
		fmt.Fprintf(&b, "\t%s %s,\n", quoteIdent(c.Name), columnType(c.Kind))
	}
	b.WriteString("\treport_date TEXT NOT NULL\n)")
	return b.String()
}

func insertReportSQL(schema domain.Schema) string {
	names := make([]string, 0, schema.Len()+1)
	for _, n := range schema.Names() {
		names = append(names, quoteIdent(n))
	}
	names = append(names, domain.ReportDateColumn)
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
	return fmt.Sprintf("INSERT INTO daily_reports (%s) VALUES (%s)", strings.Join(names, ", "), marks)
}

func columnType(k domain.Kind) string {
	switch k {
	case domain.KindInt:
		return "INTEGER"
	case domain.KindFloat:
		return "REAL"
	default:
		return "TEXT"
	}
}

func sqlValue(v domain.Value) any {
	if v.Kind == domain.KindTime {
		if v.Time.IsZero() {
			return nil
		}
		return v.String()
	}
	return v.Any()
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
