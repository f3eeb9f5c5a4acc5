// Package validate checks a checkpoint directory for internal consistency and
// agreement with the snapshot cache.
package validate

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/couchcryptid/covid-report-etl/internal/adapter/checkpoint"
	"github.com/couchcryptid/covid-report-etl/internal/adapter/source"
	"github.com/couchcryptid/covid-report-etl/internal/domain"
)

// Phase tracks pass/fail for one group of checks.
type Phase struct {
	Name   string
	Errors []string
}

func (p *Phase) errorf(format string, args ...any) {
	p.Errors = append(p.Errors, fmt.Sprintf(format, args...))
}

// Passed reports whether the phase found no errors.
func (p *Phase) Passed() bool { return len(p.Errors) == 0 }

// Options selects what to validate.
type Options struct {
	CheckpointDir string
	// CacheDir is compared against merged dates when set.
	CacheDir        string
	RequiredColumns []string
	TimeColumns     []string
}

// Result is the outcome of a validation run.
type Result struct {
	Phases []*Phase
	Rows   int
	Dates  int
}

// Passed reports whether every phase passed.
func (r *Result) Passed() bool {
	for _, p := range r.Phases {
		if !p.Passed() {
			return false
		}
	}
	return true
}

// Run executes every phase. A checkpoint that cannot be loaded fails the
// first phase and skips the rest.
func Run(opts Options, logger *slog.Logger) *Result {
	res := &Result{}
	load := &Phase{Name: "Phase 1: Checkpoint Load"}
	res.Phases = append(res.Phases, load)

	store, err := checkpoint.Open(opts.CheckpointDir, logger)
	if err != nil {
		load.errorf("open %s: %v", opts.CheckpointDir, err)
		return res
	}
	table, err := store.Load()
	if err != nil {
		load.errorf("load %s: %v", opts.CheckpointDir, err)
		return res
	}
	res.Rows = table.Len()
	res.Dates = len(table.MergedDates())

	res.Phases = append(res.Phases,
		validateDates(table),
		validateSchema(table, opts),
	)
	if opts.CacheDir != "" {
		res.Phases = append(res.Phases, validateCache(table, opts.CacheDir))
	}
	return res
}

// ── Phase 2: Merged Dates ──

func validateDates(table *domain.Table) *Phase {
	p := &Phase{Name: "Phase 2: Merged Dates"}
	dates := table.MergedDates()
	today := time.Now().UTC()
	total := 0
	for i, d := range dates {
		if i > 0 && !d.After(dates[i-1]) {
			p.errorf("merged dates out of order: %s after %s", domain.FormatDate(d), domain.FormatDate(dates[i-1]))
		}
		if d.After(today) {
			p.errorf("merged date %s is in the future", domain.FormatDate(d))
		}
		total += table.RowCount(d)
	}
	if total != table.Len() {
		p.errorf("per-date row counts sum to %d, table has %d rows", total, table.Len())
	}
	for i, r := range table.Rows() {
		if !table.HasMerged(r.ReportDate) {
			p.errorf("row %d: report date %s not marked merged", i, domain.FormatDate(r.ReportDate))
		}
	}
	return p
}

// ── Phase 3: Schema ──

func validateSchema(table *domain.Table, opts Options) *Phase {
	p := &Phase{Name: "Phase 3: Canonical Schema"}
	schema := table.Schema()
	seen := make(map[string]string)
	for _, c := range schema.Columns() {
		if strings.TrimSpace(c.Name) == "" {
			p.errorf("empty column name")
			continue
		}
		if c.Name == domain.ReportDateColumn {
			p.errorf("column %s shadows the report date field", c.Name)
		}
		folded := strings.ToLower(c.Name)
		if prev, dup := seen[folded]; dup {
			p.errorf("columns %s and %s differ only by case", prev, c.Name)
		}
		seen[folded] = c.Name
	}
	if table.Len() == 0 {
		return p
	}
	for _, name := range opts.RequiredColumns {
		if !schema.Has(name) {
			p.errorf("required column %s missing", name)
		}
	}
	for _, name := range opts.TimeColumns {
		if i, ok := schema.Index(name); ok && schema.Column(i).Kind != domain.KindTime {
			p.errorf("time column %s has kind %s", name, schema.Column(i).Kind)
		}
	}
	return p
}

// ── Phase 4: Cache Agreement ──
// Every merged date must have its snapshot cached, no missing marker, and
// exactly as many rows as the snapshot has records.

func validateCache(table *domain.Table, dir string) *Phase {
	p := &Phase{Name: "Phase 4: Cache Agreement"}
	cache, err := source.NewDiskCache(dir)
	if err != nil {
		p.errorf("open cache %s: %v", dir, err)
		return p
	}
	for _, d := range table.MergedDates() {
		day := domain.FormatDate(d)
		entry, body, err := cache.Lookup(d)
		switch {
		case err != nil:
			p.errorf("%s: %v", day, err)
			continue
		case entry == source.EntryMissing:
			p.errorf("%s: merged but cached as not published", day)
			continue
		case entry == source.EntryMiss:
			p.errorf("%s: merged but not in cache", day)
			continue
		}
		raw, err := domain.ParseSnapshot(body)
		if err != nil {
			p.errorf("%s: cached snapshot unreadable: %v", day, err)
			continue
		}
		if got, want := table.RowCount(d), len(raw.Records); got != want {
			p.errorf("%s: table has %d rows, snapshot has %d records", day, got, want)
		}
	}
	return p
}

// Print writes a pass/fail summary followed by each failing phase's errors.
func Print(w io.Writer, res *Result) {
	fmt.Fprintln(w, "=== Checkpoint Integrity Validation ===")
	fmt.Fprintln(w)
	for _, p := range res.Phases {
		status := "\033[32mPASS\033[0m"
		if !p.Passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.Errors))
		}
		fmt.Fprintf(w, "  %-42s %s\n", p.Name, status)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Checkpoint: %d rows across %d merged dates\n", res.Rows, res.Dates)

	for _, p := range res.Phases {
		if p.Passed() {
			continue
		}
		fmt.Fprintf(w, "\n--- %s ---\n", p.Name)
		for i, e := range p.Errors {
			fmt.Fprintf(w, "  [%d] %s\n", i+1, e)
		}
	}

	if res.Passed() {
		fmt.Fprintln(w, "\nAll validations passed.")
		return
	}
	fmt.Fprintln(w, "\nValidation FAILED.")
}
