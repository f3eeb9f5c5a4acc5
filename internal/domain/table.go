package domain

import (
	"fmt"
	"slices"
	"time"
)

// Table is the accumulated, longitudinal result of an ingestion: every
// merged row aligned with one canonical schema, plus the set of dates
// merged so far. A Table is not safe for concurrent mutation.
type Table struct {
	schema Schema
	rows   []Row
	merged map[time.Time]int // report date → row count
	dates  []time.Time       // merged dates, ascending
}

// NewTable returns an empty table with an empty schema.
func NewTable() *Table {
	return &Table{merged: make(map[time.Time]int)}
}

// RestoreTable rebuilds a table from persisted state. Every row must match
// the schema width and carry one of the merged dates; dates with no rows
// (a published header with no data) are allowed.
func RestoreTable(schema Schema, rows []Row, dates []time.Time) (*Table, error) {
	t := &Table{schema: schema, merged: make(map[time.Time]int, len(dates))}
	for _, d := range dates {
		d = truncateDay(d)
		if _, dup := t.merged[d]; dup {
			return nil, fmt.Errorf("restore: %w: %s", ErrAlreadyMerged, FormatDate(d))
		}
		t.merged[d] = 0
		t.dates = append(t.dates, d)
	}
	slices.SortFunc(t.dates, func(a, b time.Time) int { return a.Compare(b) })
	for i, r := range rows {
		if len(r.Values) != schema.Len() {
			return nil, fmt.Errorf("restore row %d: %w", i, ErrRowWidth)
		}
		n, ok := t.merged[r.ReportDate]
		if !ok {
			return nil, fmt.Errorf("restore row %d: report date %s not marked merged", i, FormatDate(r.ReportDate))
		}
		t.merged[r.ReportDate] = n + 1
	}
	t.rows = rows
	return t, nil
}

// Schema returns the current canonical schema.
func (t *Table) Schema() Schema { return t.schema }

// Rows returns the rows in merge order. The slice must not be modified.
func (t *Table) Rows() []Row { return t.rows }

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// HasMerged reports whether date has already been merged.
func (t *Table) HasMerged(date time.Time) bool {
	_, ok := t.merged[truncateDay(date)]
	return ok
}

// MergedDates returns the merged dates in ascending order.
func (t *Table) MergedDates() []time.Time { return slices.Clone(t.dates) }

// LastMerged returns the latest merged date.
func (t *Table) LastMerged() (time.Time, bool) {
	if len(t.dates) == 0 {
		return time.Time{}, false
	}
	return t.dates[len(t.dates)-1], true
}

// RowCount returns the number of rows merged for date.
func (t *Table) RowCount(date time.Time) int {
	return t.merged[truncateDay(date)]
}

// RowsFor returns the rows whose report date is date.
func (t *Table) RowsFor(date time.Time) []Row {
	d := truncateDay(date)
	var out []Row
	for _, r := range t.rows {
		if r.ReportDate.Equal(d) {
			out = append(out, r)
		}
	}
	return out
}

// Merge appends one date's normalized rows. schema must cover the current
// schema; when it differs, existing rows are re-aligned to it first, with
// new columns backfilled by their kind's default. Each date can be merged
// at most once. Merge reports whether the schema changed.
func (t *Table) Merge(date time.Time, schema Schema, rows []Row) (bool, error) {
	d := truncateDay(date)
	if _, dup := t.merged[d]; dup {
		return false, fmt.Errorf("%w: %s", ErrAlreadyMerged, FormatDate(d))
	}
	if !schema.Covers(t.schema) {
		return false, ErrSchemaShrink
	}
	for i, r := range rows {
		if len(r.Values) != schema.Len() {
			return false, fmt.Errorf("row %d: %w", i, ErrRowWidth)
		}
		if !r.ReportDate.Equal(d) {
			return false, fmt.Errorf("row %d: report date %s does not match %s", i, FormatDate(r.ReportDate), FormatDate(d))
		}
	}

	changed := !schema.Equal(t.schema)
	if changed {
		t.realign(schema)
	}
	t.rows = append(t.rows, rows...)
	t.merged[d] = len(rows)
	pos, _ := slices.BinarySearchFunc(t.dates, d, func(a, b time.Time) int { return a.Compare(b) })
	t.dates = slices.Insert(t.dates, pos, d)
	return changed, nil
}

func (t *Table) realign(schema Schema) {
	src := make([]int, schema.Len())
	for i := range src {
		src[i] = -1
		if j, ok := t.schema.Index(schema.Column(i).Name); ok {
			src[i] = j
		}
	}
	for r := range t.rows {
		old := t.rows[r].Values
		values := make([]Value, schema.Len())
		for i, j := range src {
			kind := schema.Column(i).Kind
			if j < 0 {
				values[i] = DefaultValue(kind)
				continue
			}
			values[i] = old[j].convert(kind)
		}
		t.rows[r].Values = values
	}
	t.schema = schema
}
