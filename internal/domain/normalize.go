package domain

import (
	"fmt"
	"strings"
	"time"
)

// timestampLayouts covers every Last_Update format the publisher has used.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/06 15:04:05",
	"1/2/06 15:04",
	"1/2/2006",
	"2006-01-02",
}

// ParseTimestamp parses a "last updated" value into UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// Issue is a cell that could not be parsed under its canonical kind. The
// cell keeps its default value.
type Issue struct {
	Row    int
	Column string
	Value  string
	Err    error
}

func (i Issue) Error() string {
	return fmt.Sprintf("row %d column %s: %v", i.Row, i.Column, i.Err)
}

// Normalize converts raw records into rows aligned with rec.Schema. Every
// canonical column receives a value: parsed from the snapshot when mapped,
// the kind's default otherwise. Rows are never dropped, and every row is
// stamped with date as its report date.
func Normalize(raw RawSnapshot, rec Reconciliation, date time.Time) ([]Row, []Issue) {
	schema := rec.Schema
	mapping := rec.Mapping()
	reportDate := truncateDay(date)

	rows := make([]Row, 0, len(raw.Records))
	var issues []Issue
	for r, record := range raw.Records {
		values := make([]Value, schema.Len())
		for c := range values {
			values[c] = DefaultValue(schema.Column(c).Kind)
		}
		for in, target := range mapping {
			if target < 0 || in >= len(record) {
				continue
			}
			col := schema.Column(target)
			v, err := ParseValue(record[in], col.Kind)
			if err != nil {
				issues = append(issues, Issue{Row: r, Column: col.Name, Value: record[in], Err: err})
			}
			values[target] = v
		}
		rows = append(rows, Row{ReportDate: reportDate, Values: values})
	}
	return rows, issues
}
