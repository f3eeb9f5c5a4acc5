package domain

import (
	"fmt"
	"iter"
	"time"
)

const (
	// DateLayout is the external date format used by the publisher's file
	// names and by range bounds: MM-DD-YYYY.
	DateLayout = "01-02-2006"
	// CacheDateLayout names cached snapshots on disk: mm_dd_yyyy.
	CacheDateLayout = "01_02_2006"
	// ISODateLayout is the layout used for report_date in stored tables.
	ISODateLayout = "2006-01-02"
)

const day = 24 * time.Hour

// DateRange is a closed, ascending interval of calendar days.
type DateRange struct {
	start time.Time
	end   time.Time
}

// ParseDate parses a MM-DD-YYYY string into a UTC midnight time.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDateFormat, s)
	}
	return t, nil
}

// FormatDate renders a date in the external MM-DD-YYYY form.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDateRange builds a range from two MM-DD-YYYY bounds.
func ParseDateRange(start, end string) (DateRange, error) {
	s, err := ParseDate(start)
	if err != nil {
		return DateRange{}, err
	}
	e, err := ParseDate(end)
	if err != nil {
		return DateRange{}, err
	}
	return NewDateRange(s, e)
}

// NewDateRange builds a range from two dates. Times of day are discarded.
func NewDateRange(start, end time.Time) (DateRange, error) {
	s, e := truncateDay(start), truncateDay(end)
	if s.After(e) {
		return DateRange{}, fmt.Errorf("%w: %s is after %s", ErrInvalidRange, FormatDate(s), FormatDate(e))
	}
	return DateRange{start: s, end: e}, nil
}

// DefaultRange computes the range to ingest when no bounds are given: from
// the day after the last merged date (or lookbackDays before yesterday when
// nothing has been merged) through yesterday.
func DefaultRange(lastMerged time.Time, merged bool, lookbackDays int) (DateRange, error) {
	end := truncateDay(clock.Now()).Add(-day)
	start := end.AddDate(0, 0, -lookbackDays)
	if merged {
		start = truncateDay(lastMerged).Add(day)
	}
	if start.After(end) {
		return DateRange{}, fmt.Errorf("%w: last merged %s", ErrUpToDate, FormatDate(lastMerged))
	}
	return DateRange{start: start, end: end}, nil
}

// Start returns the first date in the range.
func (r DateRange) Start() time.Time { return r.start }

// End returns the last date in the range.
func (r DateRange) End() time.Time { return r.end }

// Len returns the number of days in the range, bounds included.
func (r DateRange) Len() int {
	return int(r.end.Sub(r.start)/day) + 1
}

// All yields every date in the range in ascending order. The sequence can be
// iterated any number of times.
func (r DateRange) All() iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		for d := r.start; !d.After(r.end); d = d.AddDate(0, 0, 1) {
			if !yield(d) {
				return
			}
		}
	}
}

// Dates returns the range as a slice.
func (r DateRange) Dates() []time.Time {
	out := make([]time.Time, 0, r.Len())
	for d := range r.All() {
		out = append(out, d)
	}
	return out
}

func (r DateRange) String() string {
	return FormatDate(r.start) + ".." + FormatDate(r.end)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
