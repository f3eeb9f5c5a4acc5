package domain

import "time"

// DateResult is the outcome of one date in an ingestion run.
type DateResult struct {
	Date      time.Time
	State     DateState
	Status    FetchStatus
	Rows      int
	Added     []string
	Renamed   map[string]string
	Conflicts []Conflict
	Issues    int
	Err       error
}

// RunReport summarizes an ingestion run.
type RunReport struct {
	Range      DateRange
	StartedAt  time.Time
	FinishedAt time.Time
	Results    []DateResult
	// Cancelled is set when the run stopped between dates on request.
	Cancelled bool
	// Err is the fatal error that aborted the run, if any.
	Err error
}

// Count returns how many dates ended in state s.
func (r *RunReport) Count(s DateState) int {
	n := 0
	for _, res := range r.Results {
		if res.State == s {
			n++
		}
	}
	return n
}

// RowsMerged returns the total number of rows merged in the run.
func (r *RunReport) RowsMerged() int {
	n := 0
	for _, res := range r.Results {
		if res.State == StateMerged {
			n += res.Rows
		}
	}
	return n
}

// ColumnsAdded returns every column added during the run, in order.
func (r *RunReport) ColumnsAdded() []string {
	var out []string
	for _, res := range r.Results {
		out = append(out, res.Added...)
	}
	return out
}
