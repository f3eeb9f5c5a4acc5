package domain

import "errors"

var (
	// ErrInvalidDateFormat is returned when a date bound is not MM-DD-YYYY.
	ErrInvalidDateFormat = errors.New("invalid date format")
	// ErrInvalidRange is returned when the start of a range is after its end.
	ErrInvalidRange = errors.New("invalid date range")
	// ErrUpToDate is returned by DefaultRange when every date through
	// yesterday has already been merged.
	ErrUpToDate = errors.New("nothing to ingest")

	// ErrEmptySnapshot marks a snapshot with no header row.
	ErrEmptySnapshot = errors.New("empty snapshot")
	// ErrMalformedSnapshot marks a snapshot body that is not valid CSV.
	ErrMalformedSnapshot = errors.New("malformed snapshot")

	// ErrAlreadyMerged is returned when a date is merged into a table twice.
	ErrAlreadyMerged = errors.New("date already merged")
	// ErrSchemaShrink is returned when a merge would drop a canonical column.
	ErrSchemaShrink = errors.New("canonical schema cannot shrink")
	// ErrRowWidth is returned when a row does not match its schema width.
	ErrRowWidth = errors.New("row width does not match schema")

	// ErrStorage wraps failures to persist a checkpoint. It is the only
	// per-date error that aborts a run.
	ErrStorage = errors.New("checkpoint storage")
)
