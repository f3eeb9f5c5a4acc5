package domain

import "time"

// FetchStatus is the terminal outcome of fetching one date's snapshot.
type FetchStatus uint8

const (
	StatusFetched FetchStatus = iota + 1
	StatusCachedHit
	StatusNotFound
	StatusTransientError
)

func (s FetchStatus) String() string {
	switch s {
	case StatusFetched:
		return "fetched"
	case StatusCachedHit:
		return "cached"
	case StatusNotFound:
		return "not_found"
	case StatusTransientError:
		return "transient_error"
	default:
		return "unknown"
	}
}

// HasData reports whether the snapshot carries a CSV body.
func (s FetchStatus) HasData() bool {
	return s == StatusFetched || s == StatusCachedHit
}

// Snapshot is one date's raw published report.
type Snapshot struct {
	Date   time.Time
	Raw    []byte
	Status FetchStatus
	// Err is set for StatusTransientError and carries the last failure.
	Err error
}

// DateState tracks a date through an ingestion run.
type DateState uint8

const (
	StatePending DateState = iota
	StateFetching
	StateFetched
	StateNotFound
	StateTransientError
	StateReconciling
	StateMerged
	StateSkipped
	StateSkippedWithWarning
	StateAlreadyMerged
)

func (s DateState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateFetching:
		return "fetching"
	case StateFetched:
		return "fetched"
	case StateNotFound:
		return "not_found"
	case StateTransientError:
		return "transient_error"
	case StateReconciling:
		return "reconciling"
	case StateMerged:
		return "merged"
	case StateSkipped:
		return "skipped"
	case StateSkippedWithWarning:
		return "skipped_with_warning"
	case StateAlreadyMerged:
		return "already_merged"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions follow s.
func (s DateState) Terminal() bool {
	switch s {
	case StateMerged, StateSkipped, StateSkippedWithWarning, StateAlreadyMerged:
		return true
	}
	return false
}
