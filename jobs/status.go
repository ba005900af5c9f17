package jobs

import "strings"

// Status is the platform-independent state of a job run.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
	// StatusUnknown covers missing or unrecognized platform states. It is never terminal.
	StatusUnknown Status = "UNKNOWN"
)

// IsTerminal reports whether the run can no longer change state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsActive reports whether the run is queued or executing.
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusRunning
}

// Normalize maps a Databricks-style life cycle state and result state to a Status.
// Matching is case-insensitive; anything unrecognized is StatusUnknown.
func Normalize(lifeCycleState, resultState string) Status {
	life := strings.ToUpper(strings.TrimSpace(lifeCycleState))
	result := strings.ToUpper(strings.TrimSpace(resultState))

	switch life {
	case "QUEUED", "PENDING", "BLOCKED", "WAITING_FOR_RETRY":
		return StatusPending
	case "RUNNING", "TERMINATING":
		return StatusRunning
	case "SKIPPED":
		return StatusCancelled
	case "INTERNAL_ERROR":
		return StatusFailed
	case "TERMINATED":
		return normalizeResult(result)
	case "":
		// Some responses carry only the result state.
		return normalizeResult(result)
	default:
		return StatusUnknown
	}
}

func normalizeResult(result string) Status {
	switch result {
	case "SUCCESS":
		return StatusSucceeded
	case "FAILED", "TIMEDOUT", "SUCCESS_WITH_FAILURES", "UPSTREAM_FAILED", "MAXIMUM_CONCURRENT_RUNS_REACHED":
		return StatusFailed
	case "CANCELED", "CANCELLED", "UPSTREAM_CANCELED", "EXCLUDED":
		return StatusCancelled
	default:
		return StatusUnknown
	}
}
