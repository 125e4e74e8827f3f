package scan

import "fmt"

// Status is the lifecycle state of a scan job.
type Status string

const (
	// StatusPending indicates the job is waiting for an analysis slot.
	StatusPending Status = "Pending"

	// StatusRunning indicates the analysis call is in flight.
	StatusRunning Status = "Running"

	// StatusCompleted indicates the analysis returned a result. Terminal.
	StatusCompleted Status = "Completed"

	// StatusFailed indicates the analysis could not produce a result. Terminal.
	StatusFailed Status = "Failed"
)

// transitions lists the legal next states for each state.
var transitions = map[Status][]Status{
	StatusPending: {StatusRunning},
	StatusRunning: {StatusCompleted, StatusFailed},
}

// IsValid returns true if the status is a known lifecycle state.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether moving from s to next is allowed.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// ParseStatus parses a status name. Matching is exact.
func ParseStatus(s string) (Status, error) {
	status := Status(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid status: %s", s)
	}
	return status, nil
}

// AllStatuses returns every lifecycle state in lifecycle order.
func AllStatuses() []Status {
	return []Status{StatusPending, StatusRunning, StatusCompleted, StatusFailed}
}
