package scan

import (
	"fmt"
	"time"

	"github.com/zero-day-ai/audityzer/finding"
)

// Job is one audit run against a target address.
//
// Jobs are values. The store replaces a job as a whole record and never
// mutates one in place, so a Job obtained from a snapshot stays consistent.
type Job struct {
	// ID is the unique, immutable job identifier.
	ID string `json:"id"`

	// TargetAddress is the contract address being audited.
	TargetAddress string `json:"targetAddress"`

	// Status is the lifecycle state.
	Status Status `json:"status"`

	// SubmittedAt is when the job was created.
	SubmittedAt time.Time `json:"submittedAt"`

	// CompletedAt is set when the job reaches a terminal state.
	CompletedAt *time.Time `json:"completedAt,omitempty"`

	// Result is present if and only if Status is StatusCompleted.
	Result *finding.AuditResult `json:"result,omitempty"`
}

// Validate checks the job's structural invariants.
func (j Job) Validate() error {
	if j.ID == "" {
		return fmt.Errorf("job id is required")
	}
	if !j.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", j.Status)
	}
	if j.SubmittedAt.IsZero() {
		return fmt.Errorf("submitted_at is required")
	}
	if (j.Status == StatusCompleted) != (j.Result != nil) {
		return fmt.Errorf("result must be present only for completed jobs, status is %s", j.Status)
	}
	if j.Status.IsTerminal() && j.CompletedAt == nil {
		return fmt.Errorf("completed_at is required for %s jobs", j.Status)
	}
	return nil
}

// clone returns a copy that shares no memory with j.
func (j Job) clone() Job {
	if j.CompletedAt != nil {
		at := *j.CompletedAt
		j.CompletedAt = &at
	}
	j.Result = j.Result.Clone()
	return j
}

// HasResult reports whether the job carries an audit result.
func (j Job) HasResult() bool {
	return j.Result != nil
}

// Duration returns the time between submission and completion, or zero
// while the job is not terminal.
func (j Job) Duration() time.Duration {
	if j.CompletedAt == nil {
		return 0
	}
	return j.CompletedAt.Sub(j.SubmittedAt)
}
