package queue

import (
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// WorkItem is a request to audit one contract, consumed by a worker.
type WorkItem struct {
	// JobID is the scan job id; the worker publishes to results:<JobID>.
	JobID string `json:"job_id"`

	// Address is the contract address to audit.
	Address string `json:"address"`

	// TraceID and SpanID identify the submitter's span, hex encoded.
	// Empty when the submission was not traced.
	TraceID string `json:"trace_id,omitempty"`
	SpanID  string `json:"span_id,omitempty"`

	// SubmittedAt is the Unix timestamp in milliseconds when work was submitted
	SubmittedAt int64 `json:"submitted_at"`
}

// Result is the outcome of processing a WorkItem, published on the job's
// result channel.
type Result struct {
	// JobID correlates this result with the original work item
	JobID string `json:"job_id"`

	// OutputJSON is the audit result serialized as JSON.
	// Empty if Error is set.
	OutputJSON string `json:"output_json,omitempty"`

	// Error is the error message if the audit failed.
	Error string `json:"error,omitempty"`

	// WorkerID is the unique identifier of the worker that processed this item
	WorkerID string `json:"worker_id"`

	// StartedAt is the Unix timestamp in milliseconds when execution started
	StartedAt int64 `json:"started_at"`

	// CompletedAt is the Unix timestamp in milliseconds when execution completed
	CompletedAt int64 `json:"completed_at"`
}

// Task is a ticket to create in a project management tool for one
// vulnerability. Tasks are pushed to integration:<target>:tasks.
type Task struct {
	JobID          string `json:"job_id"`
	Address        string `json:"address"`
	Target         string `json:"target"`
	ProjectID      string `json:"project_id"`
	Title          string `json:"title"`
	Severity       string `json:"severity"`
	Description    string `json:"description"`
	Recommendation string `json:"recommendation"`
	CreatedAt      int64  `json:"created_at"`
}

// IsValid checks if the WorkItem has all required fields populated correctly.
func (w *WorkItem) IsValid() error {
	if w.JobID == "" {
		return fmt.Errorf("job_id is required")
	}
	if w.Address == "" {
		return fmt.Errorf("address is required")
	}
	if w.SubmittedAt <= 0 {
		return fmt.Errorf("submitted_at must be positive, got %d", w.SubmittedAt)
	}
	return nil
}

// Age returns the duration since this work item was submitted.
func (w *WorkItem) Age() time.Duration {
	if w.SubmittedAt <= 0 {
		return 0
	}
	return time.Duration(time.Now().UnixMilli()-w.SubmittedAt) * time.Millisecond
}

// SetSpanContext records sc as the item's parent span. Invalid span
// contexts are ignored.
func (w *WorkItem) SetSpanContext(sc trace.SpanContext) {
	if !sc.IsValid() {
		return
	}
	w.TraceID = sc.TraceID().String()
	w.SpanID = sc.SpanID().String()
}

// SpanContext returns the submitter's span as a remote, sampled span
// context. It is invalid when the item carries no well-formed trace ids.
func (w *WorkItem) SpanContext() trace.SpanContext {
	traceID, err := trace.TraceIDFromHex(w.TraceID)
	if err != nil {
		return trace.SpanContext{}
	}
	spanID, err := trace.SpanIDFromHex(w.SpanID)
	if err != nil {
		return trace.SpanContext{}
	}
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
}

// HasError returns true if the result represents a failed audit.
func (r *Result) HasError() bool {
	return r.Error != ""
}

// Duration returns the wall-clock time the worker spent on the item.
func (r *Result) Duration() time.Duration {
	if r.StartedAt <= 0 || r.CompletedAt <= 0 {
		return 0
	}
	return time.Duration(r.CompletedAt-r.StartedAt) * time.Millisecond
}

// IsValid checks if the Result has all required fields populated correctly.
func (r *Result) IsValid() error {
	if r.JobID == "" {
		return fmt.Errorf("job_id is required")
	}
	if r.WorkerID == "" {
		return fmt.Errorf("worker_id is required")
	}
	if r.CompletedAt < r.StartedAt {
		return fmt.Errorf("completed_at (%d) cannot be before started_at (%d)", r.CompletedAt, r.StartedAt)
	}
	if !r.HasError() && r.OutputJSON == "" {
		return fmt.Errorf("output_json is required when error is empty")
	}
	return nil
}

// IsValid checks that the task names a target, a project and a title.
func (t *Task) IsValid() error {
	if t.Target == "" {
		return fmt.Errorf("target is required")
	}
	if t.ProjectID == "" {
		return fmt.Errorf("project_id is required")
	}
	if t.Title == "" {
		return fmt.Errorf("title is required")
	}
	return nil
}
