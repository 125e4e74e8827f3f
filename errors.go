package audityzer

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// Sentinel errors for manager error conditions.
// These errors can be used with errors.Is() for error checking.
var (
	// ErrEmptyAddress indicates a scan was submitted without a target address.
	ErrEmptyAddress = errors.New("target address is empty")

	// ErrAnalysisFailed indicates the analyzer could not audit the contract.
	// The analyzer's error is wrapped alongside it.
	ErrAnalysisFailed = errors.New("analysis failed")

	// ErrNotificationFailed indicates a ticket could not be created for a
	// critical vulnerability. It never changes the job's status.
	ErrNotificationFailed = errors.New("notification failed")

	// ErrNilAnalyzer indicates a manager was created without an analyzer.
	ErrNilAnalyzer = errors.New("analyzer is required")
)

// Error kinds categorize errors by their type.
const (
	// KindValidation represents errors related to input validation.
	KindValidation = "validation"

	// KindAnalysis represents failures of the analysis collaborator.
	KindAnalysis = "analysis"

	// KindNotification represents failures of the notification collaborator.
	KindNotification = "notification"

	// KindInternal represents internal errors such as store invariant
	// violations.
	KindInternal = "internal"
)

// Error is a structured error type that wraps underlying errors with
// the operation that failed and the category of error.
//
//	err := &Error{
//		Op:   "Manager.Submit",
//		Kind: KindValidation,
//		Err:  ErrEmptyAddress,
//	}
type Error struct {
	// Op is the operation that failed (e.g., "Manager.Submit").
	Op string

	// Kind categorizes the error (e.g., KindValidation).
	Kind string

	// Err is the underlying error that caused this error.
	Err error

	// Context provides additional context about the error (optional),
	// such as job ids or addresses.
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("audityzer: %s: %s", e.Op, e.Kind)
	}
	if len(e.Context) > 0 {
		return fmt.Sprintf("audityzer: %s (%s): %v [context: %+v]", e.Op, e.Kind, e.Err, e.Context)
	}
	return fmt.Sprintf("audityzer: %s (%s): %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by Kind (and Op, when the target sets it), then
// falls back to the wrapped error.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if t, ok := target.(*Error); ok {
		if t.Kind != "" && e.Kind == t.Kind {
			if t.Op == "" || e.Op == t.Op {
				return true
			}
		}
	}
	return errors.Is(e.Err, target)
}

// WithContext returns a copy of e with ctx merged into its Context.
func (e *Error) WithContext(ctx map[string]any) *Error {
	newErr := *e
	newErr.Context = make(map[string]any, len(e.Context)+len(ctx))
	for k, v := range e.Context {
		newErr.Context[k] = v
	}
	for k, v := range ctx {
		newErr.Context[k] = v
	}
	return &newErr
}

// NewValidationError creates a new Error with KindValidation.
func NewValidationError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindValidation, Err: err}
}

// NewInternalError creates a new Error with KindInternal.
func NewInternalError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindInternal, Err: err}
}

// AnalysisError reports a failed audit. The job it belongs to is Failed.
// It matches both ErrAnalysisFailed and the analyzer's error.
type AnalysisError struct {
	JobID   string
	Address string
	Err     error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("audityzer: analysis of %s (job %s) failed: %v", e.Address, e.JobID, e.Err)
}

// Kind returns KindAnalysis.
func (e *AnalysisError) Kind() string { return KindAnalysis }

// Unwrap returns ErrAnalysisFailed and the analyzer's error.
func (e *AnalysisError) Unwrap() []error {
	return []error{ErrAnalysisFailed, e.Err}
}

// NotificationError reports a ticket that could not be created. Target is
// empty when the target list itself could not be loaded.
type NotificationError struct {
	JobID         string
	Target        string
	ProjectID     string
	Vulnerability string
	Err           error
}

func (e *NotificationError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("audityzer: load integration targets for job %s: %v", e.JobID, e.Err)
	}
	return fmt.Sprintf("audityzer: notify %s (project %s) of %q for job %s: %v",
		e.Target, e.ProjectID, e.Vulnerability, e.JobID, e.Err)
}

// Kind returns KindNotification.
func (e *NotificationError) Kind() string { return KindNotification }

// Unwrap returns ErrNotificationFailed and the notifier's error.
func (e *NotificationError) Unwrap() []error {
	return []error{ErrNotificationFailed, e.Err}
}

// CloseWithLog closes closer and logs any error at warning level.
// If logger is nil, slog.Default() is used.
//
//	defer audityzer.CloseWithLog(client, logger, "redis client")
func CloseWithLog(closer io.Closer, logger *slog.Logger, name string) {
	if closer == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := closer.Close(); err != nil {
		logger.Warn("failed to close resource",
			"resource", name,
			"error", err)
	}
}
