package integration

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/zero-day-ai/audityzer/finding"
)

// Notifier creates a ticket for one vulnerability in one target's project.
type Notifier interface {
	Notify(ctx context.Context, vuln finding.Vulnerability, targetName, projectID string) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, vuln finding.Vulnerability, targetName, projectID string) error

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, vuln finding.Vulnerability, targetName, projectID string) error {
	return f(ctx, vuln, targetName, projectID)
}

// TicketTitle is the title of the ticket created for vuln,
// e.g. "Critical Vulnerability Found: Reentrancy".
func TicketTitle(vuln finding.Vulnerability) string {
	return fmt.Sprintf("%s Vulnerability Found: %s", vuln.Severity, vuln.Title)
}

// LogNotifier records tickets in the log instead of calling a real tool.
type LogNotifier struct {
	Logger *slog.Logger
}

// NewLogNotifier returns a LogNotifier writing to logger, or slog.Default()
// when logger is nil.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{Logger: logger}
}

// Notify logs the ticket and never fails.
func (n *LogNotifier) Notify(ctx context.Context, vuln finding.Vulnerability, targetName, projectID string) error {
	attrs := []any{
		"target", targetName,
		"project_id", projectID,
		"title", TicketTitle(vuln),
		"severity", vuln.Severity,
	}
	if s, ok := ScanFromContext(ctx); ok {
		attrs = append(attrs, "job_id", s.JobID, "address", s.Address)
	}
	n.Logger.InfoContext(ctx, "ticket created", attrs...)
	return nil
}
