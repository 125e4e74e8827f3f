// Package analysis defines how contracts are audited. An Analyzer turns a
// contract address into a finding.AuditResult; the manager calls it once
// per scan job and never retries.
package analysis

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/zero-day-ai/audityzer/finding"
)

// ErrNoResult is returned when an analyzer produces neither a result nor an
// error.
var ErrNoResult = errors.New("analysis returned no result")

// Analyzer audits the contract at address.
type Analyzer interface {
	Analyze(ctx context.Context, address string) (*finding.AuditResult, error)
}

// Func adapts a function to the Analyzer interface.
type Func func(ctx context.Context, address string) (*finding.AuditResult, error)

// Analyze calls f.
func (f Func) Analyze(ctx context.Context, address string) (*finding.AuditResult, error) {
	return f(ctx, address)
}

type requestIDKey struct{}

// ContextWithRequestID tags the analysis request made with ctx, so remote
// analyzers can correlate it with a scan job.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id attached with ContextWithRequestID, or a new
// random one.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}
