package integration

import (
	"context"
	"slices"
	"strings"
)

// Target is a project management tool that can receive tickets.
type Target struct {
	Name      string `json:"name" yaml:"name"`
	Connected bool   `json:"connected" yaml:"connected"`
	ProjectID string `json:"projectId" yaml:"project_id"`
}

// Eligible reports whether the target should be notified: it is connected
// and has a non-empty project id.
func (t Target) Eligible() bool {
	return t.Connected && strings.TrimSpace(t.ProjectID) != ""
}

// Source supplies the configured targets in their fixed order.
type Source interface {
	Targets(ctx context.Context) ([]Target, error)
}

// Static is a Source over a fixed list.
type Static []Target

// Targets returns a copy of the list.
func (s Static) Targets(context.Context) ([]Target, error) {
	return slices.Clone([]Target(s)), nil
}

// Eligible returns the eligible targets of ts, preserving order.
func Eligible(ts []Target) []Target {
	out := make([]Target, 0, len(ts))
	for _, t := range ts {
		if t.Eligible() {
			out = append(out, t)
		}
	}
	return out
}

type scanKey struct{}

// Scan identifies the job a notification belongs to.
type Scan struct {
	JobID   string
	Address string
}

// ContextWithScan attaches the job being notified about to ctx.
func ContextWithScan(ctx context.Context, s Scan) context.Context {
	return context.WithValue(ctx, scanKey{}, s)
}

// ScanFromContext returns the job attached by ContextWithScan.
func ScanFromContext(ctx context.Context) (Scan, bool) {
	s, ok := ctx.Value(scanKey{}).(Scan)
	return s, ok
}
