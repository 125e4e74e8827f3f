package finding

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidResult is returned when an audit result fails validation.
var ErrInvalidResult = errors.New("finding: invalid audit result")

// Vulnerability is a single issue reported by an audit.
//
// ID is regenerated on every audit run and is not stable across scans of the
// same target. Title is the identity used when comparing scans.
type Vulnerability struct {
	// ID identifies the vulnerability within one result (e.g., "vuln-1").
	ID string `json:"id"`

	// Severity is the severity level of the vulnerability.
	Severity Severity `json:"severity"`

	// Title is a concise name for the vulnerability.
	Title string `json:"title"`

	// Description explains the issue.
	Description string `json:"description"`

	// Recommendation describes how to fix the issue.
	Recommendation string `json:"recommendation"`
}

// Summary holds vulnerability counts by severity.
type Summary struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
}

// Count returns the count recorded for the given severity.
func (s Summary) Count(sev Severity) int {
	switch sev {
	case SeverityCritical:
		return s.Critical
	case SeverityHigh:
		return s.High
	case SeverityMedium:
		return s.Medium
	case SeverityLow:
		return s.Low
	default:
		return 0
	}
}

// Total returns the sum of all severity counts.
func (s Summary) Total() int {
	return s.Critical + s.High + s.Medium + s.Low
}

// Metrics holds audit execution metrics.
type Metrics struct {
	// ExecutionSpeed is the audit execution time in seconds.
	ExecutionSpeed float64 `json:"executionSpeed"`

	// TestCoverage is the test coverage in percent.
	TestCoverage float64 `json:"testCoverage"`

	// DefectDensity is the number of defects per 1,000 lines of code.
	DefectDensity float64 `json:"defectDensity"`
}

// AuditResult is the structured outcome of auditing one contract.
type AuditResult struct {
	Vulnerabilities []Vulnerability `json:"vulnerabilities"`
	Summary         Summary         `json:"summary"`
	Metrics         Metrics         `json:"metrics"`
}

// BySeverity returns the vulnerabilities with the given severity in report order.
func (r *AuditResult) BySeverity(sev Severity) []Vulnerability {
	if r == nil {
		return nil
	}
	var out []Vulnerability
	for _, v := range r.Vulnerabilities {
		if v.Severity == sev {
			out = append(out, v)
		}
	}
	return out
}

// HasSeverity reports whether any vulnerability has the given severity.
func (r *AuditResult) HasSeverity(sev Severity) bool {
	if r == nil {
		return false
	}
	for _, v := range r.Vulnerabilities {
		if v.Severity == sev {
			return true
		}
	}
	return false
}

// Severities returns the distinct severities present in the result, in rank order.
func (r *AuditResult) Severities() []Severity {
	var out []Severity
	for _, sev := range AllSeverities() {
		if r.HasSeverity(sev) {
			out = append(out, sev)
		}
	}
	return out
}

// Tally counts the vulnerabilities by severity.
// The reported Summary may disagree with it when the service miscounts.
func (r *AuditResult) Tally() Summary {
	var s Summary
	if r == nil {
		return s
	}
	for _, v := range r.Vulnerabilities {
		switch v.Severity {
		case SeverityCritical:
			s.Critical++
		case SeverityHigh:
			s.High++
		case SeverityMedium:
			s.Medium++
		case SeverityLow:
			s.Low++
		}
	}
	return s
}

// Clone returns a deep copy of the result.
func (r *AuditResult) Clone() *AuditResult {
	if r == nil {
		return nil
	}
	c := *r
	if r.Vulnerabilities != nil {
		c.Vulnerabilities = make([]Vulnerability, len(r.Vulnerabilities))
		copy(c.Vulnerabilities, r.Vulnerabilities)
	}
	return &c
}

// Validate checks that every vulnerability has a title and a valid severity.
func (r *AuditResult) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: result is nil", ErrInvalidResult)
	}
	for i, v := range r.Vulnerabilities {
		if v.Title == "" {
			return fmt.Errorf("%w: vulnerability %d: title is required", ErrInvalidResult, i)
		}
		if !v.Severity.IsValid() {
			return fmt.Errorf("%w: vulnerability %d: invalid severity: %s", ErrInvalidResult, i, v.Severity)
		}
	}
	return nil
}

// Warnings returns non-fatal anomalies in the result.
func (r *AuditResult) Warnings() []string {
	if r == nil {
		return nil
	}
	var warnings []string
	tally := r.Tally()
	for _, sev := range AllSeverities() {
		if got, want := r.Summary.Count(sev), tally.Count(sev); got != want {
			warnings = append(warnings, fmt.Sprintf("summary reports %d %s vulnerabilities, found %d", got, sev, want))
		}
	}
	if r.Metrics.TestCoverage < 0 || r.Metrics.TestCoverage > 100 {
		warnings = append(warnings, fmt.Sprintf("test coverage %.2f is outside 0-100", r.Metrics.TestCoverage))
	}
	return warnings
}

// DecodeResult parses an audit result from JSON. Severities are normalised
// case-insensitively and the result is validated before it is returned.
func DecodeResult(data []byte) (*AuditResult, error) {
	var raw struct {
		Vulnerabilities []struct {
			ID             string `json:"id"`
			Severity       string `json:"severity"`
			Title          string `json:"title"`
			Description    string `json:"description"`
			Recommendation string `json:"recommendation"`
		} `json:"vulnerabilities"`
		Summary Summary `json:"summary"`
		Metrics Metrics `json:"metrics"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResult, err)
	}

	result := &AuditResult{
		Vulnerabilities: make([]Vulnerability, 0, len(raw.Vulnerabilities)),
		Summary:         raw.Summary,
		Metrics:         raw.Metrics,
	}
	for i, v := range raw.Vulnerabilities {
		sev, err := ParseSeverity(v.Severity)
		if err != nil {
			return nil, fmt.Errorf("%w: vulnerability %d: %v", ErrInvalidResult, i, err)
		}
		result.Vulnerabilities = append(result.Vulnerabilities, Vulnerability{
			ID:             v.ID,
			Severity:       sev,
			Title:          v.Title,
			Description:    v.Description,
			Recommendation: v.Recommendation,
		})
	}

	if err := result.Validate(); err != nil {
		return nil, err
	}
	return result, nil
}
