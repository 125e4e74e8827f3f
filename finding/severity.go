package finding

import (
	"fmt"
	"strings"
)

// Severity represents the severity level of a vulnerability.
type Severity string

const (
	// SeverityCritical indicates an issue that allows loss of funds or full contract takeover.
	SeverityCritical Severity = "Critical"

	// SeverityHigh indicates a high-impact issue.
	SeverityHigh Severity = "High"

	// SeverityMedium indicates a moderate issue.
	SeverityMedium Severity = "Medium"

	// SeverityLow indicates a minor issue or best practice violation.
	SeverityLow Severity = "Low"
)

// severityRanks is the fixed total order used for sorting and grouping.
// Lower ranks sort first.
var severityRanks = map[Severity]int{
	SeverityCritical: 0,
	SeverityHigh:     1,
	SeverityMedium:   2,
	SeverityLow:      3,
}

// unknownRank places unrecognised severities after Low.
const unknownRank = 4

// IsValid returns true if the severity level is valid.
func (s Severity) IsValid() bool {
	_, ok := severityRanks[s]
	return ok
}

// Rank returns the position of the severity in the ordering table.
// Invalid severities rank after every valid one.
func (s Severity) Rank() int {
	if rank, ok := severityRanks[s]; ok {
		return rank
	}
	return unknownRank
}

// String returns the string representation of the severity.
func (s Severity) String() string {
	return string(s)
}

// ParseSeverity parses a string into a Severity value. Matching is
// case-insensitive, so "critical" and "CRITICAL" both yield SeverityCritical.
func ParseSeverity(s string) (Severity, error) {
	for _, sev := range AllSeverities() {
		if strings.EqualFold(string(sev), strings.TrimSpace(s)) {
			return sev, nil
		}
	}
	return "", fmt.Errorf("invalid severity: %s", s)
}

// CompareSeverity compares two severity levels by rank.
// Returns:
//   - negative if s1 sorts before s2 (s1 is more severe)
//   - zero if both have the same rank
//   - positive if s1 sorts after s2
func CompareSeverity(s1, s2 Severity) int {
	return s1.Rank() - s2.Rank()
}

// AllSeverities returns all valid severity levels in rank order.
func AllSeverities() []Severity {
	return []Severity{
		SeverityCritical,
		SeverityHigh,
		SeverityMedium,
		SeverityLow,
	}
}
