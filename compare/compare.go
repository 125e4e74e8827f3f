// Package compare classifies the vulnerabilities of several completed scans
// relative to a baseline scan.
//
// Vulnerabilities are matched by title, because vulnerability ids are
// regenerated on every audit run. The first scan is the baseline; every later
// scan gets a list of its vulnerabilities tagged New or Unchanged plus the
// baseline vulnerabilities it no longer reports, tagged Resolved.
package compare

import (
	"slices"

	"github.com/zero-day-ai/audityzer/finding"
	"github.com/zero-day-ai/audityzer/scan"
)

// Status is the classification of a vulnerability relative to the baseline.
type Status string

const (
	StatusNew       Status = "New"
	StatusResolved  Status = "Resolved"
	StatusUnchanged Status = "Unchanged"
)

// Vulnerability is a finding.Vulnerability with its classification.
type Vulnerability struct {
	finding.Vulnerability
	Status Status `json:"comparisonStatus"`
}

// Column is the classified view of one scan.
type Column struct {
	Job      scan.Job `json:"job"`
	Baseline bool     `json:"baseline"`

	// Vulnerabilities is sorted by severity rank; entries of equal rank keep
	// their classification order.
	Vulnerabilities []Vulnerability `json:"vulnerabilities"`
}

// Counts holds the number of vulnerabilities per classification.
type Counts struct {
	New       int `json:"new"`
	Resolved  int `json:"resolved"`
	Unchanged int `json:"unchanged"`
}

// Counts tallies the column's classifications.
func (c Column) Counts() Counts {
	var out Counts
	for _, v := range c.Vulnerabilities {
		switch v.Status {
		case StatusNew:
			out.New++
		case StatusResolved:
			out.Resolved++
		case StatusUnchanged:
			out.Unchanged++
		}
	}
	return out
}

// Compare classifies every job against the first one. It returns one column
// per job in input order and never fails: a baseline without a result yields
// empty columns for every job, and any other job without a result yields an
// empty column.
//
// Callers are expected to pass at least two completed jobs.
func Compare(jobs []scan.Job) []Column {
	columns := make([]Column, len(jobs))
	for i, j := range jobs {
		columns[i] = Column{Job: j, Baseline: i == 0, Vulnerabilities: []Vulnerability{}}
	}
	if len(jobs) == 0 || jobs[0].Result == nil {
		return columns
	}

	baseline := newTitleIndex(jobs[0].Result.Vulnerabilities)

	baseVulns := make([]Vulnerability, 0, len(jobs[0].Result.Vulnerabilities))
	for _, v := range jobs[0].Result.Vulnerabilities {
		baseVulns = append(baseVulns, Vulnerability{Vulnerability: v, Status: StatusUnchanged})
	}
	columns[0].Vulnerabilities = sortBySeverity(baseVulns)

	for i := 1; i < len(jobs); i++ {
		if jobs[i].Result == nil {
			continue
		}
		columns[i].Vulnerabilities = classify(baseline, newTitleIndex(jobs[i].Result.Vulnerabilities))
	}
	return columns
}

// classify tags current vulnerabilities New or Unchanged in report order, then
// appends the baseline vulnerabilities missing from current as Resolved.
func classify(baseline, current titleIndex) []Vulnerability {
	out := make([]Vulnerability, 0, len(current.titles)+len(baseline.titles))
	for _, title := range current.titles {
		status := StatusNew
		if baseline.has(title) {
			status = StatusUnchanged
		}
		out = append(out, Vulnerability{Vulnerability: current.byTitle[title], Status: status})
	}
	for _, title := range baseline.titles {
		if !current.has(title) {
			out = append(out, Vulnerability{Vulnerability: baseline.byTitle[title], Status: StatusResolved})
		}
	}
	return sortBySeverity(out)
}

func sortBySeverity(vulns []Vulnerability) []Vulnerability {
	slices.SortStableFunc(vulns, func(a, b Vulnerability) int {
		return finding.CompareSeverity(a.Severity, b.Severity)
	})
	return vulns
}

// titleIndex maps titles to vulnerabilities while remembering the order in
// which titles first appeared. A repeated title keeps its first position and
// its last value.
type titleIndex struct {
	titles  []string
	byTitle map[string]finding.Vulnerability
}

func newTitleIndex(vulns []finding.Vulnerability) titleIndex {
	idx := titleIndex{byTitle: make(map[string]finding.Vulnerability, len(vulns))}
	for _, v := range vulns {
		if _, seen := idx.byTitle[v.Title]; !seen {
			idx.titles = append(idx.titles, v.Title)
		}
		idx.byTitle[v.Title] = v
	}
	return idx
}

func (idx titleIndex) has(title string) bool {
	_, ok := idx.byTitle[title]
	return ok
}
