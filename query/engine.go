// Package query filters, sorts and paginates scan jobs for presentation and
// keeps the set of jobs selected for comparison.
//
// An Engine holds view state only; it never owns jobs. Callers pass a store
// snapshot to View or Filter each time they render. Selection is kept by job
// id and is independent of the current filters, sort order and page.
package query

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/zero-day-ai/audityzer/finding"
	"github.com/zero-day-ai/audityzer/scan"
)

// All is the wildcard value for the status and severity filters.
const All = "All"

// DefaultPageSize is the page size used when none is configured.
const DefaultPageSize = 10

// DateLayout is the accepted format for date range bounds.
const DateLayout = "2006-01-02"

// SortKey names a sortable job attribute.
type SortKey string

const (
	SortByAddress     SortKey = "address"
	SortByStatus      SortKey = "status"
	SortBySubmittedAt SortKey = "submittedAt"
)

// IsValid returns true if the key is sortable.
func (k SortKey) IsValid() bool {
	switch k {
	case SortByAddress, SortByStatus, SortBySubmittedAt:
		return true
	default:
		return false
	}
}

// Direction is a sort direction.
type Direction string

const (
	Ascending  Direction = "ascending"
	Descending Direction = "descending"
)

// Option configures an Engine.
type Option func(*Engine)

// WithPageSize sets the fixed page size. Values below 1 are ignored.
func WithPageSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.pageSize = n
		}
	}
}

// WithLocation sets the location used to interpret date range bounds.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// Page is one page of filtered and sorted jobs.
type Page struct {
	Items     []scan.Job `json:"items"`
	Page      int        `json:"page"`
	PageCount int        `json:"pageCount"`
	PageSize  int        `json:"pageSize"`
	Total     int        `json:"total"`
	SortKey   SortKey    `json:"sortKey"`
	Direction Direction  `json:"direction"`
	Selected  []string   `json:"selected"`
}

// Engine holds filter, sort, pagination and selection state.
// It is safe for concurrent use.
type Engine struct {
	mu sync.Mutex

	pageSize int
	loc      *time.Location

	address  string
	status   scan.Status      // empty means All
	severity finding.Severity // empty means All
	from     time.Time        // zero means unbounded
	until    time.Time        // exclusive; zero means unbounded
	expr     *Expression

	sortKey   SortKey
	direction Direction
	page      int

	selected    []string
	selectedSet map[string]struct{}
}

// New creates an engine with no filters, sorted by submission time with the
// newest job first.
func New(opts ...Option) *Engine {
	e := &Engine{
		pageSize:    DefaultPageSize,
		loc:         time.Local,
		sortKey:     SortBySubmittedAt,
		direction:   Descending,
		page:        1,
		selectedSet: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetAddressFilter sets the case-insensitive address substring filter.
// An empty string disables it.
func (e *Engine) SetAddressFilter(substr string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if substr != e.address {
		e.address = substr
		e.page = 1
	}
}

// SetStatusFilter filters by exact status. All or an empty string disables it.
func (e *Engine) SetStatusFilter(s string) error {
	var status scan.Status
	if s != "" && s != All {
		parsed, err := scan.ParseStatus(s)
		if err != nil {
			return err
		}
		status = parsed
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if status != e.status {
		e.status = status
		e.page = 1
	}
	return nil
}

// SetSeverityFilter keeps jobs whose result has at least one vulnerability of
// the given severity. All or an empty string disables it.
func (e *Engine) SetSeverityFilter(s string) error {
	var sev finding.Severity
	if s != "" && s != All {
		parsed, err := finding.ParseSeverity(s)
		if err != nil {
			return err
		}
		sev = parsed
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if sev != e.severity {
		e.severity = sev
		e.page = 1
	}
	return nil
}

// SetDateRange keeps jobs submitted between the start of the day start and the
// end of the day end, both given as YYYY-MM-DD in the engine's location.
// Either bound may be empty.
func (e *Engine) SetDateRange(start, end string) error {
	var from, until time.Time
	if start != "" {
		d, err := time.ParseInLocation(DateLayout, start, e.loc)
		if err != nil {
			return fmt.Errorf("invalid start date %q: %w", start, err)
		}
		from = d
	}
	if end != "" {
		d, err := time.ParseInLocation(DateLayout, end, e.loc)
		if err != nil {
			return fmt.Errorf("invalid end date %q: %w", end, err)
		}
		until = d.AddDate(0, 0, 1)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !from.Equal(e.from) || !until.Equal(e.until) {
		e.from, e.until = from, until
		e.page = 1
	}
	return nil
}

// SetExpression installs a CEL predicate combined with the other filters. An
// empty source removes it. An invalid expression is rejected and the previous
// one is kept.
func (e *Engine) SetExpression(source string) error {
	var expr *Expression
	if strings.TrimSpace(source) != "" {
		compiled, err := CompileExpression(source)
		if err != nil {
			return err
		}
		expr = compiled
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if exprSource(expr) != exprSource(e.expr) {
		e.expr = expr
		e.page = 1
	}
	return nil
}

func exprSource(e *Expression) string {
	if e == nil {
		return ""
	}
	return e.String()
}

// ClearFilters removes every filter and returns to the first page.
func (e *Engine) ClearFilters() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.address = ""
	e.status = ""
	e.severity = ""
	e.from, e.until = time.Time{}, time.Time{}
	e.expr = nil
	e.page = 1
}

// RequestSort sorts by key. Requesting the current key while ascending
// switches to descending; any other request sorts ascending. The current page
// is kept.
func (e *Engine) RequestSort(key SortKey) error {
	if !key.IsValid() {
		return fmt.Errorf("invalid sort key: %s", key)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	direction := Ascending
	if e.sortKey == key && e.direction == Ascending {
		direction = Descending
	}
	e.sortKey = key
	e.direction = direction
	return nil
}

// Sort returns the current sort key and direction.
func (e *Engine) Sort() (SortKey, Direction) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sortKey, e.direction
}

// SetPage moves to page n. Values below 1 select the first page.
func (e *Engine) SetPage(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if n < 1 {
		n = 1
	}
	e.page = n
}

// CurrentPage returns the requested page number.
func (e *Engine) CurrentPage() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.page
}

// PageSize returns the fixed page size.
func (e *Engine) PageSize() int {
	return e.pageSize
}

// Filter returns the jobs that pass every active filter, sorted by the
// current key. The input slice is not modified.
func (e *Engine) Filter(jobs []scan.Job) []scan.Job {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.filterLocked(jobs)
}

func (e *Engine) filterLocked(jobs []scan.Job) []scan.Job {
	needle := strings.ToLower(e.address)

	out := make([]scan.Job, 0, len(jobs))
	for _, j := range jobs {
		if needle != "" && !strings.Contains(strings.ToLower(j.TargetAddress), needle) {
			continue
		}
		if e.status != "" && j.Status != e.status {
			continue
		}
		if e.severity != "" && !j.Result.HasSeverity(e.severity) {
			continue
		}
		if !e.from.IsZero() && j.SubmittedAt.Before(e.from) {
			continue
		}
		if !e.until.IsZero() && !j.SubmittedAt.Before(e.until) {
			continue
		}
		if e.expr != nil && !e.expr.Match(j) {
			continue
		}
		out = append(out, j)
	}

	cmp := comparator(e.sortKey)
	desc := e.direction == Descending
	slices.SortStableFunc(out, func(a, b scan.Job) int {
		if desc {
			return cmp(b, a)
		}
		return cmp(a, b)
	})
	return out
}

func comparator(key SortKey) func(a, b scan.Job) int {
	switch key {
	case SortByAddress:
		return func(a, b scan.Job) int { return strings.Compare(a.TargetAddress, b.TargetAddress) }
	case SortByStatus:
		return func(a, b scan.Job) int { return strings.Compare(string(a.Status), string(b.Status)) }
	default:
		return func(a, b scan.Job) int { return a.SubmittedAt.Compare(b.SubmittedAt) }
	}
}

// View filters, sorts and paginates jobs. When the requested page is past the
// last page, the last page is returned.
func (e *Engine) View(jobs []scan.Job) Page {
	e.mu.Lock()
	defer e.mu.Unlock()

	filtered := e.filterLocked(jobs)
	total := len(filtered)
	pageCount := int(math.Ceil(float64(total) / float64(e.pageSize)))

	page := e.page
	switch {
	case pageCount == 0:
		page = 1
	case page > pageCount:
		page = pageCount
	}

	start := (page - 1) * e.pageSize
	end := min(start+e.pageSize, total)

	return Page{
		Items:     filtered[start:end],
		Page:      page,
		PageCount: pageCount,
		PageSize:  e.pageSize,
		Total:     total,
		SortKey:   e.sortKey,
		Direction: e.direction,
		Selected:  slices.Clone(e.selected),
	}
}

// ToggleSelected flips the selection of a job id and reports whether it is
// now selected.
func (e *Engine) ToggleSelected(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.selectedSet[id]; ok {
		delete(e.selectedSet, id)
		e.selected = slices.DeleteFunc(e.selected, func(s string) bool { return s == id })
		return false
	}
	e.selectedSet[id] = struct{}{}
	e.selected = append(e.selected, id)
	return true
}

// IsSelected reports whether the job id is selected.
func (e *Engine) IsSelected(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.selectedSet[id]
	return ok
}

// Selected returns the selected ids in the order they were selected.
func (e *Engine) Selected() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.selected)
}

// ClearSelection deselects every job.
func (e *Engine) ClearSelection() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.selected = nil
	e.selectedSet = make(map[string]struct{})
}

// SelectedJobs resolves the selection against jobs, in selection order.
// Selected ids missing from jobs are skipped. Filters do not apply.
func (e *Engine) SelectedJobs(jobs []scan.Job) []scan.Job {
	byID := make(map[string]scan.Job, len(jobs))
	for _, j := range jobs {
		byID[j.ID] = j
	}

	out := make([]scan.Job, 0)
	for _, id := range e.Selected() {
		if j, ok := byID[id]; ok {
			out = append(out, j)
		}
	}
	return out
}

// Comparable returns the selected jobs that are Completed, in selection order,
// and whether there are at least two of them.
func (e *Engine) Comparable(jobs []scan.Job) ([]scan.Job, bool) {
	selected := e.SelectedJobs(jobs)
	out := make([]scan.Job, 0, len(selected))
	for _, j := range selected {
		if j.Status == scan.StatusCompleted {
			out = append(out, j)
		}
	}
	return out, len(out) >= 2
}
