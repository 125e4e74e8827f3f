package serve

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero-day-ai/audityzer"
	"github.com/zero-day-ai/audityzer/analysis"
	"github.com/zero-day-ai/audityzer/compare"
	"github.com/zero-day-ai/audityzer/finding"
	"github.com/zero-day-ai/audityzer/health"
	"github.com/zero-day-ai/audityzer/integration"
	"github.com/zero-day-ai/audityzer/query"
	"github.com/zero-day-ai/audityzer/scan"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// results maps an address to the vulnerabilities its audit reports.
// Addresses not in the map fail.
type results map[string][]finding.Vulnerability

func (rs results) analyzer() analysis.Analyzer {
	return analysis.Func(func(ctx context.Context, address string) (*finding.AuditResult, error) {
		vulns, ok := rs[address]
		if !ok {
			return nil, io.ErrUnexpectedEOF
		}
		r := &finding.AuditResult{Vulnerabilities: vulns}
		r.Summary = r.Tally()
		return r, nil
	})
}

type testAPI struct {
	t       *testing.T
	server  *httptest.Server
	manager *audityzer.Manager
}

func newTestAPI(t *testing.T, rs results, apiOpts []APIOption, mgrOpts ...audityzer.Option) *testAPI {
	t.Helper()
	mgrOpts = append([]audityzer.Option{audityzer.WithLogger(quietLogger())}, mgrOpts...)
	mgr, err := audityzer.New(rs.analyzer(), mgrOpts...)
	require.NoError(t, err)

	apiOpts = append([]APIOption{WithAPILogger(quietLogger())}, apiOpts...)
	srv := httptest.NewServer(NewAPI(mgr, query.New(query.WithPageSize(2)), apiOpts...).Routes())
	t.Cleanup(srv.Close)
	return &testAPI{t: t, server: srv, manager: mgr}
}

func (a *testAPI) do(method, path string, body any, out any) int {
	a.t.Helper()
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = strings.NewReader(b)
		default:
			data, err := json.Marshal(b)
			require.NoError(a.t, err)
			reader = bytes.NewReader(data)
		}
	}
	req, err := http.NewRequest(method, a.server.URL+path, reader)
	require.NoError(a.t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.server.Client().Do(req)
	require.NoError(a.t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(a.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (a *testAPI) submit(address string) scan.Job {
	a.t.Helper()
	var job scan.Job
	status := a.do(http.MethodPost, "/scans", map[string]string{"address": address}, &job)
	require.Equal(a.t, http.StatusAccepted, status)
	return job
}

func (a *testAPI) wait() {
	a.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(a.t, a.manager.Wait(ctx))
}

func TestCreateScan(t *testing.T) {
	api := newTestAPI(t, results{"0xAAA": {{ID: "v1", Severity: finding.SeverityHigh, Title: "Overflow"}}}, nil)

	job := api.submit("  0xAAA ")
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, "0xAAA", job.TargetAddress)
	assert.NotEqual(t, scan.StatusFailed, job.Status)

	api.wait()

	var got scan.Job
	status := api.do(http.MethodGet, "/scans/"+job.ID, nil, &got)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, scan.StatusCompleted, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, "Overflow", got.Result.Vulnerabilities[0].Title)
}

func TestCreateScan_BadRequests(t *testing.T) {
	api := newTestAPI(t, results{}, nil)

	tests := []struct {
		name    string
		body    any
		wantErr string
	}{
		{name: "empty address", body: map[string]string{"address": "  "}, wantErr: "target address is empty"},
		{name: "missing address", body: map[string]string{}, wantErr: "target address is empty"},
		{name: "invalid json", body: "{", wantErr: "invalid json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out map[string]string
			status := api.do(http.MethodPost, "/scans", tt.body, &out)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Contains(t, out["error"], tt.wantErr)
		})
	}
	assert.Empty(t, api.manager.Jobs())
}

func TestGetScan_NotFound(t *testing.T) {
	api := newTestAPI(t, results{}, nil)

	var out map[string]string
	status := api.do(http.MethodGet, "/scans/missing", nil, &out)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, scan.ErrNotFound.Error(), out["error"])
}

func TestListScans(t *testing.T) {
	api := newTestAPI(t, results{
		"0xCCC": {{ID: "v1", Severity: finding.SeverityCritical, Title: "Reentrancy"}},
		"0xAAA": {{ID: "v1", Severity: finding.SeverityLow, Title: "Naming"}},
	}, nil)
	api.submit("0xCCC")
	api.submit("0xAAA")
	api.submit("0xBBB") // fails: not in results
	api.wait()

	var page query.Page
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/scans?sort=address&dir=ascending", nil, &page))
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.PageCount)
	assert.Equal(t, query.SortByAddress, page.SortKey)
	assert.Equal(t, query.Ascending, page.Direction)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "0xAAA", page.Items[0].TargetAddress)
	assert.Equal(t, "0xBBB", page.Items[1].TargetAddress)

	// repeating the sort keeps the direction
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/scans?sort=address&page=2", nil, &page))
	assert.Equal(t, query.Ascending, page.Direction)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "0xCCC", page.Items[0].TargetAddress)

	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/scans?dir=descending", nil, &page))
	assert.Equal(t, query.Descending, page.Direction)

	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/scans?status=Failed", nil, &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, "0xBBB", page.Items[0].TargetAddress)

	// filters persist across requests until cleared
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/scans?severity=Critical", nil, &page))
	assert.Equal(t, 0, page.Total)

	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/scans?clear&severity=Critical", nil, &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, "0xCCC", page.Items[0].TargetAddress)

	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/scans?clear&address=aa", nil, &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, "0xAAA", page.Items[0].TargetAddress)

	require.Equal(t, http.StatusOK, api.do(http.MethodGet, `/scans?clear&expr=status+%3D%3D+%22Completed%22`, nil, &page))
	assert.Equal(t, 2, page.Total)
}

func TestListScans_InvalidParameters(t *testing.T) {
	api := newTestAPI(t, results{}, nil)

	for _, path := range []string{
		"/scans?status=Bogus",
		"/scans?severity=Severe",
		"/scans?from=yesterday",
		"/scans?sort=title",
		"/scans?dir=sideways",
		"/scans?page=two",
		"/scans?expr=status+%3D%3D",
	} {
		t.Run(path, func(t *testing.T) {
			var out map[string]string
			assert.Equal(t, http.StatusBadRequest, api.do(http.MethodGet, path, nil, &out))
			assert.NotEmpty(t, out["error"])
		})
	}
}

func TestListScans_RejectedRequestLeavesStateUnchanged(t *testing.T) {
	api := newTestAPI(t, results{}, nil)
	api.submit("0xAAA")
	api.submit("0xBBB")
	api.submit("0xCCC")
	api.wait()

	var page query.Page
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/scans?page=2", nil, &page))
	require.Equal(t, 2, page.Page)

	for _, path := range []string{
		"/scans?address=zzz&status=Bogus",
		"/scans?address=zzz&sort=address&page=x",
		"/scans?clear&expr=status+%3D%3D",
	} {
		var out map[string]string
		require.Equal(t, http.StatusBadRequest, api.do(http.MethodGet, path, nil, &out), path)
	}

	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/scans", nil, &page))
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, query.SortBySubmittedAt, page.SortKey)
	assert.Equal(t, query.Descending, page.Direction)
}

func TestSelectionAndComparison(t *testing.T) {
	api := newTestAPI(t, results{
		"0xOLD": {
			{ID: "a", Severity: finding.SeverityHigh, Title: "Overflow"},
			{ID: "b", Severity: finding.SeverityCritical, Title: "Reentrancy"},
		},
		"0xNEW": {
			{ID: "c", Severity: finding.SeverityHigh, Title: "Overflow"},
			{ID: "d", Severity: finding.SeverityLow, Title: "Naming"},
		},
	}, nil)
	older := api.submit("0xOLD")
	newer := api.submit("0xNEW")
	failed := api.submit("0xBAD")
	api.wait()

	var errOut map[string]string
	assert.Equal(t, http.StatusConflict, api.do(http.MethodGet, "/comparison", nil, &errOut))
	assert.Equal(t, ErrNotComparable.Error(), errOut["error"])

	var sel selectionResponse
	require.Equal(t, http.StatusOK, api.do(http.MethodPost, "/scans/"+older.ID+"/select", nil, &sel))
	assert.True(t, sel.Selected)
	require.Equal(t, http.StatusOK, api.do(http.MethodPost, "/scans/"+failed.ID+"/select", nil, &sel))

	// a failed selection does not count towards comparison
	assert.Equal(t, http.StatusConflict, api.do(http.MethodGet, "/comparison", nil, &errOut))

	require.Equal(t, http.StatusOK, api.do(http.MethodPost, "/scans/"+newer.ID+"/select", nil, &sel))
	assert.Equal(t, []string{older.ID, failed.ID, newer.ID}, sel.All)

	var selection struct {
		Selected []string   `json:"selected"`
		Jobs     []scan.Job `json:"jobs"`
	}
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/selection", nil, &selection))
	assert.Len(t, selection.Jobs, 3)

	var cmp struct {
		Columns []struct {
			Job             scan.Job `json:"job"`
			Baseline        bool     `json:"baseline"`
			Vulnerabilities []struct {
				Title  string         `json:"title"`
				Status compare.Status `json:"comparisonStatus"`
			} `json:"vulnerabilities"`
			Counts compare.Counts `json:"counts"`
		} `json:"columns"`
	}
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/comparison", nil, &cmp))
	require.Len(t, cmp.Columns, 2)
	assert.True(t, cmp.Columns[0].Baseline)
	assert.Equal(t, older.ID, cmp.Columns[0].Job.ID)
	assert.Equal(t, "Reentrancy", cmp.Columns[0].Vulnerabilities[0].Title)
	assert.Equal(t, compare.Counts{Unchanged: 2}, cmp.Columns[0].Counts)
	assert.Equal(t, compare.Counts{New: 1, Unchanged: 1, Resolved: 1}, cmp.Columns[1].Counts)

	// toggling again deselects
	require.Equal(t, http.StatusOK, api.do(http.MethodPost, "/scans/"+newer.ID+"/select", nil, &sel))
	assert.False(t, sel.Selected)

	assert.Equal(t, http.StatusNoContent, api.do(http.MethodDelete, "/selection", nil, nil))
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/selection", nil, &selection))
	assert.Empty(t, selection.Selected)
}

func TestToggleSelection_UnknownJob(t *testing.T) {
	api := newTestAPI(t, results{}, nil)
	var out map[string]string
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodPost, "/scans/nope/select", nil, &out))
}

func TestActivity(t *testing.T) {
	api := newTestAPI(t, results{
		"0xAAA": {{ID: "v1", Severity: finding.SeverityCritical, Title: "Reentrancy"}},
	}, nil, audityzer.WithTargets(integration.Static{
		{Name: "Asana", Connected: true, ProjectID: "p-1"},
	}), audityzer.WithNotifier(integration.NewLogNotifier(quietLogger())))

	api.submit("0xAAA")
	api.wait()

	var out struct {
		Events []struct {
			Source  string `json:"source"`
			Message string `json:"message"`
		} `json:"events"`
	}
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/activity", nil, &out))
	require.Len(t, out.Events, 2)
	assert.Equal(t, "General", out.Events[0].Source)
	assert.Equal(t, "Audityzer found 1 critical vulnerability and created tasks in Asana.", out.Events[0].Message)
	assert.Equal(t, "Asana", out.Events[1].Source)

	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/activity?limit=1", nil, &out))
	assert.Len(t, out.Events, 1)

	var errOut map[string]string
	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodGet, "/activity?limit=0", nil, &errOut))
}

func TestHealthz(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]health.Checker
		wantCode   int
		wantStatus string
	}{
		{
			name:       "no checks",
			wantCode:   http.StatusOK,
			wantStatus: health.StatusHealthy,
		},
		{
			name: "degraded is still served",
			checks: map[string]health.Checker{
				"workers": func(context.Context) health.Status { return health.Degraded("no workers", nil) },
			},
			wantCode:   http.StatusOK,
			wantStatus: health.StatusDegraded,
		},
		{
			name: "unhealthy",
			checks: map[string]health.Checker{
				"redis": func(context.Context) health.Status { return health.Unhealthy("down", nil) },
				"etcd":  func(context.Context) health.Status { return health.Healthy("ok") },
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: health.StatusUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestAPI(t, results{}, []APIOption{WithHealthChecks(tt.checks)})

			var out healthResponse
			assert.Equal(t, tt.wantCode, api.do(http.MethodGet, "/healthz", nil, &out))
			assert.Equal(t, tt.wantStatus, out.Status)
			assert.Len(t, out.Checks, len(tt.checks))
			assert.Equal(t, 0, out.InFlight)
		})
	}
}
