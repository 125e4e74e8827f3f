package serve

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/zero-day-ai/audityzer"
	"github.com/zero-day-ai/audityzer/activity"
	"github.com/zero-day-ai/audityzer/compare"
	"github.com/zero-day-ai/audityzer/finding"
	"github.com/zero-day-ai/audityzer/health"
	"github.com/zero-day-ai/audityzer/query"
	"github.com/zero-day-ai/audityzer/scan"
)

// ErrNotComparable is rendered when fewer than two completed scans are selected.
var ErrNotComparable = errors.New("select at least two completed scans to compare")

// API serves a manager and a query engine over HTTP.
type API struct {
	manager *audityzer.Manager
	engine  *query.Engine
	checks  map[string]health.Checker
	logger  *slog.Logger
}

// APIOption configures an API.
type APIOption func(*API)

// WithAPILogger sets the request logger.
func WithAPILogger(logger *slog.Logger) APIOption {
	return func(a *API) {
		a.logger = logger
	}
}

// WithHealthChecks sets the dependency checks run by GET /healthz.
func WithHealthChecks(checks map[string]health.Checker) APIOption {
	return func(a *API) {
		a.checks = checks
	}
}

// NewAPI creates an API over manager. engine holds the history view state
// shared by every client.
func NewAPI(manager *audityzer.Manager, engine *query.Engine, opts ...APIOption) *API {
	a := &API{
		manager: manager,
		engine:  engine,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.engine == nil {
		a.engine = query.New()
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a
}

// Routes returns the API router.
func (a *API) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(a.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Route("/scans", func(r chi.Router) {
		r.Post("/", a.createScan)
		r.Get("/", a.listScans)
		r.Get("/{id}", a.getScan)
		r.Post("/{id}/select", a.toggleSelection)
	})
	r.Get("/selection", a.getSelection)
	r.Delete("/selection", a.clearSelection)
	r.Get("/comparison", a.getComparison)
	r.Get("/activity", a.getActivity)
	r.Get("/healthz", a.healthz)
	return r
}

func (a *API) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		a.logger.InfoContext(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

type submitRequest struct {
	Address string `json:"address"`
}

func (a *API) createScan(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		renderError(w, r, http.StatusBadRequest, errors.New("invalid json"))
		return
	}

	ticket, err := a.manager.Submit(r.Context(), req.Address)
	if err != nil {
		if errors.Is(err, &audityzer.Error{Kind: audityzer.KindValidation}) {
			renderError(w, r, http.StatusBadRequest, err)
			return
		}
		a.logger.ErrorContext(r.Context(), "failed to submit scan", "error", err)
		renderError(w, r, http.StatusInternalServerError, err)
		return
	}

	job, _ := a.manager.Job(ticket.ID())
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, job)
}

func (a *API) listScans(w http.ResponseWriter, r *http.Request) {
	if err := a.applyQuery(r.URL.Query()); err != nil {
		renderError(w, r, http.StatusBadRequest, err)
		return
	}
	render.JSON(w, r, a.engine.View(a.manager.Jobs()))
}

// listQuery holds the validated list parameters of one request. A nil
// field leaves the matching engine state unchanged.
type listQuery struct {
	clear    bool
	address  *string
	status   *string
	severity *string
	dates    *[2]string
	expr     *string
	sort     *query.SortKey
	dir      query.Direction
	page     *int
}

// parseListQuery validates every parameter before any of them is applied,
// so a rejected request leaves the engine untouched.
func parseListQuery(q url.Values) (listQuery, error) {
	lq := listQuery{clear: q.Has("clear")}
	if q.Has("address") {
		v := q.Get("address")
		lq.address = &v
	}
	if q.Has("status") {
		v := q.Get("status")
		if v != "" && v != query.All {
			if _, err := scan.ParseStatus(v); err != nil {
				return listQuery{}, err
			}
		}
		lq.status = &v
	}
	if q.Has("severity") {
		v := q.Get("severity")
		if v != "" && v != query.All {
			if _, err := finding.ParseSeverity(v); err != nil {
				return listQuery{}, err
			}
		}
		lq.severity = &v
	}
	if q.Has("from") || q.Has("to") {
		from, to := q.Get("from"), q.Get("to")
		for _, d := range []string{from, to} {
			if d == "" {
				continue
			}
			if _, err := time.Parse(query.DateLayout, d); err != nil {
				return listQuery{}, fmt.Errorf("invalid date %q: expected %s", d, query.DateLayout)
			}
		}
		lq.dates = &[2]string{from, to}
	}
	if q.Has("expr") {
		v := q.Get("expr")
		if strings.TrimSpace(v) != "" {
			if _, err := query.CompileExpression(v); err != nil {
				return listQuery{}, err
			}
		}
		lq.expr = &v
	}
	if q.Has("sort") || q.Has("dir") {
		key, dir := query.SortKey(q.Get("sort")), query.Direction(q.Get("dir"))
		if key != "" && !key.IsValid() {
			return listQuery{}, fmt.Errorf("invalid sort key: %s", key)
		}
		if dir != "" && dir != query.Ascending && dir != query.Descending {
			return listQuery{}, fmt.Errorf("invalid sort direction: %s", dir)
		}
		lq.sort, lq.dir = &key, dir
	}
	if q.Has("page") {
		n, err := strconv.Atoi(q.Get("page"))
		if err != nil {
			return listQuery{}, fmt.Errorf("invalid page: %q", q.Get("page"))
		}
		lq.page = &n
	}
	return lq, nil
}

// applyQuery validates the request parameters and then updates the engine.
// from and to are applied together.
func (a *API) applyQuery(q url.Values) error {
	lq, err := parseListQuery(q)
	if err != nil {
		return err
	}

	if lq.clear {
		a.engine.ClearFilters()
	}
	if lq.address != nil {
		a.engine.SetAddressFilter(*lq.address)
	}
	if lq.status != nil {
		if err := a.engine.SetStatusFilter(*lq.status); err != nil {
			return err
		}
	}
	if lq.severity != nil {
		if err := a.engine.SetSeverityFilter(*lq.severity); err != nil {
			return err
		}
	}
	if lq.dates != nil {
		if err := a.engine.SetDateRange(lq.dates[0], lq.dates[1]); err != nil {
			return err
		}
	}
	if lq.expr != nil {
		if err := a.engine.SetExpression(*lq.expr); err != nil {
			return err
		}
	}
	if lq.sort != nil {
		if err := a.setSort(*lq.sort, lq.dir); err != nil {
			return err
		}
	}
	if lq.page != nil {
		a.engine.SetPage(*lq.page)
	}
	return nil
}

// setSort moves the engine to key and dir. An empty key keeps the current
// key; an empty dir keeps the current direction for the current key and
// sorts a new key ascending.
func (a *API) setSort(key query.SortKey, dir query.Direction) error {
	if dir != "" && dir != query.Ascending && dir != query.Descending {
		return fmt.Errorf("invalid sort direction: %s", dir)
	}
	current, currentDir := a.engine.Sort()
	if key == "" {
		key = current
	}
	if !key.IsValid() {
		return fmt.Errorf("invalid sort key: %s", key)
	}
	if key == current && (dir == "" || dir == currentDir) {
		return nil
	}
	if err := a.engine.RequestSort(key); err != nil {
		return err
	}
	if _, got := a.engine.Sort(); dir != "" && got != dir {
		return a.engine.RequestSort(key)
	}
	return nil
}

func (a *API) getScan(w http.ResponseWriter, r *http.Request) {
	job, ok := a.manager.Job(chi.URLParam(r, "id"))
	if !ok {
		renderError(w, r, http.StatusNotFound, scan.ErrNotFound)
		return
	}
	render.JSON(w, r, job)
}

type selectionResponse struct {
	ID       string   `json:"id"`
	Selected bool     `json:"selected"`
	All      []string `json:"selection"`
}

func (a *API) toggleSelection(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := a.manager.Job(id); !ok {
		renderError(w, r, http.StatusNotFound, scan.ErrNotFound)
		return
	}
	selected := a.engine.ToggleSelected(id)
	render.JSON(w, r, selectionResponse{ID: id, Selected: selected, All: a.engine.Selected()})
}

func (a *API) getSelection(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]any{
		"selected": a.engine.Selected(),
		"jobs":     a.engine.SelectedJobs(a.manager.Jobs()),
	})
}

func (a *API) clearSelection(w http.ResponseWriter, r *http.Request) {
	a.engine.ClearSelection()
	render.NoContent(w, r)
}

type columnResponse struct {
	compare.Column
	Counts compare.Counts `json:"counts"`
}

func (a *API) getComparison(w http.ResponseWriter, r *http.Request) {
	jobs, ok := a.engine.Comparable(a.manager.Jobs())
	if !ok {
		renderError(w, r, http.StatusConflict, ErrNotComparable)
		return
	}

	columns := compare.Compare(jobs)
	out := make([]columnResponse, len(columns))
	for i, c := range columns {
		out[i] = columnResponse{Column: c, Counts: c.Counts()}
	}
	render.JSON(w, r, map[string]any{"columns": out})
}

func (a *API) getActivity(w http.ResponseWriter, r *http.Request) {
	limit := activity.DefaultCapacity
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			renderError(w, r, http.StatusBadRequest, fmt.Errorf("invalid limit: %q", s))
			return
		}
		limit = n
	}
	render.JSON(w, r, map[string]any{"events": a.manager.Activity().Recent(limit)})
}

type healthResponse struct {
	health.Report
	InFlight int `json:"inFlight"`
}

func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	report := health.Run(r.Context(), a.checks)
	if report.IsUnhealthy() {
		render.Status(r, http.StatusServiceUnavailable)
	}
	render.JSON(w, r, healthResponse{Report: report, InFlight: len(a.manager.InFlight())})
}

func renderError(w http.ResponseWriter, r *http.Request, status int, err error) {
	render.Status(r, status)
	render.JSON(w, r, map[string]string{"error": err.Error()})
}
