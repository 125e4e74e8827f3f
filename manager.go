package audityzer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/zero-day-ai/audityzer/activity"
	"github.com/zero-day-ai/audityzer/analysis"
	"github.com/zero-day-ai/audityzer/finding"
	"github.com/zero-day-ai/audityzer/integration"
	"github.com/zero-day-ai/audityzer/scan"
)

// Manager runs scan jobs through their lifecycle. Each submitted job gets
// its own goroutine that calls the analyzer, records the outcome in the
// store and, when the result has critical vulnerabilities, notifies every
// eligible integration target.
//
// Manager is safe for concurrent use.
type Manager struct {
	analyzer analysis.Analyzer
	notifier integration.Notifier
	targets  integration.Source
	store    *scan.Store
	activity *activity.Log
	logger   *slog.Logger
	now      func() time.Time
	tracer   trace.Tracer
	metrics  *instruments

	mu            sync.Mutex
	maxConcurrent int
	running       int
	queued        []*Ticket
	inFlight      map[string]struct{}
	wg            sync.WaitGroup
}

// New creates a manager that audits contracts with analyzer.
func New(analyzer analysis.Analyzer, opts ...Option) (*Manager, error) {
	if analyzer == nil {
		return nil, NewValidationError("New", ErrNilAnalyzer)
	}

	cfg := config{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}
	if cfg.store == nil {
		cfg.store = scan.NewStore()
	}
	if cfg.activity == nil {
		cfg.activity = activity.New(activity.WithClock(cfg.now))
	}
	if cfg.notifier == nil {
		cfg.notifier = integration.NewLogNotifier(cfg.logger)
	}
	if cfg.targets == nil {
		cfg.targets = integration.Static(nil)
	}

	metrics, err := newInstruments(cfg.meterProvider)
	if err != nil {
		return nil, NewInternalError("New", err)
	}

	return &Manager{
		analyzer:      analyzer,
		notifier:      cfg.notifier,
		targets:       cfg.targets,
		store:         cfg.store,
		activity:      cfg.activity,
		logger:        cfg.logger,
		now:           cfg.now,
		tracer:        newTracer(cfg.tracerProvider),
		metrics:       metrics,
		maxConcurrent: cfg.maxConcurrent,
		inFlight:      make(map[string]struct{}),
	}, nil
}

// Submit creates a job for address and starts auditing it. The job is
// Running when Submit returns, or Pending if the concurrency limit is
// reached. The returned ticket reports the outcome.
//
// The audit is not bound to ctx: cancelling ctx after Submit returns does
// not stop it.
func (m *Manager) Submit(ctx context.Context, address string) (*Ticket, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, NewValidationError("Manager.Submit", ErrEmptyAddress)
	}

	job := scan.Job{
		ID:            uuid.NewString(),
		TargetAddress: address,
		Status:        scan.StatusRunning,
		SubmittedAt:   m.now(),
	}

	m.mu.Lock()
	start := m.maxConcurrent == 0 || m.running < m.maxConcurrent
	if !start {
		job.Status = scan.StatusPending
	}
	ticket := newTicket(context.WithoutCancel(ctx), job)
	if err := m.store.Add(job); err != nil {
		m.mu.Unlock()
		return nil, NewInternalError("Manager.Submit", err).WithContext(map[string]any{"job_id": job.ID})
	}
	m.inFlight[job.ID] = struct{}{}
	m.wg.Add(1)
	if start {
		m.running++
	} else {
		m.queued = append(m.queued, ticket)
	}
	m.mu.Unlock()

	m.metrics.submitted.Add(ctx, 1)
	m.logger.InfoContext(ctx, "scan submitted",
		"job_id", job.ID,
		"address", address,
		"status", job.Status,
	)

	if start {
		go m.run(ticket)
	}
	return ticket, nil
}

// run audits one job and then runs its notification pass.
func (m *Manager) run(t *Ticket) {
	defer m.wg.Done()
	defer close(t.done)

	ctx := analysis.ContextWithRequestID(t.ctx, t.id)
	logger := m.logger.With("job_id", t.id, "address", t.address)

	result, err := m.analyze(ctx, t)
	if err != nil {
		aerr := &AnalysisError{JobID: t.id, Address: t.address, Err: err}
		job, markErr := m.store.MarkFailed(t.id, m.now())
		if markErr != nil {
			logger.ErrorContext(ctx, "failed to mark scan failed", "error", markErr)
			job, _ = m.store.Get(t.id)
		}
		m.finish(ctx, t.id, job.Status)
		t.setOutcome(job, aerr)
		logger.WarnContext(ctx, "scan failed", "error", err)
		return
	}

	job, err := m.store.MarkCompleted(t.id, result, m.now())
	if err != nil {
		logger.ErrorContext(ctx, "failed to mark scan completed", "error", err)
		job, _ = m.store.Get(t.id)
		m.finish(ctx, t.id, job.Status)
		t.setOutcome(job, NewInternalError("Manager.complete", err).WithContext(map[string]any{"job_id": t.id}))
		return
	}
	m.finish(ctx, t.id, job.Status)
	logger.InfoContext(ctx, "scan completed",
		"vulnerabilities", len(result.Vulnerabilities),
		"critical", len(result.BySeverity(finding.SeverityCritical)),
	)

	m.notifyCritical(ctx, t, job)
	t.setOutcome(job, nil)
}

// analyze calls the analyzer once. A panic, a nil result or an invalid
// result counts as a failure.
func (m *Manager) analyze(ctx context.Context, t *Ticket) (result *finding.AuditResult, err error) {
	ctx, span := m.tracer.Start(ctx, "audityzer.analyze", trace.WithAttributes(
		attribute.String("scan.id", t.id),
		attribute.String("scan.address", t.address),
	))
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("analyzer panicked: %v", r)
		}
		outcome := "completed"
		if err != nil {
			outcome = "failed"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.Int("scan.vulnerabilities", len(result.Vulnerabilities)))
			span.SetStatus(codes.Ok, "")
		}
		m.metrics.duration.Record(ctx, float64(time.Since(start).Milliseconds()),
			metric.WithAttributes(attribute.String("outcome", outcome)))
		span.End()
	}()

	result, err = m.analyzer.Analyze(ctx, t.address)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, analysis.ErrNoResult
	}
	if err := result.Validate(); err != nil {
		return nil, err
	}
	return result.Clone(), nil
}

// finish records that a job reached a terminal status, frees its slot and
// starts the next Pending job, if any.
func (m *Manager) finish(ctx context.Context, id string, status scan.Status) {
	m.metrics.finished.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status.String())))

	m.mu.Lock()
	delete(m.inFlight, id)
	m.running--
	var next *Ticket
	if len(m.queued) > 0 && (m.maxConcurrent == 0 || m.running < m.maxConcurrent) {
		next = m.queued[0]
		m.queued = m.queued[1:]
		m.running++
	}
	m.mu.Unlock()

	if next == nil {
		return
	}
	if _, err := m.store.MarkRunning(next.id); err != nil {
		m.logger.ErrorContext(ctx, "failed to start pending scan", "job_id", next.id, "error", err)
	}
	go m.run(next)
}

// notifyCritical creates one ticket per critical vulnerability in every
// eligible target, one target at a time and one call at a time. Failures
// are recorded on the ticket and never change the job's status.
func (m *Manager) notifyCritical(ctx context.Context, t *Ticket, job scan.Job) {
	critical := job.Result.BySeverity(finding.SeverityCritical)
	if len(critical) == 0 {
		return
	}

	targets, err := m.targets.Targets(ctx)
	if err != nil {
		m.logger.ErrorContext(ctx, "failed to load integration targets", "job_id", job.ID, "error", err)
		t.addNotificationError(&NotificationError{JobID: job.ID, Err: err})
		return
	}

	ctx = integration.ContextWithScan(ctx, integration.Scan{JobID: job.ID, Address: job.TargetAddress})
	var notified []string
	for _, target := range integration.Eligible(targets) {
		created := 0
		for _, vuln := range critical {
			if err := m.notify(ctx, job, target, vuln); err != nil {
				t.addNotificationError(&NotificationError{
					JobID:         job.ID,
					Target:        target.Name,
					ProjectID:     target.ProjectID,
					Vulnerability: vuln.Title,
					Err:           err,
				})
				continue
			}
			created++
		}
		m.activity.Append(target.Name, targetSummary(created, len(critical), job.TargetAddress))
		notified = append(notified, target.Name)
	}

	if len(notified) > 0 {
		m.activity.Append(activity.SourceGeneral, fmt.Sprintf("Audityzer found %d critical %s and created tasks in %s.",
			len(critical), plural(len(critical), "vulnerability", "vulnerabilities"), strings.Join(notified, " & ")))
	}
}

func (m *Manager) notify(ctx context.Context, job scan.Job, target integration.Target, vuln finding.Vulnerability) error {
	ctx, span := m.tracer.Start(ctx, "audityzer.notify", trace.WithAttributes(
		attribute.String("scan.id", job.ID),
		attribute.String("integration.target", target.Name),
		attribute.String("integration.project_id", target.ProjectID),
		attribute.String("vulnerability.title", vuln.Title),
	))
	defer span.End()

	err := m.notifier.Notify(ctx, vuln, target.Name, target.ProjectID)
	outcome := "created"
	if err != nil {
		outcome = "failed"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.logger.ErrorContext(ctx, "failed to create ticket",
			"job_id", job.ID,
			"target", target.Name,
			"title", vuln.Title,
			"error", err,
		)
	}
	m.metrics.notifications.Add(ctx, 1, metric.WithAttributes(
		attribute.String("target", target.Name),
		attribute.String("outcome", outcome),
	))
	return err
}

// targetSummary is the activity message for one target's pass.
func targetSummary(created, total int, address string) string {
	if created == total {
		return fmt.Sprintf("Created %d %s for critical vulnerabilities in %s.",
			total, plural(total, "task", "tasks"), address)
	}
	return fmt.Sprintf("Created %d of %d tasks for critical vulnerabilities in %s.",
		created, total, address)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// InFlight returns the ids of jobs that are Pending or Running.
func (m *Manager) InFlight() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.inFlight))
	for id := range m.inFlight {
		ids = append(ids, id)
	}
	return ids
}

// Jobs returns every job, newest submission first.
func (m *Manager) Jobs() []scan.Job {
	return m.store.Snapshot()
}

// Job returns the job with the given id.
func (m *Manager) Job(id string) (scan.Job, bool) {
	return m.store.Get(id)
}

// Store returns the job store for reads and subscriptions.
func (m *Manager) Store() *scan.Store {
	return m.store
}

// Activity returns the notification activity log.
func (m *Manager) Activity() *activity.Log {
	return m.activity
}

// Wait blocks until every submitted job has finished its analysis and
// notification pass, or ctx is done.
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
