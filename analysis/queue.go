package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/zero-day-ai/audityzer/finding"
	"github.com/zero-day-ai/audityzer/queue"
)

// ErrResultChannelClosed is returned when the result subscription ends
// before a worker answers.
var ErrResultChannelClosed = errors.New("result channel closed before a result arrived")

// QueueAnalyzer delegates audits to workers over Redis: it subscribes to
// results:<id>, pushes a work item on the audit queue and waits for the
// worker's result. It waits as long as ctx allows.
type QueueAnalyzer struct {
	client    queue.Client
	queueName string
	logger    *slog.Logger
	now       func() time.Time
}

// QueueOption configures a QueueAnalyzer.
type QueueOption func(*QueueAnalyzer)

// WithQueueName overrides queue.AuditQueue.
func WithQueueName(name string) QueueOption {
	return func(a *QueueAnalyzer) {
		if name != "" {
			a.queueName = name
		}
	}
}

// WithQueueLogger sets the logger.
func WithQueueLogger(l *slog.Logger) QueueOption {
	return func(a *QueueAnalyzer) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewQueueAnalyzer returns an analyzer backed by client.
func NewQueueAnalyzer(client queue.Client, opts ...QueueOption) *QueueAnalyzer {
	a := &QueueAnalyzer{
		client:    client,
		queueName: queue.AuditQueue,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze submits the audit and blocks until its result is published.
func (a *QueueAnalyzer) Analyze(ctx context.Context, address string) (*finding.AuditResult, error) {
	id := RequestID(ctx)
	logger := a.logger.With("request_id", id, "address", address)

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Subscribe before pushing so a fast worker cannot publish into the void.
	results, err := a.client.Subscribe(subCtx, queue.ResultChannel(id))
	if err != nil {
		return nil, fmt.Errorf("subscribe to audit result: %w", err)
	}

	item := queue.WorkItem{
		JobID:       id,
		Address:     address,
		SubmittedAt: a.now().UnixMilli(),
	}
	item.SetSpanContext(trace.SpanContextFromContext(ctx))
	if err := a.client.Push(ctx, a.queueName, item); err != nil {
		return nil, fmt.Errorf("submit audit: %w", err)
	}
	logger.Debug("audit queued", "queue", a.queueName)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res, ok := <-results:
		if !ok {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, ErrResultChannelClosed
		}
		return a.decode(ctx, logger, res)
	}
}

func (a *QueueAnalyzer) decode(ctx context.Context, logger *slog.Logger, res queue.Result) (*finding.AuditResult, error) {
	if res.HasError() {
		return nil, fmt.Errorf("worker %s: %s", res.WorkerID, res.Error)
	}
	if res.OutputJSON == "" {
		return nil, ErrNoResult
	}

	result, err := finding.DecodeResult([]byte(res.OutputJSON))
	if err != nil {
		return nil, fmt.Errorf("invalid audit result from worker %s: %w", res.WorkerID, err)
	}
	for _, w := range result.Warnings() {
		logger.WarnContext(ctx, "audit result inconsistency", "warning", w)
	}
	logger.Debug("audit result received", "worker_id", res.WorkerID, "duration", res.Duration())
	return result, nil
}

// Processor adapts an Analyzer to a queue worker: the work item's job id
// becomes the request id and the result is published as JSON.
func Processor(a Analyzer) queue.Processor {
	return func(ctx context.Context, item queue.WorkItem) (string, error) {
		result, err := a.Analyze(ContextWithRequestID(ctx, item.JobID), item.Address)
		if err != nil {
			return "", err
		}
		if result == nil {
			return "", ErrNoResult
		}
		data, err := json.Marshal(result)
		if err != nil {
			return "", fmt.Errorf("failed to marshal audit result: %w", err)
		}
		return string(data), nil
	}
}
