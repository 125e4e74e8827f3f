package queue

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// Processor audits one work item and returns the result as JSON.
type Processor func(ctx context.Context, item WorkItem) (string, error)

// WorkerOptions configures RunWorker.
type WorkerOptions struct {
	// Queue is the list to consume. Defaults to AuditQueue.
	Queue string

	// Concurrency is the number of worker goroutines to start. Defaults to 4.
	Concurrency int

	// ShutdownTimeout is the time to wait for in-flight items after ctx is
	// cancelled. Defaults to 30s.
	ShutdownTimeout time.Duration

	// HeartbeatInterval is the period between heartbeats. Defaults to 10s.
	HeartbeatInterval time.Duration

	// WorkerID identifies this process. Generated when empty.
	WorkerID string

	// Logger is the structured logger for worker operations.
	// If nil, slog.Default() is used.
	Logger *slog.Logger
}

func (o WorkerOptions) withDefaults() WorkerOptions {
	if o.Queue == "" {
		o.Queue = AuditQueue
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.ShutdownTimeout == 0 {
		o.ShutdownTimeout = 30 * time.Second
	}
	if o.HeartbeatInterval == 0 {
		o.HeartbeatInterval = 10 * time.Second
	}
	if o.WorkerID == "" {
		o.WorkerID = GenerateWorkerID()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// RunWorker consumes work items until ctx is cancelled. Each of the
// Concurrency goroutines:
//  1. Pops a work item from the queue
//  2. Runs process on it
//  3. Publishes the Result on results:<jobID>
//
// The worker is counted on the queue while it runs and keeps a heartbeat.
// On cancellation it waits up to ShutdownTimeout for in-flight items.
func RunWorker(ctx context.Context, client Client, process Processor, opts WorkerOptions) error {
	opts = opts.withDefaults()
	logger := opts.Logger.With(
		"queue", opts.Queue,
		"worker_id", opts.WorkerID,
	)

	if err := client.IncrementWorkerCount(ctx, opts.Queue); err != nil {
		logger.Error("failed to increment worker count", "error", err)
	}

	// Ensure worker count is decremented on exit
	defer func() {
		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cleanupCancel()
		if err := client.DecrementWorkerCount(cleanupCtx, opts.Queue); err != nil {
			logger.Error("failed to decrement worker count", "error", err)
		}
	}()

	heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go runHeartbeat(heartbeatCtx, client, opts.WorkerID, opts.HeartbeatInterval, logger)

	var wg sync.WaitGroup
	for i := 0; i < opts.Concurrency; i++ {
		wg.Add(1)
		go func(workerNum int) {
			defer wg.Done()
			workerLoop(ctx, workerNum, process, client, opts.Queue, opts.WorkerID, logger)
		}(i)
	}

	logger.Info("worker started", "workers", opts.Concurrency)

	<-ctx.Done()
	logger.Info("worker stopping", "reason", ctx.Err())

	doneChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(doneChan)
	}()

	select {
	case <-doneChan:
		logger.Info("worker shutdown complete")
		return nil
	case <-time.After(opts.ShutdownTimeout):
		logger.Warn("worker shutdown timeout exceeded", "timeout", opts.ShutdownTimeout)
		return fmt.Errorf("worker shutdown timed out after %s", opts.ShutdownTimeout)
	}
}

// runHeartbeat sends a heartbeat immediately and then every interval until
// ctx is cancelled.
func runHeartbeat(ctx context.Context, client Client, workerID string, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := client.Heartbeat(ctx, workerID); err != nil && ctx.Err() == nil {
			// heartbeat failures are transient
			logger.Debug("heartbeat failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func workerLoop(ctx context.Context, workerNum int, process Processor, client Client, queueName, workerID string, logger *slog.Logger) {
	logger = logger.With("worker_num", workerNum)

	for {
		item, err := client.Pop(ctx, queueName)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("failed to pop work item", "error", err)
			continue
		}

		logger.Info("received work item",
			"job_id", item.JobID,
			"address", item.Address,
			"age", item.Age(),
			"trace_id", item.TraceID,
			"span_id", item.SpanID,
		)

		itemCtx := ctx
		if sc := item.SpanContext(); sc.IsValid() {
			itemCtx = trace.ContextWithRemoteSpanContext(ctx, sc)
		}

		// Results are published even when ctx is cancelled mid-audit.
		result := processWorkItem(itemCtx, process, *item, workerID, logger)
		if err := client.Publish(context.WithoutCancel(ctx), ResultChannel(item.JobID), result); err != nil {
			logger.Error("failed to publish result", "job_id", item.JobID, "error", err)
		}
	}
}

// processWorkItem always returns a result; failures are carried in Error.
func processWorkItem(ctx context.Context, process Processor, item WorkItem, workerID string, logger *slog.Logger) (result Result) {
	result = Result{
		JobID:     item.JobID,
		WorkerID:  workerID,
		StartedAt: time.Now().UnixMilli(),
	}
	defer func() {
		if r := recover(); r != nil {
			result.OutputJSON = ""
			result.Error = fmt.Sprintf("audit panicked: %v", r)
			logger.Error("audit panicked", "job_id", item.JobID, "panic", r)
		}
		result.CompletedAt = time.Now().UnixMilli()
	}()

	output, err := process(ctx, item)
	if err != nil {
		result.Error = err.Error()
		logger.Error("audit failed", "job_id", item.JobID, "error", err)
		return result
	}
	if output == "" {
		result.Error = "audit returned no output"
		return result
	}

	result.OutputJSON = output
	logger.Info("work item completed",
		"job_id", item.JobID,
		"duration_ms", time.Now().UnixMilli()-result.StartedAt,
	)
	return result
}

// GenerateWorkerID creates a unique identifier for this worker instance from
// the hostname, the PID and a short UUID suffix.
func GenerateWorkerID() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s-%d-%s", hostname, os.Getpid(), uuid.New().String()[:8])
}
