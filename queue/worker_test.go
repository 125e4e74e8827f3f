package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startWorker runs RunWorker in the background and returns a stop function
// that cancels it and returns its error.
func startWorker(t *testing.T, client Client, process Processor, opts WorkerOptions) func() error {
	t.Helper()

	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- RunWorker(ctx, client, process, opts)
	}()

	stopped := false
	stop := func() error {
		if stopped {
			return nil
		}
		stopped = true
		cancel()
		select {
		case err := <-errCh:
			return err
		case <-time.After(5 * time.Second):
			t.Fatal("worker did not stop")
			return nil
		}
	}
	t.Cleanup(func() { _ = stop() })
	return stop
}

func TestRunWorker_BasicExecution(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	startWorker(t, client, func(ctx context.Context, item WorkItem) (string, error) {
		return `{"address":"` + item.Address + `"}`, nil
	}, WorkerOptions{Concurrency: 1, WorkerID: "worker-test"})

	results, err := client.Subscribe(ctx, ResultChannel("job-1"))
	require.NoError(t, err)
	require.NoError(t, client.Push(ctx, AuditQueue, testItem("job-1")))

	select {
	case result := <-results:
		assert.Equal(t, "job-1", result.JobID)
		assert.Equal(t, "worker-test", result.WorkerID)
		assert.Contains(t, result.OutputJSON, "0x6B175474")
		assert.Empty(t, result.Error)
		assert.NoError(t, result.IsValid())
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for result")
	}
}

func TestRunWorker_ProcessesUnderSubmitterSpan(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	seen := make(chan trace.SpanContext, 1)
	startWorker(t, client, func(ctx context.Context, item WorkItem) (string, error) {
		seen <- trace.SpanContextFromContext(ctx)
		return `{}`, nil
	}, WorkerOptions{Concurrency: 1, WorkerID: "worker-test"})

	item := testItem("job-traced")
	item.TraceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	item.SpanID = "00f067aa0ba902b7"
	require.NoError(t, client.Push(ctx, AuditQueue, item))

	select {
	case sc := <-seen:
		assert.True(t, sc.IsRemote())
		assert.Equal(t, item.TraceID, sc.TraceID().String())
		assert.Equal(t, item.SpanID, sc.SpanID().String())
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for work item")
	}
}

func TestRunWorker_AuditError(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	startWorker(t, client, func(ctx context.Context, item WorkItem) (string, error) {
		return "", errors.New("auditor unavailable")
	}, WorkerOptions{Concurrency: 1})

	results, err := client.Subscribe(ctx, ResultChannel("job-err"))
	require.NoError(t, err)
	require.NoError(t, client.Push(ctx, AuditQueue, testItem("job-err")))

	select {
	case result := <-results:
		assert.True(t, result.HasError())
		assert.Equal(t, "auditor unavailable", result.Error)
		assert.Empty(t, result.OutputJSON)
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for result")
	}
}

func TestRunWorker_ConcurrentWorkers(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var processed atomic.Int32
	startWorker(t, client, func(ctx context.Context, item WorkItem) (string, error) {
		processed.Add(1)
		time.Sleep(50 * time.Millisecond)
		return "{}", nil
	}, WorkerOptions{Concurrency: 3})

	const jobs = 6
	channels := make([]<-chan Result, jobs)
	for i := range channels {
		ch, err := client.Subscribe(ctx, ResultChannel(jobName(i)))
		require.NoError(t, err)
		channels[i] = ch
	}
	for i := 0; i < jobs; i++ {
		require.NoError(t, client.Push(ctx, AuditQueue, testItem(jobName(i))))
	}

	for i, ch := range channels {
		select {
		case result := <-ch:
			assert.Equal(t, jobName(i), result.JobID)
		case <-time.After(5 * time.Second):
			t.Fatalf("timeout waiting for %s", jobName(i))
		}
	}
	assert.Equal(t, int32(jobs), processed.Load())
}

func jobName(i int) string {
	return fmt.Sprintf("job-%d", i)
}

func TestRunWorker_CountAndHeartbeat(t *testing.T) {
	client, mr := setupTestClient(t)
	ctx := context.Background()

	stop := startWorker(t, client, func(ctx context.Context, item WorkItem) (string, error) {
		return "{}", nil
	}, WorkerOptions{Concurrency: 2, WorkerID: "hb", HeartbeatInterval: 50 * time.Millisecond})

	require.Eventually(t, func() bool {
		count, err := client.GetWorkerCount(ctx, AuditQueue)
		return err == nil && count == 1 && mr.Exists(HealthKey("hb"))
	}, 3*time.Second, 20*time.Millisecond)

	require.NoError(t, stop())

	count, err := client.GetWorkerCount(ctx, AuditQueue)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestRunWorker_GracefulShutdown(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	started := make(chan struct{})
	stop := startWorker(t, client, func(ctx context.Context, item WorkItem) (string, error) {
		close(started)
		time.Sleep(200 * time.Millisecond)
		return "{}", nil
	}, WorkerOptions{Concurrency: 1})

	results, err := client.Subscribe(ctx, ResultChannel("job-slow"))
	require.NoError(t, err)
	require.NoError(t, client.Push(ctx, AuditQueue, testItem("job-slow")))

	<-started
	require.NoError(t, stop())

	select {
	case result := <-results:
		assert.Equal(t, "job-slow", result.JobID)
		assert.False(t, result.HasError())
	case <-time.After(3 * time.Second):
		t.Fatal("in-flight item was not published")
	}
}

func TestRunWorker_ShutdownTimeout(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	release := make(chan struct{})
	defer close(release)
	started := make(chan struct{})
	stop := startWorker(t, client, func(ctx context.Context, item WorkItem) (string, error) {
		close(started)
		<-release
		return "{}", nil
	}, WorkerOptions{Concurrency: 1, ShutdownTimeout: 100 * time.Millisecond})

	require.NoError(t, client.Push(ctx, AuditQueue, testItem("job-stuck")))
	<-started

	err := stop()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shutdown timed out")
}

func TestProcessWorkItem(t *testing.T) {
	item := testItem("job-1")

	t.Run("success", func(t *testing.T) {
		result := processWorkItem(context.Background(), func(ctx context.Context, item WorkItem) (string, error) {
			return "{}", nil
		}, item, "w1", quietLogger())

		assert.Equal(t, "{}", result.OutputJSON)
		assert.Equal(t, "w1", result.WorkerID)
		assert.GreaterOrEqual(t, result.CompletedAt, result.StartedAt)
	})

	t.Run("empty output", func(t *testing.T) {
		result := processWorkItem(context.Background(), func(ctx context.Context, item WorkItem) (string, error) {
			return "", nil
		}, item, "w1", quietLogger())

		assert.Equal(t, "audit returned no output", result.Error)
	})

	t.Run("panic", func(t *testing.T) {
		result := processWorkItem(context.Background(), func(ctx context.Context, item WorkItem) (string, error) {
			panic("boom")
		}, item, "w1", quietLogger())

		assert.Contains(t, result.Error, "audit panicked: boom")
		assert.NotZero(t, result.CompletedAt)
	})
}

func TestGenerateWorkerID(t *testing.T) {
	id1 := GenerateWorkerID()
	id2 := GenerateWorkerID()
	assert.NotEmpty(t, id1)
	assert.NotEqual(t, id1, id2)
}

func TestWorkerOptions_Defaults(t *testing.T) {
	opts := WorkerOptions{}.withDefaults()
	assert.Equal(t, AuditQueue, opts.Queue)
	assert.Equal(t, 4, opts.Concurrency)
	assert.Equal(t, 30*time.Second, opts.ShutdownTimeout)
	assert.Equal(t, 10*time.Second, opts.HeartbeatInterval)
	assert.NotEmpty(t, opts.WorkerID)
	assert.NotNil(t, opts.Logger)

	custom := WorkerOptions{Queue: "q", Concurrency: 2}.withDefaults()
	assert.Equal(t, "q", custom.Queue)
	assert.Equal(t, 2, custom.Concurrency)
}
