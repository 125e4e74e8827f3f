package integration

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero-day-ai/audityzer/finding"
	"github.com/zero-day-ai/audityzer/queue"
)

var reentrancy = finding.Vulnerability{
	ID:             "v1",
	Severity:       finding.SeverityCritical,
	Title:          "Reentrancy",
	Description:    "External call before state update",
	Recommendation: "Use checks-effects-interactions",
}

func TestNotifierFunc(t *testing.T) {
	var got string
	n := NotifierFunc(func(ctx context.Context, vuln finding.Vulnerability, targetName, projectID string) error {
		got = fmt.Sprintf("%s/%s/%s", targetName, projectID, vuln.Title)
		return errors.New("rejected")
	})

	err := n.Notify(context.Background(), reentrancy, "Jira", "SEC")
	assert.EqualError(t, err, "rejected")
	assert.Equal(t, "Jira/SEC/Reentrancy", got)
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(slog.New(slog.NewTextHandler(&buf, nil)))

	ctx := ContextWithScan(context.Background(), Scan{JobID: "job-7", Address: "0xabc"})
	require.NoError(t, n.Notify(ctx, reentrancy, "Jira", "SEC"))

	out := buf.String()
	assert.Contains(t, out, "ticket created")
	assert.Contains(t, out, "target=Jira")
	assert.Contains(t, out, "project_id=SEC")
	assert.Contains(t, out, `title="Critical Vulnerability Found: Reentrancy"`)
	assert.Contains(t, out, "job_id=job-7")

	assert.NotNil(t, NewLogNotifier(nil).Logger)
}

func TestQueueNotifier(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := queue.NewRedisClient(queue.RedisOptions{URL: fmt.Sprintf("redis://%s", mr.Addr())})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	n := NewQueueNotifier(client)
	n.now = func() time.Time { return time.UnixMilli(1700000000000) }

	ctx := ContextWithScan(context.Background(), Scan{JobID: "job-1", Address: "0xabc"})
	require.NoError(t, n.Notify(ctx, reentrancy, "Monday.com", "board-9"))

	task, err := client.PopTask(context.Background(), "integration:monday-com:tasks")
	require.NoError(t, err)
	assert.Equal(t, queue.Task{
		JobID:          "job-1",
		Address:        "0xabc",
		Target:         "Monday.com",
		ProjectID:      "board-9",
		Title:          "Critical Vulnerability Found: Reentrancy",
		Severity:       "Critical",
		Description:    "External call before state update",
		Recommendation: "Use checks-effects-interactions",
		CreatedAt:      1700000000000,
	}, *task)
}

func TestQueueNotifier_RedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := queue.NewRedisClient(queue.RedisOptions{URL: fmt.Sprintf("redis://%s", mr.Addr())})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	mr.Close()

	err = NewQueueNotifier(client).Notify(context.Background(), reentrancy, "Jira", "SEC")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue ticket for Jira")
}
