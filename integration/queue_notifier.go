package integration

import (
	"context"
	"fmt"
	"time"

	"github.com/zero-day-ai/audityzer/finding"
	"github.com/zero-day-ai/audityzer/queue"
)

// QueueNotifier hands tickets to per-target Redis lists
// (integration:<target>:tasks) for a connector process to deliver.
type QueueNotifier struct {
	client queue.Client
	now    func() time.Time
}

// NewQueueNotifier returns a notifier pushing to client.
func NewQueueNotifier(client queue.Client) *QueueNotifier {
	return &QueueNotifier{client: client, now: time.Now}
}

// Notify pushes one task. The job id and address are taken from ctx when
// the caller attached them with ContextWithScan.
func (n *QueueNotifier) Notify(ctx context.Context, vuln finding.Vulnerability, targetName, projectID string) error {
	task := queue.Task{
		Target:         targetName,
		ProjectID:      projectID,
		Title:          TicketTitle(vuln),
		Severity:       vuln.Severity.String(),
		Description:    vuln.Description,
		Recommendation: vuln.Recommendation,
		CreatedAt:      n.now().UnixMilli(),
	}
	if s, ok := ScanFromContext(ctx); ok {
		task.JobID = s.JobID
		task.Address = s.Address
	}

	if err := n.client.PushTask(ctx, queue.TaskQueue(targetName), task); err != nil {
		return fmt.Errorf("queue ticket for %s: %w", targetName, err)
	}
	return nil
}
