// Package queue provides Redis-based work queue primitives for distributed
// contract audits and ticket delivery.
//
// Audits are decoupled from the process that tracks scan jobs: the manager
// pushes a WorkItem, a worker pops it, runs the auditor, and publishes a
// Result on the job's pub/sub channel. Ticket tasks for project management
// tools travel through per-target lists the same way.
//
// # Redis Key Schema
//
//   - audit:queue - List of audit work items (LPUSH/BRPOP)
//   - audit:queue:workers - Integer counter of active workers
//   - results:<jobID> - Pub/Sub channel for a job's audit result
//   - integration:<target>:tasks - List of ticket tasks for one target
//   - worker:<id>:health - String with 30s TTL for heartbeat
//
// # Usage
//
//	client, err := queue.NewRedisClient(queue.RedisOptions{
//		URL: "redis://localhost:6379",
//	})
//
//	results, err := client.Subscribe(ctx, queue.ResultChannel("job-123"))
//	err = client.Push(ctx, queue.AuditQueue, queue.WorkItem{
//		JobID:       "job-123",
//		Address:     "0xabc",
//		SubmittedAt: time.Now().UnixMilli(),
//	})
//	result := <-results
//
// Running a worker:
//
//	err := queue.RunWorker(ctx, client, func(ctx context.Context, item queue.WorkItem) (string, error) {
//		return audit(ctx, item.Address)
//	}, queue.WorkerOptions{Concurrency: 4})
//
// A WorkItem pushed from inside a span carries its trace and span ids; the
// worker processes the item under that remote span context.
//
// # Ticket Connectors
//
// integration.QueueNotifier fills the integration:<target>:tasks lists and
// this module never drains them. A connector process for one project
// management tool consumes its list with PopTask and creates the ticket:
//
//	for {
//		task, err := client.PopTask(ctx, queue.TaskQueue("Asana"))
//		if err != nil {
//			return err
//		}
//		createAsanaTask(ctx, task.ProjectID, task.Title, task.Description)
//	}
//
// Subscribe before Push: pub/sub messages published with no subscriber are
// dropped.
package queue
