// Package health provides health checks for the services audityzer depends on.
//
// Each check returns a Status. Combine folds several statuses into one with
// the priority unhealthy > degraded > healthy, and Run evaluates a set of
// named checks into a Report suitable for a /healthz response.
//
//	report := health.Run(ctx, map[string]health.Checker{
//		"redis": func(ctx context.Context) health.Status {
//			return health.RedisCheck(ctx, client)
//		},
//		"workers": func(ctx context.Context) health.Status {
//			return health.WorkerCheck(ctx, client, queue.AuditQueue)
//		},
//	})
//	if report.IsUnhealthy() {
//		log.Printf("dependencies down: %+v", report.Checks)
//	}
//
// Checks that take a context use it for timeout and cancellation. A nil
// context gets a default 5-second timeout.
package health
