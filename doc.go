// Package audityzer tracks smart contract audits from submission to
// completion and opens tickets for the critical vulnerabilities they find.
//
// # Lifecycle
//
// A Manager turns each submitted address into a scan.Job and audits it on
// its own goroutine:
//
//	Pending -> Running -> Completed | Failed
//
// Jobs start Running unless WithMaxConcurrent holds them Pending. A job that
// completes with at least one Critical vulnerability triggers a notification
// pass: every eligible integration target receives one ticket per critical
// vulnerability, target by target and call by call, and the pass is
// summarised in the activity log. Ticket failures are recorded on the Ticket
// and never turn a Completed job into a Failed one.
//
// # Getting Started
//
//	analyzer := analysis.NewHTTPAnalyzer("http://localhost:9000/audit")
//	mgr, err := audityzer.New(analyzer,
//		audityzer.WithTargets(integration.Static{
//			{Name: "Jira", Connected: true, ProjectID: "SEC"},
//		}),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	ticket, err := mgr.Submit(ctx, "0x6B175474E89094C44Da98b954EedeAC495271d0F")
//	if err != nil {
//		log.Fatal(err)
//	}
//	job, err := ticket.Wait(ctx)
//
// # Errors
//
// Validation failures are *Error values of KindValidation wrapping a
// sentinel such as ErrEmptyAddress. A failed audit is an *AnalysisError
// and a failed ticket a *NotificationError; both match their sentinel and
// the collaborator's error with errors.Is.
//
// # Observability
//
// WithTracerProvider and WithMeterProvider enable OpenTelemetry spans
// (audityzer.analyze, audityzer.notify) and metrics
// (audityzer.scans.submitted, audityzer.scans.finished,
// audityzer.notifications, audityzer.analysis.duration). Both default to
// no-op providers.
package audityzer
