// Package serve exposes a scan manager over HTTP.
//
// The API is a thin presentation layer: it submits scans, reads the job
// store through a query engine, toggles the comparison selection and renders
// the comparison and the notification activity log. All state lives in the
// manager and the engine.
//
//	POST /scans                 submit {"address": "0x..."}
//	GET  /scans                 filtered, sorted, paginated history
//	GET  /scans/{id}            one job
//	POST /scans/{id}/select     toggle comparison selection
//	GET  /selection             selected jobs in selection order
//	DELETE /selection           clear the selection
//	GET  /comparison            classified comparison of selected completed jobs
//	GET  /activity              recent notification activity
//	GET  /healthz               dependency health
//
// GET /scans accepts the query parameters address, status, severity, from,
// to (YYYY-MM-DD), expr (CEL), sort (address, status, submittedAt), dir
// (ascending, descending), page and clear. Parameters present on a request
// update the engine's filter state; absent ones keep it.
//
// Usage:
//
//	api := serve.NewAPI(manager, query.New(), serve.WithAPILogger(logger))
//	srv, err := serve.NewServer(api.Routes(), serve.WithAddr(":8080"))
//	if err != nil {
//		return err
//	}
//	return srv.Serve(ctx)
package serve
