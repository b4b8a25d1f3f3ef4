// Package http is the control plane of the consolidation service.
//
// Handlers stay thin: they parse and validate the request, call the run
// coordinator or a read-side service, and render the result with
// go-chi/render. Errors are rendered as RFC 7807 problem details by
// errors.ErrorHandler, which maps the pipeline error taxonomy to statuses
// (NOT_FOUND to 404, CONFLICT to 409, VALIDATION to 400).
//
// Routes:
//
//	GET  /healthz
//	GET  /metrics
//	POST /api/v1/runs
//	GET  /api/v1/runs
//	GET  /api/v1/runs/{id}
//	GET  /api/v1/summary
//	GET  /api/v1/datamarts
//	GET  /ws
package http
