// Package api hosts the HTTP server for submitting and inspecting crawl runs.
// Routes:
//   - GET /healthz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/runs to queue a crawl of a registered source.
//   - GET /v1/runs/{run_id} for the run's status and summary.
package api
