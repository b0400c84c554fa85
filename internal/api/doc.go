// Package api hosts the HTTP server and middleware of serve mode. Routes:
//   - GET /healthz and /readyz for probes; readyz fails until the first run finishes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/runs/last for the summary of the most recent run.
package api
