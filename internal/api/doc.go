// Package api hosts the ops HTTP server that runs beside a crawl. Routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/run for the current run's state and dataset sizes.
package api
