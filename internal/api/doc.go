// Package api serves read-only batch progress over HTTP. Routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/progress?status=&limit=&offset= lists ledger entries.
//   - GET /v1/progress/summary counts entries per status.
package api
