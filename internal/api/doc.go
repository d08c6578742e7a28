// Package api hosts the HTTP server that drives the crawl engine. Routes:
//   - PUT /create submits a crawl of {"url","depth"}.
//   - GET /urls and /count report the canonical keys currently admitted.
//   - GET /find/{word} searches the term index.
//   - GET /crawls and /crawls/{task_id} read finished crawl runs.
//   - GET /healthz, /readyz and /metrics for probes and Prometheus.
package api
