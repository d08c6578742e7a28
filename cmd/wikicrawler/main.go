// Package main hosts the wikicrawler entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes crawl submission (PUT /create), the in-flight key set (/urls, /count),
//     term search (/find/{word}), completed crawl runs (/crawls), health probes and /metrics.
//   - Pools: two dispatcher pools run the pipeline. "download" fetches article bodies through the Colly fetcher;
//     "parse" parses them with goquery, writes the body to the sharded layout, indexes its terms and admits the
//     child articles it links to. Queues are unbounded so a stage never blocks handing work to the other pool.
//   - Persistence & fanout: page bodies go to the configured storage backend (local, gcs or memory). Every crawl
//     emits progress events into a batching hub whose sinks log them, export Prometheus metrics, save the finished
//     run to Postgres (or memory) and, when progress.topic is set, publish it to Pub/Sub.
//   - Configuration & plumbing: Viper populates config from CRAWLER_* env vars and an optional YAML file; zap
//     provides structured logging.
//
// Operational notes:
//   - serve reacts to SIGINT/SIGTERM: the HTTP server stops accepting requests, running crawls are canceled, the
//     pools drain so every admitted page resolves, and the progress hub flushes before clients close.
//   - crawl runs a single crawl in-process and prints its summary.
//
// Quick checklist:
//   - Run locally: go run ./cmd/wikicrawler serve --config config.yaml (or rely solely on env overrides).
//   - One-shot: go run ./cmd/wikicrawler crawl --url https://en.wikipedia.org/wiki/Go --depth 2
package main

func main() {
	Execute()
}
