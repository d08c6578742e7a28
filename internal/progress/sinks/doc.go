// Package sinks implements progress consumers: structured logging, Prometheus
// collectors, the crawl run repository and a message publisher. Each satisfies
// progress.Sink.
package sinks
