// Package progress carries crawl lifecycle events from the engine to pluggable
// sinks. Emitting never blocks a pipeline worker: events are buffered, batched
// on a background goroutine, and dropped under backpressure.
package progress
