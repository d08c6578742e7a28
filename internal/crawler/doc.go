// Package crawler implements the recursive article crawl: page identity and
// the sharded storage layout, per-crawl completion tracking, the global
// in-flight set and the engine that drives download, parse, store, index and
// link extraction across two executors.
package crawler
