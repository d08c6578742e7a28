// Package store defines the persistence contract for finished crawl runs.
// Implementations live under internal/storage; this package must not import
// database drivers or concrete clients.
package store
