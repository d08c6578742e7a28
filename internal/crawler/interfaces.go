package crawler

import (
	"context"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Downloader retrieves the raw body of a page.
type Downloader interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Parser turns a raw body into a queryable document.
type Parser interface {
	Parse(body []byte) (*goquery.Document, error)
}

// Storage persists raw page bodies under a slash-separated relative path.
type Storage interface {
	Store(ctx context.Context, relPath string, data []byte) error
}

// Indexer records the terms found in the text fragments of a document.
type Indexer interface {
	Insert(documentID string, texts []string)
}

// Stage is a unit of pipeline work. The context passed in is canceled when the
// executing pool shuts down.
type Stage func(ctx context.Context)

// Executor schedules stages for asynchronous execution. Submit must not block
// on queue capacity.
type Executor interface {
	Submit(stage Stage) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces crawl task IDs.
type IDGenerator interface {
	NewID() (string, error)
}
