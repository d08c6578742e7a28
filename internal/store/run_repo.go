package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound signals that the requested run does not exist.
var ErrNotFound = errors.New("crawl run not found")

// RunResult classifies a finished crawl.
type RunResult string

// Run results persisted alongside the counts.
const (
	// RunComplete means every page of the crawl succeeded.
	RunComplete RunResult = "complete"
	// RunPartial means at least one page failed.
	RunPartial RunResult = "partial"
)

// CrawlRun is the durable summary of a finished crawl task.
type CrawlRun struct {
	TaskID      string    `json:"task_id"`
	URL         string    `json:"url"`
	MaxDepth    int       `json:"max_depth"`
	Total       int64     `json:"total"`
	Failed      int64     `json:"failed"`
	Result      RunResult `json:"result"`
	SubmittedAt time.Time `json:"submitted_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// ResultFor classifies a run by its failed page count.
func ResultFor(failed int64) RunResult {
	if failed > 0 {
		return RunPartial
	}
	return RunComplete
}

// RunRepository persists finished crawl runs.
type RunRepository interface {
	// SaveRun inserts run, replacing an earlier row with the same task id.
	SaveRun(ctx context.Context, run CrawlRun) error
	// GetRun loads one run or returns ErrNotFound.
	GetRun(ctx context.Context, taskID string) (CrawlRun, error)
	// ListRuns returns runs newest first.
	ListRuns(ctx context.Context, limit, offset int) ([]CrawlRun, error)
}
