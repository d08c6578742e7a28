package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/wikicrawler/internal/progress"
	"github.com/JakeFAU/wikicrawler/internal/store"
)

// StoreSink saves a store.CrawlRun for every finished crawl task.
type StoreSink struct {
	repo   store.RunRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for repo.
func NewStoreSink(repo store.RunRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume persists TASK_DONE events and ignores the rest. The first
// repository error aborts the batch.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	for _, evt := range batch {
		if evt.Stage != progress.StageTaskDone {
			continue
		}
		run := RunFromEvent(evt)
		if err := s.repo.SaveRun(ctx, run); err != nil {
			return fmt.Errorf("save crawl run %s: %w", run.TaskID, err)
		}
		s.logger.Debug("crawl run saved", zap.String("task_id", run.TaskID))
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}

// RunFromEvent converts a TASK_DONE event into its durable summary.
func RunFromEvent(evt progress.Event) store.CrawlRun {
	return store.CrawlRun{
		TaskID:      evt.TaskID,
		URL:         evt.URL,
		MaxDepth:    evt.Depth,
		Total:       evt.Total,
		Failed:      evt.Failed,
		Result:      store.ResultFor(evt.Failed),
		SubmittedAt: evt.TS.Add(-evt.Dur),
		CompletedAt: evt.TS,
	}
}
