package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/wikicrawler/internal/progress"
)

// Publisher sends a payload to a topic and returns the message id.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
	Close() error
}

// PublishSink announces every finished crawl task on a topic.
type PublishSink struct {
	publisher Publisher
	topic     string
	logger    *zap.Logger
}

// NewPublishSink constructs a PublishSink. The sink owns publisher and closes
// it on Close.
func NewPublishSink(publisher Publisher, topic string, logger *zap.Logger) *PublishSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublishSink{publisher: publisher, topic: topic, logger: logger}
}

// Consume publishes a store.CrawlRun for each TASK_DONE event.
func (s *PublishSink) Consume(ctx context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		if evt.Stage != progress.StageTaskDone {
			continue
		}
		id, err := s.publisher.Publish(ctx, s.topic, RunFromEvent(evt))
		if err != nil {
			return fmt.Errorf("publish crawl run %s: %w", evt.TaskID, err)
		}
		s.logger.Debug("crawl run published", zap.String("task_id", evt.TaskID), zap.String("message_id", id))
	}
	return nil
}

// Close closes the publisher.
func (s *PublishSink) Close(context.Context) error {
	if err := s.publisher.Close(); err != nil {
		return fmt.Errorf("close publisher: %w", err)
	}
	return nil
}
