package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/wikicrawler/internal/progress"
)

// LogSink writes events to a zap logger. Page events log at debug level.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("task_id", evt.TaskID),
			zap.String("stage", string(evt.Stage)),
			zap.String("url", evt.URL),
		}
		switch evt.Stage {
		case progress.StagePageDone, progress.StagePageFailed:
			fields = append(fields,
				zap.String("edition", evt.Edition),
				zap.Int("depth", evt.Depth),
				zap.Int64("bytes", evt.Bytes),
			)
			if evt.Note != "" {
				fields = append(fields, zap.String("note", evt.Note))
			}
			s.logger.Debug("progress event", fields...)
		case progress.StageTaskDone:
			fields = append(fields,
				zap.Int64("total", evt.Total),
				zap.Int64("failed", evt.Failed),
				zap.Duration("dur", evt.Dur),
			)
			s.logger.Info("progress event", fields...)
		default:
			fields = append(fields, zap.Int("max_depth", evt.Depth))
			s.logger.Info("progress event", fields...)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
