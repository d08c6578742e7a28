package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageTaskStart  Stage = "TASK_START"
	StagePageDone   Stage = "PAGE_DONE"
	StagePageFailed Stage = "PAGE_FAILED"
	StageTaskDone   Stage = "TASK_DONE"
)

// Event captures a single step of a crawl.
type Event struct {
	// TaskID identifies the crawl task the event belongs to.
	TaskID string
	// TS is the UTC timestamp recorded by the emitter.
	TS    time.Time
	Stage Stage
	// URL is the page URL for page stages and the root URL for task stages.
	URL string
	// Edition is the Wikipedia language edition, e.g. "en". Page stages only.
	Edition string
	Depth   int
	// Bytes is the downloaded body size of a page.
	Bytes int64
	// Total and Failed carry the final page counts of a finished task.
	Total  int64
	Failed int64
	// Dur is the task wall time for StageTaskDone.
	Dur time.Duration
	// Note holds error text for failed pages.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.TaskID == "" {
		return errors.New("task id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageTaskStart:
	case StagePageDone, StagePageFailed:
		if e.URL == "" {
			return fmt.Errorf("%s requires url", e.Stage)
		}
	case StageTaskDone:
		if e.Failed > e.Total {
			return fmt.Errorf("failed pages %d exceed total %d", e.Failed, e.Total)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
