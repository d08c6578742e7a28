package crawler

import (
	"errors"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/JakeFAU/wikicrawler/internal/clock/system"
)

// Completion summarizes a finished crawl task.
type Completion struct {
	TaskID      string    `json:"task_id"`
	URL         string    `json:"url"`
	MaxDepth    int       `json:"max_depth"`
	Total       int64     `json:"total"`
	Failed      int64     `json:"failed"`
	SubmittedAt time.Time `json:"submitted_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// Succeeded returns the number of pages that finished without error.
func (c Completion) Succeeded() int64 {
	return c.Total - c.Failed
}

// CompletionFunc is invoked exactly once when a crawl task finishes. It must not
// block for long since it runs on a pipeline worker.
type CompletionFunc func(Completion)

// TaskOption customizes a CrawlTask.
type TaskOption func(*CrawlTask)

// WithTaskID sets the task identifier.
func WithTaskID(id string) TaskOption {
	return func(t *CrawlTask) {
		t.id = id
	}
}

// WithTaskClock overrides the clock used for timestamps.
func WithTaskClock(clock Clock) TaskOption {
	return func(t *CrawlTask) {
		if clock != nil {
			t.clock = clock
		}
	}
}

var _ Clock = system.Clock{}

// CrawlTask tracks a top-level crawl while its pages are discovered and
// processed. Pages call Start when admitted and Finish or FinishFailed when
// done; the completion callback fires when the in-flight count returns to zero.
type CrawlTask struct {
	id          string
	url         *url.URL
	maxDepth    int
	clock       Clock
	submittedAt time.Time
	callback    CompletionFunc

	inFlight atomic.Int64
	total    atomic.Int64
	failed   atomic.Int64
	fired    atomic.Bool

	done   chan struct{}
	result Completion
}

// NewCrawlTask validates rawURL and returns an idle tracker for it.
func NewCrawlTask(rawURL string, maxDepth int, callback CompletionFunc, opts ...TaskOption) (*CrawlTask, error) {
	u, err := ParseArticleURL(rawURL)
	if err != nil {
		return nil, err
	}
	t := &CrawlTask{
		url:      u,
		maxDepth: maxDepth,
		clock:    system.New(),
		callback: callback,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.submittedAt = t.clock.Now()
	return t, nil
}

// ID returns the task identifier, which may be empty.
func (t *CrawlTask) ID() string {
	return t.id
}

// URL returns the normalized initial URL.
func (t *CrawlTask) URL() string {
	return t.url.String()
}

// MaxDepth returns the requested crawl depth.
func (t *CrawlTask) MaxDepth() int {
	return t.maxDepth
}

// Start registers a newly admitted page.
func (t *CrawlTask) Start() {
	t.total.Add(1)
	t.inFlight.Add(1)
}

// Finish marks one page as done. Calling it without a matching Start panics.
func (t *CrawlTask) Finish() {
	switch n := t.inFlight.Add(-1); {
	case n < 0:
		t.inFlight.Add(1)
		panic(t.violation("finish"))
	case n == 0:
		t.complete()
	}
}

// FinishFailed marks one page as done with an error.
// The failure is counted before the in-flight decrement so that the
// completion summary always sees it.
func (t *CrawlTask) FinishFailed() {
	t.failed.Add(1)
	switch n := t.inFlight.Add(-1); {
	case n < 0:
		t.inFlight.Add(1)
		t.failed.Add(-1)
		panic(t.violation("finish failed"))
	case n == 0:
		t.complete()
	}
}

func (t *CrawlTask) violation(op string) error {
	return &Error{Kind: ErrInvariantViolation, Op: op, URL: t.URL(), Err: errors.New("no pages in flight")}
}

func (t *CrawlTask) complete() {
	if !t.fired.CompareAndSwap(false, true) {
		return
	}
	defer close(t.done)
	t.result = Completion{
		TaskID:      t.id,
		URL:         t.URL(),
		MaxDepth:    t.maxDepth,
		Total:       t.total.Load(),
		Failed:      t.failed.Load(),
		SubmittedAt: t.submittedAt,
		CompletedAt: t.clock.Now(),
	}
	if t.callback != nil {
		t.callback(t.result)
	}
}

// Done is closed after the completion callback has returned.
func (t *CrawlTask) Done() <-chan struct{} {
	return t.done
}

// Result returns the completion summary. It is only meaningful once Done is
// closed.
func (t *CrawlTask) Result() Completion {
	select {
	case <-t.done:
		return t.result
	default:
		return Completion{}
	}
}

// Counts returns live in-flight, total and failed counters.
func (t *CrawlTask) Counts() (inFlight, total, failed int64) {
	return t.inFlight.Load(), t.total.Load(), t.failed.Load()
}

func (t *CrawlTask) String() string {
	return fmt.Sprintf("crawl task [%s] status: %d/%d", t.url, t.inFlight.Load(), t.total.Load())
}
