package sinks

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/wikicrawler/internal/progress"
	"github.com/JakeFAU/wikicrawler/internal/store"
)

// PrometheusSink exports crawl-level metrics: running crawls, crawl duration
// and size, and page outcomes per depth.
type PrometheusSink struct {
	crawlsStarted prometheus.Counter
	crawlsRunning prometheus.Gauge
	crawlDuration *prometheus.HistogramVec
	crawlPages    *prometheus.HistogramVec
	pagesByDepth  *prometheus.CounterVec
	pageBodyBytes prometheus.Histogram

	tracker *taskTracker
}

// NewPrometheusSink registers the collectors against reg.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		crawlsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wikicrawler_crawls_started_total",
			Help: "Crawl tasks accepted by the engine.",
		}),
		crawlsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wikicrawler_crawls_running",
			Help: "Crawl tasks with pages still in flight.",
		}),
		crawlDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wikicrawler_crawl_duration_seconds",
			Help:    "Wall time per finished crawl task.",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"result"}),
		crawlPages: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wikicrawler_crawl_pages",
			Help:    "Pages admitted per finished crawl task.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}, []string{"result"}),
		pagesByDepth: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wikicrawler_pages_by_depth_total",
			Help: "Page outcomes partitioned by crawl depth.",
		}, []string{"depth", "status"}),
		pageBodyBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "wikicrawler_page_body_bytes",
			Help:    "Downloaded article body sizes.",
			Buckets: prometheus.ExponentialBuckets(4096, 2, 8),
		}),
		tracker: newTaskTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.crawlsStarted,
		s.crawlsRunning,
		s.crawlDuration,
		s.crawlPages,
		s.pagesByDepth,
		s.pageBodyBytes,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageTaskStart:
			s.crawlsStarted.Inc()
			if s.tracker.start(evt.TaskID) {
				s.crawlsRunning.Inc()
			}
		case progress.StageTaskDone:
			result := string(store.ResultFor(evt.Failed))
			s.crawlDuration.WithLabelValues(result).Observe(evt.Dur.Seconds())
			s.crawlPages.WithLabelValues(result).Observe(float64(evt.Total))
			if s.tracker.complete(evt.TaskID) {
				s.crawlsRunning.Dec()
			}
		case progress.StagePageDone:
			s.pagesByDepth.WithLabelValues(strconv.Itoa(evt.Depth), "succeeded").Inc()
			if evt.Bytes > 0 {
				s.pageBodyBytes.Observe(float64(evt.Bytes))
			}
		case progress.StagePageFailed:
			s.pagesByDepth.WithLabelValues(strconv.Itoa(evt.Depth), "failed").Inc()
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

// taskTracker keeps the running gauge honest when a TASK_DONE arrives for a
// task whose start was dropped.
type taskTracker struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func newTaskTracker() *taskTracker {
	return &taskTracker{running: make(map[string]struct{})}
}

func (t *taskTracker) start(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *taskTracker) complete(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
