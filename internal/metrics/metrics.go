// Package metrics exposes Prometheus collectors for the crawler service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Page outcome labels.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

var (
	crawlerPagesTotal          *prometheus.CounterVec
	crawlerBytesTotal          *prometheus.CounterVec
	crawlerPagesInFlight       prometheus.Gauge
	crawlerTasksTotal          *prometheus.CounterVec
	poolQueueDepth             *prometheus.GaugeVec
	poolBusyWorkers            *prometheus.GaugeVec
	indexDocuments             prometheus.Gauge
	indexTerms                 prometheus.Gauge
	progressDroppedTotal       prometheus.Counter
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wikicrawler_pages_total",
				Help: "Total number of pages processed, labeled by edition and status.",
			},
			[]string{"edition", "status"},
		)

		crawlerBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wikicrawler_bytes_total",
				Help: "Total number of bytes downloaded, labeled by edition.",
			},
			[]string{"edition"},
		)

		crawlerPagesInFlight = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "wikicrawler_pages_in_flight",
				Help: "Number of admitted pages that have not finished yet.",
			},
		)

		crawlerTasksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wikicrawler_tasks_total",
				Help: "Total number of completed crawl tasks, labeled by result.",
			},
			[]string{"result"},
		)

		poolQueueDepth = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "wikicrawler_pool_queue_depth",
				Help: "Number of stages waiting in a worker pool queue.",
			},
			[]string{"pool"},
		)

		poolBusyWorkers = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "wikicrawler_pool_busy_workers",
				Help: "Number of workers currently running a stage.",
			},
			[]string{"pool"},
		)

		indexDocuments = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "wikicrawler_index_documents",
				Help: "Number of documents held by the term index.",
			},
		)

		indexTerms = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "wikicrawler_index_terms",
				Help: "Number of distinct terms held by the term index.",
			},
		)

		progressDroppedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "wikicrawler_progress_events_dropped_total",
				Help: "Progress events dropped because the hub buffer was full.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObservePageStarted records a newly admitted page.
func ObservePageStarted() {
	Init()
	crawlerPagesInFlight.Inc()
}

// ObservePage records a finished page and the bytes downloaded for it.
func ObservePage(edition, status string, bytesFetched int) {
	Init()
	crawlerPagesInFlight.Dec()
	crawlerPagesTotal.WithLabelValues(edition, status).Inc()
	if bytesFetched > 0 {
		crawlerBytesTotal.WithLabelValues(edition).Add(float64(bytesFetched))
	}
}

// ObserveTask records a completed crawl task. Tasks with failed pages count as
// partial.
func ObserveTask(failed int64) {
	Init()
	result := "complete"
	if failed > 0 {
		result = "partial"
	}
	crawlerTasksTotal.WithLabelValues(result).Inc()
}

// SetPoolQueueDepth records how many stages wait in the named pool.
func SetPoolQueueDepth(pool string, depth int) {
	Init()
	poolQueueDepth.WithLabelValues(pool).Set(float64(depth))
}

// IncBusyWorkers increments the busy worker gauge of the named pool.
func IncBusyWorkers(pool string) {
	Init()
	poolBusyWorkers.WithLabelValues(pool).Inc()
}

// DecBusyWorkers decrements the busy worker gauge of the named pool.
func DecBusyWorkers(pool string) {
	Init()
	poolBusyWorkers.WithLabelValues(pool).Dec()
}

// SetIndexSize records the current index dimensions.
func SetIndexSize(documents, terms int) {
	Init()
	indexDocuments.Set(float64(documents))
	indexTerms.Set(float64(terms))
}

// ObserveProgressDropped counts progress events dropped under backpressure.
func ObserveProgressDropped() {
	Init()
	progressDroppedTotal.Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
