package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/wikicrawler/internal/progress"
)

func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	now := time.Now()
	batch := []progress.Event{
		{TaskID: "t1", TS: now, Stage: progress.StageTaskStart, Depth: 2},
		{TaskID: "t1", TS: now, Stage: progress.StagePageDone, URL: "https://en.wikipedia.org/wiki/Go", Depth: 1, Bytes: 8192},
		{TaskID: "t1", TS: now, Stage: progress.StagePageFailed, URL: "https://en.wikipedia.org/wiki/Gopher", Depth: 2},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.crawlsStarted))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.crawlsRunning))

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{TaskID: "t1", TS: now.Add(2 * time.Second), Stage: progress.StageTaskDone, Total: 2, Failed: 1, Dur: 2 * time.Second},
		// A finish without a recorded start must not drive the gauge negative.
		{TaskID: "t2", TS: now, Stage: progress.StageTaskDone, Total: 1},
	}))

	require.Equal(t, 0.0, testutil.ToFloat64(sink.crawlsRunning))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.pagesByDepth.WithLabelValues("1", "succeeded")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.pagesByDepth.WithLabelValues("2", "failed")))
	require.Equal(t, 1, testutil.CollectAndCount(sink.pageBodyBytes, "wikicrawler_page_body_bytes"))
	require.Equal(t, 2, testutil.CollectAndCount(sink.crawlDuration, "wikicrawler_crawl_duration_seconds"))
	require.Equal(t, 2, testutil.CollectAndCount(sink.crawlPages, "wikicrawler_crawl_pages"))
}

func TestPrometheusSinkRejectsDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.ErrorContains(t, err, "register progress collector")
}
