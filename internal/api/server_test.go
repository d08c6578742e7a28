package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/wikicrawler/internal/crawler"
	"github.com/JakeFAU/wikicrawler/internal/index"
	"github.com/JakeFAU/wikicrawler/internal/storage/memory"
	"github.com/JakeFAU/wikicrawler/internal/store"
)

type ctxKey struct{}

// fakeEngine admits the initial page of every crawl and never runs it.
type fakeEngine struct {
	mu       sync.Mutex
	inFlight *crawler.InFlightSet
	maxDepth int
	err      error
	ctxs     []context.Context
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{inFlight: crawler.NewInFlightSet(), maxDepth: 3}
}

func (e *fakeEngine) Submit(ctx context.Context, rawURL string, depth int) (*crawler.CrawlTask, error) {
	e.mu.Lock()
	e.ctxs = append(e.ctxs, ctx)
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	if depth < 1 || depth > e.maxDepth {
		return nil, crawler.NewValidationError(fmt.Sprintf("Depth should be between [1,%d], but [%d] given", e.maxDepth, depth))
	}
	task, err := crawler.NewCrawlTask(rawURL, depth, nil, crawler.WithTaskID("task-1"))
	if err != nil {
		return nil, err
	}
	e.inFlight.TryAdd(crawler.InitialPage(task).Key())
	return task, nil
}

func (e *fakeEngine) InFlight() *crawler.InFlightSet {
	return e.inFlight
}

type testServer struct {
	server *Server
	engine *fakeEngine
	index  *index.Index
	runs   *memory.RunStore
}

func newTestServer(t *testing.T, mutate func(*Options)) *testServer {
	t.Helper()
	ts := &testServer{
		engine: newFakeEngine(),
		index:  index.New(zap.NewNop()),
		runs:   memory.NewRunStore(),
	}
	opts := Options{
		Runs:        ts.runs,
		BaseContext: context.WithValue(context.Background(), ctxKey{}, "base"),
		Logger:      zap.NewNop(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	ts.server = NewServer(ts.engine, ts.index, opts)
	return ts
}

func (ts *testServer) do(method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestCreateAccepted(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, nil)
	rec := ts.do(http.MethodPut, "/create", []byte(`{"url":" https://en.wikipedia.org/wiki/Bruce_Willis?x=1#Career ","depth":2}`))

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	require.JSONEq(t, `{"task_id":"task-1","url":"https://en.wikipedia.org/wiki/Bruce_Willis","depth":2}`, rec.Body.String())

	require.Len(t, ts.engine.ctxs, 1)
	require.Equal(t, "base", ts.engine.ctxs[0].Value(ctxKey{}))
}

func TestCreateValidationErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "foreign domain",
			body: `{"url":"https://example.com/wiki/Go","depth":1}`,
			want: "Domain should be [wikipedia.org], but [example.com] given",
		},
		{
			name: "special page",
			body: `{"url":"https://en.wikipedia.org/wiki/Special:Random","depth":1}`,
			want: "Files and Special resources are not supported",
		},
		{
			name: "depth out of range",
			body: `{"url":"https://en.wikipedia.org/wiki/Go","depth":4}`,
			want: "Depth should be between [1,3], but [4] given",
		},
		{
			name: "invalid json",
			body: `{"url":`,
			want: "invalid JSON",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ts := newTestServer(t, nil)
			rec := ts.do(http.MethodPut, "/create", []byte(tt.body))
			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.Equal(t, tt.want, decodeError(t, rec))
			require.Zero(t, ts.engine.InFlight().Len())
		})
	}
}

func TestCreateInternalError(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, nil)
	ts.engine.err = errors.New("generate task id: entropy exhausted")
	rec := ts.do(http.MethodPut, "/create", []byte(`{"url":"https://en.wikipedia.org/wiki/Go","depth":1}`))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "failed to submit crawl", decodeError(t, rec))
}

func TestCreateRejectsOtherMethods(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, nil)
	rec := ts.do(http.MethodPost, "/create", []byte(`{}`))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestURLsAndCount(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, nil)
	rec := ts.do(http.MethodGet, "/urls", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[]`, rec.Body.String())

	for _, u := range []string{
		"https://en.wikipedia.org/wiki/Moscow",
		"https://de.wikipedia.org/wiki/Berlin",
		"https://en.wikipedia.org/wiki/Moscow",
	} {
		body, err := json.Marshal(createRequest{URL: u, Depth: 1})
		require.NoError(t, err)
		require.Equal(t, http.StatusAccepted, ts.do(http.MethodPut, "/create", body).Code)
	}

	rec = ts.do(http.MethodGet, "/urls", nil)
	var keys []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &keys))
	require.Equal(t, ts.engine.InFlight().Keys(), keys)
	require.Len(t, keys, 2)
	require.IsIncreasing(t, keys)

	rec = ts.do(http.MethodGet, "/count", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `2`, rec.Body.String())
}

func TestFind(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, nil)
	ts.index.Insert("en/b/r/bruce_willis.html", []string{"Bruce Willis starred in Die Hard."})
	ts.index.Insert("en/d/i/die_hard.html", []string{"Die Hard is a film."})

	rec := ts.do(http.MethodGet, "/find/Hard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `["en/b/r/bruce_willis.html","en/d/i/die_hard.html"]`, rec.Body.String())

	rec = ts.do(http.MethodGet, "/find/unknown", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[]`, rec.Body.String())

	rec = ts.do(http.MethodGet, "/find/1988", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Term should contain only letters and dash, but [1988] given", decodeError(t, rec))
}

func TestCrawlRoutes(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, nil)
	completed := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b"} {
		require.NoError(t, ts.runs.SaveRun(context.Background(), store.CrawlRun{
			TaskID:      id,
			URL:         "https://en.wikipedia.org/wiki/Go",
			MaxDepth:    1,
			Total:       1,
			Result:      store.RunComplete,
			SubmittedAt: completed,
			CompletedAt: completed.Add(time.Duration(i) * time.Second),
		}))
	}

	rec := ts.do(http.MethodGet, "/crawls?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Crawls []store.CrawlRun `json:"crawls"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Crawls, 1)
	require.Equal(t, "b", list.Crawls[0].TaskID)

	rec = ts.do(http.MethodGet, "/crawls/a", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"task_id":"a"`)

	rec = ts.do(http.MethodGet, "/crawls/zzz", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(http.MethodGet, "/crawls?offset=-1", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid offset", decodeError(t, rec))
}

func TestCrawlRoutesWithoutRepository(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, func(o *Options) { o.Runs = nil })
	require.Equal(t, http.StatusServiceUnavailable, ts.do(http.MethodGet, "/crawls", nil).Code)
	require.Equal(t, http.StatusServiceUnavailable, ts.do(http.MethodGet, "/crawls/a", nil).Code)
}

func TestProbes(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, nil)
	require.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/healthz", nil).Code)
	require.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/readyz", nil).Code)

	notReady := newTestServer(t, func(o *Options) {
		o.Ready = func(context.Context) error { return errors.New("bucket missing") }
	})
	rec := notReady.do(http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "not ready", decodeError(t, rec))
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, nil)
	rec := ts.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "wikicrawler_pages_in_flight")
}

func TestRequestIDPropagates(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	handler := recoverMiddleware(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "internal server error", decodeError(t, rec))
}
