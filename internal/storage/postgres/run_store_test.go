package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/wikicrawler/internal/store"
)

var runRowColumns = []string{
	"task_id", "url", "max_depth", "total", "failed", "result", "submitted_at", "completed_at",
}

func sampleRun() store.CrawlRun {
	submitted := time.Unix(1700000000, 0).UTC()
	return store.CrawlRun{
		TaskID:      "0190b7a6-7f3e-7000-8000-000000000001",
		URL:         "https://en.wikipedia.org/wiki/Bruce_Willis",
		MaxDepth:    2,
		Total:       12,
		Failed:      1,
		Result:      store.RunPartial,
		SubmittedAt: submitted,
		CompletedAt: submitted.Add(3 * time.Second),
	}
}

func TestSaveRunUpsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	runs, err := NewRunStoreWithPool(mock, "")
	require.NoError(t, err)

	run := sampleRun()
	mock.ExpectExec("INSERT INTO crawl_runs").
		WithArgs(
			run.TaskID,
			run.URL,
			run.MaxDepth,
			run.Total,
			run.Failed,
			"partial",
			run.SubmittedAt,
			run.CompletedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, runs.SaveRun(context.Background(), run))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRunRequiresTaskID(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	runs, err := NewRunStoreWithPool(mock, "runs")
	require.NoError(t, err)
	require.EqualError(t, runs.SaveRun(context.Background(), store.CrawlRun{}), "task id is required")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRunWrapsExecError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	runs, err := NewRunStoreWithPool(mock, "runs")
	require.NoError(t, err)
	mock.ExpectExec("INSERT INTO runs").WillReturnError(errors.New("conn refused"))

	err = runs.SaveRun(context.Background(), sampleRun())
	require.EqualError(t, err, "insert crawl run: conn refused")
}

func TestGetRun(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	runs, err := NewRunStoreWithPool(mock, "crawl_runs")
	require.NoError(t, err)

	want := sampleRun()
	mock.ExpectQuery("SELECT (.+) FROM crawl_runs WHERE task_id").
		WithArgs(want.TaskID).
		WillReturnRows(mock.NewRows(runRowColumns).AddRow(
			want.TaskID, want.URL, want.MaxDepth, want.Total, want.Failed, "partial", want.SubmittedAt, want.CompletedAt,
		))
	mock.ExpectQuery("SELECT (.+) FROM crawl_runs WHERE task_id").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	got, err := runs.GetRun(context.Background(), want.TaskID)
	require.NoError(t, err)
	require.Equal(t, want, got)

	_, err = runs.GetRun(context.Background(), "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListRuns(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	runs, err := NewRunStoreWithPool(mock, "crawl_runs")
	require.NoError(t, err)

	first := sampleRun()
	second := sampleRun()
	second.TaskID = "0190b7a6-7f3e-7000-8000-000000000002"
	second.Failed = 0
	second.Result = store.RunComplete
	mock.ExpectQuery("SELECT (.+) FROM crawl_runs ORDER BY completed_at DESC").
		WithArgs(pgxmock.AnyArg(), 0).
		WillReturnRows(mock.NewRows(runRowColumns).
			AddRow(first.TaskID, first.URL, first.MaxDepth, first.Total, first.Failed, "partial", first.SubmittedAt, first.CompletedAt).
			AddRow(second.TaskID, second.URL, second.MaxDepth, second.Total, second.Failed, "complete", second.SubmittedAt, second.CompletedAt),
		)

	got, err := runs.ListRuns(context.Background(), 10, -3)
	require.NoError(t, err)
	require.Equal(t, []store.CrawlRun{first, second}, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	runs, err := NewRunStoreWithPool(mock, "crawl_runs")
	require.NoError(t, err)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS crawl_runs").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, runs.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewRunStoreValidation(t *testing.T) {
	t.Parallel()

	_, err := NewRunStoreWithPool(nil, "")
	require.EqualError(t, err, "pool is required")

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewRunStoreWithPool(mock, "runs; DROP TABLE x")
	require.EqualError(t, err, `invalid table name "runs; DROP TABLE x"`)

	_, err = NewRunStore(context.Background(), RunStoreConfig{})
	require.EqualError(t, err, "db.dsn is required")
}
