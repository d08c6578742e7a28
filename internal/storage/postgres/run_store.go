// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/wikicrawler/internal/store"
)

const defaultTable = "crawl_runs"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// RunStoreConfig controls the Postgres connection pool used for crawl runs.
type RunStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pool is the subset of pgxpool.Pool the store uses.
type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// RunStore implements store.RunRepository on Postgres.
type RunStore struct {
	pool  pool
	table string
}

var _ store.RunRepository = (*RunStore)(nil)

// NewRunStore connects to Postgres using cfg.
func NewRunStore(ctx context.Context, cfg RunStoreConfig) (*RunStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("db.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &RunStore{pool: p, table: table}, nil
}

// NewRunStoreWithPool constructs a store from an existing pool, mainly for tests.
func NewRunStoreWithPool(p pool, table string) (*RunStore, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &RunStore{pool: p, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		return defaultTable, nil
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool.
func (s *RunStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the runs table when it does not exist.
func (s *RunStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	task_id      TEXT PRIMARY KEY,
	url          TEXT NOT NULL,
	max_depth    INTEGER NOT NULL,
	total        BIGINT NOT NULL,
	failed       BIGINT NOT NULL,
	result       TEXT NOT NULL,
	submitted_at TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// SaveRun upserts run by task id.
func (s *RunStore) SaveRun(ctx context.Context, run store.CrawlRun) error {
	if run.TaskID == "" {
		return errors.New("task id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	task_id,
	url,
	max_depth,
	total,
	failed,
	result,
	submitted_at,
	completed_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8
)
ON CONFLICT (task_id) DO UPDATE SET
	total = EXCLUDED.total,
	failed = EXCLUDED.failed,
	result = EXCLUDED.result,
	completed_at = EXCLUDED.completed_at`, s.table)

	args := []any{
		run.TaskID,
		run.URL,
		run.MaxDepth,
		run.Total,
		run.Failed,
		string(run.Result),
		run.SubmittedAt,
		run.CompletedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert crawl run: %w", err)
	}
	return nil
}

const runColumns = "task_id, url, max_depth, total, failed, result, submitted_at, completed_at"

// GetRun loads a single run.
func (s *RunStore) GetRun(ctx context.Context, taskID string) (store.CrawlRun, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE task_id = $1", runColumns, s.table)
	run, err := scanRun(s.pool.QueryRow(ctx, query, taskID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.CrawlRun{}, store.ErrNotFound
		}
		return store.CrawlRun{}, fmt.Errorf("get crawl run: %w", err)
	}
	return run, nil
}

// ListRuns returns runs newest first. A limit of zero or less means no limit.
func (s *RunStore) ListRuns(ctx context.Context, limit, offset int) ([]store.CrawlRun, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf(
		"SELECT %s FROM %s ORDER BY completed_at DESC, task_id LIMIT $1 OFFSET $2",
		runColumns, s.table,
	)
	rows, err := s.pool.Query(ctx, query, lim, offset)
	if err != nil {
		return nil, fmt.Errorf("list crawl runs: %w", err)
	}
	defer rows.Close()

	runs := []store.CrawlRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan crawl run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate crawl runs: %w", err)
	}
	return runs, nil
}

func scanRun(row pgx.Row) (store.CrawlRun, error) {
	var (
		run    store.CrawlRun
		result string
	)
	err := row.Scan(
		&run.TaskID,
		&run.URL,
		&run.MaxDepth,
		&run.Total,
		&run.Failed,
		&result,
		&run.SubmittedAt,
		&run.CompletedAt,
	)
	if err != nil {
		return store.CrawlRun{}, err
	}
	run.Result = store.RunResult(result)
	return run, nil
}
