package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/JakeFAU/wikicrawler/internal/store"
)

// RunStore is an in-memory store.RunRepository.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]store.CrawlRun
}

var _ store.RunRepository = (*RunStore)(nil)

// NewRunStore constructs an empty RunStore.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[string]store.CrawlRun)}
}

// SaveRun records run, replacing an earlier run with the same task id.
func (s *RunStore) SaveRun(_ context.Context, run store.CrawlRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.TaskID] = run
	return nil
}

// GetRun fetches a run by task id.
func (s *RunStore) GetRun(_ context.Context, taskID string) (store.CrawlRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[taskID]
	if !ok {
		return store.CrawlRun{}, store.ErrNotFound
	}
	return run, nil
}

// ListRuns returns runs ordered by completion time, newest first. A limit of
// zero or less returns everything after offset.
func (s *RunStore) ListRuns(_ context.Context, limit, offset int) ([]store.CrawlRun, error) {
	s.mu.RLock()
	out := make([]store.CrawlRun, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, run)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CompletedAt.Equal(out[j].CompletedAt) {
			return out[i].TaskID < out[j].TaskID
		}
		return out[i].CompletedAt.After(out[j].CompletedAt)
	})
	if offset < 0 {
		offset = 0
	}
	if offset >= len(out) {
		return []store.CrawlRun{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}
