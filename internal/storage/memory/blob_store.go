// Package memory keeps crawl artifacts and run summaries in process memory.
// It backs the "memory" storage backend and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/JakeFAU/wikicrawler/internal/crawler"
)

// BlobStore keeps stored pages keyed by relative path.
type BlobStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ crawler.Storage = (*BlobStore)(nil)

// NewBlobStore creates an empty BlobStore.
func NewBlobStore() *BlobStore {
	return &BlobStore{data: make(map[string][]byte)}
}

// Store copies data under relPath, replacing any earlier content.
func (s *BlobStore) Store(_ context.Context, relPath string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[relPath] = append([]byte(nil), data...)
	return nil
}

// Get returns a copy of the content stored under relPath.
func (s *BlobStore) Get(relPath string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[relPath]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}

// Paths lists stored paths in order.
func (s *BlobStore) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.data))
	for p := range s.data {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
