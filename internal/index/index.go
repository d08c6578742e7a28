// Package index keeps an in-memory inverted index from normalized terms to the
// documents that contain them.
package index

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/wikicrawler/internal/metrics"
)

type set map[string]struct{}

// Index maps terms to document ids. It is safe for concurrent use; inserts
// replace a document's previous term set in one step so readers never see a
// half-indexed document.
type Index struct {
	mu       sync.RWMutex
	postings map[string]set
	docs     map[string]set
	logger   *zap.Logger
}

// New creates an empty Index.
func New(logger *zap.Logger) *Index {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Index{
		postings: make(map[string]set),
		docs:     make(map[string]set),
		logger:   logger,
	}
}

// Insert tokenizes texts and records documentID under every valid term.
// Tokens with no letters are ignored.
func (i *Index) Insert(documentID string, texts []string) {
	n := newNormalizer()
	terms := make(set)
	for _, text := range texts {
		for _, token := range Tokenize(text) {
			if term := n.normalize(token); term != "" {
				terms[term] = struct{}{}
			}
		}
	}

	i.mu.Lock()
	for term := range i.docs[documentID] {
		if docs := i.postings[term]; docs != nil {
			delete(docs, documentID)
			if len(docs) == 0 {
				delete(i.postings, term)
			}
		}
	}
	for term := range terms {
		docs := i.postings[term]
		if docs == nil {
			docs = make(set)
			i.postings[term] = docs
		}
		docs[documentID] = struct{}{}
	}
	i.docs[documentID] = terms
	documents, distinct := len(i.docs), len(i.postings)
	i.mu.Unlock()

	metrics.SetIndexSize(documents, distinct)
	i.logger.Debug("document indexed", zap.String("document", documentID), zap.Int("terms", len(terms)))
}

// Find returns the sorted ids of documents containing term. The term is
// normalized first; a term with no letters is a validation error.
func (i *Index) Find(term string) ([]string, error) {
	normalized, err := NormalizeTerm(term)
	if err != nil {
		return nil, err
	}
	i.mu.RLock()
	docs := i.postings[normalized]
	out := make([]string, 0, len(docs))
	for id := range docs {
		out = append(out, id)
	}
	i.mu.RUnlock()
	sort.Strings(out)
	return out, nil
}

// Len returns the number of indexed documents.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.docs)
}
