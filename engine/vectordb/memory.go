package vectordb

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// memoryStore keeps records in process memory. It backs tests and demo runs
// and is the reference behavior for the persistent providers.
type memoryStore struct {
	mu        sync.RWMutex
	dimension int
	maxTopK   int
	records   map[string]Record
}

func newMemoryStore(cfg *Config) *memoryStore {
	return &memoryStore{
		dimension: cfg.Dimension,
		maxTopK:   cfg.MaxTopK,
		records:   make(map[string]Record),
	}
}

func (s *memoryStore) Upsert(_ context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range records {
		rec := records[i]
		if len(rec.Embedding) != s.dimension {
			return fmt.Errorf(
				"memory: record %q dimension mismatch (got %d want %d)",
				rec.ID, len(rec.Embedding), s.dimension,
			)
		}
		s.records[rec.ID] = Record{
			ID:         rec.ID,
			DocumentID: rec.DocumentID,
			Text:       rec.Text,
			Pages:      clonePages(rec.Pages),
			Embedding:  append([]float32(nil), rec.Embedding...),
		}
	}
	return nil
}

func (s *memoryStore) Search(_ context.Context, query []float32, opts SearchOptions) ([]Match, error) {
	if len(query) != s.dimension {
		return nil, fmt.Errorf("memory: query dimension mismatch (got %d want %d)", len(query), s.dimension)
	}
	if len(opts.DocumentIDs) == 0 {
		return nil, ErrNoDocumentFilter
	}
	topK := clampTopK(opts.TopK, s.maxTopK)
	s.mu.RLock()
	defer s.mu.RUnlock()
	candidates := make([]Match, 0, len(s.records))
	for _, rec := range s.records {
		if !documentInScope(rec.DocumentID, opts.DocumentIDs) {
			continue
		}
		score := cosineSimilarity(rec.Embedding, query)
		if score < opts.MinScore {
			continue
		}
		candidates = append(candidates, Match{
			ID:         rec.ID,
			DocumentID: rec.DocumentID,
			Score:      score,
			Text:       rec.Text,
			Pages:      clonePages(rec.Pages),
		})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score == candidates[j].Score {
			return candidates[i].ID < candidates[j].ID
		}
		return candidates[i].Score > candidates[j].Score
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates, nil
}

func (s *memoryStore) Delete(_ context.Context, filter Filter) error {
	if len(filter.IDs) == 0 && filter.DocumentID == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range filter.IDs {
		delete(s.records, id)
	}
	if filter.DocumentID != "" {
		for id, rec := range s.records {
			if rec.DocumentID == filter.DocumentID {
				delete(s.records, id)
			}
		}
	}
	return nil
}

func (s *memoryStore) Close(context.Context) error {
	return nil
}
