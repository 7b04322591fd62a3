package vectorstore

import (
	"context"
	"sort"
	"sync"

	"github.com/xxxsen/classmate/internal/pkg/textutil"
)

type memoryStore struct {
	dims int

	mu     sync.RWMutex
	chunks map[string][]Chunk
}

func init() {
	Register("memory", createMemoryStore)
}

func createMemoryStore(ctx context.Context, opts Options) (Store, error) {
	return NewMemory(opts.Dimensions), nil
}

// NewMemory returns a process-local store. Contents are lost on exit.
func NewMemory(dims int) Store {
	return &memoryStore{dims: dims, chunks: map[string][]Chunk{}}
}

func (s *memoryStore) Upsert(ctx context.Context, filename string, chunks []Chunk) error {
	if err := checkChunks(chunks, s.dims); err != nil {
		return err
	}
	stored := make([]Chunk, len(chunks))
	for i, c := range chunks {
		vec := make([]float32, len(c.Embedding))
		copy(vec, c.Embedding)
		stored[i] = Chunk{Ordinal: c.Ordinal, Text: c.Text, Embedding: vec}
	}
	sort.Slice(stored, func(i, j int) bool { return stored[i].Ordinal < stored[j].Ordinal })
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(stored) == 0 {
		delete(s.chunks, filename)
		return nil
	}
	s.chunks[filename] = stored
	return nil
}

func (s *memoryStore) Query(ctx context.Context, vec []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return []Hit{}, nil
	}
	if err := checkQuery(vec, s.dims); err != nil {
		return nil, err
	}
	s.mu.RLock()
	hits := make([]Hit, 0)
	for filename, chunks := range s.chunks {
		for _, c := range chunks {
			hits = append(hits, Hit{Filename: filename, Text: c.Text, Ordinal: c.Ordinal, Score: cosineSimilarity(vec, c.Embedding)})
		}
	}
	s.mu.RUnlock()
	return rankHits(hits, k), nil
}

func (s *memoryStore) KeywordSearch(ctx context.Context, query string, k int) ([]Hit, error) {
	tokens := textutil.Tokenize(query)
	if k <= 0 || len(tokens) == 0 {
		return []Hit{}, nil
	}
	s.mu.RLock()
	hits := make([]Hit, 0)
	for filename, chunks := range s.chunks {
		for _, c := range chunks {
			if score := textutil.Overlap(tokens, c.Text); score > 0 {
				hits = append(hits, Hit{Filename: filename, Text: c.Text, Ordinal: c.Ordinal, Score: score})
			}
		}
	}
	s.mu.RUnlock()
	return rankHits(hits, k), nil
}

func (s *memoryStore) Count(ctx context.Context, filename string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if filename != "" {
		return len(s.chunks[filename]), nil
	}
	total := 0
	for _, chunks := range s.chunks {
		total += len(chunks)
	}
	return total, nil
}

func (s *memoryStore) Delete(ctx context.Context, filename string) error {
	s.mu.Lock()
	delete(s.chunks, filename)
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) Close() error {
	return nil
}
