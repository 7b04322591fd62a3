package vectorstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
)

var (
	ErrIndexUnavailable  = errors.New("vector index unavailable")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrModelMismatch     = errors.New("embedding model mismatch")
)

const MetricCosine = "cosine"

type Chunk struct {
	Ordinal   int
	Text      string
	Embedding []float32
}

type Hit struct {
	Filename string  `json:"filename"`
	Text     string  `json:"text"`
	Ordinal  int     `json:"ordinal"`
	Rank     int     `json:"rank"`
	Score    float64 `json:"score"`
}

// Store is a persistent collection of chunk embeddings with cosine k-NN.
type Store interface {
	// Upsert replaces every chunk of filename with chunks.
	Upsert(ctx context.Context, filename string, chunks []Chunk) error
	// Query returns at most k hits ordered by non-increasing score.
	Query(ctx context.Context, vec []float32, k int) ([]Hit, error)
	// KeywordSearch ranks chunks by lexical match with query.
	KeywordSearch(ctx context.Context, query string, k int) ([]Hit, error)
	// Count returns the chunks stored for filename, or all chunks when
	// filename is empty.
	Count(ctx context.Context, filename string) (int, error)
	Delete(ctx context.Context, filename string) error
	Close() error
}

type Options struct {
	Collection string
	ModelName  string
	Dimensions int
	DB         *sql.DB
}

type Factory func(ctx context.Context, opts Options) (Store, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

func Register(name string, factory Factory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	registry[key] = factory
	registryMu.Unlock()
}

// Open builds the named backend. Every failure wraps ErrIndexUnavailable so
// callers can fall back to degraded mode.
func Open(ctx context.Context, typ string, opts Options) (Store, error) {
	key := strings.ToLower(strings.TrimSpace(typ))
	registryMu.RLock()
	factory := registry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("%w: unsupported vector store type: %s", ErrIndexUnavailable, typ)
	}
	if opts.Dimensions <= 0 {
		return nil, fmt.Errorf("%w: dimensions must be positive", ErrIndexUnavailable)
	}
	if opts.Collection == "" {
		opts.Collection = "documents"
	}
	if !collectionPattern.MatchString(opts.Collection) {
		return nil, fmt.Errorf("%w: invalid collection name %q", ErrIndexUnavailable, opts.Collection)
	}
	store, err := factory(ctx, opts)
	if err != nil {
		if errors.Is(err, ErrIndexUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrIndexUnavailable, err)
	}
	return store, nil
}

var collectionPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,47}$`)

// ChunkID is the stable key of a chunk. Path separators in the filename are
// replaced with underscores.
func ChunkID(filename string, ordinal int) string {
	escaped := strings.NewReplacer("/", "_", "\\", "_").Replace(filename)
	return escaped + "_" + strconv.Itoa(ordinal)
}

func checkChunks(chunks []Chunk, dims int) error {
	seen := make(map[int]struct{}, len(chunks))
	for _, c := range chunks {
		if len(c.Embedding) != dims {
			return fmt.Errorf("%w: chunk %d has %d dimensions, index expects %d", ErrDimensionMismatch, c.Ordinal, len(c.Embedding), dims)
		}
		if c.Ordinal < 0 {
			return fmt.Errorf("invalid chunk ordinal %d", c.Ordinal)
		}
		if _, ok := seen[c.Ordinal]; ok {
			return fmt.Errorf("duplicate chunk ordinal %d", c.Ordinal)
		}
		seen[c.Ordinal] = struct{}{}
	}
	return nil
}

// staleWhere matches the rows of filename that are not part of chunks.
func staleWhere(filename string, chunks []Chunk) map[string]interface{} {
	where := map[string]interface{}{"filename": filename}
	if len(chunks) == 0 {
		return where
	}
	keep := make([]interface{}, 0, len(chunks))
	for _, c := range chunks {
		keep = append(keep, c.Ordinal)
	}
	where["ordinal not in"] = keep
	return where
}

func checkQuery(vec []float32, dims int) error {
	if len(vec) != dims {
		return fmt.Errorf("%w: query has %d dimensions, index expects %d", ErrDimensionMismatch, len(vec), dims)
	}
	return nil
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// rankHits sorts by score and then by position, keeps k and assigns ranks.
func rankHits(hits []Hit, k int) []Hit {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if hits[i].Filename != hits[j].Filename {
			return hits[i].Filename < hits[j].Filename
		}
		return hits[i].Ordinal < hits[j].Ordinal
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	for i := range hits {
		hits[i].Rank = i + 1
	}
	return hits
}
