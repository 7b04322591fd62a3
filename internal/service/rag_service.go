package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xxxsen/classmate/internal/ai"
	"github.com/xxxsen/classmate/internal/metrics"
	appErr "github.com/xxxsen/classmate/internal/pkg/errors"
	"github.com/xxxsen/classmate/internal/pkg/sanitize"
	"github.com/xxxsen/classmate/internal/vectorstore"
)

const (
	DefaultTopK        = 3
	defaultConcurrency = 4
)

// RAGService ingests documents into the vector index and answers nearest
// neighbour queries. A service built without an index runs degraded: every
// operation succeeds with an empty result.
type RAGService struct {
	embedder    ai.IEmbedder
	store       vectorstore.Store
	chunker     *ai.Chunker
	concurrency int
	err         error
}

func NewRAGService(embedder ai.IEmbedder, store vectorstore.Store, chunker *ai.Chunker, concurrency int) *RAGService {
	if chunker == nil {
		chunker = ai.NewChunker()
	}
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	s := &RAGService{
		embedder:    embedder,
		store:       store,
		chunker:     chunker,
		concurrency: concurrency,
	}
	if embedder == nil || store == nil {
		s.err = vectorstore.ErrIndexUnavailable
	}
	return s
}

func NewUnavailableRAGService(err error) *RAGService {
	if err == nil {
		err = vectorstore.ErrIndexUnavailable
	}
	return &RAGService{chunker: ai.NewChunker(), concurrency: defaultConcurrency, err: err}
}

func (s *RAGService) Available() bool {
	return s != nil && s.err == nil
}

// Err is the reason the service is degraded, nil when it is available.
func (s *RAGService) Err() error {
	if s == nil {
		return vectorstore.ErrIndexUnavailable
	}
	return s.err
}

func (s *RAGService) ModelName() string {
	if !s.Available() {
		return ""
	}
	return s.embedder.ModelName()
}

// Ingest sanitizes and chunks text, then replaces the indexed chunks of
// filename. It returns the number of stored chunks, at least one even for a
// blank document.
func (s *RAGService) Ingest(ctx context.Context, filename string, text string) (int, error) {
	if !s.Available() {
		return 0, nil
	}
	return s.IngestChunks(ctx, filename, s.chunker.Chunk(sanitize.Sanitize(text)))
}

func (s *RAGService) IngestChunks(ctx context.Context, filename string, chunks []string) (int, error) {
	if !s.Available() {
		return 0, nil
	}
	if strings.TrimSpace(filename) == "" {
		return 0, fmt.Errorf("%w: filename is required", appErr.ErrInvalid)
	}
	if strings.ContainsAny(filename, `/\`) {
		return 0, fmt.Errorf("%w: filename must not contain path separators", appErr.ErrInvalid)
	}
	logger := logutil.GetLogger(ctx).With(zap.String("filename", filename), zap.Int("chunks", len(chunks)))
	items := make([]vectorstore.Chunk, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, text := range chunks {
		i, text := i, text
		g.Go(func() error {
			vec, err := s.embedder.Embed(gctx, text, ai.TaskTypeDocument)
			if err != nil {
				return fmt.Errorf("embed chunk %d: %w", i, err)
			}
			items[i] = vectorstore.Chunk{Ordinal: i, Text: text, Embedding: vec}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("embed document failed", zap.Error(err))
		return 0, err
	}
	if err := s.store.Upsert(ctx, filename, items); err != nil {
		logger.Error("upsert document chunks failed", zap.Error(err))
		return 0, err
	}
	metrics.AddIngestedChunks(len(items))
	logger.Debug("document indexed")
	return len(items), nil
}

// Query embeds text as a retrieval query and returns at most topK hits in
// non-increasing score order.
func (s *RAGService) Query(ctx context.Context, text string, topK int) ([]vectorstore.Hit, error) {
	if !s.Available() || strings.TrimSpace(text) == "" {
		return []vectorstore.Hit{}, nil
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	defer metrics.ObserveQuery("vector", time.Now())
	vec, err := s.embedder.Embed(ctx, text, ai.TaskTypeQuery)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := s.store.Query(ctx, vec, topK)
	if err != nil {
		return nil, err
	}
	return limitHits(hits, topK), nil
}

func (s *RAGService) KeywordSearch(ctx context.Context, text string, topK int) ([]vectorstore.Hit, error) {
	if !s.Available() || strings.TrimSpace(text) == "" {
		return []vectorstore.Hit{}, nil
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	defer metrics.ObserveQuery("keyword", time.Now())
	hits, err := s.store.KeywordSearch(ctx, text, topK)
	if err != nil {
		return nil, err
	}
	return limitHits(hits, topK), nil
}

// Count returns the indexed chunks of filename, or of every document when
// filename is empty.
func (s *RAGService) Count(ctx context.Context, filename string) (int, error) {
	if !s.Available() {
		return 0, nil
	}
	return s.store.Count(ctx, filename)
}

func (s *RAGService) Remove(ctx context.Context, filename string) error {
	if !s.Available() {
		return nil
	}
	return s.store.Delete(ctx, filename)
}

func (s *RAGService) Close() error {
	if s == nil || s.store == nil {
		return nil
	}
	return s.store.Close()
}

func limitHits(hits []vectorstore.Hit, k int) []vectorstore.Hit {
	if hits == nil {
		return []vectorstore.Hit{}
	}
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

type RAGOpener func(ctx context.Context) (*RAGService, error)

// LazyRAG opens the retriever on first use and reuses it afterwards. A failed
// open yields a degraded service, never an error.
type LazyRAG struct {
	open RAGOpener
	once sync.Once
	svc  *RAGService
}

func NewLazyRAG(open RAGOpener) *LazyRAG {
	return &LazyRAG{open: open}
}

func (l *LazyRAG) Get(ctx context.Context) *RAGService {
	l.once.Do(func() {
		svc, err := l.open(ctx)
		if err != nil {
			logutil.GetLogger(ctx).Warn("vector index unavailable, running without retrieval", zap.Error(err))
			svc = NewUnavailableRAGService(err)
		}
		if svc == nil {
			svc = NewUnavailableRAGService(nil)
		}
		l.svc = svc
	})
	return l.svc
}
