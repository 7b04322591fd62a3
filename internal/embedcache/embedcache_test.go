package embedcache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/classmate/internal/model"
	"github.com/xxxsen/classmate/internal/repo"
	"github.com/xxxsen/classmate/test/testutil"
)

type countingEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *countingEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return []float32{float32(len(text)), 1}, nil
}

func (c *countingEmbedder) ModelName() string { return "fake:model" }
func (c *countingEmbedder) Dimensions() int   { return 2 }

func TestLRUCache(t *testing.T) {
	next := &countingEmbedder{}
	e := WrapLruCacheToEmbedder(next, 8, time.Minute)
	ctx := context.Background()

	a, err := e.Embed(ctx, "abc", "q")
	require.NoError(t, err)
	a[0] = 99
	b, err := e.Embed(ctx, "abc", "q")
	require.NoError(t, err)
	require.Equal(t, []float32{3, 1}, b)
	require.Equal(t, 1, next.calls)

	_, err = e.Embed(ctx, "abc", "d")
	require.NoError(t, err)
	require.Equal(t, 2, next.calls)
	require.Equal(t, "fake:model", e.ModelName())
	require.Equal(t, 2, e.Dimensions())

	require.Equal(t, next, WrapLruCacheToEmbedder(next, 0, time.Minute))
}

func TestLRUCacheDoesNotStoreErrors(t *testing.T) {
	next := &countingEmbedder{err: errors.New("down")}
	e := WrapLruCacheToEmbedder(next, 8, time.Minute)
	_, err := e.Embed(context.Background(), "x", "q")
	require.Error(t, err)
	_, err = e.Embed(context.Background(), "x", "q")
	require.Error(t, err)
	require.Equal(t, 2, next.calls)
}

type memRepo struct {
	items map[string][]float32
	fail  bool
}

func (m *memRepo) Get(ctx context.Context, modelName, taskType, contentHash string) ([]float32, bool, error) {
	if m.fail {
		return nil, false, errors.New("db down")
	}
	v, ok := m.items[modelName+taskType+contentHash]
	return v, ok, nil
}

func (m *memRepo) Save(ctx context.Context, item *model.EmbeddingCache) error {
	if m.fail {
		return errors.New("db down")
	}
	m.items[item.ModelName+item.TaskType+item.ContentHash] = item.Embedding
	return nil
}

func TestDBCache(t *testing.T) {
	next := &countingEmbedder{}
	store := &memRepo{items: map[string][]float32{}}
	e := WrapDBCacheToEmbedder(next, store)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		v, err := e.Embed(ctx, "hello", "q")
		require.NoError(t, err)
		require.Equal(t, []float32{5, 1}, v)
	}
	require.Equal(t, 1, next.calls)
}

func TestDBCacheFallsThroughOnRepoError(t *testing.T) {
	next := &countingEmbedder{}
	e := WrapDBCacheToEmbedder(next, &memRepo{fail: true})
	v, err := e.Embed(context.Background(), "hi", "q")
	require.NoError(t, err)
	require.Equal(t, []float32{2, 1}, v)
}

func TestDBCacheIgnoresWrongDimensions(t *testing.T) {
	next := &countingEmbedder{}
	store := &memRepo{items: map[string][]float32{}}
	_, hash, name := buildCacheKey("fake:model", "q", "hi")
	store.items[name+"q"+hash] = []float32{1, 2, 3}
	e := WrapDBCacheToEmbedder(next, store)
	v, err := e.Embed(context.Background(), "hi", "q")
	require.NoError(t, err)
	require.Equal(t, []float32{2, 1}, v)
	require.Equal(t, 1, next.calls)
}

func TestDBCacheWithSQLite(t *testing.T) {
	conn, cleanup := testutil.OpenSQLiteDB(t)
	defer cleanup()
	next := &countingEmbedder{}
	e := WrapLruCacheToEmbedder(WrapDBCacheToEmbedder(next, repo.NewEmbeddingCacheRepo(conn, "sqlite")), 4, time.Minute)
	ctx := context.Background()
	_, err := e.Embed(ctx, "persist me", "d")
	require.NoError(t, err)

	fresh := WrapDBCacheToEmbedder(next, repo.NewEmbeddingCacheRepo(conn, "sqlite"))
	v, err := fresh.Embed(ctx, "persist me", "d")
	require.NoError(t, err)
	require.Equal(t, []float32{10, 1}, v)
	require.Equal(t, 1, next.calls)
}
