package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/classmate/internal/ai"
	"github.com/xxxsen/classmate/internal/config"
	"github.com/xxxsen/classmate/internal/extract"
	"github.com/xxxsen/classmate/internal/filestore"
	"github.com/xxxsen/classmate/internal/vectorstore"
)

const testDims = 256

const photosynthesisText = "Photosynthesis converts light energy into chemical energy stored in glucose. " +
	"Plants capture sunlight with chlorophyll in their leaves."

type fakeCompleter struct {
	mu      sync.Mutex
	prompts []string
	answer  string
	err     error
}

func (f *fakeCompleter) Complete(ctx context.Context, req ai.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, req.Prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func (f *fakeCompleter) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	return nil, errors.New("embedding backend down")
}
func (failingEmbedder) ModelName() string { return "fake:down" }
func (failingEmbedder) Dimensions() int   { return testDims }

func newTestEmbedder(t *testing.T) ai.IEmbedder {
	p, err := ai.NewProvider("local", map[string]interface{}{"dimensions": testDims})
	require.NoError(t, err)
	return ai.NewEmbedder(p, "hashing", testDims)
}

func newTestRAG(t *testing.T) *RAGService {
	store, err := vectorstore.Open(context.Background(), "memory", vectorstore.Options{Dimensions: testDims})
	require.NoError(t, err)
	return NewRAGService(newTestEmbedder(t), store, ai.NewChunker(), 2)
}

func newTestFiles(t *testing.T) filestore.Store {
	store, err := filestore.New(config.FileStoreConfig{Type: "local", Dir: t.TempDir()})
	require.NoError(t, err)
	return store
}

func newTestDocuments(t *testing.T, rag *RAGService, llm Completer) (*DocumentService, filestore.Store) {
	files := newTestFiles(t)
	svc := NewDocumentService(files, extract.New(), rag, llm, DocumentOptions{
		Upload: config.UploadConfig{MaxSizeMB: 1, AllowedExts: []string{"txt", "md", "pdf"}},
		TopK:   3,
	})
	return svc, files
}

func uploadText(t *testing.T, svc *DocumentService, name, text string) *UploadResult {
	res, err := svc.Upload(context.Background(), UploadInput{
		Filename: name,
		Size:     int64(len(text)),
		Reader:   strings.NewReader(text),
	})
	require.NoError(t, err)
	return res
}
