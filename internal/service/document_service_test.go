package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/classmate/internal/ai"
	"github.com/xxxsen/classmate/internal/config"
	"github.com/xxxsen/classmate/internal/extract"
	appErr "github.com/xxxsen/classmate/internal/pkg/errors"
)

func TestUploadAndAskGroundedOnUpload(t *testing.T) {
	llm := &fakeCompleter{answer: "Light energy becomes chemical energy."}
	svc, _ := newTestDocuments(t, newTestRAG(t), llm)

	res := uploadText(t, svc, "bio.txt", photosynthesisText)
	require.Equal(t, "success", res.Status)
	require.True(t, res.Indexed)
	require.Equal(t, 1, res.Chunks)
	require.Equal(t, "txt", res.FileType)
	require.Equal(t, int64(len(photosynthesisText)), res.Size)
	require.Contains(t, res.ContentPreview, "Photosynthesis")

	ans, err := svc.Ask(context.Background(), "bio.txt", "What does photosynthesis convert?")
	require.NoError(t, err)
	require.Equal(t, "success", ans.Status)
	require.Equal(t, llm.answer, ans.Response)
	prompt := llm.lastPrompt()
	require.Contains(t, prompt, "Source: bio.txt")
	require.Contains(t, prompt, "chlorophyll")
	require.Contains(t, prompt, "Question: What does photosynthesis convert?")
}

func TestAskPrefersTargetDocument(t *testing.T) {
	llm := &fakeCompleter{answer: "ok"}
	svc, _ := newTestDocuments(t, newTestRAG(t), llm)
	uploadText(t, svc, "bio.txt", photosynthesisText)
	uploadText(t, svc, "plants.txt", "Photosynthesis happens in plants during daylight.")

	_, err := svc.Ask(context.Background(), "plants.txt", "photosynthesis plants daylight")
	require.NoError(t, err)
	prompt := llm.lastPrompt()
	require.Contains(t, prompt, "Source: plants.txt")
	require.NotContains(t, prompt, "Source: bio.txt")
}

func TestUploadDegradedIndex(t *testing.T) {
	llm := &fakeCompleter{answer: "fallback answer"}
	svc, _ := newTestDocuments(t, NewUnavailableRAGService(errors.New("index down")), llm)

	res := uploadText(t, svc, "bio.txt", photosynthesisText)
	require.False(t, res.Indexed)
	require.Zero(t, res.Chunks)
	require.Equal(t, "success", res.Status)

	ans, err := svc.Ask(context.Background(), "bio.txt", "What is photosynthesis?")
	require.NoError(t, err)
	require.Equal(t, "fallback answer", ans.Response)
	prompt := llm.lastPrompt()
	require.Contains(t, prompt, "Document:\n"+photosynthesisText)
	require.NotContains(t, prompt, "Source: ")
}

func TestUploadIndexFailureKeepsFile(t *testing.T) {
	rag := NewRAGService(failingEmbedder{}, newTestRAG(t).store, nil, 1)
	svc, files := newTestDocuments(t, rag, &fakeCompleter{})
	res := uploadText(t, svc, "bio.txt", photosynthesisText)
	require.False(t, res.Indexed)

	items, err := files.List(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "bio.txt", items[0].Key)
}

func TestUploadValidation(t *testing.T) {
	svc, _ := newTestDocuments(t, newTestRAG(t), &fakeCompleter{})
	ctx := context.Background()

	_, err := svc.Upload(ctx, UploadInput{Filename: "run.exe", Size: 3, Reader: strings.NewReader("abc")})
	require.True(t, errors.Is(err, appErr.ErrUnsupportedType))

	_, err = svc.Upload(ctx, UploadInput{Filename: "big.txt", Size: 2 * 1024 * 1024, Reader: strings.NewReader("abc")})
	require.True(t, errors.Is(err, appErr.ErrTooLarge))

	_, err = svc.Upload(ctx, UploadInput{Filename: "..", Size: 3, Reader: strings.NewReader("abc")})
	require.True(t, errors.Is(err, appErr.ErrInvalid))

	res, err := svc.Upload(ctx, UploadInput{Filename: "../../etc/notes.TXT", Size: 5, Reader: strings.NewReader("hello")})
	require.NoError(t, err)
	require.Equal(t, "notes.TXT", res.Filename)
	require.Equal(t, "txt", res.FileType)
}

func TestListDocuments(t *testing.T) {
	svc, _ := newTestDocuments(t, newTestRAG(t), &fakeCompleter{})
	uploadText(t, svc, "b.txt", "beta")
	uploadText(t, svc, "a.md", "# alpha")

	docs, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 2)
	require.Equal(t, "a.md", docs[0].Filename)
	require.Equal(t, "b.txt", docs[1].Filename)
	require.Equal(t, int64(4), docs[1].Size)
}

func TestExplain(t *testing.T) {
	llm := &fakeCompleter{answer: "an explanation"}
	svc, _ := newTestDocuments(t, newTestRAG(t), llm)
	long := strings.Repeat("word ", 1000)
	uploadText(t, svc, "long.txt", long)

	res, err := svc.Explain(context.Background(), "long.txt")
	require.NoError(t, err)
	require.Equal(t, "an explanation", res.Explanation)
	require.Equal(t, "long.txt", res.Filename)
	require.Len(t, []rune(res.ContentPreview), explainPreviewChars)
	require.True(t, strings.HasPrefix(llm.lastPrompt(), explainPrompt))
	require.Len(t, []rune(llm.lastPrompt()), len([]rune(explainPrompt))+explainContentChars)

	_, err = svc.Explain(context.Background(), "missing.txt")
	require.True(t, errors.Is(err, appErr.ErrNotFound))
}

func TestAskMissingDocumentWithoutHits(t *testing.T) {
	svc, _ := newTestDocuments(t, newTestRAG(t), &fakeCompleter{})
	_, err := svc.Ask(context.Background(), "missing.txt", "anything")
	require.True(t, errors.Is(err, appErr.ErrNotFound))

	_, err = svc.Ask(context.Background(), "missing.txt", "   ")
	require.True(t, errors.Is(err, appErr.ErrInvalid))
}

func TestAskWithoutCredentials(t *testing.T) {
	gateway := ai.NewGateway(nil)
	svc, _ := newTestDocuments(t, newTestRAG(t), gateway)
	uploadText(t, svc, "bio.txt", photosynthesisText)

	_, err := svc.Ask(context.Background(), "bio.txt", "What is photosynthesis?")
	require.Error(t, err)
	require.True(t, errors.Is(err, ai.ErrGateway))
	require.True(t, errors.Is(err, ai.ErrNoCredentials))
	require.Contains(t, err.Error(), "llm.providers")
}

func TestDeleteDocument(t *testing.T) {
	rag := newTestRAG(t)
	svc, _ := newTestDocuments(t, rag, &fakeCompleter{})
	uploadText(t, svc, "bio.txt", photosynthesisText)

	require.NoError(t, svc.Delete(context.Background(), "bio.txt"))
	count, err := rag.Count(context.Background(), "bio.txt")
	require.NoError(t, err)
	require.Zero(t, count)
	require.True(t, errors.Is(svc.Delete(context.Background(), "bio.txt"), appErr.ErrNotFound))
}

func TestReindexPicksUpUnindexedDocuments(t *testing.T) {
	ctx := context.Background()
	files := newTestFiles(t)
	opts := DocumentOptions{Upload: config.UploadConfig{MaxSizeMB: 1, AllowedExts: []string{"txt"}}}

	degraded := NewDocumentService(files, extract.New(), NewUnavailableRAGService(nil), &fakeCompleter{}, opts)
	res := uploadText(t, degraded, "bio.txt", photosynthesisText)
	require.False(t, res.Indexed)

	rag := newTestRAG(t)
	svc := NewDocumentService(files, extract.New(), rag, &fakeCompleter{}, opts)
	n, err := svc.Reindex(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	count, err := rag.Count(ctx, "bio.txt")
	require.NoError(t, err)
	require.Equal(t, 1, count)

	n, err = svc.Reindex(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}
