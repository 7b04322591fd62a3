package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/classmate/internal/ai"
	"github.com/xxxsen/classmate/internal/config"
	"github.com/xxxsen/classmate/internal/extract"
	"github.com/xxxsen/classmate/internal/filestore"
	"github.com/xxxsen/classmate/internal/model"
	appErr "github.com/xxxsen/classmate/internal/pkg/errors"
	"github.com/xxxsen/classmate/internal/pkg/sanitize"
	"github.com/xxxsen/classmate/internal/pkg/textutil"
	"github.com/xxxsen/classmate/internal/vectorstore"
)

const (
	uploadPreviewChars  = 500
	explainContentChars = 3000
	explainPreviewChars = 2000

	explainPrompt = "Please provide a clear and concise explanation of the following content in markdown and structured format:\n\n"

	msgProcessed  = "Document uploaded and processed successfully"
	msgNotIndexed = "Document uploaded; indexing unavailable, answers will use the document text directly"
	statusSuccess = "success"
)

// Completer is the part of the LLM gateway the services need.
type Completer interface {
	Complete(ctx context.Context, req ai.Request) (string, error)
}

type DocumentOptions struct {
	Upload    config.UploadConfig
	TopK      int
	MaxTokens int
}

type DocumentService struct {
	files     filestore.Store
	extractor *extract.Extractor
	rag       *RAGService
	llm       Completer
	composer  *PromptComposer
	opts      DocumentOptions
	allowed   map[string]struct{}
}

func NewDocumentService(files filestore.Store, extractor *extract.Extractor, rag *RAGService, llm Completer, opts DocumentOptions) *DocumentService {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if rag == nil {
		rag = NewUnavailableRAGService(nil)
	}
	allowed := make(map[string]struct{}, len(opts.Upload.AllowedExts))
	for _, ext := range opts.Upload.AllowedExts {
		allowed[strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))] = struct{}{}
	}
	return &DocumentService{
		files:     files,
		extractor: extractor,
		rag:       rag,
		llm:       llm,
		composer:  NewAskComposer(),
		opts:      opts,
		allowed:   allowed,
	}
}

type UploadInput struct {
	Filename string
	Size     int64
	Reader   io.Reader
}

type UploadResult struct {
	Status         string `json:"status"`
	Filename       string `json:"filename"`
	Size           int64  `json:"size"`
	FileType       string `json:"file_type"`
	Chunks         int    `json:"chunks"`
	Indexed        bool   `json:"indexed"`
	Message        string `json:"message"`
	ContentPreview string `json:"content_preview"`
}

// Upload stores the file, extracts its text and indexes it. An indexing
// failure does not fail the upload; the result reports indexed=false.
func (s *DocumentService) Upload(ctx context.Context, in UploadInput) (*UploadResult, error) {
	key, err := filestore.CleanKey(in.Filename)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid filename", appErr.ErrInvalid)
	}
	if limit := s.opts.Upload.MaxBytes(); limit > 0 && in.Size > limit {
		return nil, appErr.ErrTooLarge
	}
	ext := extract.Ext(key)
	if _, ok := s.allowed[ext]; !ok {
		return nil, fmt.Errorf("%w: %s", appErr.ErrUnsupportedType, ext)
	}
	logger := logutil.GetLogger(ctx).With(zap.String("filename", key), zap.Int64("size", in.Size))
	if err := s.files.Save(ctx, key, in.Reader, in.Size); err != nil {
		logger.Error("save upload failed", zap.Error(err))
		return nil, fmt.Errorf("save upload: %w", err)
	}
	content, err := s.readContent(ctx, key)
	if err != nil {
		logger.Error("extract upload failed", zap.Error(err))
		return nil, err
	}
	result := &UploadResult{
		Status:         statusSuccess,
		Filename:       key,
		Size:           in.Size,
		FileType:       ext,
		Message:        msgProcessed,
		ContentPreview: textutil.Truncate(content, uploadPreviewChars),
	}
	if !s.rag.Available() {
		result.Message = msgNotIndexed
		return result, nil
	}
	chunks, err := s.rag.Ingest(ctx, key, content)
	if err != nil {
		logger.Warn("indexing failed, upload kept", zap.Error(err))
		result.Message = msgNotIndexed
		return result, nil
	}
	result.Chunks = chunks
	result.Indexed = true
	logger.Info("document uploaded", zap.Int("chunks", chunks))
	return result, nil
}

func (s *DocumentService) List(ctx context.Context) ([]model.UploadedDocument, error) {
	items, err := s.files.List(ctx)
	if err != nil {
		return nil, err
	}
	docs := make([]model.UploadedDocument, 0, len(items))
	for _, item := range items {
		docs = append(docs, model.UploadedDocument{
			Filename: item.Key,
			Size:     item.Size,
			Mtime:    item.Mtime.Unix(),
		})
	}
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].Filename < docs[j].Filename
	})
	return docs, nil
}

type ExplainResult struct {
	Filename       string `json:"filename"`
	Explanation    string `json:"explanation"`
	ContentPreview string `json:"content_preview"`
}

func (s *DocumentService) Explain(ctx context.Context, filename string) (*ExplainResult, error) {
	key, err := filestore.CleanKey(filename)
	if err != nil {
		return nil, appErr.ErrNotFound
	}
	content, err := s.readContent(ctx, key)
	if err != nil {
		return nil, err
	}
	explanation, err := s.llm.Complete(ctx, ai.Request{
		Prompt:    explainPrompt + textutil.Truncate(content, explainContentChars),
		MaxTokens: s.opts.MaxTokens,
	})
	if err != nil {
		logutil.GetLogger(ctx).Error("explain document failed", zap.String("filename", key), zap.Error(err))
		return nil, err
	}
	return &ExplainResult{
		Filename:       key,
		Explanation:    explanation,
		ContentPreview: textutil.Truncate(content, explainPreviewChars),
	}, nil
}

type AskResult struct {
	Status   string `json:"status"`
	Response string `json:"response"`
}

// Ask answers from retrieved excerpts when the index has any, otherwise from
// the document text itself.
func (s *DocumentService) Ask(ctx context.Context, filename string, question string) (*AskResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is required", appErr.ErrInvalid)
	}
	key, err := filestore.CleanKey(filename)
	if err != nil {
		return nil, appErr.ErrNotFound
	}
	logger := logutil.GetLogger(ctx).With(zap.String("filename", key))
	hits, err := s.rag.Query(ctx, question, s.opts.TopK)
	if err != nil {
		logger.Warn("retrieval failed, answering from document", zap.Error(err))
		hits = nil
	}
	pc := PromptContext{Hits: preferFile(hits, key)}
	if len(pc.Hits) == 0 {
		content, err := s.readContent(ctx, key)
		if err != nil {
			return nil, err
		}
		pc.Document = content
	}
	answer, err := s.llm.Complete(ctx, ai.Request{
		Prompt:    s.composer.Compose(question, pc),
		MaxTokens: s.opts.MaxTokens,
	})
	if err != nil {
		logger.Error("answer question failed", zap.Error(err))
		return nil, err
	}
	return &AskResult{Status: statusSuccess, Response: answer}, nil
}

// Delete removes the stored file and its indexed chunks.
func (s *DocumentService) Delete(ctx context.Context, filename string) error {
	key, err := filestore.CleanKey(filename)
	if err != nil {
		return appErr.ErrNotFound
	}
	if err := s.files.Delete(ctx, key); err != nil {
		if errors.Is(err, filestore.ErrNotFound) {
			return appErr.ErrNotFound
		}
		return err
	}
	if err := s.rag.Remove(ctx, key); err != nil {
		logutil.GetLogger(ctx).Warn("remove indexed chunks failed", zap.String("filename", key), zap.Error(err))
	}
	return nil
}

// Reindex ingests stored documents that have no chunks in the index, such as
// uploads accepted while indexing was unavailable. It returns the number of
// documents indexed.
func (s *DocumentService) Reindex(ctx context.Context) (int, error) {
	if !s.rag.Available() {
		return 0, nil
	}
	docs, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	indexed := 0
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return indexed, err
		}
		logger := logutil.GetLogger(ctx).With(zap.String("filename", doc.Filename))
		count, err := s.rag.Count(ctx, doc.Filename)
		if err != nil {
			return indexed, err
		}
		if count > 0 {
			continue
		}
		content, err := s.readContent(ctx, doc.Filename)
		if err != nil {
			logger.Warn("skip reindex, read document failed", zap.Error(err))
			continue
		}
		if strings.TrimSpace(content) == "" {
			continue
		}
		if _, err := s.rag.Ingest(ctx, doc.Filename, content); err != nil {
			logger.Warn("reindex document failed", zap.Error(err))
			continue
		}
		indexed++
	}
	return indexed, nil
}

func (s *DocumentService) readContent(ctx context.Context, key string) (string, error) {
	path, cleanup, err := filestore.Materialize(ctx, s.files, key)
	defer cleanup()
	if err != nil {
		if errors.Is(err, filestore.ErrNotFound) {
			return "", appErr.ErrNotFound
		}
		return "", err
	}
	text, err := s.extractor.Extract(ctx, path, extract.InferType(key))
	if err != nil {
		return "", err
	}
	return sanitize.Sanitize(text), nil
}

// preferFile keeps the hits of filename when there are any, otherwise all
// hits are returned.
func preferFile(hits []vectorstore.Hit, filename string) []vectorstore.Hit {
	own := make([]vectorstore.Hit, 0, len(hits))
	for _, h := range hits {
		if h.Filename == filename {
			own = append(own, h)
		}
	}
	if len(own) > 0 {
		return own
	}
	return hits
}
