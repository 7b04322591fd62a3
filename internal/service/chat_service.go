package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/classmate/internal/ai"
	appErr "github.com/xxxsen/classmate/internal/pkg/errors"
)

type ChatService struct {
	rag       *RAGService
	llm       Completer
	composer  *PromptComposer
	topK      int
	maxTokens int
}

func NewChatService(rag *RAGService, llm Completer, topK int, maxTokens int) *ChatService {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if rag == nil {
		rag = NewUnavailableRAGService(nil)
	}
	return &ChatService{
		rag:       rag,
		llm:       llm,
		composer:  NewChatComposer(),
		topK:      topK,
		maxTokens: maxTokens,
	}
}

type ChatInput struct {
	Message      string
	Context      string
	EnableSearch bool
}

type ChatResult struct {
	Status        string `json:"status"`
	Message       string `json:"message,omitempty"`
	Response      string `json:"response"`
	SearchEnabled bool   `json:"search_enabled"`
}

// Send answers a chat message. With search enabled the prompt is grounded on
// indexed excerpts, falling back to keyword matches and then to the bare
// message. The caller's context is only used when search is off.
func (s *ChatService) Send(ctx context.Context, in ChatInput) (*ChatResult, error) {
	message := strings.TrimSpace(in.Message)
	if message == "" {
		return nil, fmt.Errorf("%w: message is required", appErr.ErrInvalid)
	}
	logger := logutil.GetLogger(ctx).With(zap.Bool("search_enabled", in.EnableSearch))
	pc := PromptContext{}
	if !in.EnableSearch {
		pc.Preamble = in.Context
	} else {
		hits, err := s.rag.Query(ctx, message, s.topK)
		if err != nil {
			logger.Warn("semantic search failed", zap.Error(err))
		}
		pc.Hits = hits
		if len(pc.Hits) == 0 {
			matches, err := s.rag.KeywordSearch(ctx, message, s.topK)
			if err != nil {
				logger.Warn("keyword search failed", zap.Error(err))
			}
			pc.SearchText = FormatHits(matches, s.composer.ExcerptChars())
		}
	}
	response, err := s.llm.Complete(ctx, ai.Request{
		Prompt:    s.composer.Compose(message, pc),
		MaxTokens: s.maxTokens,
	})
	if err != nil {
		logger.Error("chat completion failed", zap.Error(err))
		return nil, err
	}
	return &ChatResult{
		Status:        statusSuccess,
		Message:       in.Message,
		Response:      response,
		SearchEnabled: in.EnableSearch,
	}, nil
}

func (s *ChatService) DebugEcho(message string) *ChatResult {
	return &ChatResult{Status: statusSuccess, Response: "Echo: " + message}
}
