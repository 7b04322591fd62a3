package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/classmate/internal/metrics"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

const (
	DefaultGatewayTimeout = 60 * time.Second
	DefaultGatewayRetries = 2
	DefaultGatewayBackoff = 500 * time.Millisecond

	defaultTranscribePrompt = "Transcribe all text visible in this image. Return only the text."
	defaultTranscribeTokens = 2048
)

var errEmptyResponse = errors.New("empty response")

type Request struct {
	Prompt    string
	System    string
	MaxTokens int
}

type GatewayOption func(*Gateway)

func WithTimeout(d time.Duration) GatewayOption {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

func WithRetries(n int) GatewayOption {
	return func(g *Gateway) {
		if n >= 0 {
			g.retries = n
		}
	}
}

func WithBackoff(d time.Duration) GatewayOption {
	return func(g *Gateway) {
		if d >= 0 {
			g.backoff = d
		}
	}
}

func WithTranscribePrompt(prompt string) GatewayOption {
	return func(g *Gateway) {
		if strings.TrimSpace(prompt) != "" {
			g.transcribePrompt = prompt
		}
	}
}

// Gateway is the single entry point for language-model calls. Every failure
// it returns wraps ErrGateway.
type Gateway struct {
	entries          []GeneratorEntry
	timeout          time.Duration
	retries          int
	backoff          time.Duration
	transcribePrompt string
	group            IGenerator
}

func NewGateway(entries []GeneratorEntry, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		timeout:          DefaultGatewayTimeout,
		retries:          DefaultGatewayRetries,
		backoff:          DefaultGatewayBackoff,
		transcribePrompt: defaultTranscribePrompt,
	}
	for _, opt := range opts {
		opt(g)
	}
	wrapped := make([]GeneratorEntry, 0, len(entries))
	for _, item := range entries {
		if item.Generator == nil {
			continue
		}
		wrapped = append(wrapped, GeneratorEntry{
			Name:      item.Name,
			Generator: &retryGenerator{name: item.Name, next: item.Generator, gw: g},
		})
	}
	g.entries = wrapped
	g.group = NewGroupGenerator(wrapped)
	return g
}

func (g *Gateway) Available() bool {
	return g != nil && g.group != nil
}

func (g *Gateway) Providers() []string {
	if g == nil {
		return nil
	}
	names := make([]string, 0, len(g.entries))
	for _, item := range g.entries {
		names = append(names, item.Name)
	}
	return names
}

func (g *Gateway) Complete(ctx context.Context, req Request) (string, error) {
	return g.generate(ctx, &GenerateRequest{
		System:    req.System,
		Prompt:    req.Prompt,
		MaxTokens: req.MaxTokens,
	})
}

// Transcribe asks a vision capable model for the text in an image.
func (g *Gateway) Transcribe(ctx context.Context, image []byte, mime string) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("%w: image is empty", ErrGateway)
	}
	return g.generate(ctx, &GenerateRequest{
		Prompt:    g.transcribePrompt,
		MaxTokens: defaultTranscribeTokens,
		Image:     image,
		ImageMIME: mime,
	})
}

func (g *Gateway) generate(ctx context.Context, req *GenerateRequest) (string, error) {
	if !g.Available() {
		return "", fmt.Errorf("%w: %w: set llm.providers with an api key", ErrGateway, ErrNoCredentials)
	}
	res, err := g.group.Generate(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGateway, err)
	}
	return res, nil
}

type retryGenerator struct {
	name string
	next IGenerator
	gw   *Gateway
}

func (r *retryGenerator) Generate(ctx context.Context, req *GenerateRequest) (string, error) {
	var lastErr error
	delay := r.gw.backoff
	for attempt := 0; attempt <= r.gw.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
		res, err := r.once(ctx, req)
		if err == nil {
			metrics.ObserveGatewayRequest(r.name, "ok")
			return res, nil
		}
		lastErr = err
		if errors.Is(err, ErrNoCredentials) {
			metrics.ObserveGatewayRequest(r.name, "no_credentials")
			return "", err
		}
		metrics.ObserveGatewayRequest(r.name, "error")
		logutil.GetLogger(ctx).Debug("llm call failed", zap.String("provider", r.name), zap.Int("attempt", attempt+1), zap.Error(err))
		if ctx.Err() != nil {
			return "", err
		}
	}
	return "", lastErr
}

func (r *retryGenerator) once(ctx context.Context, req *GenerateRequest) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.gw.timeout)
	defer cancel()
	res, err := r.next.Generate(callCtx, req)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%s timed out after %s: %w", r.name, r.gw.timeout, err)
		}
		return "", err
	}
	res = strings.TrimSpace(res)
	if res == "" {
		return "", fmt.Errorf("%s: %w", r.name, errEmptyResponse)
	}
	return res, nil
}
