package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	ErrUnavailable   = errors.New("ai unavailable")
	ErrNoCredentials = errors.New("no language-model credentials configured")
	ErrGateway       = errors.New("llm gateway error")
)

const (
	TaskTypeDocument = "RETRIEVAL_DOCUMENT"
	TaskTypeQuery    = "RETRIEVAL_QUERY"
)

type GenerateRequest struct {
	System    string
	Prompt    string
	MaxTokens int
	Image     []byte
	ImageMIME string
}

func (r *GenerateRequest) HasImage() bool {
	return len(r.Image) > 0
}

type IProvider interface {
	Name() string
	Generate(ctx context.Context, model string, req *GenerateRequest) (string, error)
	Embed(ctx context.Context, model string, text string, taskType string) ([]float32, error)
}

type IGenerator interface {
	Generate(ctx context.Context, req *GenerateRequest) (string, error)
}

type IEmbedder interface {
	Embed(ctx context.Context, text string, taskType string) ([]float32, error)
	ModelName() string
	Dimensions() int
}

type generator struct {
	provider IProvider
	model    string
}

func NewGenerator(p IProvider, model string) IGenerator {
	return &generator{provider: p, model: model}
}

func (g *generator) Generate(ctx context.Context, req *GenerateRequest) (string, error) {
	return g.provider.Generate(ctx, g.model, req)
}

type embedder struct {
	provider   IProvider
	model      string
	dimensions int
}

// NewEmbedder binds a provider to one model. Vectors whose length differs
// from dimensions are rejected so that one index never mixes models.
func NewEmbedder(p IProvider, model string, dimensions int) IEmbedder {
	return &embedder{provider: p, model: model, dimensions: dimensions}
}

func (e *embedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	values, err := e.provider.Embed(ctx, e.model, text, taskType)
	if err != nil {
		return nil, err
	}
	if e.dimensions > 0 && len(values) != e.dimensions {
		return nil, fmt.Errorf("embedding model %s returned %d dimensions, expected %d", e.ModelName(), len(values), e.dimensions)
	}
	return values, nil
}

func (e *embedder) ModelName() string {
	return e.provider.Name() + ":" + e.model
}

func (e *embedder) Dimensions() int {
	return e.dimensions
}

type ProviderFactory func(args interface{}) (IProvider, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]ProviderFactory{}
)

func Register(name string, factory ProviderFactory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	registry[key] = factory
	registryMu.Unlock()
}

func NewProvider(name string, args interface{}) (IProvider, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, fmt.Errorf("ai provider name is required")
	}
	registryMu.RLock()
	factory := registry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("unsupported ai provider: %s", name)
	}
	return factory(args)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode ai provider config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode ai provider config: %w", err)
	}
	return nil
}

func missingCredential(provider, setting string) error {
	return fmt.Errorf("%w: %s requires %s", ErrNoCredentials, provider, setting)
}
