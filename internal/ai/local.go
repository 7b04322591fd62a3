package ai

import (
	"context"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/xxxsen/classmate/internal/pkg/textutil"
)

const DefaultLocalDimensions = 384

type localConfig struct {
	Dimensions int `json:"dimensions"`
}

// localProvider embeds text offline with signed feature hashing over a bag of
// words. It cannot generate text.
type localProvider struct {
	dimensions int
}

func (p *localProvider) Name() string {
	return "local"
}

func (p *localProvider) Generate(ctx context.Context, model string, req *GenerateRequest) (string, error) {
	return "", fmt.Errorf("%w: local provider does not support text generation", ErrUnavailable)
}

func (p *localProvider) Embed(ctx context.Context, model string, text string, taskType string) ([]float32, error) {
	return HashEmbedding(text, p.dimensions), nil
}

// HashEmbedding returns an L2 normalized vector. Text without tokens maps to
// the zero vector.
func HashEmbedding(text string, dimensions int) []float32 {
	if dimensions <= 0 {
		dimensions = DefaultLocalDimensions
	}
	vec := make([]float64, dimensions)
	for _, tok := range textutil.Tokenize(text) {
		h := xxhash.Sum64String(tok)
		idx := int(h % uint64(dimensions))
		if h>>63 == 1 {
			vec[idx] -= 1
		} else {
			vec[idx] += 1
		}
	}
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	out := make([]float32, dimensions)
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}

func createLocalFactory(args interface{}) (IProvider, error) {
	cfg := &localConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultLocalDimensions
	}
	return &localProvider{dimensions: cfg.Dimensions}, nil
}

func init() {
	Register("local", createLocalFactory)
}
