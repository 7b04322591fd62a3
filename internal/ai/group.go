package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// GeneratorEntry is one named language-model backend of the gateway.
type GeneratorEntry struct {
	Name      string
	Generator IGenerator
}

type failoverGenerator struct {
	items []GeneratorEntry
}

// NewGroupGenerator tries the entries in configuration order and returns the
// first answer. When every entry fails the error joins all provider errors so
// the caller can see why each one was rejected. Nil when items is empty.
func NewGroupGenerator(items []GeneratorEntry) IGenerator {
	if len(items) == 0 {
		return nil
	}
	return &failoverGenerator{items: items}
}

func (g *failoverGenerator) Generate(ctx context.Context, req *GenerateRequest) (string, error) {
	errs := make([]error, 0, len(g.items))
	for _, item := range g.items {
		res, err := item.Generator.Generate(ctx, req)
		if err == nil {
			return res, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", item.Name, err))
		logutil.GetLogger(ctx).Warn("llm provider failed, trying next",
			zap.String("provider", item.Name), zap.Error(err))
		if ctx.Err() != nil {
			break
		}
	}
	return "", errors.Join(errs...)
}
