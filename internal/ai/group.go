package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/scribe/internal/model"
)

type GeneratorEntry struct {
	Name      string
	Generator IGenerator
}

type EmbedderEntry struct {
	Name     string
	Embedder IEmbedder
}

// shouldFailover reports whether the next entry may succeed where this one
// failed. Invalid input and policy rejections are not provider specific
// outages, so they end the chain.
func shouldFailover(err error) bool {
	return !errors.Is(err, ErrInvalidInput) && !errors.Is(err, ErrProviderRejected) && !errors.Is(err, context.Canceled)
}

type groupGenerator struct {
	items []GeneratorEntry
}

func NewGroupGenerator(items []GeneratorEntry) IGenerator {
	if len(items) == 0 {
		return nil
	}
	if len(items) == 1 {
		return items[0].Generator
	}
	return &groupGenerator{items: items}
}

func (g *groupGenerator) Generate(ctx context.Context, prompt string, params model.GenerationParams) (string, error) {
	var lastErr error
	for i, item := range g.items {
		if item.Generator == nil {
			continue
		}
		res, err := item.Generator.Generate(ctx, prompt, params)
		if err == nil {
			return res, nil
		}
		lastErr = err
		logutil.GetLogger(ctx).Warn("generator failed", zap.Int("index", i), zap.String("name", item.Name), zap.Error(err))
		if !shouldFailover(err) {
			break
		}
	}
	if lastErr == nil {
		return "", fmt.Errorf("generator not configured: %w", ErrProviderUnavailable)
	}
	return "", lastErr
}

func (g *groupGenerator) ModelName() string {
	names := make([]string, 0, len(g.items))
	for _, item := range g.items {
		if item.Name == "" {
			continue
		}
		names = append(names, item.Name)
	}
	return strings.Join(names, "|")
}

type groupEmbedder struct {
	items []EmbedderEntry
}

// NewGroupEmbedder chains embedders for failover. Vectors from different
// models live in different spaces, so every entry must report the same
// model and task type.
func NewGroupEmbedder(items []EmbedderEntry) (IEmbedder, error) {
	if len(items) == 0 {
		return nil, nil
	}
	first := items[0].Embedder
	for i, item := range items[1:] {
		if item.Embedder == nil || first == nil {
			continue
		}
		if item.Embedder.ModelName() != first.ModelName() || item.Embedder.TaskType() != first.TaskType() {
			return nil, fmt.Errorf("embedder %d (%s) uses model %q, group expects %q: %w",
				i+1, item.Name, item.Embedder.ModelName(), first.ModelName(), ErrInvalidInput)
		}
	}
	if len(items) == 1 {
		return first, nil
	}
	return &groupEmbedder{items: items}, nil
}

func (g *groupEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var lastErr error
	for i, item := range g.items {
		if item.Embedder == nil {
			continue
		}
		res, err := item.Embedder.Embed(ctx, text)
		if err == nil {
			return res, nil
		}
		lastErr = err
		logutil.GetLogger(ctx).Warn("embedder failed", zap.Int("index", i), zap.String("name", item.Name), zap.Error(err))
		if !shouldFailover(err) {
			break
		}
	}
	if lastErr == nil {
		return nil, fmt.Errorf("embedder not configured: %w", ErrProviderUnavailable)
	}
	return nil, lastErr
}

// ModelName is the model every entry shares.
func (g *groupEmbedder) ModelName() string {
	for _, item := range g.items {
		if item.Embedder != nil {
			return item.Embedder.ModelName()
		}
	}
	return ""
}

func (g *groupEmbedder) TaskType() string {
	for _, item := range g.items {
		if item.Embedder != nil {
			return item.Embedder.TaskType()
		}
	}
	return ""
}
