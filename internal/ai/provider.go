package ai

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/xxxsen/scribe/internal/model"
)

type IGenProvider interface {
	Name() string
	Generate(ctx context.Context, model string, prompt string, params model.GenerationParams) (string, error)
}

type IEmbedProvider interface {
	Name() string
	Embed(ctx context.Context, model string, text string, taskType string) ([]float32, error)
}

type IGenerator interface {
	Generate(ctx context.Context, prompt string, params model.GenerationParams) (string, error)
	ModelName() string
}

// IEmbedder turns text into a vector. Vectors from different task types
// are not interchangeable, so caches key on TaskType as well as ModelName.
type IEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	ModelName() string
	TaskType() string
}

type GeneratorOptions struct {
	// MaxOutputTokensLimit is the model's output limit, 0 means unbounded.
	MaxOutputTokensLimit int
	Defaults             model.GenerationParams
}

type generator struct {
	provider IGenProvider
	model    string
	opts     GeneratorOptions
}

func NewGenerator(p IGenProvider, modelName string, opts GeneratorOptions) IGenerator {
	return &generator{provider: p, model: modelName, opts: opts}
}

func (g *generator) Generate(ctx context.Context, prompt string, params model.GenerationParams) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("empty prompt: %w", ErrInvalidInput)
	}
	if err := params.Validate(g.opts.MaxOutputTokensLimit); err != nil {
		return "", err
	}
	res, err := g.provider.Generate(ctx, g.model, prompt, params.WithDefaults(g.opts.Defaults))
	if err != nil {
		return "", ClassifyError(fmt.Errorf("%s generate: %w", g.provider.Name(), err))
	}
	text := strings.TrimSpace(res)
	if text == "" {
		return "", fmt.Errorf("%s: empty ai response: %w", g.provider.Name(), ErrProviderUnavailable)
	}
	return text, nil
}

func (g *generator) ModelName() string {
	return g.model
}

type EmbedderOptions struct {
	TaskType string
	// MaxInputChars rejects longer input before any remote call, 0 disables the check.
	MaxInputChars int
}

type embedder struct {
	provider IEmbedProvider
	model    string
	opts     EmbedderOptions
}

func NewEmbedder(p IEmbedProvider, modelName string, opts EmbedderOptions) IEmbedder {
	return &embedder{provider: p, model: modelName, opts: opts}
}

func (e *embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("empty embedding input: %w", ErrInvalidInput)
	}
	if e.opts.MaxInputChars > 0 && utf8.RuneCountInString(text) > e.opts.MaxInputChars {
		return nil, fmt.Errorf("embedding input exceeds %d chars: %w", e.opts.MaxInputChars, ErrInvalidInput)
	}
	res, err := e.provider.Embed(ctx, e.model, text, e.opts.TaskType)
	if err != nil {
		return nil, ClassifyError(fmt.Errorf("%s embed: %w", e.provider.Name(), err))
	}
	if len(res) == 0 {
		return nil, fmt.Errorf("%s: no embedding values returned: %w", e.provider.Name(), ErrProviderUnavailable)
	}
	return res, nil
}

func (e *embedder) ModelName() string {
	return e.model
}

func (e *embedder) TaskType() string {
	return e.opts.TaskType
}

type GenProviderFactory func(args interface{}) (IGenProvider, error)

type EmbedProviderFactory func(args interface{}) (IEmbedProvider, error)

var (
	genRegistry   = map[string]GenProviderFactory{}
	embedRegistry = map[string]EmbedProviderFactory{}
)

func Register(name string, factory GenProviderFactory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	genRegistry[key] = factory
}

func RegisterEmbed(name string, factory EmbedProviderFactory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	embedRegistry[key] = factory
}

func NewGenProvider(name string, args interface{}) (IGenProvider, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, fmt.Errorf("generation provider is required")
	}
	factory := genRegistry[key]
	if factory == nil {
		return nil, fmt.Errorf("unsupported generation provider: %s", name)
	}
	return factory(args)
}

func NewEmbedProvider(name string, args interface{}) (IEmbedProvider, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, fmt.Errorf("embedding provider is required")
	}
	factory := embedRegistry[key]
	if factory == nil {
		return nil, fmt.Errorf("unsupported embedding provider: %s", name)
	}
	return factory(args)
}
