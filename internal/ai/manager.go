package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/xxxsen/scribe/internal/model"
)

type ManagerConfig struct {
	EmbedTimeout    time.Duration
	GenerateTimeout time.Duration
}

// Manager bounds every remote call with its configured timeout. A call
// that runs out of time fails as ErrProviderUnavailable. It is itself the
// embedder handed to the retriever.
type Manager struct {
	generator IGenerator
	embedder  IEmbedder
	cfg       ManagerConfig
}

func NewManager(generator IGenerator, embedder IEmbedder, cfg ManagerConfig) *Manager {
	return &Manager{
		generator: generator,
		embedder:  embedder,
		cfg:       cfg,
	}
}

func (m *Manager) Embed(ctx context.Context, text string) ([]float32, error) {
	if m.embedder == nil {
		return nil, fmt.Errorf("embedder not configured: %w", ErrProviderUnavailable)
	}
	ctx, cancel := withTimeout(ctx, m.cfg.EmbedTimeout)
	defer cancel()
	res, err := m.embedder.Embed(ctx, text)
	if err != nil {
		return nil, ClassifyError(err)
	}
	return res, nil
}

func (m *Manager) Generate(ctx context.Context, prompt string, params model.GenerationParams) (string, error) {
	if m.generator == nil {
		return "", fmt.Errorf("generator not configured: %w", ErrProviderUnavailable)
	}
	ctx, cancel := withTimeout(ctx, m.cfg.GenerateTimeout)
	defer cancel()
	res, err := m.generator.Generate(ctx, prompt, params)
	if err != nil {
		return "", ClassifyError(err)
	}
	return res, nil
}

func (m *Manager) ModelName() string {
	if m.embedder == nil {
		return ""
	}
	return m.embedder.ModelName()
}

func (m *Manager) TaskType() string {
	if m.embedder == nil {
		return ""
	}
	return m.embedder.TaskType()
}

func (m *Manager) GeneratorModelName() string {
	if m.generator == nil {
		return ""
	}
	return m.generator.ModelName()
}

// Generator exposes the timeout-bounded generation side of the manager.
func (m *Manager) Generator() IGenerator {
	return managerGenerator{m: m}
}

type managerGenerator struct {
	m *Manager
}

func (g managerGenerator) Generate(ctx context.Context, prompt string, params model.GenerationParams) (string, error) {
	return g.m.Generate(ctx, prompt, params)
}

func (g managerGenerator) ModelName() string {
	return g.m.GeneratorModelName()
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
