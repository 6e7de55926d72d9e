package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/scribe/internal/model"
	appErr "github.com/xxxsen/scribe/internal/pkg/errors"
)

type fakeGenProvider struct {
	res   string
	err   error
	calls int
	last  model.GenerationParams
}

func (f *fakeGenProvider) Name() string {
	return "fake"
}

func (f *fakeGenProvider) Generate(ctx context.Context, modelName string, prompt string, params model.GenerationParams) (string, error) {
	f.calls++
	f.last = params
	return f.res, f.err
}

type fakeEmbedProvider struct {
	vec   []float32
	err   error
	calls int
	task  string
}

func (f *fakeEmbedProvider) Name() string {
	return "fake"
}

func (f *fakeEmbedProvider) Embed(ctx context.Context, modelName string, text string, taskType string) ([]float32, error) {
	f.calls++
	f.task = taskType
	return f.vec, f.err
}

func TestGeneratorValidatesBeforeCalling(t *testing.T) {
	p := &fakeGenProvider{res: "ok"}
	g := NewGenerator(p, "m", GeneratorOptions{MaxOutputTokensLimit: 100})

	_, err := g.Generate(context.Background(), "  ", model.GenerationParams{})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = g.Generate(context.Background(), "hello", model.GenerationParams{Temperature: model.Float64Ptr(2)})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = g.Generate(context.Background(), "hello", model.GenerationParams{MaxOutputTokens: model.IntPtr(101)})
	require.ErrorIs(t, err, ErrInvalidInput)
	require.Equal(t, 0, p.calls)
}

func TestGeneratorAppliesDefaults(t *testing.T) {
	p := &fakeGenProvider{res: "  answer \n"}
	g := NewGenerator(p, "m", GeneratorOptions{Defaults: model.GenerationParams{
		Temperature:     model.Float64Ptr(0.1),
		MaxOutputTokens: model.IntPtr(256),
	}})

	res, err := g.Generate(context.Background(), "hello", model.GenerationParams{Temperature: model.Float64Ptr(0.5)})
	require.NoError(t, err)
	require.Equal(t, "answer", res)
	require.Equal(t, 0.5, *p.last.Temperature)
	require.Equal(t, 256, *p.last.MaxOutputTokens)
	require.Equal(t, "m", g.ModelName())
}

func TestGeneratorClassifiesFailures(t *testing.T) {
	p := &fakeGenProvider{err: errors.New("connection refused")}
	g := NewGenerator(p, "m", GeneratorOptions{})
	_, err := g.Generate(context.Background(), "hello", model.GenerationParams{})
	require.ErrorIs(t, err, ErrProviderUnavailable)

	p = &fakeGenProvider{res: "   "}
	g = NewGenerator(p, "m", GeneratorOptions{})
	_, err = g.Generate(context.Background(), "hello", model.GenerationParams{})
	require.ErrorIs(t, err, ErrProviderUnavailable)

	p = &fakeGenProvider{err: fmt.Errorf("blocked: %w", ErrProviderRejected)}
	g = NewGenerator(p, "m", GeneratorOptions{})
	_, err = g.Generate(context.Background(), "hello", model.GenerationParams{})
	require.ErrorIs(t, err, ErrProviderRejected)
	require.False(t, errors.Is(err, ErrProviderUnavailable))
}

func TestEmbedderValidatesInput(t *testing.T) {
	p := &fakeEmbedProvider{vec: []float32{1, 2}}
	e := NewEmbedder(p, "m", EmbedderOptions{TaskType: "RETRIEVAL_QUERY", MaxInputChars: 5})

	_, err := e.Embed(context.Background(), "")
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = e.Embed(context.Background(), "toolong")
	require.ErrorIs(t, err, ErrInvalidInput)
	require.Equal(t, 0, p.calls)

	vec, err := e.Embed(context.Background(), "short")
	require.NoError(t, err)
	require.Equal(t, []float32{1, 2}, vec)
	require.Equal(t, "RETRIEVAL_QUERY", p.task)
}

func TestEmbedderEmptyVectorIsUnavailable(t *testing.T) {
	e := NewEmbedder(&fakeEmbedProvider{}, "m", EmbedderOptions{})
	_, err := e.Embed(context.Background(), "text")
	require.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestClassifyError(t *testing.T) {
	require.NoError(t, ClassifyError(nil))
	require.ErrorIs(t, ClassifyError(errors.New("x")), appErr.ErrUnavailable)
	require.ErrorIs(t, ClassifyError(context.DeadlineExceeded), appErr.ErrUnavailable)
	require.ErrorIs(t, ClassifyError(context.DeadlineExceeded), context.DeadlineExceeded)

	rejected := fmt.Errorf("policy: %w", ErrProviderRejected)
	require.Equal(t, rejected, ClassifyError(rejected))
	invalid := appErr.NewFieldError("temperature", "bad")
	require.Equal(t, error(invalid), ClassifyError(invalid))
}

func TestStatusError(t *testing.T) {
	base := errors.New("failed")
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrProviderUnavailable},
		{http.StatusRequestTimeout, ErrProviderUnavailable},
		{http.StatusInternalServerError, ErrProviderUnavailable},
		{http.StatusServiceUnavailable, ErrProviderUnavailable},
		{http.StatusTooManyRequests, ErrProviderRejected},
		{http.StatusBadRequest, ErrProviderRejected},
		{http.StatusForbidden, ErrProviderRejected},
	}
	for _, tc := range cases {
		err := statusError(tc.status, base)
		require.ErrorIs(t, err, tc.want, "status %d", tc.status)
		require.ErrorIs(t, err, base)
	}
}

type scriptedGenerator struct {
	res   string
	err   error
	calls int
}

func (s *scriptedGenerator) Generate(ctx context.Context, prompt string, params model.GenerationParams) (string, error) {
	s.calls++
	return s.res, s.err
}

func (s *scriptedGenerator) ModelName() string {
	return "scripted"
}

func TestGroupGeneratorFailsOver(t *testing.T) {
	first := &scriptedGenerator{err: fmt.Errorf("down: %w", ErrProviderUnavailable)}
	second := &scriptedGenerator{res: "ok"}
	g := NewGroupGenerator([]GeneratorEntry{{Name: "a", Generator: first}, {Name: "b", Generator: second}})

	res, err := g.Generate(context.Background(), "hello", model.GenerationParams{})
	require.NoError(t, err)
	require.Equal(t, "ok", res)
	require.Equal(t, 1, first.calls)
	require.Equal(t, 1, second.calls)
	require.Equal(t, "a|b", g.ModelName())
}

func TestGroupGeneratorStopsOnRejection(t *testing.T) {
	first := &scriptedGenerator{err: fmt.Errorf("quota: %w", ErrProviderRejected)}
	second := &scriptedGenerator{res: "ok"}
	g := NewGroupGenerator([]GeneratorEntry{{Name: "a", Generator: first}, {Name: "b", Generator: second}})

	_, err := g.Generate(context.Background(), "hello", model.GenerationParams{})
	require.ErrorIs(t, err, ErrProviderRejected)
	require.Equal(t, 0, second.calls)
}

func TestGroupEmbedderFailsOver(t *testing.T) {
	first := NewEmbedder(&fakeEmbedProvider{err: errors.New("reset")}, "text-embedding-004", EmbedderOptions{})
	secondProvider := &fakeEmbedProvider{vec: []float32{1}}
	second := NewEmbedder(secondProvider, "text-embedding-004", EmbedderOptions{})
	e, err := NewGroupEmbedder([]EmbedderEntry{{Name: "a", Embedder: first}, {Name: "b", Embedder: second}})
	require.NoError(t, err)
	require.Equal(t, "text-embedding-004", e.ModelName())

	vec, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, []float32{1}, vec)
	require.Equal(t, 1, secondProvider.calls)

	none, err := NewGroupEmbedder(nil)
	require.NoError(t, err)
	require.Nil(t, none)
	single, err := NewGroupEmbedder([]EmbedderEntry{{Name: "a", Embedder: first}})
	require.NoError(t, err)
	require.Equal(t, first, single)
}

func TestGroupEmbedderRejectsMixedVectorSpaces(t *testing.T) {
	a := NewEmbedder(&fakeEmbedProvider{}, "text-embedding-004", EmbedderOptions{TaskType: "RETRIEVAL_QUERY"})
	b := NewEmbedder(&fakeEmbedProvider{}, "text-embedding-3-small", EmbedderOptions{TaskType: "RETRIEVAL_QUERY"})
	c := NewEmbedder(&fakeEmbedProvider{}, "text-embedding-004", EmbedderOptions{TaskType: "RETRIEVAL_DOCUMENT"})

	_, err := NewGroupEmbedder([]EmbedderEntry{{Name: "a", Embedder: a}, {Name: "b", Embedder: b}})
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = NewGroupEmbedder([]EmbedderEntry{{Name: "a", Embedder: a}, {Name: "c", Embedder: c}})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestHashEmbedProvider(t *testing.T) {
	p := NewHashEmbedProvider(64)
	a, err := p.Embed(context.Background(), "", "Fireball deals fire damage", "")
	require.NoError(t, err)
	b, err := p.Embed(context.Background(), "", "fireball DEALS fire damage!", "")
	require.NoError(t, err)
	require.Len(t, a, 64)
	require.Equal(t, a, b)

	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	require.InDelta(t, 1.0, norm, 1e-5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Embed(ctx, "", "x", "")
	require.ErrorIs(t, err, context.Canceled)

	p, err = NewEmbedProvider("HASH", map[string]interface{}{"dimension": 32})
	require.NoError(t, err)
	v, err := p.Embed(context.Background(), "", "x", "")
	require.NoError(t, err)
	require.Len(t, v, 32)
}

func TestProviderRegistry(t *testing.T) {
	_, err := NewGenProvider("", nil)
	require.Error(t, err)
	_, err = NewGenProvider("nope", nil)
	require.Error(t, err)
	_, err = NewEmbedProvider("nope", nil)
	require.Error(t, err)
}

type blockingGenerator struct{}

func (blockingGenerator) Generate(ctx context.Context, prompt string, params model.GenerationParams) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (blockingGenerator) ModelName() string {
	return "blocking"
}

func TestManagerTimeoutIsUnavailable(t *testing.T) {
	m := NewManager(blockingGenerator{}, nil, ManagerConfig{GenerateTimeout: 20 * time.Millisecond})
	start := time.Now()
	_, err := m.Generate(context.Background(), "hello", model.GenerationParams{})
	require.ErrorIs(t, err, ErrProviderUnavailable)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), 2*time.Second)

	_, err = m.Embed(context.Background(), "hello")
	require.ErrorIs(t, err, ErrProviderUnavailable)
	require.Equal(t, "blocking", m.Generator().ModelName())
	require.Equal(t, "", m.ModelName())
}

func TestChunkerSplitsOnHeadings(t *testing.T) {
	c := NewChunker(400, 80)
	md := "# Spells\n\nFireball deals damage.\n\n## Fireball\n\nA bright streak flashes.\n"
	chunks := c.Chunk(context.Background(), "phb.pdf", model.IntPtr(10), md)
	require.Len(t, chunks, 2)
	require.Equal(t, "Spells\nFireball deals damage.", chunks[0].Text)
	require.Equal(t, "Fireball\nA bright streak flashes.", chunks[1].Text)
	require.Equal(t, "phb.pdf#00010#0000", chunks[0].ID)
	require.Equal(t, "phb.pdf#00010#0001", chunks[1].ID)
	require.Equal(t, 10, *chunks[1].Page)

	again := c.Chunk(context.Background(), "phb.pdf", model.IntPtr(10), md)
	require.Equal(t, chunks, again)
}

func TestChunkerSplitsBySize(t *testing.T) {
	c := NewChunker(5, 2)
	chunks := c.Chunk(context.Background(), "srd.pdf", nil, "one two three\n\nfour five six\n\nseven eight\n")
	require.Len(t, chunks, 2)
	require.Equal(t, "one two three", chunks[0].Text)
	require.Equal(t, "four five six\n\nseven eight", chunks[1].Text)
	require.Equal(t, "srd.pdf#-#0000", chunks[0].ID)
	require.Nil(t, chunks[0].Page)
}

func newOpenRouter(t *testing.T, handler http.HandlerFunc) IGenProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	p, err := NewGenProvider("openrouter", map[string]interface{}{
		"api_key":  "k",
		"base_url": srv.URL,
	})
	require.NoError(t, err)
	return p
}

func TestOpenRouterGenerate(t *testing.T) {
	var got openrouterRequest
	p := newOpenRouter(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":" 8d6 "},"finish_reason":"stop"}]}`))
	})

	res, err := p.Generate(context.Background(), "gpt", "prompt", model.GenerationParams{
		Temperature:   model.Float64Ptr(0.2),
		StopSequences: []string{"END"},
	})
	require.NoError(t, err)
	require.Equal(t, "8d6", res)
	require.Equal(t, "gpt", got.Model)
	require.Equal(t, 0.2, *got.Temperature)
	require.Equal(t, []string{"END"}, got.Stop)
	require.Equal(t, "prompt", got.Messages[0].Content)
}

func TestOpenAIGenerateSendsExplicitZeroSampling(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"},"finish_reason":"stop"}]}`))
	}))
	t.Cleanup(srv.Close)
	p, err := NewGenProvider("openai", map[string]interface{}{
		"api_key":  "k",
		"base_url": srv.URL,
	})
	require.NoError(t, err)

	res, err := p.Generate(context.Background(), "gpt", "hi", model.GenerationParams{
		Temperature: model.Float64Ptr(0),
		TopP:        model.Float64Ptr(0),
	})
	require.NoError(t, err)
	require.Equal(t, "ok", res)
	for _, field := range []string{"temperature", "top_p"} {
		require.Contains(t, got, field)
		v, ok := got[field].(float64)
		require.True(t, ok, field)
		require.Greater(t, v, 0.0, field)
		require.Less(t, v, 1e-30, field)
	}

	_, err = p.Generate(context.Background(), "gpt", "hi", model.GenerationParams{Temperature: model.Float64Ptr(0.7)})
	require.NoError(t, err)
	require.InDelta(t, 0.7, got["temperature"], 1e-6)
	require.NotContains(t, got, "top_p")
}

func TestOpenRouterErrors(t *testing.T) {
	cases := []struct {
		status int
		body   string
		want   error
	}{
		{http.StatusTooManyRequests, `{"error":"quota"}`, ErrProviderRejected},
		{http.StatusServiceUnavailable, `{"error":"down"}`, ErrProviderUnavailable},
		{http.StatusOK, `{"choices":[{"message":{"content":""},"finish_reason":"content_filter"}]}`, ErrProviderRejected},
	}
	for _, tc := range cases {
		tc := tc
		p := newOpenRouter(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(tc.body))
		})
		_, err := p.Generate(context.Background(), "gpt", "prompt", model.GenerationParams{})
		require.ErrorIs(t, err, tc.want, "status %d", tc.status)
	}

	p, err := NewGenProvider("openrouter", map[string]interface{}{"base_url": "http://127.0.0.1:1"})
	require.NoError(t, err)
	_, err = p.Generate(context.Background(), "gpt", "prompt", model.GenerationParams{})
	require.ErrorIs(t, err, ErrProviderUnavailable)
	require.Contains(t, err.Error(), "api key")
}
