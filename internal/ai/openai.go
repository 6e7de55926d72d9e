package ai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/xxxsen/scribe/internal/model"
)

type openAIConfig struct {
	APIKey    string `json:"api_key"`
	APIKeyEnv string `json:"api_key_env"`
	BaseURL   string `json:"base_url"`
}

type openAIProvider struct {
	client *openai.Client
}

func newOpenAIProvider(args interface{}) (*openAIProvider, error) {
	cfg := &openAIConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	apiKey := resolveAPIKey(cfg.APIKey, cfg.APIKeyEnv)
	if apiKey == "" {
		return &openAIProvider{}, nil
	}
	clientCfg := openai.DefaultConfig(apiKey)
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &openAIProvider{client: openai.NewClientWithConfig(clientCfg)}, nil
}

func (p *openAIProvider) Name() string {
	return "openai"
}

func (p *openAIProvider) Generate(ctx context.Context, modelName string, prompt string, params model.GenerationParams) (string, error) {
	if p.client == nil {
		return "", fmt.Errorf("openai api key not configured: %w", ErrProviderUnavailable)
	}
	req := openai.ChatCompletionRequest{
		Model: modelName,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Stop: params.StopSequences,
	}
	if params.Temperature != nil {
		req.Temperature = samplingValue(*params.Temperature)
	}
	if params.TopP != nil {
		req.TopP = samplingValue(*params.TopP)
	}
	if params.MaxOutputTokens != nil {
		req.MaxTokens = *params.MaxOutputTokens
	}
	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai response has no choices")
	}
	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonContentFilter {
		return "", fmt.Errorf("openai content filter: %w", ErrProviderRejected)
	}
	return strings.TrimSpace(choice.Message.Content), nil
}

func (p *openAIProvider) Embed(ctx context.Context, modelName string, text string, _ string) ([]float32, error) {
	if p.client == nil {
		return nil, fmt.Errorf("openai api key not configured: %w", ErrProviderUnavailable)
	}
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(modelName),
	})
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai response has no embeddings")
	}
	return resp.Data[0].Embedding, nil
}

// samplingValue converts a sampling parameter for the request. The client
// omits zero floats, so an explicit 0 is sent as the smallest positive value.
func samplingValue(v float64) float32 {
	if v == 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(v)
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return statusError(apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return statusError(reqErr.HTTPStatusCode, err)
	}
	return ClassifyError(err)
}

func createOpenAIFactory(args interface{}) (IGenProvider, error) {
	return newOpenAIProvider(args)
}

func createOpenAIEmbedFactory(args interface{}) (IEmbedProvider, error) {
	return newOpenAIProvider(args)
}

func init() {
	Register("openai", createOpenAIFactory)
	RegisterEmbed("openai", createOpenAIEmbedFactory)
}
