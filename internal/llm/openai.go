package llm

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

func newOpenAIClient(apiKey, baseURL string) *openai.Client {
	if baseURL != "" {
		cc := openai.DefaultConfig(apiKey)
		cc.BaseURL = baseURL
		return openai.NewClientWithConfig(cc)
	}
	return openai.NewClient(apiKey)
}

// OpenAIProvider uses the OpenAI chat completions API or any compatible
// endpoint.
type OpenAIProvider struct {
	Model  string
	apiKey string
	client *openai.Client
}

// NewOpenAIProvider creates a new OpenAI provider. baseURL may be empty.
func NewOpenAIProvider(model, apiKey, baseURL string) *OpenAIProvider {
	return &OpenAIProvider{
		Model:  model,
		apiKey: apiKey,
		client: newOpenAIClient(apiKey, baseURL),
	}
}

// IsConfigured checks if the API key is set.
func (o *OpenAIProvider) IsConfigured() bool {
	return o.apiKey != "" && o.Model != ""
}

// Generate sends a prompt and returns the first choice.
func (o *OpenAIProvider) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if !o.IsConfigured() {
		return "", errors.New("OpenAI API key not configured")
	}
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   maxTokens,
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices in OpenAI response")
	}
	return resp.Choices[0].Message.Content, nil
}

// OpenAIEmbedder generates embeddings with the OpenAI embeddings API.
type OpenAIEmbedder struct {
	Model  string
	client *openai.Client
}

// NewOpenAIEmbedder creates a new OpenAI embedder. baseURL may be empty.
func NewOpenAIEmbedder(model, apiKey, baseURL string) *OpenAIEmbedder {
	return &OpenAIEmbedder{Model: model, client: newOpenAIClient(apiKey, baseURL)}
}

// Embed generates embeddings for the given texts, preserving input order.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.Model),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embed returned %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	out := make([][]float64, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("openai embed returned out-of-range index %d", d.Index)
		}
		vec := make([]float64, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float64(v)
		}
		out[d.Index] = vec
	}
	return out, nil
}
