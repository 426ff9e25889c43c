// Package llm wraps the language model and embedding backends used by the
// analysis stage and semantic dedup.
package llm

import (
	"context"
	"log/slog"
	"strings"

	"github.com/TobiSchelling/lex/internal/config"
)

// Provider is the interface for LLM providers.
type Provider interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
	IsConfigured() bool
}

// Embedder is the interface for generating embeddings.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// CreateProvider returns the configured provider, falling back to the other
// backend when the preferred one is unavailable. It returns nil if neither
// can be used.
func CreateProvider(cfg config.Summarization, logger *slog.Logger) Provider {
	if logger == nil {
		logger = slog.Default()
	}
	ollama := NewOllamaProvider(cfg.Model, cfg.OllamaURL)
	openai := NewOpenAIProvider(cfg.OpenAIModel, config.Env(cfg.APIKeyEnv), cfg.OpenAIBaseURL)

	candidates := []struct {
		name  string
		model string
		p     Provider
	}{
		{"ollama", cfg.Model, ollama},
		{"openai", cfg.OpenAIModel, openai},
	}
	if strings.ToLower(cfg.Provider) == "openai" {
		candidates[0], candidates[1] = candidates[1], candidates[0]
	}

	for i, c := range candidates {
		if c.p.IsConfigured() {
			logger.Info("using LLM provider", "provider", c.name, "model", c.model)
			return c.p
		}
		if i == 0 {
			logger.Warn("preferred LLM provider unavailable, trying fallback", "provider", c.name)
		}
	}

	logger.Error("no LLM provider available; check Ollama is running or set the API key", "api_key_env", cfg.APIKeyEnv)
	return nil
}

// CreateEmbedder returns the configured embedder, or nil when embeddings are
// disabled or the backend has no credentials.
func CreateEmbedder(cfg config.Summarization, logger *slog.Logger) Embedder {
	if logger == nil {
		logger = slog.Default()
	}
	switch strings.ToLower(cfg.Embedder) {
	case "", "none":
		return nil
	case "openai":
		key := config.Env(cfg.APIKeyEnv)
		if key == "" {
			logger.Warn("openai embedder selected but API key is missing", "api_key_env", cfg.APIKeyEnv)
			return nil
		}
		return NewOpenAIEmbedder(cfg.OpenAIEmbed, key, cfg.OpenAIBaseURL)
	default:
		return NewOllamaEmbedder(cfg.EmbeddingModel, cfg.OllamaURL)
	}
}
