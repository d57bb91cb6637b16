package llm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/scrypster/rallygraph/internal/config"
)

// NewTextGenerator creates the TextGenerator selected by cfg.LLM.Provider.
// It does not contact the provider; reachability is checked by the
// availability gate.
func NewTextGenerator(cfg *config.Config, logger *zap.Logger) (TextGenerator, error) {
	switch cfg.LLM.Provider {
	case "openai":
		return NewOpenAIClient(OpenAIConfig{
			APIKey:  cfg.LLM.OpenAIAPIKey,
			Model:   cfg.LLM.OpenAIModel,
			BaseURL: cfg.LLM.OpenAIBaseURL,
			Timeout: cfg.LLM.Timeout,
			Logger:  logger,
		}), nil
	case "anthropic":
		return NewAnthropicClient(AnthropicConfig{
			APIKey:  cfg.LLM.AnthropicAPIKey,
			Model:   cfg.LLM.AnthropicModel,
			Timeout: cfg.LLM.Timeout,
			Logger:  logger,
		}), nil
	case "ollama", "":
		return NewOllamaClient(OllamaConfig{
			BaseURL: cfg.LLM.OllamaURL,
			Model:   cfg.LLM.OllamaModel,
			Timeout: cfg.LLM.Timeout,
			Logger:  logger,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.LLM.Provider)
	}
}

// NewEmbeddingGenerator creates the EmbeddingGenerator selected by
// cfg.Embedding.Provider. The hugot provider loads its model on the first
// Embed call, which may block on a first-time download.
func NewEmbeddingGenerator(cfg *config.Config, logger *zap.Logger) (EmbeddingGenerator, error) {
	switch cfg.Embedding.Provider {
	case "openai":
		return NewOpenAIEmbeddingClient(OpenAIEmbeddingConfig{
			APIKey:     cfg.LLM.OpenAIAPIKey,
			Model:      cfg.Embedding.Model,
			BaseURL:    cfg.LLM.OpenAIBaseURL,
			Dimensions: cfg.Embedding.Dimension,
			Logger:     logger,
		}), nil
	case "ollama", "":
		return NewOllamaClient(OllamaConfig{
			BaseURL: cfg.LLM.OllamaURL,
			Model:   cfg.Embedding.Model,
			Logger:  logger,
		}), nil
	case "hugot":
		hc := HugotConfig{Model: cfg.Embedding.Model, ModelDir: cfg.Embedding.ModelDir}
		return NewLazyEmbedder(cfg.Embedding.Model, func() (EmbeddingGenerator, error) {
			e, err := NewHugotEmbedder(hc)
			if err != nil {
				return nil, err
			}
			return e, nil
		}), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %q", cfg.Embedding.Provider)
	}
}
