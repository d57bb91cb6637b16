// Package llm contains the language-model and embedding clients used by the
// query pipeline. Every network client is wrapped in a circuit breaker.
package llm

import "context"

// GenerateRequest is a single grounded generation call: a fixed system
// persona, the user prompt and the sampling bounds.
type GenerateRequest struct {
	SystemPrompt string
	Prompt       string
	MaxTokens    int
	Temperature  float64
}

// TextGenerator is the interface for LLM text generation.
type TextGenerator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
	GetModel() string
}

// EmbeddingGenerator is the interface for generating vector embeddings.
// Implementations must be deterministic for identical input.
type EmbeddingGenerator interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	GetModel() string
}

// HealthChecker is implemented by clients that can verify their backend
// without spending a generation call.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

const (
	defaultMaxTokens   = 1000
	defaultTemperature = 0.7
)

// withDefaults fills zero-valued sampling bounds.
func (r GenerateRequest) withDefaults() GenerateRequest {
	if r.MaxTokens <= 0 {
		r.MaxTokens = defaultMaxTokens
	}
	if r.Temperature < 0 {
		r.Temperature = defaultTemperature
	}
	return r
}
