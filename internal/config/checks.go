package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Credential and address checks. The availability gate runs these at probe
// time and turns a non-nil result into a configuration fault.

// ErrMissingCredential is returned when a required secret is empty.
var ErrMissingCredential = errors.New("missing credential")

// allowedDSNSchemes are the URI schemes accepted for the postgres engine.
var allowedDSNSchemes = []string{"postgres://", "postgresql://"}

// CheckStorage validates the knowledge store address and credentials.
func (c *Config) CheckStorage() error {
	switch c.Storage.Engine {
	case "sqlite":
		if strings.TrimSpace(c.Storage.DataPath) == "" {
			return errors.New("storage.data_path is empty")
		}
		return nil
	case "postgres":
		dsn := strings.TrimSpace(c.Storage.DSN)
		if dsn == "" {
			return fmt.Errorf("storage.dsn: %w", ErrMissingCredential)
		}
		if !hasAnyPrefix(dsn, allowedDSNSchemes) {
			return fmt.Errorf("storage.dsn must start with one of %s", strings.Join(allowedDSNSchemes, ", "))
		}
		u, err := url.Parse(dsn)
		if err != nil {
			return fmt.Errorf("storage.dsn is not a valid URI: %w", err)
		}
		if u.Host == "" {
			return errors.New("storage.dsn has no host")
		}
		if u.User.Username() == "" && c.Storage.Username == "" {
			return fmt.Errorf("storage username: %w", ErrMissingCredential)
		}
		return nil
	default:
		return fmt.Errorf("unsupported storage engine %q", c.Storage.Engine)
	}
}

// PostgresDSN returns the configured DSN with Username/Password merged in
// when they are set separately.
func (c *Config) PostgresDSN() string {
	dsn := c.Storage.DSN
	if c.Storage.Username == "" {
		return dsn
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return dsn
	}
	if c.Storage.Password != "" {
		u.User = url.UserPassword(c.Storage.Username, c.Storage.Password)
	} else {
		u.User = url.User(c.Storage.Username)
	}
	return u.String()
}

// CheckLLM validates the language-model provider settings.
func (c *Config) CheckLLM() error {
	switch c.LLM.Provider {
	case "ollama":
		return checkHTTPURL("llm.ollama_url", c.LLM.OllamaURL)
	case "openai":
		if c.LLM.OpenAIAPIKey == "" {
			return fmt.Errorf("llm.openai_api_key: %w", ErrMissingCredential)
		}
		return nil
	case "anthropic":
		if c.LLM.AnthropicAPIKey == "" {
			return fmt.Errorf("llm.anthropic_api_key: %w", ErrMissingCredential)
		}
		return nil
	default:
		return fmt.Errorf("unsupported llm provider %q", c.LLM.Provider)
	}
}

// CheckEmbedding validates the embedding provider settings.
func (c *Config) CheckEmbedding() error {
	if c.Embedding.Dimension < 1 {
		return fmt.Errorf("embedding.dimension must be positive, got %d", c.Embedding.Dimension)
	}
	switch c.Embedding.Provider {
	case "ollama":
		return checkHTTPURL("llm.ollama_url", c.LLM.OllamaURL)
	case "openai":
		if c.LLM.OpenAIAPIKey == "" {
			return fmt.Errorf("llm.openai_api_key: %w", ErrMissingCredential)
		}
		return nil
	case "hugot":
		if c.Embedding.ModelDir == "" {
			return errors.New("embedding.model_dir is empty")
		}
		return nil
	default:
		return fmt.Errorf("unsupported embedding provider %q", c.Embedding.Provider)
	}
}

func checkHTTPURL(field, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is empty", field)
	}
	if !hasAnyPrefix(raw, []string{"http://", "https://"}) {
		return fmt.Errorf("%s must be an http(s) URL, got %q", field, raw)
	}
	return nil
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
