// Package config provides configuration management for rallygraph.
// Values are resolved in three layers: built-in defaults, an optional YAML
// file, then environment variables with the RALLYGRAPH_ prefix.
//
// Credential problems (missing API keys, malformed graph URIs) are not load
// errors. They surface later as configuration faults when the affected
// subsystem is first probed, so the process can still start degraded.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for the rallygraph service.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Storage      StorageConfig      `yaml:"storage"`
	LLM          LLMConfig          `yaml:"llm"`
	Embedding    EmbeddingConfig    `yaml:"embedding"`
	NER          NERConfig          `yaml:"ner"`
	Retrieval    RetrievalConfig    `yaml:"retrieval"`
	Availability AvailabilityConfig `yaml:"availability"`
	Security     SecurityConfig     `yaml:"security"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port int    `yaml:"port"` // default: 6464
	Host string `yaml:"host"` // default: 127.0.0.1
}

// StorageConfig selects and locates the knowledge store.
type StorageConfig struct {
	Engine   string `yaml:"engine"`    // sqlite or postgres (default: sqlite)
	DataPath string `yaml:"data_path"` // sqlite directory (default: ./data)
	DSN      string `yaml:"dsn"`       // postgres connection string
	Username string `yaml:"username"`  // postgres credentials, merged into DSN when set
	Password string `yaml:"password"`
}

// LLMConfig contains language-model provider configuration.
type LLMConfig struct {
	Provider        string        `yaml:"provider"` // ollama, openai, anthropic (default: ollama)
	OllamaURL       string        `yaml:"ollama_url"`
	OllamaModel     string        `yaml:"ollama_model"`
	OpenAIAPIKey    string        `yaml:"openai_api_key"`
	OpenAIModel     string        `yaml:"openai_model"`
	OpenAIBaseURL   string        `yaml:"openai_base_url"`
	AnthropicAPIKey string        `yaml:"anthropic_api_key"`
	AnthropicModel  string        `yaml:"anthropic_model"`
	MaxTokens       int           `yaml:"max_tokens"`  // default: 1000
	Temperature     float64       `yaml:"temperature"` // default: 0.7
	Timeout         time.Duration `yaml:"timeout"`     // default: 60s
}

// EmbeddingConfig contains embedding provider configuration.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"`  // ollama, openai, hugot (default: ollama)
	Model     string `yaml:"model"`     // default: all-minilm
	Dimension int    `yaml:"dimension"` // fixed per deployment (default: 384)
	ModelDir  string `yaml:"model_dir"` // hugot model cache (default: ./models)
}

// NERConfig selects the generic named-entity recognizer.
type NERConfig struct {
	Backend  string `yaml:"backend"`   // heuristic or hugot (default: heuristic)
	Model    string `yaml:"model"`     // hugot token-classification model
	ModelDir string `yaml:"model_dir"` // default: ./models
}

// RetrievalConfig tunes the retrieval, ranking and context stages.
type RetrievalConfig struct {
	TopK             int           `yaml:"top_k"`              // aggregated results kept (default: 5)
	StrategyLimit    int           `yaml:"strategy_limit"`     // per-strategy result cap (default: 5)
	StrategyTimeout  time.Duration `yaml:"strategy_timeout"`   // default: 5s
	SemanticWeight   float64       `yaml:"semantic_weight"`    // default: 0.6
	EntityWeight     float64       `yaml:"entity_weight"`      // default: 0.4
	ScoreThreshold   float64       `yaml:"score_threshold"`    // default: 0.3; negative disables the threshold
	ExcerptChars     int           `yaml:"excerpt_chars"`      // default: 500
	RelatedItemLimit int           `yaml:"related_item_limit"` // default: 5
}

// AvailabilityConfig controls subsystem probing.
type AvailabilityConfig struct {
	NegativeTTL  time.Duration `yaml:"negative_ttl"`  // how long a failed probe is trusted (default: 30s)
	PositiveTTL  time.Duration `yaml:"positive_ttl"`  // how long a good probe is trusted (default: 5m)
	ProbeTimeout time.Duration `yaml:"probe_timeout"` // default: 5s
}

// SecurityConfig contains security and authentication settings.
type SecurityConfig struct {
	Mode     string `yaml:"mode"`      // development or production (default: development)
	APIToken string `yaml:"api_token"` // bearer token required in production
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error (default: info)
	Format string `yaml:"format"` // json or console (default: json)
}

// Default returns a Config populated with built-in defaults only.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 6464,
			Host: "127.0.0.1",
		},
		Storage: StorageConfig{
			Engine:   "sqlite",
			DataPath: "./data",
		},
		LLM: LLMConfig{
			Provider:       "ollama",
			OllamaURL:      "http://localhost:11434",
			OllamaModel:    "qwen2.5:7b",
			OpenAIModel:    "gpt-4o-mini",
			AnthropicModel: "claude-haiku-4-5-20251001",
			MaxTokens:      1000,
			Temperature:    0.7,
			Timeout:        60 * time.Second,
		},
		Embedding: EmbeddingConfig{
			Provider:  "ollama",
			Model:     "all-minilm",
			Dimension: 384,
			ModelDir:  "./models",
		},
		NER: NERConfig{
			Backend:  "heuristic",
			Model:    "KnightsAnalytics/distilbert-NER",
			ModelDir: "./models",
		},
		Retrieval: RetrievalConfig{
			TopK:             5,
			StrategyLimit:    5,
			StrategyTimeout:  5 * time.Second,
			SemanticWeight:   0.6,
			EntityWeight:     0.4,
			ScoreThreshold:   0.3,
			ExcerptChars:     500,
			RelatedItemLimit: 5,
		},
		Availability: AvailabilityConfig{
			NegativeTTL:  30 * time.Second,
			PositiveTTL:  5 * time.Minute,
			ProbeTimeout: 5 * time.Second,
		},
		Security: SecurityConfig{
			Mode: "development",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig resolves configuration from defaults, the YAML file at path
// (skipped when path is empty) and RALLYGRAPH_ environment variables, then
// validates the result.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects structurally invalid settings. It does not check
// credentials or reachability.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	switch c.Storage.Engine {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("storage.engine must be sqlite or postgres, got %q", c.Storage.Engine))
	}
	if c.Embedding.Dimension < 1 {
		errs = append(errs, fmt.Errorf("embedding.dimension must be positive, got %d", c.Embedding.Dimension))
	}
	if c.Retrieval.TopK < 1 {
		errs = append(errs, fmt.Errorf("retrieval.top_k must be at least 1, got %d", c.Retrieval.TopK))
	}
	if c.Retrieval.StrategyLimit < 1 {
		errs = append(errs, fmt.Errorf("retrieval.strategy_limit must be at least 1, got %d", c.Retrieval.StrategyLimit))
	}
	if c.Retrieval.SemanticWeight < 0 || c.Retrieval.EntityWeight < 0 {
		errs = append(errs, errors.New("retrieval weights must not be negative"))
	}
	if c.Retrieval.SemanticWeight+c.Retrieval.EntityWeight == 0 {
		errs = append(errs, errors.New("retrieval weights must not both be zero"))
	}
	if c.Retrieval.ScoreThreshold > 1 {
		errs = append(errs, fmt.Errorf("retrieval.score_threshold must not exceed 1, got %v", c.Retrieval.ScoreThreshold))
	}
	if c.LLM.MaxTokens < 1 {
		errs = append(errs, fmt.Errorf("llm.max_tokens must be positive, got %d", c.LLM.MaxTokens))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature must be within [0,2], got %v", c.LLM.Temperature))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// SQLitePath returns the database file used by the sqlite engine.
func (c *Config) SQLitePath() string {
	return strings.TrimRight(c.Storage.DataPath, "/") + "/rallygraph.db"
}

// applyEnv overlays RALLYGRAPH_ environment variables on cfg.
func applyEnv(cfg *Config) {
	cfg.Server.Port = getEnvInt("RALLYGRAPH_PORT", cfg.Server.Port)
	cfg.Server.Host = getEnv("RALLYGRAPH_HOST", cfg.Server.Host)

	cfg.Storage.Engine = getEnv("RALLYGRAPH_STORAGE_ENGINE", cfg.Storage.Engine)
	cfg.Storage.DataPath = getEnv("RALLYGRAPH_DATA_PATH", cfg.Storage.DataPath)
	cfg.Storage.DSN = getEnv("RALLYGRAPH_DATABASE_URL", cfg.Storage.DSN)
	cfg.Storage.Username = getEnv("RALLYGRAPH_DATABASE_USER", cfg.Storage.Username)
	cfg.Storage.Password = getEnv("RALLYGRAPH_DATABASE_PASSWORD", cfg.Storage.Password)

	cfg.LLM.Provider = getEnv("RALLYGRAPH_LLM_PROVIDER", cfg.LLM.Provider)
	cfg.LLM.OllamaURL = getEnv("RALLYGRAPH_OLLAMA_URL", cfg.LLM.OllamaURL)
	cfg.LLM.OllamaModel = getEnv("RALLYGRAPH_OLLAMA_MODEL", cfg.LLM.OllamaModel)
	cfg.LLM.OpenAIAPIKey = getEnv("RALLYGRAPH_OPENAI_API_KEY", cfg.LLM.OpenAIAPIKey)
	cfg.LLM.OpenAIModel = getEnv("RALLYGRAPH_OPENAI_MODEL", cfg.LLM.OpenAIModel)
	cfg.LLM.OpenAIBaseURL = getEnv("RALLYGRAPH_OPENAI_BASE_URL", cfg.LLM.OpenAIBaseURL)
	cfg.LLM.AnthropicAPIKey = getEnv("RALLYGRAPH_ANTHROPIC_API_KEY", cfg.LLM.AnthropicAPIKey)
	cfg.LLM.AnthropicModel = getEnv("RALLYGRAPH_ANTHROPIC_MODEL", cfg.LLM.AnthropicModel)
	cfg.LLM.MaxTokens = getEnvInt("RALLYGRAPH_LLM_MAX_TOKENS", cfg.LLM.MaxTokens)
	cfg.LLM.Temperature = getEnvFloat("RALLYGRAPH_LLM_TEMPERATURE", cfg.LLM.Temperature)
	cfg.LLM.Timeout = getEnvDuration("RALLYGRAPH_LLM_TIMEOUT", cfg.LLM.Timeout)

	cfg.Embedding.Provider = getEnv("RALLYGRAPH_EMBEDDING_PROVIDER", cfg.Embedding.Provider)
	cfg.Embedding.Model = getEnv("RALLYGRAPH_EMBEDDING_MODEL", cfg.Embedding.Model)
	cfg.Embedding.Dimension = getEnvInt("RALLYGRAPH_EMBEDDING_DIMENSION", cfg.Embedding.Dimension)
	cfg.Embedding.ModelDir = getEnv("RALLYGRAPH_EMBEDDING_MODEL_DIR", cfg.Embedding.ModelDir)

	cfg.NER.Backend = getEnv("RALLYGRAPH_NER_BACKEND", cfg.NER.Backend)
	cfg.NER.Model = getEnv("RALLYGRAPH_NER_MODEL", cfg.NER.Model)
	cfg.NER.ModelDir = getEnv("RALLYGRAPH_NER_MODEL_DIR", cfg.NER.ModelDir)

	cfg.Retrieval.TopK = getEnvInt("RALLYGRAPH_TOP_K", cfg.Retrieval.TopK)
	cfg.Retrieval.StrategyLimit = getEnvInt("RALLYGRAPH_STRATEGY_LIMIT", cfg.Retrieval.StrategyLimit)
	cfg.Retrieval.StrategyTimeout = getEnvDuration("RALLYGRAPH_STRATEGY_TIMEOUT", cfg.Retrieval.StrategyTimeout)
	cfg.Retrieval.SemanticWeight = getEnvFloat("RALLYGRAPH_SEMANTIC_WEIGHT", cfg.Retrieval.SemanticWeight)
	cfg.Retrieval.EntityWeight = getEnvFloat("RALLYGRAPH_ENTITY_WEIGHT", cfg.Retrieval.EntityWeight)
	cfg.Retrieval.ScoreThreshold = getEnvFloat("RALLYGRAPH_SCORE_THRESHOLD", cfg.Retrieval.ScoreThreshold)

	cfg.Availability.NegativeTTL = getEnvDuration("RALLYGRAPH_PROBE_NEGATIVE_TTL", cfg.Availability.NegativeTTL)
	cfg.Availability.PositiveTTL = getEnvDuration("RALLYGRAPH_PROBE_POSITIVE_TTL", cfg.Availability.PositiveTTL)
	cfg.Availability.ProbeTimeout = getEnvDuration("RALLYGRAPH_PROBE_TIMEOUT", cfg.Availability.ProbeTimeout)

	cfg.Security.Mode = getEnv("RALLYGRAPH_SECURITY_MODE", cfg.Security.Mode)
	cfg.Security.APIToken = getEnv("RALLYGRAPH_API_TOKEN", cfg.Security.APIToken)

	cfg.Logging.Level = getEnv("RALLYGRAPH_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("RALLYGRAPH_LOG_FORMAT", cfg.Logging.Format)
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value.
// If the environment variable exists but cannot be parsed as an integer,
// it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default value.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable (e.g. "30s") or
// returns a default value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
