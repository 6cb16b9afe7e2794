// Package config loads the server configuration from YAML with
// environment overrides for connection details and credentials.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/moolen/magma/internal/graph"
	"github.com/moolen/magma/internal/magma"
)

// StoreConfig holds the FalkorDB connection settings.
type StoreConfig struct {
	Host      string `koanf:"host" yaml:"host"`
	Port      int    `koanf:"port" yaml:"port"`
	Password  string `koanf:"password" yaml:"password"`
	GraphName string `koanf:"graph_name" yaml:"graph_name"`
}

// EmbeddingConfig selects the embedding provider and model. Dimensions
// of zero means "infer from the model".
type EmbeddingConfig struct {
	Provider   string `koanf:"provider" yaml:"provider"` // openai or genai
	Model      string `koanf:"model" yaml:"model"`
	Dimensions int    `koanf:"dimensions" yaml:"dimensions"`
	APIKey     string `koanf:"api_key" yaml:"api_key"`
}

// LLMConfig holds the Anthropic models used for intent classification
// and answer synthesis.
type LLMConfig struct {
	APIKey               string `koanf:"api_key" yaml:"api_key"`
	ClassifierModel      string `koanf:"classifier_model" yaml:"classifier_model"`
	ClassifierMaxTokens  int    `koanf:"classifier_max_tokens" yaml:"classifier_max_tokens"`
	SynthesizerModel     string `koanf:"synthesizer_model" yaml:"synthesizer_model"`
	SynthesizerMaxTokens int    `koanf:"synthesizer_max_tokens" yaml:"synthesizer_max_tokens"`
}

// PipelineConfig bounds the retrieval pipeline.
type PipelineConfig struct {
	SemanticTopK     int     `koanf:"semantic_top_k" yaml:"semantic_top_k"`
	MinSemanticScore float64 `koanf:"min_semantic_score" yaml:"min_semantic_score"`
	TimeoutMs        int     `koanf:"timeout_ms" yaml:"timeout_ms"`
}

// HTTPConfig holds the MCP HTTP transport settings.
type HTTPConfig struct {
	Host                   string `koanf:"host" yaml:"host"`
	Port                   int    `koanf:"port" yaml:"port"`
	SessionTimeoutMinutes  int    `koanf:"session_timeout_minutes" yaml:"session_timeout_minutes"`
	SessionCleanupMinutes  int    `koanf:"session_cleanup_minutes" yaml:"session_cleanup_minutes"`
	MaxSessions            int    `koanf:"max_sessions" yaml:"max_sessions"`
}

// TracingConfig holds the OTLP trace export settings.
type TracingConfig struct {
	Enabled     bool   `koanf:"enabled" yaml:"enabled"`
	Endpoint    string `koanf:"endpoint" yaml:"endpoint"`
	TLSCAPath   string `koanf:"tls_ca_path" yaml:"tls_ca_path"`
	TLSInsecure bool   `koanf:"tls_insecure" yaml:"tls_insecure"`
}

// Config is the full server configuration.
type Config struct {
	LogLevel  string          `koanf:"log_level" yaml:"log_level"`
	Store     StoreConfig     `koanf:"store" yaml:"store"`
	Embedding EmbeddingConfig `koanf:"embedding" yaml:"embedding"`
	LLM       LLMConfig       `koanf:"llm" yaml:"llm"`
	Pipeline  PipelineConfig  `koanf:"pipeline" yaml:"pipeline"`
	HTTP      HTTPConfig      `koanf:"http" yaml:"http"`
	Tracing   TracingConfig   `koanf:"tracing" yaml:"tracing"`
}

// Default returns the configuration used when no file or environment
// override says otherwise.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Store: StoreConfig{
			Host:      "localhost",
			Port:      6379,
			GraphName: "magma",
		},
		Embedding: EmbeddingConfig{
			Provider: "openai",
			Model:    "text-embedding-3-small",
		},
		LLM: LLMConfig{
			ClassifierModel:      "claude-3-5-haiku-20241022",
			ClassifierMaxTokens:  512,
			SynthesizerModel:     "claude-sonnet-4-5-20250929",
			SynthesizerMaxTokens: 1024,
		},
		Pipeline: PipelineConfig{
			SemanticTopK:     10,
			MinSemanticScore: 0.5,
			TimeoutMs:        5000,
		},
		HTTP: HTTPConfig{
			Host:                  "0.0.0.0",
			Port:                  8080,
			SessionTimeoutMinutes: 30,
			SessionCleanupMinutes: 5,
			MaxSessions:           1000,
		},
	}
}

// Load reads the config file (when path is non-empty) over the
// defaults, then applies environment overrides, then validates.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		k := koanf.New(".")
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config from %q: %w", path, err)
		}
		if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
			return nil, fmt.Errorf("failed to parse config from %q: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides layers well-known environment variables over the
// file values. Credentials usually arrive this way.
func (c *Config) applyEnvOverrides() {
	setString(&c.LogLevel, "MAGMA_LOG_LEVEL")
	setString(&c.Store.Host, "MAGMA_FALKORDB_HOST")
	setInt(&c.Store.Port, "MAGMA_FALKORDB_PORT")
	setString(&c.Store.Password, "MAGMA_FALKORDB_PASSWORD")
	setString(&c.Store.GraphName, "MAGMA_GRAPH_NAME")

	setString(&c.Embedding.Provider, "MAGMA_EMBEDDING_PROVIDER")
	setString(&c.Embedding.Model, "MAGMA_EMBEDDING_MODEL")
	setInt(&c.Embedding.Dimensions, "MAGMA_EMBEDDING_DIMENSIONS")
	if c.Embedding.APIKey == "" {
		switch c.Embedding.Provider {
		case "genai":
			c.Embedding.APIKey = os.Getenv("GEMINI_API_KEY")
		default:
			c.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}

	if c.LLM.APIKey == "" {
		c.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}

	setString(&c.HTTP.Host, "MAGMA_HTTP_HOST")
	setInt(&c.HTTP.Port, "MAGMA_HTTP_PORT")
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func setInt(dst *int, env string) {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// knownLogLevels mirrors what the logging package accepts.
var knownLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks the configuration against its ranges.
func (c *Config) Validate() error {
	if !knownLogLevels[c.LogLevel] {
		return fmt.Errorf("log_level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	if c.Store.Host == "" {
		return fmt.Errorf("store.host must not be empty")
	}
	if c.Store.Port < 1 || c.Store.Port > 65535 {
		return fmt.Errorf("store.port must be between 1 and 65535, got %d", c.Store.Port)
	}
	if c.Store.GraphName == "" {
		return fmt.Errorf("store.graph_name must not be empty")
	}
	switch c.Embedding.Provider {
	case "openai", "genai":
	default:
		return fmt.Errorf("embedding.provider must be openai or genai, got %q", c.Embedding.Provider)
	}
	if c.Pipeline.SemanticTopK < 1 || c.Pipeline.SemanticTopK > 100 {
		return fmt.Errorf("pipeline.semantic_top_k must be between 1 and 100, got %d", c.Pipeline.SemanticTopK)
	}
	if c.Pipeline.MinSemanticScore < 0 || c.Pipeline.MinSemanticScore > 1 {
		return fmt.Errorf("pipeline.min_semantic_score must be between 0 and 1, got %g", c.Pipeline.MinSemanticScore)
	}
	if c.Pipeline.TimeoutMs < 100 || c.Pipeline.TimeoutMs > 60000 {
		return fmt.Errorf("pipeline.timeout_ms must be between 100 and 60000, got %d", c.Pipeline.TimeoutMs)
	}
	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.HTTP.SessionTimeoutMinutes < 1 {
		return fmt.Errorf("http.session_timeout_minutes must be at least 1, got %d", c.HTTP.SessionTimeoutMinutes)
	}
	if c.HTTP.SessionCleanupMinutes < 1 {
		return fmt.Errorf("http.session_cleanup_minutes must be at least 1, got %d", c.HTTP.SessionCleanupMinutes)
	}
	if c.HTTP.MaxSessions < 1 {
		return fmt.Errorf("http.max_sessions must be at least 1, got %d", c.HTTP.MaxSessions)
	}
	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return fmt.Errorf("tracing.endpoint must be set when tracing is enabled")
	}
	return nil
}

// EmbeddingDimensions returns the configured dimension, inferring it
// from well-known models when unset.
func (c *Config) EmbeddingDimensions() int {
	if c.Embedding.Dimensions > 0 {
		return c.Embedding.Dimensions
	}
	switch c.Embedding.Model {
	case "text-embedding-3-large":
		return 3072
	case "text-embedding-3-small", "text-embedding-ada-002":
		return 1536
	default:
		return 1536
	}
}

// GraphClientConfig translates the store section into the FalkorDB
// client configuration.
func (c *Config) GraphClientConfig() graph.ClientConfig {
	clientConfig := graph.DefaultClientConfig()
	clientConfig.Host = c.Store.Host
	clientConfig.Port = c.Store.Port
	clientConfig.Password = c.Store.Password
	clientConfig.GraphName = c.Store.GraphName
	return clientConfig
}

// ExecutorConfig translates the pipeline section into executor bounds.
func (c *Config) ExecutorConfig() magma.ExecutorConfig {
	return magma.ExecutorConfig{
		SemanticTopK:     c.Pipeline.SemanticTopK,
		MinSemanticScore: c.Pipeline.MinSemanticScore,
		Timeout:          time.Duration(c.Pipeline.TimeoutMs) * time.Millisecond,
	}
}

// SessionTimeout returns the HTTP session idle timeout.
func (c *Config) SessionTimeout() time.Duration {
	return time.Duration(c.HTTP.SessionTimeoutMinutes) * time.Minute
}

// SessionCleanupInterval returns the session sweep interval.
func (c *Config) SessionCleanupInterval() time.Duration {
	return time.Duration(c.HTTP.SessionCleanupMinutes) * time.Minute
}

// ListenAddr returns the host:port the HTTP transport binds.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}
