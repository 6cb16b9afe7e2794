package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "localhost", cfg.Store.Host)
	assert.Equal(t, 6379, cfg.Store.Port)
	assert.Equal(t, "magma", cfg.Store.GraphName)
	assert.Equal(t, "openai", cfg.Embedding.Provider)
	assert.Equal(t, "text-embedding-3-small", cfg.Embedding.Model)
	assert.Equal(t, 10, cfg.Pipeline.SemanticTopK)
	assert.Equal(t, 30, cfg.HTTP.SessionTimeoutMinutes)
	assert.Equal(t, 1000, cfg.HTTP.MaxSessions)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
store:
  host: falkordb.internal
  port: 6380
  graph_name: prod-memory
embedding:
  provider: genai
  model: gemini-embedding-001
  dimensions: 768
pipeline:
  semantic_top_k: 25
  min_semantic_score: 0.3
  timeout_ms: 2000
http:
  port: 9090
  max_sessions: 50
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "falkordb.internal", cfg.Store.Host)
	assert.Equal(t, 6380, cfg.Store.Port)
	assert.Equal(t, "prod-memory", cfg.Store.GraphName)
	assert.Equal(t, "genai", cfg.Embedding.Provider)
	assert.Equal(t, 768, cfg.Embedding.Dimensions)
	assert.Equal(t, 25, cfg.Pipeline.SemanticTopK)
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, 50, cfg.HTTP.MaxSessions)
	// Unset sections keep their defaults.
	assert.Equal(t, 30, cfg.HTTP.SessionTimeoutMinutes)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MAGMA_FALKORDB_HOST", "db.example")
	t.Setenv("MAGMA_FALKORDB_PORT", "7000")
	t.Setenv("MAGMA_FALKORDB_PASSWORD", "hunter2")
	t.Setenv("MAGMA_LOG_LEVEL", "warn")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "db.example", cfg.Store.Host)
	assert.Equal(t, 7000, cfg.Store.Port)
	assert.Equal(t, "hunter2", cfg.Store.Password)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "sk-test", cfg.Embedding.APIKey)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.LogLevel = "loud" },
			wantErr: "log_level",
		},
		{
			name:    "bad store port",
			mutate:  func(c *Config) { c.Store.Port = 0 },
			wantErr: "store.port",
		},
		{
			name:    "empty graph name",
			mutate:  func(c *Config) { c.Store.GraphName = "" },
			wantErr: "store.graph_name",
		},
		{
			name:    "unknown embedding provider",
			mutate:  func(c *Config) { c.Embedding.Provider = "bedrock" },
			wantErr: "embedding.provider",
		},
		{
			name:    "top k out of range",
			mutate:  func(c *Config) { c.Pipeline.SemanticTopK = 101 },
			wantErr: "semantic_top_k",
		},
		{
			name:    "min score out of range",
			mutate:  func(c *Config) { c.Pipeline.MinSemanticScore = 1.5 },
			wantErr: "min_semantic_score",
		},
		{
			name:    "timeout too small",
			mutate:  func(c *Config) { c.Pipeline.TimeoutMs = 10 },
			wantErr: "timeout_ms",
		},
		{
			name:    "tracing enabled without endpoint",
			mutate:  func(c *Config) { c.Tracing.Enabled = true },
			wantErr: "tracing.endpoint",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEmbeddingDimensions(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 1536, cfg.EmbeddingDimensions())

	cfg.Embedding.Model = "text-embedding-3-large"
	assert.Equal(t, 3072, cfg.EmbeddingDimensions())

	cfg.Embedding.Dimensions = 768
	assert.Equal(t, 768, cfg.EmbeddingDimensions())
}

func TestConversionHelpers(t *testing.T) {
	cfg := Default()
	cfg.Store.Host = "db"
	cfg.Store.Password = "secret"
	cfg.Pipeline.TimeoutMs = 2500

	clientConfig := cfg.GraphClientConfig()
	assert.Equal(t, "db", clientConfig.Host)
	assert.Equal(t, "secret", clientConfig.Password)
	assert.Equal(t, "magma", clientConfig.GraphName)

	execConfig := cfg.ExecutorConfig()
	assert.Equal(t, 10, execConfig.SemanticTopK)
	assert.Equal(t, 2500*time.Millisecond, execConfig.Timeout)

	assert.Equal(t, 30*time.Minute, cfg.SessionTimeout())
	assert.Equal(t, 5*time.Minute, cfg.SessionCleanupInterval())
	assert.Equal(t, "0.0.0.0:8080", cfg.ListenAddr())
}
