package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	require.NoError(t, WriteDefault(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "log_level: info")
	assert.Contains(t, string(data), "graph_name: magma")

	// The written file must load back to the defaults.
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default().Store, cfg.Store)
	assert.Equal(t, Default().Pipeline, cfg.Pipeline)
}

func TestWriteDefaultRefusesOverwrite(t *testing.T) {
	path := writeConfig(t, "log_level: debug\n")
	assert.Error(t, WriteDefault(path))
}
