package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const fileHeader = "# MAGMA server configuration.\n# Credentials may also be supplied via environment variables\n# (MAGMA_FALKORDB_PASSWORD, OPENAI_API_KEY, GEMINI_API_KEY, ANTHROPIC_API_KEY).\n\n"

// WriteDefault writes the default configuration to path. It refuses to
// overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %q already exists", path)
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("failed to marshal default config: %w", err)
	}

	if err := os.WriteFile(path, append([]byte(fileHeader), data...), 0o644); err != nil {
		return fmt.Errorf("failed to write config file %q: %w", path, err)
	}
	return nil
}
