package config

import (
	"testing"

	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/v2"
	"github.com/stretchr/testify/assert"
)

// withEnvLoader substitutes envLoader for the duration of a test so config
// can be loaded from an in-memory map instead of real environment variables.
func withEnvLoader(t *testing.T, values map[string]any) {
	t.Helper()
	original := envLoader
	envLoader = func(k *koanf.Koanf) error {
		return k.Load(confmap.Provider(values, "."), nil)
	}
	t.Cleanup(func() { envLoader = original })
}

func TestLoad_AppliesDefaults(t *testing.T) {
	withEnvLoader(t, map[string]any{
		"target_url":      "https://example.com/search",
		"dictionary_path": "dict.txt",
		"output_path":     "out.jsonl",
	})

	cfg, err := Load()
	assert.NoError(t, err)
	assert.Equal(t, "GET", cfg.Method)
	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, 64, cfg.MaxChunkSize)
	assert.True(t, cfg.StableReflections)
	assert.True(t, cfg.StableBody)
	assert.Equal(t, "prod", cfg.Env)
}

func TestLoad_MissingRequiredField_Errors(t *testing.T) {
	withEnvLoader(t, map[string]any{
		"dictionary_path": "dict.txt",
		"output_path":     "out.jsonl",
	})

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_InvalidEnvValue_Errors(t *testing.T) {
	withEnvLoader(t, map[string]any{
		"target_url":      "https://example.com",
		"dictionary_path": "dict.txt",
		"output_path":     "out.jsonl",
		"env":             "staging",
	})

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	withEnvLoader(t, map[string]any{
		"target_url":      "https://example.com",
		"dictionary_path": "dict.txt",
		"output_path":     "out.jsonl",
		"concurrency":     16,
		"strict":          true,
	})

	cfg, err := Load()
	assert.NoError(t, err)
	assert.Equal(t, 16, cfg.Concurrency)
	assert.True(t, cfg.Strict)
}
