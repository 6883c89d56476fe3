// Package config loads scan configuration from environment variables,
// mirroring the teacher's koanf/v2 + env/v2 + validator loader.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// envPrefix namespaces every environment variable this package reads.
const envPrefix = "PARAMHUNT_"

// ScanConfig holds configuration values parsed from environment variables.
type ScanConfig struct {
	// TargetURL is the endpoint every probe is issued against.
	TargetURL string `koanf:"target_url" validate:"required,url"`
	// Method is the HTTP method used for probes.
	Method string `koanf:"method" validate:"required,oneof=GET POST PUT PATCH DELETE"`
	// DictionaryPath points at the candidate-name file to load.
	DictionaryPath string `koanf:"dictionary_path" validate:"required"`
	// OutputPath is the JSON Lines file findings are appended to.
	OutputPath string `koanf:"output_path" validate:"required"`
	// CheckpointPath is the bbolt database used for resume support. Empty
	// disables checkpointing.
	CheckpointPath string `koanf:"checkpoint_path"`
	// ScanID namespaces checkpoint state explicitly. Empty lets a resumed
	// run derive a stable ID from TargetURL and DictionaryPath instead, so
	// restarting the same scan reuses its prior checkpoint namespace.
	ScanID string `koanf:"scan_id"`

	// Concurrency bounds how many chunks bisect in parallel.
	Concurrency int `koanf:"concurrency" validate:"required,gte=1"`
	// MaxChunkSize bounds how many candidate names a single top-level chunk
	// carries before the dispatcher splits the dictionary further.
	MaxChunkSize int `koanf:"max_chunk_size" validate:"required,gte=1"`

	// StableReflections enables the reflection sub-phase; disable for
	// targets where echoed request data is itself the response's purpose.
	StableReflections bool `koanf:"stable_reflections"`
	// StableBody enables the body-diff sub-phase.
	StableBody bool `koanf:"stable_body"`
	// ReflectedOnly stops a branch after its reflection sub-phase, whether
	// or not a reflected parameter was found, skipping the code/body phases.
	ReflectedOnly bool `koanf:"reflected_only"`
	// Strict deduplicates findings by diff signature, not just by name.
	Strict bool `koanf:"strict"`

	// Timeout bounds a single HTTP exchange.
	Timeout time.Duration `koanf:"timeout" validate:"required,gt=0"`
	// Retries bounds transport-failure retry attempts per probe.
	Retries int `koanf:"retries" validate:"gte=0"`
	// ProxyURL, when set, routes probes through a SOCKS5 proxy.
	ProxyURL string `koanf:"proxy_url"`

	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`
	// LogLevel controls log verbosity: "debug", "info", "warn", or "error".
	LogLevel string `koanf:"log_level" validate:"required,oneof=debug info warn error"`
}

// envLoader loads environment variables prefixed with PARAMHUNT_, lowercased
// and with the prefix stripped, matching the teacher's env/v2 Opt pattern. It
// is a package variable so tests can substitute it.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			return strings.ToLower(strings.TrimPrefix(key, envPrefix)), value
		},
	}), nil)
}

// Load parses environment variables into a ScanConfig, applying defaults and
// running struct validation before returning.
func Load() (*ScanConfig, error) {
	k := koanf.New(".")

	k.Load(structs.Provider(ScanConfig{
		Method:            "GET",
		Concurrency:       8,
		MaxChunkSize:      64,
		StableReflections: true,
		StableBody:        true,
		Timeout:           10 * time.Second,
		Retries:           2,
		Env:               "prod",
		LogLevel:          "info",
	}, "koanf"), nil)

	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	var cfg ScanConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}
