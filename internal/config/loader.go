package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Environment variable names.
const (
	EnvPrefix     = "CADENCE_"
	EnvConfigPath = "CADENCE_CONFIG"
)

type loadOptions struct {
	path    string
	skipEnv bool
}

// LoadOption adjusts where Load reads from.
type LoadOption func(*loadOptions)

// WithFile reads path instead of the file named by CADENCE_CONFIG.
func WithFile(path string) LoadOption {
	return func(o *loadOptions) { o.path = path }
}

// WithoutEnv skips the CADENCE_ environment layer.
func WithoutEnv() LoadOption {
	return func(o *loadOptions) { o.skipEnv = true }
}

// Load layers, lowest precedence first: defaults from New, the YAML file
// (WithFile or CADENCE_CONFIG), then CADENCE_* variables. The result is
// validated.
func Load(_ context.Context, opts ...LoadOption) (*Config, error) {
	o := loadOptions{path: os.Getenv(EnvConfigPath)}
	for _, opt := range opts {
		opt(&o)
	}

	k := koanf.New(".")
	if o.path != "" {
		if err := k.Load(file.Provider(o.path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, o.path, err)
		}
	}

	// CADENCE_TICK_INTERVAL_MS -> tick_interval_ms; keys are flat.
	if !o.skipEnv {
		envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
			return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		})
		if err := k.Load(envProvider, nil); err != nil {
			return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
		}
	}

	cfg := New()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
