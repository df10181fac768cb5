// Package config holds all smalltown configuration, split one file per
// concern. Values come from a YAML file with environment overrides applied
// on top.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds all smalltown configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	DataDir string `yaml:"data_dir"`

	// World stepping
	World WorldConfig `yaml:"world"`

	// LLM endpoint
	LLM LLMConfig `yaml:"llm"`

	// Embedding endpoint
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Memory retrieval and reflection
	Memory MemoryConfig `yaml:"memory"`

	// Persistence
	Store StoreConfig `yaml:"store"`

	// Chat-surface gateway
	Chat ChatConfig `yaml:"chat"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig configures the category logger.
type LoggingConfig struct {
	DebugMode bool   `yaml:"debug_mode"`
	Level     string `yaml:"level"` // debug, info, warn, error
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:      "smalltown",
		DataDir:   "data",
		World:     DefaultWorldConfig(),
		LLM:       DefaultLLMConfig(),
		Embedding: DefaultEmbeddingConfig(),
		Memory:    DefaultMemoryConfig(),
		Store:     DefaultStoreConfig(),
		Chat:      DefaultChatConfig(),
		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
		},
	}
}

// Load loads configuration from a YAML file and applies environment
// overrides. A missing file is not an error; defaults are used.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.World.StepDurationSeconds <= 0 {
		return fmt.Errorf("world.step_duration_seconds must be positive, got %d", c.World.StepDurationSeconds)
	}
	if c.World.SpeedMultiplier <= 0 {
		return fmt.Errorf("world.speed_multiplier must be positive, got %f", c.World.SpeedMultiplier)
	}
	if c.Memory.ReflectionThreshold <= 0 {
		return fmt.Errorf("memory.reflection_threshold must be positive, got %d", c.Memory.ReflectionThreshold)
	}
	switch c.Store.Provider {
	case ProviderSQLite, ProviderMemory:
	default:
		return fmt.Errorf("store.provider must be %q or %q, got %q", ProviderSQLite, ProviderMemory, c.Store.Provider)
	}
	return nil
}
