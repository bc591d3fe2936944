// Package config loads kernel configuration from the environment.
package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all kernel configuration.
type Config struct {
	Memory  MemoryConfig
	Debug   DebugConfig
	Logging LogConfig
}

// MemoryConfig sizes the simulated physical slab and per-process heaps.
type MemoryConfig struct {
	Frames         int    `envconfig:"MEM_FRAMES" default:"4096"`
	DefaultHeapMax uint64 `envconfig:"MEM_HEAP_MAX" default:"1048576"`
}

// DebugConfig holds the introspection HTTP surface configuration.
type DebugConfig struct {
	Enabled bool   `envconfig:"DEBUG_ENABLED" default:"true"`
	Host    string `envconfig:"DEBUG_HOST" default:"127.0.0.1"`
	Port    string `envconfig:"DEBUG_PORT" default:"9180"`

	RateLimitRPS   int `envconfig:"DEBUG_RATE_RPS" default:"50"`
	RateLimitBurst int `envconfig:"DEBUG_RATE_BURST" default:"100"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("EMBER", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from the environment or returns the
// default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Memory: MemoryConfig{
			Frames:         4096,
			DefaultHeapMax: 0x10_0000,
		},
		Debug: DebugConfig{
			Enabled:        true,
			Host:           "127.0.0.1",
			Port:           "9180",
			RateLimitRPS:   50,
			RateLimitBurst: 100,
		},
		Logging: LogConfig{
			Level: "info",
		},
	}
}
