// Copyright (C) 2025 Mindweave AI (oss@mindweave.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Engine     EngineConfig     `mapstructure:"engine"`
	Resilience ResilienceConfig `mapstructure:"resilience"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig tunes the HTTP surface.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// EngineConfig tunes the reasoning engine.
type EngineConfig struct {
	ThoughtsPerAgent int     `mapstructure:"thoughts_per_agent"`
	MaxDepth         int     `mapstructure:"max_depth"`
	FrontierSize     int     `mapstructure:"frontier_size"`
	TopK             int     `mapstructure:"top_k"`
	DepthDecay       float64 `mapstructure:"depth_decay"`
}

// ResilienceConfig tunes the execution layer.
type ResilienceConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	RecoveryWindow   time.Duration `mapstructure:"recovery_window"`
	DefaultTimeout   time.Duration `mapstructure:"default_timeout"`
	HalfOpenTimeout  time.Duration `mapstructure:"half_open_timeout"`
}

// StorageConfig tunes thought persistence.
type StorageConfig struct {
	Path     string `mapstructure:"path"`
	InMemory bool   `mapstructure:"in_memory"`
}

// LoggingConfig tunes the logger.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	Dir   string `mapstructure:"dir"`
	JSON  bool   `mapstructure:"json"`
}

// LoadConfig reads configuration from an optional YAML file plus
// MINDWEAVE_* environment overrides, e.g. MINDWEAVE_SERVER_PORT.
//
// Inputs:
//   - path: Config file path; empty skips the file and uses defaults
//     and environment only.
func LoadConfig(path string) (Config, error) {
	v := viper.New()

	v.SetDefault("server.port", 8420)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("engine.thoughts_per_agent", 3)
	v.SetDefault("engine.max_depth", 3)
	v.SetDefault("engine.frontier_size", 2)
	v.SetDefault("engine.top_k", 1)
	v.SetDefault("engine.depth_decay", 0.8)
	v.SetDefault("resilience.failure_threshold", 5)
	v.SetDefault("resilience.recovery_window", time.Minute)
	v.SetDefault("resilience.default_timeout", 45*time.Second)
	v.SetDefault("resilience.half_open_timeout", 30*time.Second)
	v.SetDefault("storage.path", "~/.mindweave/thoughts")
	v.SetDefault("storage.in_memory", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.dir", "~/.mindweave/logs")
	v.SetDefault("logging.json", false)

	v.SetEnvPrefix("MINDWEAVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	return cfg, nil
}
