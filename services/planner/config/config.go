// Copyright (C) 2025 NHI Systems (ops@nhi.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads planner configuration from YAML.
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/nhi-ops/nhi-core/services/planner/registry"
)

// Cache backend identifiers.
const (
	BackendFile   = "file"
	BackendBadger = "badger"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// RegistryConfig locates the descriptor store.
type RegistryConfig struct {
	// Path is the directory of service descriptor documents.
	Path string `yaml:"path" validate:"required"`
}

// CacheConfig controls the graph cache.
type CacheConfig struct {
	// Dir is where the envelope (or badger data) lives.
	Dir string `yaml:"dir" validate:"required"`

	// TTLSeconds is the envelope time-to-live.
	TTLSeconds int `yaml:"ttl_seconds" validate:"gt=0"`

	// Backend selects the envelope store implementation.
	Backend string `yaml:"backend" validate:"oneof=file badger"`
}

// PlannerConfig tunes target selection.
type PlannerConfig struct {
	// CoreService is the designated core system service.
	CoreService string `yaml:"core_service" validate:"required"`

	// InfrastructureServices overrides the infrastructure allow-list.
	// Empty means the stock list.
	InfrastructureServices []string `yaml:"infrastructure_services"`

	// IncludeStatuses overrides the default automatic status filter.
	// Empty means active, development and maintenance.
	IncludeStatuses []string `yaml:"include_statuses"`
}

// LoggingConfig controls planner logging.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn or error.
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`

	// Dir enables JSON file logging when set.
	Dir string `yaml:"dir"`
}

// Config is the full planner configuration.
type Config struct {
	Registry RegistryConfig `yaml:"registry"`
	Cache    CacheConfig    `yaml:"cache"`
	Planner  PlannerConfig  `yaml:"planner"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		Registry: RegistryConfig{
			Path: "/var/lib/nhi/registry/services",
		},
		Cache: CacheConfig{
			Dir:        "/var/lib/nhi/cache",
			TTLSeconds: 3600,
			Backend:    BackendFile,
		},
		Planner: PlannerConfig{
			CoreService: "nhi-core",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML config file over the defaults and validates the
// result. Fields the file omits keep their default values.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the configuration's structural constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Classifier builds the infrastructure classifier the config requests.
func (c Config) Classifier() registry.InfraClassifier {
	if len(c.Planner.InfrastructureServices) == 0 {
		return registry.DefaultClassifier()
	}
	return registry.NewInfraClassifier(c.Planner.InfrastructureServices)
}

// Statuses returns the configured automatic status filter, or nil when
// the default should apply.
func (c Config) Statuses() []registry.Status {
	if len(c.Planner.IncludeStatuses) == 0 {
		return nil
	}
	out := make([]registry.Status, 0, len(c.Planner.IncludeStatuses))
	for _, s := range c.Planner.IncludeStatuses {
		out = append(out, registry.NormalizeStatus(s))
	}
	return out
}
