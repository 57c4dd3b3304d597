// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads and validates benchgate configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxConfigFileSize caps config files at 1 MiB to avoid accidental or
// malicious memory exhaustion when parsing.
const MaxConfigFileSize = 1 << 20

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrInvalidConfig indicates the configuration failed validation.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// -----------------------------------------------------------------------------
// Duration
// -----------------------------------------------------------------------------

// Duration is a time.Duration that unmarshals from YAML strings like
// "168h" or from integer seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var seconds int64
	if err := value.Decode(&seconds); err == nil {
		*d = Duration(time.Duration(seconds) * time.Second)
		return nil
	}

	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Store backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendBadger = "badger"
)

// StoreConfig selects and configures the baseline store.
type StoreConfig struct {
	// Backend is one of "memory", "file", or "badger".
	Backend string `yaml:"backend"`

	// Path is the storage directory for file and badger backends.
	Path string `yaml:"path"`

	// Retention is how long baselines are kept by cleanup.
	Retention Duration `yaml:"retention"`
}

// RunConfig configures benchmark execution.
type RunConfig struct {
	// Iterations is the measured iteration count per benchmark.
	Iterations int `yaml:"iterations"`

	// Warmup is the discarded iteration count before measurement.
	Warmup int `yaml:"warmup"`

	// Concurrency is how many benchmarks run at once.
	Concurrency int `yaml:"concurrency"`
}

// GateConfig configures the performance gate.
type GateConfig struct {
	// AvgTimeRegression is the relative timing growth limit.
	AvgTimeRegression float64 `yaml:"avg_time_regression"`

	// MemoryGrowthBytes is the absolute memory growth limit.
	MemoryGrowthBytes float64 `yaml:"memory_growth_bytes"`

	// FPSDrop is the absolute rate drop limit.
	FPSDrop float64 `yaml:"fps_drop"`

	// RequireBaseline fails checks when no baseline exists.
	RequireBaseline bool `yaml:"require_baseline"`
}

// TrendConfig configures trend analysis.
type TrendConfig struct {
	// Window is the number of trailing points analyzed.
	Window int `yaml:"window"`

	// ForecastPeriods is how many future points to project.
	ForecastPeriods int `yaml:"forecast_periods"`
}

// TelemetryConfig configures the Prometheus sink.
type TelemetryConfig struct {
	// Enabled turns metric export on.
	Enabled bool `yaml:"enabled"`

	// Namespace is the metrics namespace.
	Namespace string `yaml:"namespace"`

	// Subsystem is the metrics subsystem.
	Subsystem string `yaml:"subsystem"`
}

// Config is the root benchgate configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store"`
	Run       RunConfig       `yaml:"run"`
	Gate      GateConfig      `yaml:"gate"`
	Trend     TrendConfig     `yaml:"trend"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// Default returns the standard configuration.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Backend:   BackendFile,
			Path:      "baselines",
			Retention: Duration(30 * 24 * time.Hour),
		},
		Run: RunConfig{
			Iterations:  100,
			Warmup:      10,
			Concurrency: 1,
		},
		Gate: GateConfig{
			AvgTimeRegression: 0.05,
			MemoryGrowthBytes: 10 * 1024 * 1024,
			FPSDrop:           5.0,
		},
		Trend: TrendConfig{
			Window:          10,
			ForecastPeriods: 5,
		},
		Telemetry: TelemetryConfig{
			Namespace: "benchgate",
			Subsystem: "runs",
		},
	}
}

// Load reads a YAML config file, applying defaults for unset fields.
//
// Description:
//
//	Starts from Default(), overlays the file contents, and validates
//	the result. Files larger than MaxConfigFileSize are rejected
//	before parsing.
//
// Inputs:
//   - path: Path to the YAML file.
//
// Outputs:
//   - *Config: The validated configuration. Never nil on success.
//   - error: Non-nil if the file cannot be read, parsed, or validated.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > MaxConfigFileSize {
		return nil, fmt.Errorf("%w: config file exceeds %d bytes", ErrInvalidConfig, MaxConfigFileSize)
	}

	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(payload, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory:
	case BackendFile, BackendBadger:
		if c.Store.Path == "" {
			return fmt.Errorf("%w: store path is required for the %s backend", ErrInvalidConfig, c.Store.Backend)
		}
	default:
		return fmt.Errorf("%w: unknown store backend %q", ErrInvalidConfig, c.Store.Backend)
	}

	if c.Store.Retention < 0 {
		return fmt.Errorf("%w: retention must not be negative", ErrInvalidConfig)
	}
	if c.Run.Iterations <= 0 {
		return fmt.Errorf("%w: iterations must be positive", ErrInvalidConfig)
	}
	if c.Run.Warmup < 0 {
		return fmt.Errorf("%w: warmup must not be negative", ErrInvalidConfig)
	}
	if c.Run.Concurrency <= 0 {
		return fmt.Errorf("%w: concurrency must be positive", ErrInvalidConfig)
	}
	if c.Gate.AvgTimeRegression <= 0 {
		return fmt.Errorf("%w: avg_time_regression must be positive", ErrInvalidConfig)
	}
	if c.Gate.MemoryGrowthBytes <= 0 {
		return fmt.Errorf("%w: memory_growth_bytes must be positive", ErrInvalidConfig)
	}
	if c.Gate.FPSDrop <= 0 {
		return fmt.Errorf("%w: fps_drop must be positive", ErrInvalidConfig)
	}
	if c.Trend.Window < 2 {
		return fmt.Errorf("%w: trend window must be at least 2", ErrInvalidConfig)
	}
	if c.Trend.ForecastPeriods < 0 {
		return fmt.Errorf("%w: forecast_periods must not be negative", ErrInvalidConfig)
	}
	if c.Telemetry.Enabled {
		if c.Telemetry.Namespace == "" || c.Telemetry.Subsystem == "" {
			return fmt.Errorf("%w: telemetry namespace and subsystem are required when enabled", ErrInvalidConfig)
		}
	}

	return nil
}
