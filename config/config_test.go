// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "benchgate.yaml")
	if err := os.WriteFile(path, []byte(content), 0640); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
	if cfg.Store.Backend != BackendFile {
		t.Errorf("expected file backend, got %s", cfg.Store.Backend)
	}
	if cfg.Gate.AvgTimeRegression != 0.05 {
		t.Errorf("expected 5%% timing limit, got %v", cfg.Gate.AvgTimeRegression)
	}
}

func TestLoad(t *testing.T) {
	t.Run("overlays defaults", func(t *testing.T) {
		path := writeConfig(t, `
store:
  backend: badger
  path: /var/lib/benchgate
  retention: 168h
run:
  iterations: 500
`)
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("load: %v", err)
		}

		if cfg.Store.Backend != BackendBadger {
			t.Errorf("expected badger backend, got %s", cfg.Store.Backend)
		}
		if cfg.Store.Retention.Std() != 7*24*time.Hour {
			t.Errorf("expected 168h retention, got %v", cfg.Store.Retention)
		}
		if cfg.Run.Iterations != 500 {
			t.Errorf("expected 500 iterations, got %d", cfg.Run.Iterations)
		}
		// Unset fields keep their defaults.
		if cfg.Run.Warmup != 10 {
			t.Errorf("expected default warmup 10, got %d", cfg.Run.Warmup)
		}
		if cfg.Gate.FPSDrop != 5.0 {
			t.Errorf("expected default fps drop 5.0, got %v", cfg.Gate.FPSDrop)
		}
	})

	t.Run("retention from integer seconds", func(t *testing.T) {
		path := writeConfig(t, `
store:
  retention: 3600
`)
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if cfg.Store.Retention.Std() != time.Hour {
			t.Errorf("expected 1h retention, got %v", cfg.Store.Retention.Std())
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := writeConfig(t, "store: [not a map")
		if _, err := Load(path); err == nil {
			t.Error("expected parse error")
		}
	})

	t.Run("invalid values rejected", func(t *testing.T) {
		path := writeConfig(t, `
run:
  iterations: -1
`)
		if _, err := Load(path); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Store.Backend = "redis" }},
		{"file backend without path", func(c *Config) { c.Store.Backend = BackendFile; c.Store.Path = "" }},
		{"negative retention", func(c *Config) { c.Store.Retention = Duration(-time.Hour) }},
		{"zero iterations", func(c *Config) { c.Run.Iterations = 0 }},
		{"negative warmup", func(c *Config) { c.Run.Warmup = -1 }},
		{"zero concurrency", func(c *Config) { c.Run.Concurrency = 0 }},
		{"zero timing threshold", func(c *Config) { c.Gate.AvgTimeRegression = 0 }},
		{"tiny trend window", func(c *Config) { c.Trend.Window = 1 }},
		{"enabled telemetry without namespace", func(c *Config) {
			c.Telemetry.Enabled = true
			c.Telemetry.Namespace = ""
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}

	t.Run("memory backend needs no path", func(t *testing.T) {
		cfg := Default()
		cfg.Store.Backend = BackendMemory
		cfg.Store.Path = ""
		if err := cfg.Validate(); err != nil {
			t.Errorf("expected valid config, got %v", err)
		}
	})
}
