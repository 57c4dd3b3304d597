// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/benchgate/benchgate/baseline"
	"github.com/benchgate/benchgate/gate"
)

var (
	gateMetricsPath string
	gateVersion     int
	gateRequire     bool
	gateJSONOutput  bool
)

// gateCmd evaluates current metrics against a stored baseline and sets
// the exit code for CI/CD pipelines: 0 on pass, 1 on fail.
var gateCmd = &cobra.Command{
	Use:   "gate <name>",
	Short: "Check current metrics against a stored baseline",
	Long: `Compares the metrics in the given JSON file against the named
baseline and fails (exit code 1) when any metric worsens past its
threshold.

The metrics file maps metric names to values, e.g.:

  {"render_ms": 16.4, "heap_bytes": 1048576, "fps": 59.2}

Examples:
  benchgate gate render --metrics current.json
  benchgate gate render --metrics current.json --version 3
  benchgate gate render --metrics current.json --require-baseline`,
	Args: cobra.ExactArgs(1),
	RunE: runGateCommand,
}

func init() {
	gateCmd.Flags().StringVarP(&gateMetricsPath, "metrics", "m", "",
		"Path to a JSON file of current metric values (required)")
	gateCmd.Flags().IntVar(&gateVersion, "version", baseline.LatestVersion,
		"Baseline version to compare against (0 = latest)")
	gateCmd.Flags().BoolVar(&gateRequire, "require-baseline", false,
		"Fail when no baseline exists instead of passing with a warning")
	gateCmd.Flags().BoolVar(&gateJSONOutput, "json", false,
		"Output the decision as JSON")
	_ = gateCmd.MarkFlagRequired("metrics")

	rootCmd.AddCommand(gateCmd)
}

func runGateCommand(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	metrics, err := readMetricsFile(gateMetricsPath)
	if err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return fmt.Errorf("open baseline store: %w", err)
	}
	defer store.Close()

	g := gate.NewGate(store,
		gate.WithAvgTimeThreshold(cfg.Gate.AvgTimeRegression),
		gate.WithMemoryGrowthThreshold(cfg.Gate.MemoryGrowthBytes),
		gate.WithFPSDropThreshold(cfg.Gate.FPSDrop),
		gate.WithRequireBaseline(gateRequire || cfg.Gate.RequireBaseline),
		gate.WithLogger(slog.Default()),
	)

	result, err := g.Check(ctx, args[0], gateVersion, metrics)
	if err != nil {
		return fmt.Errorf("gate check: %w", err)
	}

	if gateJSONOutput {
		if err := writeJSON(os.Stdout, result); err != nil {
			return err
		}
	} else {
		fmt.Print(gate.RenderReport(result))
	}

	// The non-nil error propagates through Execute so main exits 1
	// after the deferred logger close runs.
	return result.Err()
}

// readMetricsFile parses a flat JSON object of metric values.
func readMetricsFile(path string) (map[string]float64, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read metrics file: %w", err)
	}

	var metrics map[string]float64
	if err := json.Unmarshal(payload, &metrics); err != nil {
		return nil, fmt.Errorf("parse metrics file %s: %w", path, err)
	}
	if len(metrics) == 0 {
		return nil, fmt.Errorf("metrics file %s contains no metrics", path)
	}
	return metrics, nil
}

func writeJSON(w *os.File, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("encode JSON: %w", err)
	}
	return nil
}
