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
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/benchgate/benchgate/regression"
	"github.com/benchgate/benchgate/stats"
)

var (
	detectBaselinePath string
	detectCurrentPath  string
	detectThreshold    float64
	detectJSONOutput   bool
)

// errRegressionDetected maps a detected regression to exit code 1 in
// main without bypassing deferred cleanup.
var errRegressionDetected = errors.New("regression detected")

// detectCmd runs a statistical regression comparison between two raw
// sample sets, independent of any stored baseline.
var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Compare two sample sets for a statistical regression",
	Long: `Computes summary statistics for the baseline and current sample
files and reports whether the current samples regressed, with severity
and a separation-based confidence score.

Each sample file is a JSON array of measurements, e.g.:

  [16.2, 16.4, 16.3, 16.5, 16.1]

Examples:
  benchgate detect --baseline before.json --current after.json
  benchgate detect --baseline before.json --current after.json --threshold 0.05`,
	Args: cobra.NoArgs,
	RunE: runDetectCommand,
}

func init() {
	detectCmd.Flags().StringVar(&detectBaselinePath, "baseline", "",
		"Path to a JSON array of baseline samples (required)")
	detectCmd.Flags().StringVar(&detectCurrentPath, "current", "",
		"Path to a JSON array of current samples (required)")
	detectCmd.Flags().Float64Var(&detectThreshold, "threshold", regression.DefaultThreshold,
		"Relative change that counts as a regression")
	detectCmd.Flags().BoolVar(&detectJSONOutput, "json", false,
		"Output the report as JSON")
	_ = detectCmd.MarkFlagRequired("baseline")
	_ = detectCmd.MarkFlagRequired("current")

	rootCmd.AddCommand(detectCmd)
}

func runDetectCommand(cmd *cobra.Command, args []string) error {
	baselineSamples, err := readSamplesFile(detectBaselinePath)
	if err != nil {
		return err
	}
	currentSamples, err := readSamplesFile(detectCurrentPath)
	if err != nil {
		return err
	}

	engine := stats.NewEngine(0.95)
	baselineSummary, err := engine.Compute(baselineSamples)
	if err != nil {
		return fmt.Errorf("baseline samples: %w", err)
	}
	currentSummary, err := engine.Compute(currentSamples)
	if err != nil {
		return fmt.Errorf("current samples: %w", err)
	}

	detector := regression.NewDetector(regression.Config{Threshold: detectThreshold})
	report := detector.Compare(currentSummary, baselineSummary)

	if detectJSONOutput {
		if err := writeJSON(os.Stdout, report); err != nil {
			return err
		}
	} else {
		fmt.Println(report.String())
		fmt.Printf("  baseline mean: %.4f (n=%d)\n", baselineSummary.Mean, baselineSummary.Count)
		fmt.Printf("  current mean:  %.4f (n=%d)\n", currentSummary.Mean, currentSummary.Count)
	}

	if report.Detected && report.Kind != regression.KindImprovement {
		return fmt.Errorf("%w: %s", errRegressionDetected, report.String())
	}
	return nil
}

// readSamplesFile parses a JSON array of sample values.
func readSamplesFile(path string) ([]float64, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read samples file: %w", err)
	}

	var samples []float64
	if err := json.Unmarshal(payload, &samples); err != nil {
		return nil, fmt.Errorf("parse samples file %s: %w", path, err)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("samples file %s contains no samples", path)
	}
	return samples, nil
}
