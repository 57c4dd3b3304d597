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
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/benchgate/benchgate/trend"
)

var (
	trendHistoryPath string
	trendJSONOutput  bool
)

// trendCmd analyzes an ordered metric history for direction, slope,
// and a short forecast.
var trendCmd = &cobra.Command{
	Use:   "trend",
	Short: "Analyze a metric history for direction and forecast",
	Long: `Fits a least-squares trend over the trailing window of a metric
history and reports direction, confidence, volatility, and a forecast.

The history file is a JSON array of values, oldest first, e.g.:

  [16.2, 16.4, 16.3, 16.9, 17.4, 17.8, 18.1, 18.5, 18.9, 19.4]

Examples:
  benchgate trend --history render_history.json
  benchgate trend --history render_history.json --json`,
	Args: cobra.NoArgs,
	RunE: runTrendCommand,
}

func init() {
	trendCmd.Flags().StringVar(&trendHistoryPath, "history", "",
		"Path to a JSON array of metric values, oldest first (required)")
	trendCmd.Flags().BoolVar(&trendJSONOutput, "json", false,
		"Output the analysis as JSON")
	_ = trendCmd.MarkFlagRequired("history")

	rootCmd.AddCommand(trendCmd)
}

func runTrendCommand(cmd *cobra.Command, args []string) error {
	payload, err := os.ReadFile(trendHistoryPath)
	if err != nil {
		return fmt.Errorf("read history file: %w", err)
	}

	var history []float64
	if err := json.Unmarshal(payload, &history); err != nil {
		return fmt.Errorf("parse history file %s: %w", trendHistoryPath, err)
	}

	analyzer := trend.NewAnalyzer(trend.Config{
		Window:          cfg.Trend.Window,
		ForecastPeriods: cfg.Trend.ForecastPeriods,
	})
	report := analyzer.Analyze(history)

	if trendJSONOutput {
		return writeJSON(os.Stdout, report)
	}

	fmt.Printf("Direction:  %s\n", report.Direction)
	fmt.Printf("Slope:      %+.4f per run\n", report.Slope)
	fmt.Printf("Confidence: %.2f\n", report.Confidence)
	fmt.Printf("Volatility: %.4f\n", report.Volatility)

	if len(report.Forecast) > 0 {
		fmt.Println("Forecast:")
		periods := make([]int, 0, len(report.Forecast))
		for p := range report.Forecast {
			periods = append(periods, p)
		}
		sort.Ints(periods)
		for _, p := range periods {
			fmt.Printf("  +%d: %.4f\n", p, report.Forecast[p])
		}
	}

	for _, insight := range report.Insights {
		fmt.Printf("Note: %s\n", insight)
	}
	return nil
}

// sortedKeys returns the map's keys in ascending order.
func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
