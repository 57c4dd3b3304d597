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
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/benchgate/benchgate/baseline"
)

var (
	baselineMetricsPath string
	baselineVersion     int
	baselineJSONOutput  bool
	baselineRetention   time.Duration
)

var baselineCmd = &cobra.Command{
	Use:   "baseline",
	Short: "Manage stored performance baselines",
}

var baselineListCmd = &cobra.Command{
	Use:   "list",
	Short: "List baseline names",
	Args:  cobra.NoArgs,
	RunE:  runBaselineList,
}

var baselineShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show a stored baseline",
	Args:  cobra.ExactArgs(1),
	RunE:  runBaselineShow,
}

var baselineSaveCmd = &cobra.Command{
	Use:   "save <name>",
	Short: "Record a new baseline version from a metrics file",
	Args:  cobra.ExactArgs(1),
	RunE:  runBaselineSave,
}

var baselineCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove baselines older than the retention window",
	Long: `Removes baseline versions whose timestamp predates the retention
window. Removal is irreversible.`,
	Args: cobra.NoArgs,
	RunE: runBaselineCleanup,
}

func init() {
	baselineShowCmd.Flags().IntVar(&baselineVersion, "version", baseline.LatestVersion,
		"Version to show (0 = latest)")
	baselineShowCmd.Flags().BoolVar(&baselineJSONOutput, "json", false,
		"Output the record as JSON")

	baselineSaveCmd.Flags().StringVarP(&baselineMetricsPath, "metrics", "m", "",
		"Path to a JSON file of metric values (required)")
	_ = baselineSaveCmd.MarkFlagRequired("metrics")

	baselineCleanupCmd.Flags().DurationVar(&baselineRetention, "retention", 0,
		"Retention window (defaults to the configured value)")

	baselineCmd.AddCommand(baselineListCmd, baselineShowCmd, baselineSaveCmd, baselineCleanupCmd)
	rootCmd.AddCommand(baselineCmd)
}

func runBaselineList(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := openStore()
	if err != nil {
		return fmt.Errorf("open baseline store: %w", err)
	}
	defer store.Close()

	names, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("list baselines: %w", err)
	}

	if len(names) == 0 {
		fmt.Println("No baselines recorded.")
		return nil
	}

	for _, name := range names {
		versions, err := store.Versions(ctx, name)
		if err != nil {
			return fmt.Errorf("versions for %s: %w", name, err)
		}
		fmt.Printf("%s\t%d version(s), latest v%d\n", name, len(versions), versions[len(versions)-1])
	}
	return nil
}

func runBaselineShow(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := openStore()
	if err != nil {
		return fmt.Errorf("open baseline store: %w", err)
	}
	defer store.Close()

	record, err := store.Get(ctx, args[0], baselineVersion)
	if err != nil {
		return fmt.Errorf("get baseline %s: %w", args[0], err)
	}

	if baselineJSONOutput {
		return writeJSON(os.Stdout, record)
	}

	fmt.Printf("Baseline: %s (v%d)\n", record.Name, record.Version)
	fmt.Printf("Recorded: %s\n", time.Unix(record.Timestamp, 0).UTC().Format(time.RFC3339))
	if record.Metadata.EngineVersion != "" {
		fmt.Printf("Engine:   %s\n", record.Metadata.EngineVersion)
	}
	if record.Metadata.SystemInfo != "" {
		fmt.Printf("System:   %s\n", record.Metadata.SystemInfo)
	}
	fmt.Println("Metrics:")
	for _, metric := range sortedKeys(record.Data) {
		fmt.Printf("  %-24s %g\n", metric, record.Data[metric])
	}
	return nil
}

func runBaselineSave(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	metrics, err := readMetricsFile(baselineMetricsPath)
	if err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return fmt.Errorf("open baseline store: %w", err)
	}
	defer store.Close()

	meta := baseline.Metadata{
		SystemInfo: runtime.GOOS + " " + runtime.GOARCH,
		CPUInfo:    fmt.Sprintf("%d cores", runtime.NumCPU()),
	}

	record, err := store.Save(ctx, args[0], metrics, meta)
	if err != nil {
		return fmt.Errorf("save baseline %s: %w", args[0], err)
	}

	fmt.Printf("Recorded baseline %s v%d (%d metrics)\n", record.Name, record.Version, len(record.Data))
	return nil
}

func runBaselineCleanup(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	store, err := openStore()
	if err != nil {
		return fmt.Errorf("open baseline store: %w", err)
	}
	defer store.Close()

	retention := baselineRetention
	if retention <= 0 {
		retention = cfg.Store.Retention.Std()
	}

	removed, err := store.Cleanup(ctx, retention)
	if err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}

	fmt.Printf("Removed %d expired baseline(s) (retention %s)\n", removed, retention)
	return nil
}
