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
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/benchgate/benchgate/baseline"
	"github.com/benchgate/benchgate/config"
	"github.com/benchgate/benchgate/logging"
	"github.com/benchgate/benchgate/storage/badgerdb"
)

var (
	cfgPath string
	logDir  string
	verbose bool

	cfg    *config.Config
	logger *logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "benchgate",
	Short: "Performance baseline and regression gating",
	Long: `benchgate records performance baselines, analyzes trends across
runs, and gates CI/CD pipelines on performance regressions.

Examples:
  benchgate gate render --metrics current.json
  benchgate baseline list
  benchgate baseline save render --metrics current.json
  benchgate trend --history history.json
  benchgate detect --baseline before.json --current after.json`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	os.Exit(run())
}

// run wraps Execute so deferred cleanup happens before the process
// exits; gate and detect failures surface here as errors.
func run() int {
	defer func() {
		if logger != nil {
			_ = logger.Close()
		}
	}()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "",
		"Path to benchgate.yaml (defaults apply when omitted)")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "",
		"Directory for JSON log files (disabled when omitted)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Enable debug logging")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		level := logging.LevelInfo
		if verbose {
			level = logging.LevelDebug
		}
		logger = logging.New(logging.Config{
			Level:  level,
			LogDir: logDir,
		})
		slog.SetDefault(logger.Slog())

		if cfgPath == "" {
			cfg = config.Default()
			return nil
		}

		loaded, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config %s: %w", cfgPath, err)
		}
		cfg = loaded
		return nil
	}
}

// openStore builds the configured baseline store.
func openStore() (baseline.Store, error) {
	switch cfg.Store.Backend {
	case config.BackendMemory:
		return baseline.NewMemoryStore(), nil

	case config.BackendFile:
		return baseline.NewFileStore(cfg.Store.Path, slog.Default())

	case config.BackendBadger:
		dbCfg := badgerdb.DefaultConfig()
		dbCfg.Path = cfg.Store.Path
		dbCfg.Logger = slog.Default()
		db, err := badgerdb.Open(dbCfg)
		if err != nil {
			return nil, err
		}
		return baseline.NewBadgerStore(db, slog.Default())

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
