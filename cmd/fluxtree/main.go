// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command fluxtree serves and inspects energy meter device trees.
//
// # Commands
//
//   - serve: run the HTTP API over InfluxDB and the local cache
//   - analyze FILE: print union totals, verification nodes and flux of a tree
//   - validate FILE: exit non-zero when a tree has an empty union
//   - import FILE: load an hourly consumption CSV as a new device
//
// # Environment Variables
//
//   - INFLUXDB_URL, INFLUXDB_TOKEN, INFLUXDB_ORG, INFLUXDB_BUCKET
//   - FLUXTREE_PORT: HTTP server port (default: 12310)
//   - FLUXTREE_LOG_LEVEL: debug, info, warn or error
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianFlux/cmd/fluxtree/config"
	"github.com/AleutianAI/AleutianFlux/pkg/logging"
)

// --- Global Command Variables ---
var (
	configPath string

	rootCmd = &cobra.Command{
		Use:   "fluxtree",
		Short: "Organize energy meters into a tree and analyze energy flow",
		Long: `fluxtree reconciles the devices measured in InfluxDB with a
user-arranged hierarchy, adds verification nodes for unmeasured
consumption and renders the energy flow as Sankey edges.`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"config file (default ~/.fluxtree/fluxtree.yaml)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newAnalyzeCmd())
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newImportCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads the configuration file and builds the logger from it.
// The caller must close the logger.
func loadConfig() (*config.FluxtreeConfig, *logging.Logger, error) {
	if err := config.Load(configPath); err != nil {
		return nil, nil, err
	}
	cfg := &config.Global
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("log level: %w", err)
	}
	logger := logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Log.Dir,
		Service: "fluxtree",
		JSON:    cfg.Log.JSON,
	})
	return cfg, logger, nil
}
