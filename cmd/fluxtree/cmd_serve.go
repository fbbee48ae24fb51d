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

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianFlux/services/energy"
)

func newServeCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the device tree HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Close()

			svcCfg := cfg.Service
			if cmd.Flags().Changed("port") {
				svcCfg.Port = port
			}
			logger.Info("Starting fluxtree",
				"port", svcCfg.Port,
				"influx_url", svcCfg.Influx.URL,
				"bucket", svcCfg.Influx.Bucket,
			)

			svc, err := energy.New(svcCfg, &energy.Options{Logger: logger})
			if err != nil {
				return fmt.Errorf("failed to create service: %w", err)
			}
			return svc.Run()
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "HTTP port, overrides the config file")
	return cmd
}
