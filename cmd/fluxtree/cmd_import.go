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
	"errors"
	"fmt"
	"os"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianFlux/services/energy/influx"
)

func newImportCmd() *cobra.Command {
	var req influx.ImportRequest
	var bucket string
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import an hourly consumption CSV as a new device",
		Long: `Loads a "day;hour;kWh" export, one row per hour, into InfluxDB.
Each reading is tagged with its tariff band. The device shows up in the
device list on the next period change.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Close()

			ic := cfg.Service.Influx
			if ic.Token == "" {
				return errors.New("influx token is required, set INFLUXDB_TOKEN")
			}
			if bucket == "" {
				bucket = ic.Bucket
			}

			var loc *time.Location
			if cfg.Import.Timezone != "" {
				if loc, err = time.LoadLocation(cfg.Import.Timezone); err != nil {
					return fmt.Errorf("timezone: %w", err)
				}
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			client := influxdb2.NewClient(ic.URL, ic.Token)
			defer client.Close()

			im := influx.NewImporter(client.WriteAPIBlocking(ic.Org, bucket), influx.ImporterConfig{
				BatchSize:        cfg.Import.BatchSize,
				BatchesPerSecond: cfg.Import.BatchesPerSecond,
				Location:         loc,
				Logger:           logger,
			})
			res, err := im.Import(cmd.Context(), f, req)
			fmt.Fprintf(cmd.OutOrStdout(), "written: %d, rejected: %d\n", res.Written, res.Rejected)
			return err
		},
	}
	cmd.Flags().StringVar(&req.DeviceID, "device-id", "", "id of the new device")
	cmd.Flags().StringVar(&req.DeviceName, "device-name", "", "display name of the new device")
	cmd.Flags().StringVar(&req.Area, "area", "", "area tag")
	cmd.Flags().StringVar(&bucket, "bucket", "", "target bucket, defaults to the configured one")
	_ = cmd.MarkFlagRequired("device-id")
	_ = cmd.MarkFlagRequired("device-name")
	return cmd
}
