// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package influx adapts InfluxDB to the energy session: it reads per-device
// consumption for a period, persists saved trees and imports CSV meter
// exports.
package influx

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/query"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianFlux/pkg/logging"
	"github.com/AleutianAI/AleutianFlux/pkg/telemetry"
	"github.com/AleutianAI/AleutianFlux/pkg/validation"
	"github.com/AleutianAI/AleutianFlux/services/devicetree"
	"github.com/AleutianAI/AleutianFlux/services/energy/session"
)

const tracerName = "energy.influx"

// Device origins and the icon given to devices imported from CSV exports.
const (
	OriginCSV    = "csv"
	OriginDevice = "device"
	CSVIcon      = "csv-enel"
)

// deviceQuery sums the energy readings of every device in [start, stop).
// Switch entities report their state under the "stato" measurement.
const deviceQuery = `
from(bucket: "%s")
  |> range(start: %s, stop: %s)
  |> filter(fn: (r) => r["_field"] == "value" and r.type_measure == "energia")
  |> map(fn: (r) => ({r with _measurement: if r.domain == "switch" then "stato" else r._measurement}))
  |> map(fn: (r) => ({
      device_id: r.device_id,
      area: r.area,
      entity_id: r.entity_id,
      device_name: r.device_name,
      type_measure: r.type_measure,
      transmission: r.transmission,
      unit: r._measurement,
      value: r._value,
      time: r._time,
  }))
  |> group(columns: ["device_id", "area", "entity_id", "device_name", "type_measure", "transmission", "unit"])
  |> sum(column: "value")
`

// Source implements session.MeasurementSource over the InfluxDB query API.
type Source struct {
	query  api.QueryAPI
	bucket string
	logger *logging.Logger
}

// NewSource validates bucket and returns a Source reading from it.
func NewSource(q api.QueryAPI, bucket string, logger *logging.Logger) (*Source, error) {
	if err := validation.ValidateName("bucket", bucket); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Source{query: q, bucket: bucket, logger: logger.With("component", "influx_source")}, nil
}

// DeviceQuery renders the Flux query for a resolved period.
func (s *Source) DeviceQuery(from, to time.Time) string {
	return fmt.Sprintf(deviceQuery, s.bucket,
		from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339))
}

// FetchMeasuredDevices returns one device per metering endpoint that
// reported energy in the period, with the period's total floored to two
// decimals. Rows without a device id are skipped; any other id is kept as
// reported.
func (s *Source) FetchMeasuredDevices(ctx context.Context, period session.Period) ([]devicetree.Device, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "Source.FetchMeasuredDevices",
		attribute.String("influx.bucket", s.bucket))
	defer span.End()

	resolved, err := period.Resolve(time.Now(), 0)
	if err != nil {
		return nil, err
	}

	result, err := s.query.Query(ctx, s.DeviceQuery(resolved.From, resolved.To))
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("query devices: %w", err)
	}
	devices := []devicetree.Device{}
	if result == nil {
		return devices, nil
	}
	defer result.Close()

	for result.Next() {
		d, ok := recordToDevice(result.Record())
		if !ok {
			s.logger.Warn("skipping row without device id", "device_id", result.Record().ValueByKey("device_id"))
			continue
		}
		devices = append(devices, d)
	}
	if err := result.Err(); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("read device rows: %w", err)
	}

	span.SetAttributes(attribute.Int("devices.count", len(devices)))
	telemetry.SetSpanOK(span)
	return devices, nil
}

// recordToDevice maps one grouped row to a Device.
func recordToDevice(rec *query.FluxRecord) (devicetree.Device, bool) {
	id := stringValue(rec, "device_id")
	if strings.TrimSpace(id) == "" {
		return devicetree.Device{}, false
	}
	d := devicetree.Device{
		ID:        id,
		Name:      stringValue(rec, "device_name"),
		Value:     floorCents(rec.ValueByKey("value")),
		Available: true,
	}
	if stringValue(rec, "transmission") == "csv" {
		d.Origin = OriginCSV
		d.Icon = CSVIcon
	} else {
		d.Origin = OriginDevice
	}
	return d, true
}

func stringValue(rec *query.FluxRecord, key string) string {
	s, _ := rec.ValueByKey(key).(string)
	return s
}

// floorCents floors a numeric row value to two decimals.
func floorCents(v any) float64 {
	var d decimal.Decimal
	switch n := v.(type) {
	case float64:
		d = decimal.NewFromFloat(n)
	case int64:
		d = decimal.NewFromInt(n)
	default:
		return 0
	}
	return d.RoundFloor(2).InexactFloat64()
}

var _ session.MeasurementSource = (*Source)(nil)
