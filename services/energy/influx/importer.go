// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package influx

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianFlux/pkg/logging"
	"github.com/AleutianAI/AleutianFlux/pkg/telemetry"
	"github.com/AleutianAI/AleutianFlux/pkg/validation"
	"github.com/AleutianAI/AleutianFlux/services/energy/tariff"
)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
}

// EnergyMeasurement is the measurement imported readings are written to.
const EnergyMeasurement = "kWh"

// dateLayout accepts day and month with or without a leading zero.
const dateLayout = "2/1/2006"

// ImporterConfig tunes an Importer. Zero values take defaults.
type ImporterConfig struct {
	// BatchSize is the number of points per write. Default 500.
	BatchSize int

	// BatchesPerSecond caps the write rate. Default 5.
	BatchesPerSecond float64

	// Location interprets the day and hour columns. Default Europe/Rome,
	// or UTC when the zone database is unavailable.
	Location *time.Location

	Logger *logging.Logger
}

// Importer loads hourly consumption exports into InfluxDB as readings of a
// new csv-origin device.
type Importer struct {
	write     api.WriteAPIBlocking
	limiter   *rate.Limiter
	batchSize int
	loc       *time.Location
	logger    *logging.Logger
}

// ImportRequest names the device the rows belong to.
type ImportRequest struct {
	DeviceID   string `json:"device_id" validate:"required"`
	DeviceName string `json:"device_name" validate:"required"`
	Area       string `json:"area,omitempty"`
}

// ImportResult counts written and rejected rows.
type ImportResult struct {
	Written  int `json:"written"`
	Rejected int `json:"rejected"`
}

// Reading is one parsed hourly row.
type Reading struct {
	Time  time.Time
	Value float64
}

// NewImporter returns an Importer writing through w.
func NewImporter(w api.WriteAPIBlocking, cfg ImporterConfig) *Importer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.BatchesPerSecond <= 0 {
		cfg.BatchesPerSecond = 5
	}
	if cfg.Location == nil {
		loc, err := time.LoadLocation("Europe/Rome")
		if err != nil {
			loc = time.UTC
		}
		cfg.Location = loc
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	return &Importer{
		write:     w,
		limiter:   rate.NewLimiter(rate.Limit(cfg.BatchesPerSecond), 1),
		batchSize: cfg.BatchSize,
		loc:       cfg.Location,
		logger:    cfg.Logger.With("component", "influx_importer"),
	}
}

// Import parses r and writes one point per valid row.
//
// Description:
//
//	Rows are "dd/mm/yyyy;hour;value" with an optional header. A row with
//	a missing or unparsable field is counted in Rejected and skipped.
//	Points are written in batches, each batch waiting on the rate limiter.
//	A write failure aborts the import; rows written before it stay written.
//
// Inputs:
//
//	ctx - Cancels the import between batches.
//	r - The CSV export.
//	req - Device the readings belong to. DeviceID must be a valid id.
//
// Outputs:
//
//	ImportResult - Rows written and rejected so far.
//	error - Missing device name, invalid device id, unreadable CSV, or a
//	write failure.
func (im *Importer) Import(ctx context.Context, r io.Reader, req ImportRequest) (ImportResult, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "Importer.Import")
	defer span.End()

	var res ImportResult
	req.DeviceName = strings.TrimSpace(req.DeviceName)
	req.Area = strings.TrimSpace(req.Area)
	if err := validate.Struct(req); err != nil {
		return res, fmt.Errorf("invalid import request: %w", err)
	}
	id, err := validation.SanitizeDeviceID(req.DeviceID)
	if err != nil {
		return res, err
	}
	req.DeviceID = id

	readings, rejected, err := ParseReadings(r, im.loc)
	res.Rejected = rejected
	if err != nil {
		telemetry.RecordError(span, err)
		return res, err
	}

	for start := 0; start < len(readings); start += im.batchSize {
		end := min(start+im.batchSize, len(readings))
		if err := im.limiter.Wait(ctx); err != nil {
			return res, err
		}
		batch := make([]*write.Point, 0, end-start)
		for _, rd := range readings[start:end] {
			batch = append(batch, readingPoint(req, rd))
		}
		if err := im.write.WritePoint(ctx, batch...); err != nil {
			telemetry.RecordError(span, err)
			return res, fmt.Errorf("write readings %d-%d: %w", start, end, err)
		}
		res.Written += len(batch)
	}

	im.logger.Info("csv import finished", "device_id", req.DeviceID, "written", res.Written, "rejected", res.Rejected)
	telemetry.SetSpanOK(span)
	return res, nil
}

func readingPoint(req ImportRequest, rd Reading) *write.Point {
	tags := map[string]string{
		"device_id":           req.DeviceID,
		"device_name":         req.DeviceName,
		"friendly_name":       req.DeviceName,
		"unit_of_measurement": "kWh",
		"state_class":         "total_increasing",
		"device_class":        "energy",
		"transmission":        "csv",
		"type_measure":        "energia",
		"fascia":              tariff.BandAt(rd.Time).String(),
	}
	if req.Area != "" {
		tags["area"] = req.Area
	}
	return influxdb2.NewPoint(EnergyMeasurement, tags, map[string]interface{}{"value": rd.Value}, rd.Time)
}

// ParseReadings reads "dd/mm/yyyy;hour;value" rows, interpreting dates in
// loc. A first row whose first column is not a date is a header. Values
// may use a decimal comma.
func ParseReadings(r io.Reader, loc *time.Location) ([]Reading, int, error) {
	cr := csv.NewReader(r)
	cr.Comma = ';'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var (
		readings []Reading
		rejected int
		line     int
	)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				rejected++
				continue
			}
			return nil, rejected, fmt.Errorf("read csv: %w", err)
		}
		line++
		rd, ok := parseReading(rec, loc)
		if !ok {
			if line == 1 && !isDate(rec[0], loc) {
				continue
			}
			rejected++
			continue
		}
		readings = append(readings, rd)
	}
	return readings, rejected, nil
}

func isDate(field string, loc *time.Location) bool {
	_, err := time.ParseInLocation(dateLayout, strings.TrimSpace(field), loc)
	return err == nil
}

func parseReading(rec []string, loc *time.Location) (Reading, bool) {
	if len(rec) < 3 {
		return Reading{}, false
	}
	day, hourField, valueField := strings.TrimSpace(rec[0]), strings.TrimSpace(rec[1]), strings.TrimSpace(rec[2])
	if day == "" || hourField == "" || valueField == "" {
		return Reading{}, false
	}
	date, err := time.ParseInLocation(dateLayout, day, loc)
	if err != nil {
		return Reading{}, false
	}
	hour, err := strconv.Atoi(hourField)
	if err != nil || hour < 0 || hour > 24 {
		return Reading{}, false
	}
	value, err := strconv.ParseFloat(strings.Replace(valueField, ",", ".", 1), 64)
	if err != nil {
		return Reading{}, false
	}
	y, m, d := date.Date()
	return Reading{Time: time.Date(y, m, d, hour, 0, 0, 0, loc), Value: value}, true
}
