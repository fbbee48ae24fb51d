// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"context"
	"time"

	"github.com/AleutianAI/AleutianFlux/services/devicetree"
)

// MeasurementSource returns the devices that reported consumption in a
// period, each with the period's summed value. An empty result is valid.
type MeasurementSource interface {
	FetchMeasuredDevices(ctx context.Context, period Period) ([]devicetree.Device, error)
}

// LocalStore is the local cache of the session. Loads of missing data
// return empty values, not errors.
type LocalStore interface {
	LoadTree(ctx context.Context) (devicetree.Forest, error)
	SaveTree(ctx context.Context, tree devicetree.Forest) error
	LoadPeriod(ctx context.Context) (Period, error)
	SavePeriod(ctx context.Context, p Period) error
	LoadFlux(ctx context.Context) ([]devicetree.FluxEdge, error)
	SaveFlux(ctx context.Context, edges []devicetree.FluxEdge) error
	LoadDeviceCache(ctx context.Context) (map[string]devicetree.Device, error)
	SaveDevice(ctx context.Context, d devicetree.Device) error
}

// RemoteTreeStore durably persists a saved tree.
type RemoteTreeStore interface {
	PersistTree(ctx context.Context, tree devicetree.Forest) error
}

// Recorder receives session events for metrics.
type Recorder interface {
	ObserveFetch(d time.Duration, err error)
	ObserveReconcile(stats devicetree.TreeStats, listed int)
	ObserveFlux(edges int)
	ObserveSave(outcome string)
}

// Save outcomes reported to Recorder.ObserveSave.
const (
	SaveOK         = "ok"
	SaveInvalid    = "invalid"
	SaveRemoteFail = "remote_error"
)

type nopRecorder struct{}

func (nopRecorder) ObserveFetch(time.Duration, error)          {}
func (nopRecorder) ObserveReconcile(devicetree.TreeStats, int) {}
func (nopRecorder) ObserveFlux(int)                            {}
func (nopRecorder) ObserveSave(string)                         {}
