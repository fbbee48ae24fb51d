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
	"encoding/json"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianFlux/pkg/logging"
	"github.com/AleutianAI/AleutianFlux/pkg/telemetry"
	"github.com/AleutianAI/AleutianFlux/services/devicetree"
	"github.com/AleutianAI/AleutianFlux/services/energy/session"
)

const (
	// TreeMeasurement holds one point per node of a saved tree.
	TreeMeasurement = "device_tree"

	// SnapshotMeasurement holds the JSON of a whole saved tree.
	SnapshotMeasurement = "device_tree_snapshot"
)

// TreeStore implements session.RemoteTreeStore over the blocking write API.
type TreeStore struct {
	write  api.WriteAPIBlocking
	logger *logging.Logger
	now    func() time.Time
}

// NewTreeStore returns a TreeStore writing through w.
func NewTreeStore(w api.WriteAPIBlocking, logger *logging.Logger) *TreeStore {
	if logger == nil {
		logger = logging.Nop()
	}
	return &TreeStore{write: w, logger: logger.With("component", "influx_tree_store"), now: time.Now}
}

// PersistTree writes every node and a snapshot of the tree, all stamped
// with the same save time.
func (t *TreeStore) PersistTree(ctx context.Context, tree devicetree.Forest) error {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "TreeStore.PersistTree")
	defer span.End()

	points, err := TreePoints(tree, t.now())
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	span.SetAttributes(attribute.Int("points.count", len(points)))

	if err := t.write.WritePoint(ctx, points...); err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("write tree: %w", err)
	}
	t.logger.Debug("tree persisted", "points", len(points))
	telemetry.SetSpanOK(span)
	return nil
}

// TreePoints converts a forest into InfluxDB points.
//
// Description:
//
//	Each node becomes one TreeMeasurement point tagged with its device id,
//	its parent's device id ("" for roots) and its kind, with fields value,
//	available, title, depth and position (index among its siblings). One
//	trailing SnapshotMeasurement point carries the forest's JSON so the
//	tree can be restored exactly.
//
// Inputs:
//
//	tree - The forest to convert. Not modified.
//	ts - Timestamp shared by all points.
//
// Outputs:
//
//	[]*write.Point - Node points in pre-order, then the snapshot.
//	error - Non-nil if the forest cannot be encoded.
func TreePoints(tree devicetree.Forest, ts time.Time) ([]*write.Point, error) {
	var points []*write.Point
	var visit func(nodes []*devicetree.Node, parentID string, depth int)
	visit = func(nodes []*devicetree.Node, parentID string, depth int) {
		for i, n := range nodes {
			if n == nil {
				continue
			}
			points = append(points, influxdb2.NewPoint(
				TreeMeasurement,
				map[string]string{
					"device_id": n.DeviceID,
					"parent_id": parentID,
					"type":      n.Kind.String(),
				},
				map[string]interface{}{
					"value":     n.Value,
					"available": n.Available,
					"title":     n.Title,
					"depth":     depth,
					"position":  i,
				},
				ts,
			))
			visit(n.Children, n.DeviceID, depth+1)
		}
	}
	visit(tree, "", 0)

	if tree == nil {
		tree = devicetree.Forest{}
	}
	snapshot, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("encode tree snapshot: %w", err)
	}
	points = append(points, influxdb2.NewPoint(
		SnapshotMeasurement,
		map[string]string{},
		map[string]interface{}{
			"tree":  string(snapshot),
			"nodes": devicetree.Stats(tree).Nodes,
		},
		ts,
	))
	return points, nil
}

var _ session.RemoteTreeStore = (*TreeStore)(nil)
