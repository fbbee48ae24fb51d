// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package devicetree

// Reconciliation is the result of merging a period's measurements into a tree.
type Reconciliation struct {
	// Tree is the updated forest, verification nodes already refreshed.
	Tree Forest `json:"tree"`

	// Devices are the measured devices not placed in the tree, in
	// measurement order, overlaid with cached metadata.
	Devices []Device `json:"devices"`
}

// Reconcile merges the measured devices of a period into a saved tree.
//
// Description:
//
//	Walks the tree in pre-order. A node whose DeviceID matches a measured
//	device takes the measured value, becomes available and consumes the
//	device so it is not offered again in the flat list. If several
//	measurements share an id, the first one is consumed. Nodes without a
//	measurement keep their last known value; they stay available only when
//	they are union or diff nodes.
//
//	The verification nodes of the whole tree are refreshed afterwards.
//
//	Unconsumed measurements form the flat device list. When cache holds a
//	record for the id, the cached name and presentation fields replace the
//	measured ones. The measured value is kept and Available is always true.
//
// Inputs:
//
//	tree - The saved forest. Not modified.
//	measured - The period's measurements. Not modified.
//	cache - Device metadata overrides keyed by id. May be nil.
//
// Outputs:
//
//	Reconciliation - The new tree and the flat device list.
func Reconcile(tree Forest, measured []Device, cache map[string]Device) Reconciliation {
	out := tree.Clone()

	pending := make([]Device, len(measured))
	copy(pending, measured)
	consumed := make([]bool, len(pending))

	out.Walk(func(n *Node, _ int) bool {
		idx := -1
		for i := range pending {
			if !consumed[i] && pending[i].ID == n.DeviceID {
				idx = i
				break
			}
		}
		if idx >= 0 {
			n.Value = pending[idx].Value
			n.Available = true
			consumed[idx] = true
		} else {
			n.Available = n.Kind.Synthetic()
		}
		return true
	})

	devices := make([]Device, 0, len(pending))
	for i, d := range pending {
		if consumed[i] {
			continue
		}
		devices = append(devices, mergeCached(d, cache))
	}

	return Reconciliation{
		Tree:    synthesize(out),
		Devices: devices,
	}
}

// mergeCached overlays the editable fields of a cached record onto a fresh
// measurement.
func mergeCached(measured Device, cache map[string]Device) Device {
	out := measured
	if cached, ok := cache[measured.ID]; ok {
		out.Name = cached.Name
		out.Presentation = *cached.Presentation.Clone()
		if out.Name == "" {
			out.Name = measured.Name
		}
	}
	out.Available = true
	return out
}
