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

func device(id string, value float64, kids ...*Node) *Node {
	return &Node{Title: id, DeviceID: id, Value: value, Available: true, Presentation: &Presentation{}, Children: kids}
}

func union(id string, kids ...*Node) *Node {
	return &Node{Title: id, Kind: KindUnion, DeviceID: id, Available: true, Children: kids}
}

func diff(parent string, value float64) *Node {
	return &Node{Title: "DIFF " + parent, Kind: KindDiff, DeviceID: "diff " + parent, Value: value, Available: true}
}

func unavailable(n *Node) *Node {
	n.Available = false
	return n
}

func childIDs(n *Node) []string {
	ids := make([]string, 0, len(n.Children))
	for _, kid := range n.Children {
		ids = append(ids, kid.DeviceID)
	}
	return ids
}

func diffChildren(n *Node) []*Node {
	var out []*Node
	for _, kid := range n.Children {
		if kid.Kind == KindDiff {
			out = append(out, kid)
		}
	}
	return out
}
