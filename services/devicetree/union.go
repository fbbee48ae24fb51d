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

// RecomputeUnions sets every union node's value to the sum of its children,
// bottom-up, so nested unions see their children's fresh totals. Values of
// device and diff nodes are authoritative and left untouched.
//
// A union without children sums to zero; Validate rejects such trees.
func RecomputeUnions(tree Forest) Forest {
	out := tree.Clone()
	recomputeUnions(out)
	return out
}

func recomputeUnions(nodes []*Node) {
	for _, n := range nodes {
		if n == nil {
			continue
		}
		recomputeUnions(n.Children)
		if n.Kind != KindUnion {
			continue
		}
		var sum float64
		for _, kid := range n.Children {
			if kid != nil {
				sum += kid.Value
			}
		}
		n.Value = sum
	}
}
