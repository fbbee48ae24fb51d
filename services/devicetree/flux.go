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

// FluxHeader is the header row of a flux table.
var FluxHeader = []any{"From", "To", "Weight"}

// AnalyzeFlux appends the flow edges of the tree to acc and returns it.
//
// Description:
//
//	An available node that is not below an unavailable ancestor emits one
//	edge (node.DeviceID, child.DeviceID, child.Value) per available child.
//	Traversal continues below every node, but once a node is unavailable
//	its whole subtree emits nothing, whatever the deeper availability.
//
//	acc allows accumulating several forests into one edge list.
//
// Inputs:
//
//	tree - The forest to analyze. Not modified.
//	acc - Edges collected so far. May be nil.
//
// Outputs:
//
//	[]FluxEdge - acc with the tree's edges appended.
func AnalyzeFlux(tree Forest, acc []FluxEdge) []FluxEdge {
	return analyzeFlux(tree, acc, false)
}

// ComputeFlux returns the flow edges of the tree.
func ComputeFlux(tree Forest) []FluxEdge {
	return AnalyzeFlux(tree, []FluxEdge{})
}

func analyzeFlux(nodes []*Node, acc []FluxEdge, suppressed bool) []FluxEdge {
	for _, n := range nodes {
		if n == nil {
			continue
		}
		if n.Available && !suppressed {
			for _, kid := range n.Children {
				if kid != nil && kid.Available {
					acc = append(acc, FluxEdge{From: n.DeviceID, To: kid.DeviceID, Weight: kid.Value})
				}
			}
		}
		if n.HasChildren() {
			acc = analyzeFlux(n.Children, acc, suppressed || !n.Available)
		}
	}
	return acc
}

// FluxTable renders edges as rows headed by FluxHeader, the layout Sankey
// charts consume. It returns nil when there are no edges.
func FluxTable(edges []FluxEdge) [][]any {
	if len(edges) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(edges)+1)
	rows = append(rows, append([]any(nil), FluxHeader...))
	for _, e := range edges {
		rows = append(rows, []any{e.From, e.To, e.Weight})
	}
	return rows
}
