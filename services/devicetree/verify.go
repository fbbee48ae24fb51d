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

import "github.com/shopspring/decimal"

// Diff nodes are named after their parent's title.
const (
	diffTitlePrefix = "DIFF "
	diffIDPrefix    = "diff "
)

// SynthesizeVerificationNodes balances every non-union parent against its
// children with a single diff child.
//
// Description:
//
//	For each parent with children (diff nodes are skipped), cumulative is
//	the sum of the non-diff children and delta is parent.Value minus
//	cumulative. Sums are taken in decimal so float noise such as
//	0.1+0.2 != 0.3 never leaves a phantom diff node behind.
//
//	Union parents are left alone. Other parents get exactly one diff child
//	holding delta when delta is non-zero and cumulative is positive: an
//	existing diff child is updated in place (extra ones are dropped),
//	otherwise a new one is appended. In every other case all diff children
//	are removed. The pass then recurses into the rebuilt children.
//
//	Running the pass twice yields the same tree.
//
// Inputs:
//
//	tree - The forest to normalize. Not modified.
//
// Outputs:
//
//	Forest - A new, balanced forest.
func SynthesizeVerificationNodes(tree Forest) Forest {
	return synthesize(tree.Clone())
}

// synthesize balances an exclusively owned forest in place.
func synthesize(nodes Forest) Forest {
	for _, n := range nodes {
		if n == nil || n.Kind == KindDiff || !n.HasChildren() {
			continue
		}
		if n.Kind != KindUnion {
			n.Children = balance(n)
		}
		synthesize(n.Children)
	}
	return nodes
}

// balance returns the rebuilt children list of a non-union parent.
func balance(parent *Node) []*Node {
	cumulative := decimal.Zero
	for _, kid := range parent.Children {
		if kid != nil && kid.Kind != KindDiff {
			cumulative = cumulative.Add(decimal.NewFromFloat(kid.Value))
		}
	}
	delta := decimal.NewFromFloat(parent.Value).Sub(cumulative)
	keep := !delta.IsZero() && cumulative.IsPositive()

	rebuilt := make([]*Node, 0, len(parent.Children)+1)
	placed := false
	for _, kid := range parent.Children {
		if kid == nil {
			continue
		}
		if kid.Kind != KindDiff {
			rebuilt = append(rebuilt, kid)
			continue
		}
		if keep && !placed {
			kid.Value = delta.InexactFloat64()
			kid.Available = true
			kid.Children = nil
			rebuilt = append(rebuilt, kid)
			placed = true
		}
	}
	if keep && !placed {
		rebuilt = append(rebuilt, newDiffNode(parent, delta.InexactFloat64()))
	}
	return rebuilt
}

func newDiffNode(parent *Node, value float64) *Node {
	return &Node{
		Title:     diffTitlePrefix + parent.Title,
		Subtitle:  parent.Subtitle,
		Expanded:  parent.Expanded,
		Kind:      KindDiff,
		DeviceID:  diffIDPrefix + parent.Title,
		Value:     value,
		Available: true,
	}
}
