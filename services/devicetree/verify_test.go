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

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynthesize_WorkedExample(t *testing.T) {
	tree := Forest{device("Root", 100, device("Child1", 40), device("Child2", 50))}

	out := SynthesizeVerificationNodes(tree)

	root := out[0]
	require.Len(t, root.Children, 3)
	d := root.Children[2]
	assert.Equal(t, KindDiff, d.Kind)
	assert.Equal(t, "DIFF Root", d.Title)
	assert.Equal(t, "diff Root", d.DeviceID)
	assert.Equal(t, 10.0, d.Value)
	assert.True(t, d.Available)
	assert.Len(t, tree[0].Children, 2, "input is not modified")

	root.Children[1].Value = 60
	out = SynthesizeVerificationNodes(out)

	assert.Equal(t, []string{"Child1", "Child2"}, childIDs(out[0]))
}

func TestSynthesize_UpdatesExistingDiffInPlace(t *testing.T) {
	tree := Forest{device("p", 100, diff("p", 1), device("a", 30))}

	out := SynthesizeVerificationNodes(tree)

	assert.Equal(t, []string{"diff p", "a"}, childIDs(out[0]))
	assert.Equal(t, 70.0, out[0].Children[0].Value)
}

func TestSynthesize_NegativeDelta(t *testing.T) {
	out := SynthesizeVerificationNodes(Forest{device("p", 10, device("a", 15))})

	d := diffChildren(out[0])
	require.Len(t, d, 1)
	assert.Equal(t, -5.0, d[0].Value)
}

func TestSynthesize_CollapsesDuplicateDiffs(t *testing.T) {
	tree := Forest{device("p", 10, diff("p", 1), device("a", 4), diff("p", 2), diff("p", 3))}

	out := SynthesizeVerificationNodes(tree)

	d := diffChildren(out[0])
	require.Len(t, d, 1)
	assert.Equal(t, 6.0, d[0].Value)
}

func TestSynthesize_RemovesAllDiffsWhenBalanced(t *testing.T) {
	tree := Forest{device("p", 10, diff("p", 1), device("a", 10), diff("p", 2))}

	out := SynthesizeVerificationNodes(tree)

	assert.Equal(t, []string{"a"}, childIDs(out[0]))
}

func TestSynthesize_RemovesStaleDiffWhenChildrenSumToZero(t *testing.T) {
	tree := Forest{device("p", 10, diff("p", 10))}

	out := SynthesizeVerificationNodes(tree)

	assert.Empty(t, out[0].Children)
}

func TestSynthesize_UnionParentsUntouched(t *testing.T) {
	u := union("u", device("a", 4), diff("u", 9))
	u.Value = 100

	out := SynthesizeVerificationNodes(Forest{u})

	assert.Equal(t, []string{"a", "diff u"}, childIDs(out[0]))
	assert.Equal(t, 9.0, out[0].Children[1].Value)
}

func TestSynthesize_Recurses(t *testing.T) {
	tree := Forest{device("p", 10, device("c", 10, device("g", 3)))}

	out := SynthesizeVerificationNodes(tree)

	assert.Equal(t, []string{"c"}, childIDs(out[0]))
	c := out[0].Children[0]
	d := diffChildren(c)
	require.Len(t, d, 1)
	assert.Equal(t, 7.0, d[0].Value)
}

func TestSynthesize_NoFloatNoise(t *testing.T) {
	tree := Forest{device("p", 0.3, device("a", 0.1), device("b", 0.2))}

	out := SynthesizeVerificationNodes(tree)

	assert.Empty(t, diffChildren(out[0]))
}

func TestSynthesize_Idempotent(t *testing.T) {
	tree := Forest{
		device("p", 100, device("a", 20, device("x", 5)), union("u", device("b", 30)), diff("p", 1), diff("p", 2)),
		device("q", 5),
	}

	once := SynthesizeVerificationNodes(RecomputeUnions(tree))
	twice := SynthesizeVerificationNodes(once)

	assert.Equal(t, once, twice)
}

func TestSynthesize_DiffBalance(t *testing.T) {
	tree := Forest{device("p", 57.25, device("a", 20.5), device("b", 11.25), union("u", device("c", 3)))}

	out := SynthesizeVerificationNodes(RecomputeUnions(tree))

	var sum float64
	var d *Node
	for _, kid := range out[0].Children {
		if kid.Kind == KindDiff {
			d = kid
			continue
		}
		sum += kid.Value
	}
	require.NotNil(t, d)
	assert.InDelta(t, out[0].Value, sum+d.Value, 1e-9)
}
