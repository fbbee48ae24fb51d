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
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	assert.Equal(t, KindDevice, ParseKind(""))
	assert.Equal(t, KindUnion, ParseKind("union"))
	assert.Equal(t, KindDiff, ParseKind("diff"))
	assert.Equal(t, KindDevice, ParseKind("energia"), "unknown tags are devices")

	assert.True(t, KindUnion.Synthetic())
	assert.True(t, KindDiff.Synthetic())
	assert.False(t, KindDevice.Synthetic())
}

func TestClone_DoesNotAlias(t *testing.T) {
	active := true
	src := Forest{device("a", 10, device("b", 4))}
	src[0].Presentation.Active = &active
	src[0].Presentation.Charts = &Charts{}

	dst := src.Clone()
	dst[0].Value = 99
	dst[0].Children[0].Value = 99
	*dst[0].Presentation.Active = false
	dst[0].Presentation.Charts.Realtime.Power = true

	assert.Equal(t, 10.0, src[0].Value)
	assert.Equal(t, 4.0, src[0].Children[0].Value)
	assert.True(t, *src[0].Presentation.Active)
	assert.False(t, src[0].Presentation.Charts.Realtime.Power)
}

func TestCloneNilForest(t *testing.T) {
	var f Forest
	out := f.Clone()
	require.NotNil(t, out)
	assert.Empty(t, out)
}

func TestNodeJSON_WireFormat(t *testing.T) {
	n := device("meter-1", 12.5)
	n.Presentation.CustomName = "Kitchen"
	n.Expanded = true

	data, err := json.Marshal(n)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "meter-1", raw["title"])
	assert.Equal(t, true, raw["expanded"])
	meta := raw["metadata"].(map[string]any)
	assert.Equal(t, "meter-1", meta["deviceId"])
	assert.Equal(t, 12.5, meta["value"])
	assert.Equal(t, true, meta["available"])
	assert.Equal(t, "", meta["type"])
	assert.Equal(t, "Kitchen", meta["customName"])
	_, hasChildren := raw["children"]
	assert.False(t, hasChildren)
}

func TestParseForest(t *testing.T) {
	doc := `[
	  {"title":"Main","expanded":true,"metadata":{"deviceId":"main","value":100,"available":true,"type":"energia","icon":"bolt"},
	   "children":[
	     {"title":"Group","metadata":{"deviceId":"g1","value":0,"available":true,"type":"union","customName":"ignored"},"children":[]},
	     {"title":"DIFF Main","metadata":{"deviceId":"diff Main","value":3,"available":true,"type":"diff"}}
	   ]},
	  null
	]`

	f, err := ParseForest([]byte(doc))
	require.NoError(t, err)
	require.Len(t, f, 1)

	main := f[0]
	assert.Equal(t, KindDevice, main.Kind)
	require.NotNil(t, main.Presentation)
	assert.Equal(t, "bolt", main.Presentation.Icon)
	require.Len(t, main.Children, 2)
	assert.Equal(t, KindUnion, main.Children[0].Kind)
	assert.Nil(t, main.Children[0].Presentation)
	assert.Equal(t, KindDiff, main.Children[1].Kind)

	empty, err := ParseForest(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = ParseForest([]byte(`{"title":`))
	assert.Error(t, err)
}

func TestForestRoundTrip(t *testing.T) {
	f := Forest{device("a", 10, union("u", device("b", 4)), diff("a", 6))}

	data, err := json.Marshal(f)
	require.NoError(t, err)
	back, err := ParseForest(data)
	require.NoError(t, err)

	assert.Equal(t, f, back)
}

func TestStats(t *testing.T) {
	f := Forest{
		device("a", 10, union("u", device("b", 4)), diff("a", 6)),
		unavailable(device("c", 1)),
	}
	assert.Equal(t, TreeStats{Nodes: 5, Devices: 3, Unions: 1, Diffs: 1, Unavailable: 1}, Stats(f))
}

func TestFind(t *testing.T) {
	f := Forest{device("a", 10, device("b", 4))}
	require.NotNil(t, f.Find("b"))
	assert.Equal(t, 4.0, f.Find("b").Value)
	assert.Nil(t, f.Find("missing"))
}
