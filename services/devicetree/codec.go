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
	"fmt"
)

// nodeJSON is the persisted shape of a Node: display fields at the top
// level and everything the engine reads under "metadata".
type nodeJSON struct {
	Title    string       `json:"title"`
	Subtitle string       `json:"subtitle,omitempty"`
	Expanded bool         `json:"expanded"`
	Metadata metadataJSON `json:"metadata"`
	Children []*Node      `json:"children,omitempty"`
}

type metadataJSON struct {
	DeviceID  string  `json:"deviceId"`
	Value     float64 `json:"value"`
	Available bool    `json:"available"`
	Type      string  `json:"type"`
	Presentation
}

// MarshalJSON encodes the node in the persisted tree format.
func (n *Node) MarshalJSON() ([]byte, error) {
	out := nodeJSON{
		Title:    n.Title,
		Subtitle: n.Subtitle,
		Expanded: n.Expanded,
		Metadata: metadataJSON{
			DeviceID:  n.DeviceID,
			Value:     n.Value,
			Available: n.Available,
			Type:      n.Kind.String(),
		},
		Children: n.Children,
	}
	if n.Kind == KindDevice && n.Presentation != nil {
		out.Metadata.Presentation = *n.Presentation
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the persisted tree format. Presentation fields on
// union and diff nodes are discarded.
func (n *Node) UnmarshalJSON(data []byte) error {
	var in nodeJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("decoding tree node: %w", err)
	}
	*n = Node{
		Title:     in.Title,
		Subtitle:  in.Subtitle,
		Expanded:  in.Expanded,
		Kind:      ParseKind(in.Metadata.Type),
		DeviceID:  in.Metadata.DeviceID,
		Value:     in.Metadata.Value,
		Available: in.Metadata.Available,
		Children:  in.Children,
	}
	if n.Kind == KindDevice {
		p := in.Metadata.Presentation
		n.Presentation = &p
	}
	return nil
}

// ParseForest decodes a JSON array of tree nodes. An empty document or a
// JSON null yields an empty forest. Null roots are dropped.
func ParseForest(data []byte) (Forest, error) {
	if len(data) == 0 {
		return Forest{}, nil
	}
	var f Forest
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	out := make(Forest, 0, len(f))
	for _, root := range f {
		if root != nil {
			out = append(out, root)
		}
	}
	return out, nil
}
