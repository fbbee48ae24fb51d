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
	"fmt"

	"github.com/google/uuid"
)

// UnionTitle is the default title of a freshly created union node.
const UnionTitle = "Node"

// DeviceToNode wraps a flat device as an expanded device node.
func DeviceToNode(d Device) *Node {
	return &Node{
		Title:        d.Name,
		Expanded:     true,
		Kind:         KindDevice,
		DeviceID:     d.ID,
		Value:        d.Value,
		Available:    d.Available,
		Presentation: d.Presentation.Clone(),
	}
}

// NodeToDevice flattens a node into a device record. The title becomes the
// name and Type is always empty.
func NodeToDevice(n *Node) Device {
	d := Device{
		ID:        n.DeviceID,
		Name:      n.Title,
		Value:     n.Value,
		Available: n.Available,
	}
	if n.Presentation != nil {
		d.Presentation = *n.Presentation.Clone()
	}
	return d
}

// Attach moves devices[index] into the tree.
//
// The device is wrapped with DeviceToNode and appended as the last root
// when parentPath is empty, or as the last child of the node at parentPath.
// Neither tree nor devices is modified.
func Attach(tree Forest, devices []Device, index int, parentPath Path) (Forest, []Device, error) {
	if index < 0 || index >= len(devices) {
		return nil, nil, fmt.Errorf("%w: device %d of %d", ErrIndexOutOfRange, index, len(devices))
	}
	root := holder(tree)
	parent, err := root.at(parentPath)
	if err != nil {
		return nil, nil, err
	}
	if parent.Kind == KindDiff {
		return nil, nil, fmt.Errorf("%w: cannot attach under diff node %q", ErrInvalidMove, parent.DeviceID)
	}
	parent.Children = append(parent.Children, DeviceToNode(devices[index]))

	rest := make([]Device, 0, len(devices)-1)
	rest = append(rest, devices[:index]...)
	rest = append(rest, devices[index+1:]...)
	return root.forest(), rest, nil
}

// Detach removes the subtree at path and returns its devices to the list.
//
// Every available device node of the subtree, the addressed node included,
// is appended to the list in pre-order. Union, diff and unavailable nodes
// are dropped: a union has no device to restore and an unavailable device
// has no current measurement.
func Detach(tree Forest, devices []Device, path Path) (Forest, []Device, error) {
	if len(path) == 0 {
		return nil, nil, fmt.Errorf("%w: %s", ErrPathNotFound, path)
	}
	root := holder(tree)
	removed, err := root.removeAt(path)
	if err != nil {
		return nil, nil, err
	}

	out := make([]Device, len(devices), len(devices)+1)
	copy(out, devices)
	Forest{removed}.Walk(func(n *Node, _ int) bool {
		if n.Kind == KindDevice && n.Available {
			out = append(out, NodeToDevice(n))
		}
		return true
	})
	return root.forest(), out, nil
}

// AddUnionNode appends a new union node as the last root, or as the last
// child of the node at parentPath. Its id is a random UUID and its value
// is replaced by the children's sum on the next RecomputeUnions.
func AddUnionNode(tree Forest, initialValue float64, parentPath Path) (Forest, error) {
	root := holder(tree)
	parent, err := root.at(parentPath)
	if err != nil {
		return nil, err
	}
	if parent.Kind == KindDiff {
		return nil, fmt.Errorf("%w: cannot add a union under diff node %q", ErrInvalidMove, parent.DeviceID)
	}
	parent.Children = append(parent.Children, NewUnionNode(initialValue))
	return root.forest(), nil
}

// NewUnionNode returns an empty, available union node.
func NewUnionNode(initialValue float64) *Node {
	return &Node{
		Title:     UnionTitle,
		Expanded:  true,
		Kind:      KindUnion,
		DeviceID:  uuid.NewString(),
		Value:     initialValue,
		Available: true,
	}
}

// Move re-parents the node at from under toParent at position index; an
// empty toParent means root level and a negative index appends.
//
// Drop rules: diff nodes cannot be moved, nothing can be dropped under a
// diff node and a node cannot be dropped into its own subtree. Violations
// return ErrInvalidMove.
func Move(tree Forest, from Path, toParent Path, index int) (Forest, error) {
	moving, err := NodeAt(tree, from)
	if err != nil {
		return nil, err
	}
	if moving.Kind == KindDiff {
		return nil, fmt.Errorf("%w: diff node %q is not movable", ErrInvalidMove, moving.DeviceID)
	}
	if from.Contains(toParent) {
		return nil, fmt.Errorf("%w: %s is inside %s", ErrInvalidMove, toParent, from)
	}
	target, err := (&Node{Children: tree}).at(toParent)
	if err != nil {
		return nil, err
	}
	if target.Kind == KindDiff {
		return nil, fmt.Errorf("%w: cannot drop under diff node %q", ErrInvalidMove, target.DeviceID)
	}

	root := holder(tree)
	removed, err := root.removeAt(from)
	if err != nil {
		return nil, err
	}
	parent, err := root.at(shiftAfterRemoval(toParent, from))
	if err != nil {
		return nil, err
	}
	if err := insert(parent, removed, index); err != nil {
		return nil, err
	}
	return root.forest(), nil
}

// shiftAfterRemoval rewrites target so it still addresses the same node
// once the node at removed has been taken out of the tree.
func shiftAfterRemoval(target, removed Path) Path {
	out := append(Path(nil), target...)
	last := len(removed) - 1
	if len(out) <= last {
		return out
	}
	for i := 0; i < last; i++ {
		if out[i] != removed[i] {
			return out
		}
	}
	if out[last] > removed[last] {
		out[last]--
	}
	return out
}

// UpdatePresentation replaces the presentation metadata of the device node
// at path and returns the updated device record for the metadata cache.
func UpdatePresentation(tree Forest, path Path, p Presentation) (Forest, Device, error) {
	if len(path) == 0 {
		return nil, Device{}, fmt.Errorf("%w: %s", ErrPathNotFound, path)
	}
	root := holder(tree)
	n, err := root.at(path)
	if err != nil {
		return nil, Device{}, err
	}
	if n.Kind != KindDevice {
		return nil, Device{}, fmt.Errorf("%w: %q is a %s node", ErrNotDeviceNode, n.DeviceID, n.Kind)
	}
	n.Presentation = p.Clone()
	return root.forest(), NodeToDevice(n), nil
}
