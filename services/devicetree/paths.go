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
	"strconv"
	"strings"
)

// Path addresses a node by child indices from the forest: Path{2} is the
// third root, Path{2, 0} its first child. A nil or empty Path addresses the
// forest itself and is only meaningful as a parent.
type Path []int

// String renders the path as slash separated indices, "/" for the forest.
func (p Path) String() string {
	if len(p) == 0 {
		return "/"
	}
	parts := make([]string, len(p))
	for i, idx := range p {
		parts[i] = strconv.Itoa(idx)
	}
	return "/" + strings.Join(parts, "/")
}

// Parent returns the path of the parent, nil for a root.
func (p Path) Parent() Path {
	if len(p) <= 1 {
		return nil
	}
	return append(Path(nil), p[:len(p)-1]...)
}

// Contains reports whether other addresses p itself or a node below it.
func (p Path) Contains(other Path) bool {
	if len(p) == 0 || len(other) < len(p) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// NodeAt returns the node addressed by path. The node belongs to tree.
func NodeAt(tree Forest, path Path) (*Node, error) {
	if len(path) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrPathNotFound, path)
	}
	return (&Node{Children: tree}).at(path)
}

// at resolves path below n. An empty path resolves to n.
func (n *Node) at(path Path) (*Node, error) {
	cur := n
	for depth, idx := range path {
		if idx < 0 || idx >= len(cur.Children) || cur.Children[idx] == nil {
			return nil, fmt.Errorf("%w: %s", ErrPathNotFound, path[:depth+1])
		}
		cur = cur.Children[idx]
	}
	return cur, nil
}

// holder wraps an owned forest in a synthetic parent so root and nested
// positions are handled alike.
func holder(tree Forest) *Node {
	return &Node{Kind: KindUnion, Children: tree.Clone()}
}

func (n *Node) forest() Forest {
	if n.Children == nil {
		return Forest{}
	}
	return Forest(n.Children)
}

// removeAt detaches and returns the node at path below n.
func (n *Node) removeAt(path Path) (*Node, error) {
	parent, err := n.at(path[:len(path)-1])
	if err != nil {
		return nil, err
	}
	idx := path[len(path)-1]
	if idx < 0 || idx >= len(parent.Children) || parent.Children[idx] == nil {
		return nil, fmt.Errorf("%w: %s", ErrPathNotFound, path)
	}
	removed := parent.Children[idx]
	kids := make([]*Node, 0, len(parent.Children)-1)
	kids = append(kids, parent.Children[:idx]...)
	kids = append(kids, parent.Children[idx+1:]...)
	parent.Children = kids
	return removed, nil
}

// insert places child at position index of parent's children; a negative
// index appends.
func insert(parent *Node, child *Node, index int) error {
	if index < 0 {
		parent.Children = append(parent.Children, child)
		return nil
	}
	if index > len(parent.Children) {
		return fmt.Errorf("%w: position %d of %d", ErrIndexOutOfRange, index, len(parent.Children))
	}
	kids := make([]*Node, 0, len(parent.Children)+1)
	kids = append(kids, parent.Children[:index]...)
	kids = append(kids, child)
	kids = append(kids, parent.Children[index:]...)
	parent.Children = kids
	return nil
}
