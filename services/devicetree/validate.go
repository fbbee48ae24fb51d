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

import "fmt"

// Validate reports whether the tree may be persisted. A union node with no
// children invalidates the whole tree.
func Validate(tree Forest) bool {
	return Check(tree) == nil
}

// Check is Validate returning the first offending node, in pre-order, as an
// error wrapping ErrStructuralInvalid.
func Check(tree Forest) error {
	var bad *Node
	tree.Walk(func(n *Node, _ int) bool {
		if n.Kind == KindUnion && !n.HasChildren() {
			bad = n
			return false
		}
		return true
	})
	if bad != nil {
		return fmt.Errorf("%w: union node %q (%s) has no children",
			ErrStructuralInvalid, bad.Title, bad.DeviceID)
	}
	return nil
}
