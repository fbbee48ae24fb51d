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

import "errors"

// Sentinel errors for tree operations.
var (
	// ErrStructuralInvalid is returned by Check when the tree violates a
	// structural invariant that blocks persistence, such as a union node
	// without children. The user must fix the tree before saving.
	ErrStructuralInvalid = errors.New("tree is structurally invalid")

	// ErrPathNotFound is returned when a path does not address a node.
	ErrPathNotFound = errors.New("node path not found")

	// ErrIndexOutOfRange is returned when a device list index or an insert
	// position is outside the valid range.
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrInvalidMove is returned when a drag/drop move breaks a drop rule:
	// diff nodes are fixed, nothing is dropped under a diff node and a node
	// cannot be moved into its own subtree.
	ErrInvalidMove = errors.New("invalid move")

	// ErrNotDeviceNode is returned when an operation that only applies to
	// real devices targets a union or diff node.
	ErrNotDeviceNode = errors.New("node is not a device")
)
