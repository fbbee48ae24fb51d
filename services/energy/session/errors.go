// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import "errors"

// Sentinel errors for session operations. Structural problems are reported
// with devicetree.ErrStructuralInvalid.
var (
	// ErrUpstreamFetch is returned when the measurement source fails. The
	// session state is left exactly as it was before the call.
	ErrUpstreamFetch = errors.New("measurement fetch failed")

	// ErrPersistence is returned when the durable remote write fails during
	// Save. The session stays in editing mode.
	ErrPersistence = errors.New("tree persistence failed")

	// ErrNotEditing is returned by edit operations outside editing mode.
	ErrNotEditing = errors.New("session is not in editing mode")

	// ErrInvalidPeriod is returned when a period ends before it starts.
	ErrInvalidPeriod = errors.New("invalid period")
)
