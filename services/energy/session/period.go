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

import (
	"fmt"
	"time"
)

// DefaultLookback is the query window used when a period has no start:
// four years, leap day included.
const DefaultLookback = 35064 * time.Hour

// Period is the time window measurements are summed over. Selector is the
// UI preset that produced it ("year", "month", ...) and is opaque here.
type Period struct {
	Selector string    `json:"selector,omitempty"`
	From     time.Time `json:"from,omitzero"`
	To       time.Time `json:"to,omitzero"`
}

// Resolve fills missing bounds: a zero To becomes now and a zero From
// becomes To minus lookback (DefaultLookback when lookback <= 0).
func (p Period) Resolve(now time.Time, lookback time.Duration) (Period, error) {
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	out := p
	if out.To.IsZero() {
		out.To = now
	}
	if out.From.IsZero() {
		out.From = out.To.Add(-lookback)
	}
	if !out.From.Before(out.To) {
		return Period{}, fmt.Errorf("%w: %s is not before %s", ErrInvalidPeriod,
			out.From.Format(time.RFC3339), out.To.Format(time.RFC3339))
	}
	return out, nil
}
