// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/AleutianFlux/services/devicetree"
	"github.com/AleutianAI/AleutianFlux/services/energy/session"
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// validate checks request bodies after JSON decoding.
var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
}

// =============================================================================
// Request Types
// =============================================================================

// PeriodRequest selects the period measurements are summed over. Zero
// bounds default to the lookback window ending now.
type PeriodRequest struct {
	Selector string    `json:"selector" validate:"omitempty,max=32,alphanum"`
	From     time.Time `json:"from"`
	To       time.Time `json:"to"`
}

// Validate checks field constraints and bound ordering.
func (r *PeriodRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return err
	}
	_, err := r.period().Resolve(time.Now(), 0)
	return err
}

func (r *PeriodRequest) period() session.Period {
	return session.Period{Selector: r.Selector, From: r.From, To: r.To}
}

// EditingRequest enters or leaves editing mode.
type EditingRequest struct {
	Editing *bool `json:"editing" validate:"required"`
}

// AttachRequest moves devices[Index] of the list into the tree.
type AttachRequest struct {
	Index      int             `json:"index" validate:"min=0"`
	ParentPath devicetree.Path `json:"parent_path" validate:"omitempty,dive,min=0"`
}

// DetachRequest moves the subtree at Path back to the list.
type DetachRequest struct {
	Path devicetree.Path `json:"path" validate:"required,min=1,dive,min=0"`
}

// UnionRequest creates a union node.
type UnionRequest struct {
	Value      float64         `json:"value"`
	ParentPath devicetree.Path `json:"parent_path" validate:"omitempty,dive,min=0"`
}

// MoveRequest re-parents a node. A missing Index appends.
type MoveRequest struct {
	From     devicetree.Path `json:"from" validate:"required,min=1,dive,min=0"`
	ToParent devicetree.Path `json:"to_parent" validate:"omitempty,dive,min=0"`
	Index    *int            `json:"index"`
}

func (r *MoveRequest) index() int {
	if r.Index == nil || *r.Index < 0 {
		return -1
	}
	return *r.Index
}

// EditNodeRequest replaces the presentation metadata of a device node.
type EditNodeRequest struct {
	Path         devicetree.Path         `json:"path" validate:"required,min=1,dive,min=0"`
	Presentation devicetree.Presentation `json:"presentation"`
}

// AnalyzeRequest carries a forest in the persisted tree format.
type AnalyzeRequest struct {
	Tree json.RawMessage `json:"tree" validate:"required"`
}

// =============================================================================
// Response Types
// =============================================================================

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is a stable machine-readable error code.
	Code string `json:"code,omitempty"`

	// Details provides additional error context (optional).
	Details string `json:"details,omitempty"`
}

// StateResponse is the session state with derived views.
type StateResponse struct {
	session.State
	FluxTable [][]any              `json:"flux_table"`
	Stats     devicetree.TreeStats `json:"stats"`
	Valid     bool                 `json:"valid"`
}

// FluxResponse lists the flux edges and their Sankey table.
type FluxResponse struct {
	Edges []devicetree.FluxEdge `json:"edges"`
	Table [][]any               `json:"table"`
}

// AnalyzeResponse is the normalized forest of an AnalyzeRequest.
type AnalyzeResponse struct {
	Tree  devicetree.Forest     `json:"tree"`
	Flux  []devicetree.FluxEdge `json:"flux"`
	Table [][]any               `json:"table"`
	Stats devicetree.TreeStats  `json:"stats"`
	Valid bool                  `json:"valid"`
	Error string                `json:"error,omitempty"`
}
