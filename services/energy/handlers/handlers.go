// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers exposes an editing session over a JSON HTTP API.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianFlux/pkg/logging"
	"github.com/AleutianAI/AleutianFlux/pkg/telemetry"
	"github.com/AleutianAI/AleutianFlux/services/devicetree"
	"github.com/AleutianAI/AleutianFlux/services/energy/session"
)

// Session is the subset of *session.Session the handlers drive.
type Session interface {
	ChangePeriod(ctx context.Context, period session.Period) error
	SetEditing(editing bool)
	MoveToTree(index int, parentPath devicetree.Path) error
	MoveToList(path devicetree.Path) error
	CreateUnion(initialValue float64, parentPath devicetree.Path) error
	MoveNode(from, toParent devicetree.Path, index int) error
	EditNode(ctx context.Context, path devicetree.Path, p devicetree.Presentation) error
	AnalyseFlux(ctx context.Context) []devicetree.FluxEdge
	Save(ctx context.Context) error
	Snapshot() session.State
}

var _ Session = (*session.Session)(nil)

// Handlers serves the session API.
type Handlers struct {
	session Session
	logger  *logging.Logger
}

// New returns handlers over s.
func New(s Session, logger *logging.Logger) *Handlers {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Handlers{session: s, logger: logger.With("component", "handlers")}
}

// HealthCheck handles GET /health.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "fluxtree"})
}

// GetState handles GET /v1/state.
func (h *Handlers) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, stateResponse(h.session.Snapshot()))
}

// ChangePeriod handles POST /v1/period.
//
// Response:
//
//	200 OK: StateResponse
//	400 Bad Request: Validation error
//	502 Bad Gateway: Measurement source unreachable, state unchanged
func (h *Handlers) ChangePeriod(c *gin.Context) {
	var req PeriodRequest
	if !h.bind(c, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		h.badRequest(c, err)
		return
	}
	if err := h.session.ChangePeriod(c.Request.Context(), req.period()); err != nil {
		h.fail(c, "change period", err)
		return
	}
	c.JSON(http.StatusOK, stateResponse(h.session.Snapshot()))
}

// SetEditing handles POST /v1/editing.
func (h *Handlers) SetEditing(c *gin.Context) {
	var req EditingRequest
	if !h.bindValid(c, &req) {
		return
	}
	h.session.SetEditing(*req.Editing)
	c.JSON(http.StatusOK, stateResponse(h.session.Snapshot()))
}

// Attach handles POST /v1/tree/attach.
func (h *Handlers) Attach(c *gin.Context) {
	var req AttachRequest
	if !h.bindValid(c, &req) {
		return
	}
	h.respondEdit(c, "attach", h.session.MoveToTree(req.Index, req.ParentPath))
}

// Detach handles POST /v1/tree/detach.
func (h *Handlers) Detach(c *gin.Context) {
	var req DetachRequest
	if !h.bindValid(c, &req) {
		return
	}
	h.respondEdit(c, "detach", h.session.MoveToList(req.Path))
}

// CreateUnion handles POST /v1/tree/union.
func (h *Handlers) CreateUnion(c *gin.Context) {
	var req UnionRequest
	if !h.bindValid(c, &req) {
		return
	}
	h.respondEdit(c, "create union", h.session.CreateUnion(req.Value, req.ParentPath))
}

// Move handles POST /v1/tree/move.
func (h *Handlers) Move(c *gin.Context) {
	var req MoveRequest
	if !h.bindValid(c, &req) {
		return
	}
	h.respondEdit(c, "move", h.session.MoveNode(req.From, req.ToParent, req.index()))
}

// EditNode handles PATCH /v1/tree/node.
func (h *Handlers) EditNode(c *gin.Context) {
	var req EditNodeRequest
	if !h.bindValid(c, &req) {
		return
	}
	h.respondEdit(c, "edit node", h.session.EditNode(c.Request.Context(), req.Path, req.Presentation))
}

// Save handles POST /v1/tree/save.
//
// Response:
//
//	200 OK: StateResponse, editing mode left
//	422 Unprocessable Entity: Tree has an empty union, nothing persisted
//	502 Bad Gateway: Remote write failed, still editing
func (h *Handlers) Save(c *gin.Context) {
	h.respondEdit(c, "save", h.session.Save(c.Request.Context()))
}

// GetFlux handles GET /v1/flux.
func (h *Handlers) GetFlux(c *gin.Context) {
	edges := h.session.Snapshot().Flux
	c.JSON(http.StatusOK, FluxResponse{Edges: edges, Table: devicetree.FluxTable(edges)})
}

// AnalyseFlux handles POST /v1/flux. It recomputes the edges of the
// current tree.
func (h *Handlers) AnalyseFlux(c *gin.Context) {
	edges := h.session.AnalyseFlux(c.Request.Context())
	c.JSON(http.StatusOK, FluxResponse{Edges: edges, Table: devicetree.FluxTable(edges)})
}

// Analyze handles POST /v1/analyze. It normalizes a posted forest without
// touching the session: union totals, verification nodes and flux.
func (h *Handlers) Analyze(c *gin.Context) {
	var req AnalyzeRequest
	if !h.bindValid(c, &req) {
		return
	}
	tree, err := devicetree.ParseForest(req.Tree)
	if err != nil {
		h.badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, Analyze(tree))
}

// Analyze normalizes tree and reports its flux and validity.
func Analyze(tree devicetree.Forest) AnalyzeResponse {
	normalized := devicetree.SynthesizeVerificationNodes(devicetree.RecomputeUnions(tree))
	flux := devicetree.ComputeFlux(normalized)
	resp := AnalyzeResponse{
		Tree:  normalized,
		Flux:  flux,
		Table: devicetree.FluxTable(flux),
		Stats: devicetree.Stats(normalized),
		Valid: true,
	}
	if err := devicetree.Check(normalized); err != nil {
		resp.Valid = false
		resp.Error = err.Error()
	}
	return resp
}

// =============================================================================
// Helpers
// =============================================================================

func stateResponse(st session.State) StateResponse {
	return StateResponse{
		State:     st,
		FluxTable: devicetree.FluxTable(st.Flux),
		Stats:     devicetree.Stats(st.Tree),
		Valid:     devicetree.Validate(st.Tree),
	}
}

func (h *Handlers) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.logger.Warn("invalid request body", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Code:    "INVALID_REQUEST",
			Details: err.Error(),
		})
		return false
	}
	return true
}

func (h *Handlers) bindValid(c *gin.Context, req any) bool {
	if !h.bind(c, req) {
		return false
	}
	if err := validate.Struct(req); err != nil {
		h.badRequest(c, err)
		return false
	}
	return true
}

func (h *Handlers) badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "Validation failed",
		Code:    "VALIDATION_FAILED",
		Details: err.Error(),
	})
}

func (h *Handlers) respondEdit(c *gin.Context, op string, err error) {
	if err != nil {
		h.fail(c, op, err)
		return
	}
	c.JSON(http.StatusOK, stateResponse(h.session.Snapshot()))
}

// fail maps session and tree errors to HTTP statuses.
func (h *Handlers) fail(c *gin.Context, op string, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL"
	switch {
	case errors.Is(err, devicetree.ErrStructuralInvalid):
		status, code = http.StatusUnprocessableEntity, "STRUCTURAL_INVALID"
	case errors.Is(err, session.ErrUpstreamFetch):
		status, code = http.StatusBadGateway, "UPSTREAM_FETCH"
	case errors.Is(err, session.ErrPersistence):
		status, code = http.StatusBadGateway, "PERSISTENCE"
	case errors.Is(err, session.ErrNotEditing):
		status, code = http.StatusConflict, "NOT_EDITING"
	case errors.Is(err, session.ErrInvalidPeriod):
		status, code = http.StatusBadRequest, "INVALID_PERIOD"
	case errors.Is(err, devicetree.ErrPathNotFound),
		errors.Is(err, devicetree.ErrIndexOutOfRange),
		errors.Is(err, devicetree.ErrInvalidMove),
		errors.Is(err, devicetree.ErrNotDeviceNode):
		status, code = http.StatusBadRequest, "INVALID_EDIT"
	}
	traceID := telemetry.TraceID(c.Request.Context())
	if status >= http.StatusInternalServerError {
		h.logger.Error(op+" failed", "error", err, "trace_id", traceID)
	} else {
		h.logger.Warn(op+" rejected", "error", err, "code", code, "trace_id", traceID)
	}
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
}
