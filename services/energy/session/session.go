// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session owns the state of one device-tree editing session: the
// tree, the unattached devices, the flux edges, the selected period and the
// editing flag.
//
// # Lifecycle
//
//  1. Init loads the local cache and reconciles it with the saved period
//  2. SetEditing(true) unlocks the edit operations
//  3. Save validates, normalizes and persists the tree, then leaves editing
//
// # Thread Safety
//
// Session is safe for concurrent use. Every operation, including the
// measurement fetch of ChangePeriod, runs under one mutex so period changes
// and edits never interleave.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianFlux/pkg/logging"
	"github.com/AleutianAI/AleutianFlux/pkg/telemetry"
	"github.com/AleutianAI/AleutianFlux/services/devicetree"
)

const tracerName = "energy.session"

// State is a snapshot of a session.
type State struct {
	Tree    devicetree.Forest     `json:"tree"`
	Devices []devicetree.Device   `json:"devices"`
	Flux    []devicetree.FluxEdge `json:"flux"`
	Period  Period                `json:"period"`
	Editing bool                  `json:"editing"`
}

func (s State) clone() State {
	out := s
	out.Tree = s.Tree.Clone()
	out.Devices = append([]devicetree.Device{}, s.Devices...)
	out.Flux = append([]devicetree.FluxEdge{}, s.Flux...)
	return out
}

// Options configures a Session. Source, Local and Remote are required.
type Options struct {
	Source MeasurementSource
	Local  LocalStore
	Remote RemoteTreeStore

	// Logger defaults to a discarding logger.
	Logger *logging.Logger

	// Recorder defaults to a no-op recorder.
	Recorder Recorder

	// Lookback is the window used for periods without a start.
	Lookback time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
}

// Session is an explicit, lockable editing session.
type Session struct {
	mu       sync.Mutex
	state    State
	cache    map[string]devicetree.Device
	source   MeasurementSource
	local    LocalStore
	remote   RemoteTreeStore
	logger   *logging.Logger
	recorder Recorder
	lookback time.Duration
	now      func() time.Time
}

// New creates an empty session. Call Init to load it.
func New(opts Options) (*Session, error) {
	if opts.Source == nil || opts.Local == nil || opts.Remote == nil {
		return nil, errors.New("session: source, local and remote stores are required")
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Session{
		state: State{
			Tree:    devicetree.Forest{},
			Devices: []devicetree.Device{},
			Flux:    []devicetree.FluxEdge{},
		},
		cache:    map[string]devicetree.Device{},
		source:   opts.Source,
		local:    opts.Local,
		remote:   opts.Remote,
		logger:   opts.Logger.With("component", "session"),
		recorder: opts.Recorder,
		lookback: opts.Lookback,
		now:      opts.Now,
	}, nil
}

// Init loads the saved tree, period, flux and device cache concurrently,
// then reconciles the tree with the saved period's measurements.
//
// When the fetch fails the locally saved tree and flux stay visible and the
// returned error wraps ErrUpstreamFetch.
func (s *Session) Init(ctx context.Context) error {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "Session.Init")
	defer span.End()

	var (
		tree   devicetree.Forest
		period Period
		flux   []devicetree.FluxEdge
		cache  map[string]devicetree.Device
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		tree, err = s.local.LoadTree(gCtx)
		return wrap("load tree", err)
	})
	g.Go(func() (err error) {
		period, err = s.local.LoadPeriod(gCtx)
		return wrap("load period", err)
	})
	g.Go(func() (err error) {
		flux, err = s.local.LoadFlux(gCtx)
		return wrap("load flux", err)
	})
	g.Go(func() (err error) {
		cache, err = s.local.LoadDeviceCache(gCtx)
		return wrap("load device cache", err)
	})
	if err := g.Wait(); err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if tree == nil {
		tree = devicetree.Forest{}
	}
	if flux == nil {
		flux = []devicetree.FluxEdge{}
	}
	if cache == nil {
		cache = map[string]devicetree.Device{}
	}
	s.state.Tree = tree
	s.state.Flux = flux
	s.state.Period = period
	s.cache = cache
	s.logger.Info("local cache loaded", "nodes", devicetree.Stats(tree).Nodes, "cached_devices", len(cache))

	if err := s.changePeriod(ctx, period); err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	telemetry.SetSpanOK(span)
	return nil
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ChangePeriod fetches the period's measurements and reconciles the current
// tree with them, refreshing the device list and the flux edges.
//
// A failed fetch returns an error wrapping ErrUpstreamFetch and leaves the
// state untouched; it is never treated as "every device is gone".
func (s *Session) ChangePeriod(ctx context.Context, period Period) error {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "Session.ChangePeriod",
		attribute.String("period.selector", period.Selector))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.changePeriod(ctx, period); err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	telemetry.SetSpanOK(span)
	return nil
}

func (s *Session) changePeriod(ctx context.Context, period Period) error {
	resolved, err := period.Resolve(s.now(), s.lookback)
	if err != nil {
		return err
	}

	start := time.Now()
	measured, err := s.source.FetchMeasuredDevices(ctx, resolved)
	s.recorder.ObserveFetch(time.Since(start), err)
	if err != nil {
		s.logger.Error("measurement fetch failed", "selector", period.Selector, "error", err)
		return fmt.Errorf("%w: %w", ErrUpstreamFetch, err)
	}

	res := devicetree.Reconcile(s.state.Tree, measured, s.cache)
	s.state.Tree = res.Tree
	s.state.Devices = res.Devices
	s.state.Period = period
	s.state.Flux = devicetree.ComputeFlux(res.Tree)

	stats := devicetree.Stats(res.Tree)
	s.recorder.ObserveReconcile(stats, len(res.Devices))
	s.recorder.ObserveFlux(len(s.state.Flux))
	s.logger.Info("period reconciled",
		"selector", period.Selector,
		"measured", len(measured),
		"nodes", stats.Nodes,
		"unavailable", stats.Unavailable,
		"listed", len(res.Devices),
	)
	return nil
}

// SetEditing enters or leaves editing mode.
func (s *Session) SetEditing(editing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Editing = editing
}

// edit runs fn on the current tree and device list when editing, then
// refreshes union totals on the result.
func (s *Session) edit(op string, fn func(tree devicetree.Forest, devices []devicetree.Device) (devicetree.Forest, []devicetree.Device, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.Editing {
		return ErrNotEditing
	}
	tree, devices, err := fn(s.state.Tree, s.state.Devices)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.state.Tree = devicetree.RecomputeUnions(tree)
	s.state.Devices = devices
	s.logger.Debug("tree edited", "op", op, "nodes", devicetree.Stats(s.state.Tree).Nodes)
	return nil
}

// MoveToTree attaches devices[index] under parentPath (root level when empty).
func (s *Session) MoveToTree(index int, parentPath devicetree.Path) error {
	return s.edit("move to tree", func(tree devicetree.Forest, devices []devicetree.Device) (devicetree.Forest, []devicetree.Device, error) {
		return devicetree.Attach(tree, devices, index, parentPath)
	})
}

// MoveToList detaches the subtree at path, returning its available devices
// to the list.
func (s *Session) MoveToList(path devicetree.Path) error {
	return s.edit("move to list", func(tree devicetree.Forest, devices []devicetree.Device) (devicetree.Forest, []devicetree.Device, error) {
		return devicetree.Detach(tree, devices, path)
	})
}

// CreateUnion adds a union node under parentPath (root level when empty).
func (s *Session) CreateUnion(initialValue float64, parentPath devicetree.Path) error {
	return s.edit("create union", func(tree devicetree.Forest, devices []devicetree.Device) (devicetree.Forest, []devicetree.Device, error) {
		out, err := devicetree.AddUnionNode(tree, initialValue, parentPath)
		return out, devices, err
	})
}

// MoveNode re-parents the node at from; see devicetree.Move.
func (s *Session) MoveNode(from, toParent devicetree.Path, index int) error {
	return s.edit("move node", func(tree devicetree.Forest, devices []devicetree.Device) (devicetree.Forest, []devicetree.Device, error) {
		out, err := devicetree.Move(tree, from, toParent, index)
		return out, devices, err
	})
}

// EditNode replaces the presentation metadata of the device node at path
// and records it in the device cache so it survives reconciliation.
func (s *Session) EditNode(ctx context.Context, path devicetree.Path, p devicetree.Presentation) error {
	var updated devicetree.Device
	err := s.edit("edit node", func(tree devicetree.Forest, devices []devicetree.Device) (devicetree.Forest, []devicetree.Device, error) {
		out, d, err := devicetree.UpdatePresentation(tree, path, p)
		updated = d
		return out, devices, err
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.cache[updated.ID] = updated
	s.mu.Unlock()

	if err := s.local.SaveDevice(ctx, updated); err != nil {
		s.logger.Warn("device cache write failed", "device_id", updated.ID, "error", err)
	}
	return nil
}

// AnalyseFlux recomputes the flux edges of the current tree, stores them
// in the session and the local cache, and returns them.
func (s *Session) AnalyseFlux(ctx context.Context) []devicetree.FluxEdge {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Flux = devicetree.ComputeFlux(s.state.Tree)
	s.recorder.ObserveFlux(len(s.state.Flux))
	if err := s.local.SaveFlux(ctx, s.state.Flux); err != nil {
		s.logger.Warn("flux cache write failed", "error", err)
	}
	return append([]devicetree.FluxEdge{}, s.state.Flux...)
}

// Save validates, normalizes and persists the tree.
//
// Description:
//
//	1. Check the tree; an empty union aborts with ErrStructuralInvalid and
//	   nothing is written.
//	2. Recompute union totals, then verification nodes.
//	3. Write tree, period and flux to the local cache. These are
//	   checkpoints: failures are logged and do not abort the save.
//	4. Persist the tree remotely. On failure the error wraps
//	   ErrPersistence and the session stays in editing mode.
//	5. Leave editing mode.
//
// The normalized tree and its flux become the session state from step 3 on,
// whatever the remote outcome.
func (s *Session) Save(ctx context.Context) error {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "Session.Save")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := devicetree.Check(s.state.Tree); err != nil {
		s.recorder.ObserveSave(SaveInvalid)
		telemetry.RecordError(span, err)
		s.logger.Warn("save rejected", "error", err)
		return err
	}

	tree := devicetree.SynthesizeVerificationNodes(devicetree.RecomputeUnions(s.state.Tree))
	flux := devicetree.ComputeFlux(tree)

	if err := s.local.SaveTree(ctx, tree); err != nil {
		s.logger.Warn("tree cache write failed", "error", err)
	}
	if err := s.local.SavePeriod(ctx, s.state.Period); err != nil {
		s.logger.Warn("period cache write failed", "error", err)
	}
	if err := s.local.SaveFlux(ctx, flux); err != nil {
		s.logger.Warn("flux cache write failed", "error", err)
	}
	s.state.Tree = tree
	s.state.Flux = flux
	s.recorder.ObserveFlux(len(flux))

	if err := s.remote.PersistTree(ctx, tree.Clone()); err != nil {
		s.recorder.ObserveSave(SaveRemoteFail)
		telemetry.RecordError(span, err)
		s.logger.Error("remote tree write failed", "error", err)
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	s.state.Editing = false
	s.recorder.ObserveSave(SaveOK)
	telemetry.SetSpanOK(span)
	s.logger.Info("tree saved", "nodes", devicetree.Stats(tree).Nodes, "edges", len(flux))
	return nil
}

// Snapshot returns a deep copy of the current state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}
