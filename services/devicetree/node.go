// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package devicetree implements the device-tree reconciliation and flux
// analysis engine.
//
// A tree (a forest of roots) arranges energy-metering devices hierarchically:
// buildings, sub-panels, devices. Three kinds of node exist:
//
//   - device nodes mirror a real metering endpoint and carry its measured value
//   - union nodes group children without an independent measurement; their
//     value is always the sum of their children
//   - diff (verification) nodes are synthetic leaves holding the gap between
//     a parent's measured value and the sum of its children
//
// # Ownership Model
//
// Every exported pass (Reconcile, RecomputeUnions, SynthesizeVerificationNodes,
// Attach, Detach, ...) takes a Forest and returns a new one. Inputs are never
// mutated and the result never shares a *Node with its input, so callers may
// keep the previous snapshot around (undo, diffing, concurrent readers).
//
// # Thread Safety
//
// The package has no shared state. A Forest is a plain value; concurrent
// readers are safe, concurrent writers must synchronize externally.
package devicetree

// Kind discriminates the three node variants.
type Kind int

const (
	// KindDevice is a real metering device. Wire tag "".
	KindDevice Kind = iota

	// KindUnion is a synthetic aggregate whose value is the sum of its children.
	KindUnion

	// KindDiff is a synthetic verification leaf.
	KindDiff
)

// Wire tags used in the persisted tree format.
const (
	tagDevice = ""
	tagUnion  = "union"
	tagDiff   = "diff"
)

// String returns the wire tag of the kind.
func (k Kind) String() string {
	switch k {
	case KindUnion:
		return tagUnion
	case KindDiff:
		return tagDiff
	default:
		return tagDevice
	}
}

// ParseKind maps a wire tag to a Kind. Unknown tags are device nodes: older
// trees carry the measurement type ("energia") in this field.
func ParseKind(tag string) Kind {
	switch tag {
	case tagUnion:
		return KindUnion
	case tagDiff:
		return KindDiff
	default:
		return KindDevice
	}
}

// Synthetic reports whether nodes of this kind are created by the engine
// rather than by a measurement. Synthetic nodes are always available.
func (k Kind) Synthetic() bool {
	return k == KindUnion || k == KindDiff
}

// Presentation holds the user-editable metadata of a device. The engine
// copies it around but never interprets it.
type Presentation struct {
	CustomName           string  `json:"customName,omitempty"`
	Icon                 string  `json:"icon,omitempty"`
	ParentNodeCustomName string  `json:"parentNodeCustomName,omitempty"`
	Active               *bool   `json:"active,omitempty"`
	Origin               string  `json:"origin,omitempty"`
	DevCustomName        string  `json:"devCustomName,omitempty"`
	Destination          string  `json:"destination,omitempty"`
	Classification       string  `json:"classification,omitempty"`
	Phase                string  `json:"phase,omitempty"`
	Charts               *Charts `json:"charts,omitempty"`
}

// Charts selects which charts the dashboard renders for a device.
type Charts struct {
	Realtime       RealtimeCharts       `json:"realtime"`
	History        HistoryCharts        `json:"history"`
	AnnualSummary  AnnualSummaryCharts  `json:"annualSummary"`
	MonthlySummary MonthlySummaryCharts `json:"monthlySummary"`
	DailyProfile   DailyProfileCharts   `json:"dailyProfile"`
}

type RealtimeCharts struct {
	CurrentIntensity bool `json:"currentIntensity"`
	Voltage          bool `json:"voltage"`
	Power            bool `json:"power"`
}

type HistoryCharts struct {
	CurrentIntensity bool `json:"currentIntensity"`
	Voltage          bool `json:"voltage"`
	Power            bool `json:"power"`
	Consumption      bool `json:"consumption"`
}

type AnnualSummaryCharts struct {
	ElectricDemand           bool `json:"electricDemand"`
	HourlyConsumptions       bool `json:"hourlyConsumptions"`
	MainActivityConsumptions bool `json:"mainActivityConsumptions"`
}

type MonthlySummaryCharts struct {
	HourlyConsumptions bool `json:"hourlyConsumptions"`
}

type DailyProfileCharts struct {
	Summer bool `json:"summer"`
	Winter bool `json:"winter"`
}

// Clone returns a deep copy, or nil for a nil receiver.
func (p *Presentation) Clone() *Presentation {
	if p == nil {
		return nil
	}
	out := *p
	if p.Active != nil {
		active := *p.Active
		out.Active = &active
	}
	if p.Charts != nil {
		charts := *p.Charts
		out.Charts = &charts
	}
	return &out
}

// Device is a flat metering endpoint record, as returned by the measurement
// source or kept in the unattached devices list.
type Device struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Value     float64 `json:"value"`
	Available bool    `json:"available"`
	Type      string  `json:"type"`
	Presentation
}

// Node is one entry of the device tree.
//
// Presentation is only meaningful for KindDevice nodes and is nil on union
// and diff nodes. Children is nil for leaves; nil and empty are equivalent
// everywhere in this package.
type Node struct {
	Title        string
	Kind         Kind
	DeviceID     string
	Value        float64
	Available    bool
	Expanded     bool
	Subtitle     string
	Presentation *Presentation
	Children     []*Node
}

// HasChildren reports whether the node has at least one child.
func (n *Node) HasChildren() bool {
	return n != nil && len(n.Children) > 0
}

// Clone deep copies the node and its subtree.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := *n
	out.Presentation = n.Presentation.Clone()
	if n.Children != nil {
		out.Children = make([]*Node, len(n.Children))
		for i, child := range n.Children {
			out.Children[i] = child.Clone()
		}
	}
	return &out
}

// Forest is the ordered list of root nodes making up a tree.
type Forest []*Node

// Clone deep copies every root. The clone of a nil forest is an empty,
// non-nil forest so it serializes as [] rather than null.
func (f Forest) Clone() Forest {
	out := make(Forest, len(f))
	for i, root := range f {
		out[i] = root.Clone()
	}
	return out
}

// Walk visits every node in pre-order. Returning false from fn stops the
// walk; Walk then returns false as well.
func (f Forest) Walk(fn func(n *Node, depth int) bool) bool {
	return walk(f, 0, fn)
}

func walk(nodes []*Node, depth int, fn func(n *Node, depth int) bool) bool {
	for _, n := range nodes {
		if n == nil {
			continue
		}
		if !fn(n, depth) {
			return false
		}
		if !walk(n.Children, depth+1, fn) {
			return false
		}
	}
	return true
}

// Find returns the first node in pre-order with the given device id.
func (f Forest) Find(deviceID string) *Node {
	var found *Node
	f.Walk(func(n *Node, _ int) bool {
		if n.DeviceID == deviceID {
			found = n
			return false
		}
		return true
	})
	return found
}

// FluxEdge is one weighted parent → child relation of the flow graph.
type FluxEdge struct {
	From   string  `json:"from"`
	To     string  `json:"to"`
	Weight float64 `json:"weight"`
}

// TreeStats summarizes a forest.
type TreeStats struct {
	Nodes       int `json:"nodes"`
	Devices     int `json:"devices"`
	Unions      int `json:"unions"`
	Diffs       int `json:"diffs"`
	Unavailable int `json:"unavailable"`
}

// Stats counts the nodes of the forest by kind and availability.
func Stats(f Forest) TreeStats {
	var s TreeStats
	f.Walk(func(n *Node, _ int) bool {
		s.Nodes++
		switch n.Kind {
		case KindUnion:
			s.Unions++
		case KindDiff:
			s.Diffs++
		default:
			s.Devices++
		}
		if !n.Available {
			s.Unavailable++
		}
		return true
	})
	return s
}
