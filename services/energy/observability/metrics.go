// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability exposes the energy session's domain metrics to
// Prometheus.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/AleutianFlux/services/devicetree"
	"github.com/AleutianAI/AleutianFlux/services/energy/session"
)

const (
	namespace = "fluxtree"
	subsystem = "session"
)

// =============================================================================
// Prometheus Metrics for the Editing Session
// =============================================================================

// Metrics implements session.Recorder.
//
// Thread Safety: Safe for concurrent use.
type Metrics struct {
	// fetchDuration measures measurement fetches.
	// Labels: status (success, error)
	fetchDuration *prometheus.HistogramVec

	// reconciliations counts completed reconciliations.
	reconciliations prometheus.Counter

	// saves counts save attempts.
	// Labels: outcome (ok, invalid, remote_error)
	saves *prometheus.CounterVec

	// treeNodes is the node count of the last reconciled tree.
	// Labels: kind (total, device, union, diff, unavailable)
	treeNodes *prometheus.GaugeVec

	// listedDevices is the length of the unattached devices list.
	listedDevices prometheus.Gauge

	// fluxEdges is the edge count of the last flux analysis.
	fluxEdges prometheus.Gauge
}

// NewMetrics registers the session metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		fetchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of measurement fetches from the time-series store",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"status"}),
		reconciliations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "reconciliations_total",
			Help:      "Total tree reconciliations against fresh measurements",
		}),
		saves: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "saves_total",
			Help:      "Tree save attempts by outcome",
		}, []string{"outcome"}),
		treeNodes: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tree_nodes",
			Help:      "Nodes of the current tree by kind",
		}, []string{"kind"}),
		listedDevices: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "listed_devices",
			Help:      "Measured devices not placed in the tree",
		}),
		fluxEdges: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "flux_edges",
			Help:      "Edges of the last flux analysis",
		}),
	}
}

// ObserveFetch records one fetch.
func (m *Metrics) ObserveFetch(d time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.fetchDuration.WithLabelValues(status).Observe(d.Seconds())
}

// ObserveReconcile records a reconciliation and the resulting tree shape.
func (m *Metrics) ObserveReconcile(stats devicetree.TreeStats, listed int) {
	m.reconciliations.Inc()
	m.treeNodes.WithLabelValues("total").Set(float64(stats.Nodes))
	m.treeNodes.WithLabelValues("device").Set(float64(stats.Devices))
	m.treeNodes.WithLabelValues("union").Set(float64(stats.Unions))
	m.treeNodes.WithLabelValues("diff").Set(float64(stats.Diffs))
	m.treeNodes.WithLabelValues("unavailable").Set(float64(stats.Unavailable))
	m.listedDevices.Set(float64(listed))
}

func (m *Metrics) ObserveFlux(edges int) {
	m.fluxEdges.Set(float64(edges))
}

func (m *Metrics) ObserveSave(outcome string) {
	m.saves.WithLabelValues(outcome).Inc()
}

var _ session.Recorder = (*Metrics)(nil)
