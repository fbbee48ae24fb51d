// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianFlux/services/devicetree"
	"github.com/AleutianAI/AleutianFlux/services/energy/session"
)

func TestMetrics_Register(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)

	assert.Panics(t, func() { NewMetrics(reg) }, "duplicate registration must panic")
}

func TestMetrics_ObserveFetch(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveFetch(120*time.Millisecond, nil)
	m.ObserveFetch(time.Second, errors.New("timeout"))
	m.ObserveFetch(time.Second, errors.New("timeout"))

	count, err := testutil.GatherAndCount(reg, "fluxtree_session_fetch_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "one series per status")
}

func TestMetrics_ObserveReconcile(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveReconcile(devicetree.TreeStats{Nodes: 7, Devices: 4, Unions: 2, Diffs: 1, Unavailable: 1}, 3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.reconciliations))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.treeNodes.WithLabelValues("total")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.treeNodes.WithLabelValues("union")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.treeNodes.WithLabelValues("unavailable")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.listedDevices))
}

func TestMetrics_SavesAndFlux(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveSave(session.SaveOK)
	m.ObserveSave(session.SaveOK)
	m.ObserveSave(session.SaveRemoteFail)
	m.ObserveFlux(5)
	m.ObserveFlux(2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.saves.WithLabelValues(session.SaveOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.saves.WithLabelValues(session.SaveRemoteFail)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.saves.WithLabelValues(session.SaveInvalid)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.fluxEdges))
}
