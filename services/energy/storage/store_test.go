// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package storage

import (
	"context"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianFlux/services/devicetree"
	bdb "github.com/AleutianAI/AleutianFlux/services/energy/storage/badger"
	"github.com/AleutianAI/AleutianFlux/services/energy/session"
)

func newTestStore(t *testing.T) (*Store, *bdb.DB) {
	t.Helper()
	db, err := bdb.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db), db
}

func TestStore_EmptyLoads(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	tree, err := s.LoadTree(ctx)
	require.NoError(t, err)
	assert.NotNil(t, tree)
	assert.Empty(t, tree)

	p, err := s.LoadPeriod(ctx)
	require.NoError(t, err)
	assert.Equal(t, session.Period{}, p)

	edges, err := s.LoadFlux(ctx)
	require.NoError(t, err)
	assert.Empty(t, edges)

	cache, err := s.LoadDeviceCache(ctx)
	require.NoError(t, err)
	assert.Empty(t, cache)
}

func TestStore_TreeRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	active := true
	tree := devicetree.Forest{{
		Title: "Main", DeviceID: "main", Value: 10, Available: true, Expanded: true,
		Presentation: &devicetree.Presentation{CustomName: "Cabin", Active: &active},
		Children: []*devicetree.Node{
			{Title: "Node", Kind: devicetree.KindUnion, DeviceID: "u1", Value: 4, Available: true},
		},
	}}

	require.NoError(t, s.SaveTree(ctx, tree))
	got, err := s.LoadTree(ctx)
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, "main", got[0].DeviceID)
	assert.Equal(t, "Cabin", got[0].Presentation.CustomName)
	require.Len(t, got[0].Children, 1)
	assert.Equal(t, devicetree.KindUnion, got[0].Children[0].Kind)
}

func TestStore_PeriodAndFlux(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	p := session.Period{
		Selector: "month",
		From:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		To:       time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	edges := []devicetree.FluxEdge{{From: "a", To: "b", Weight: 1.5}}

	require.NoError(t, s.SavePeriod(ctx, p))
	require.NoError(t, s.SaveFlux(ctx, edges))

	gotP, err := s.LoadPeriod(ctx)
	require.NoError(t, err)
	assert.True(t, p.From.Equal(gotP.From))
	assert.Equal(t, "month", gotP.Selector)

	gotE, err := s.LoadFlux(ctx)
	require.NoError(t, err)
	assert.Equal(t, edges, gotE)
}

func TestStore_DeviceCache(t *testing.T) {
	s, db := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveDevice(ctx, devicetree.Device{ID: "m1", Name: "meter", Presentation: devicetree.Presentation{Icon: "bolt"}}))
	require.NoError(t, s.SaveDevice(ctx, devicetree.Device{ID: "m2", Name: "other"}))
	require.NoError(t, s.SaveTree(ctx, devicetree.Forest{}))
	assert.Error(t, s.SaveDevice(ctx, devicetree.Device{}))

	cache, err := s.LoadDeviceCache(ctx)
	require.NoError(t, err)
	assert.Len(t, cache, 2, "tree key must not leak into the device prefix scan")
	assert.Equal(t, "bolt", cache["m1"].Icon)

	require.NoError(t, db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set([]byte(deviceKeyPrefix+"bad"), []byte("{"))
	}))
	_, err = s.LoadDeviceCache(ctx)
	assert.Error(t, err)
}

func TestStore_CorruptTree(t *testing.T) {
	s, db := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set([]byte(keyTree), []byte("not json"))
	}))

	_, err := s.LoadTree(ctx)
	assert.ErrorContains(t, err, "decode tree")
}
