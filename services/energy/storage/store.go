// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package storage is the local cache of an editing session: the last saved
// tree, the selected period, the last flux analysis and the per-device
// metadata edited by the user. Values are JSON documents in BadgerDB.
//
// A missing key is not an error: loads return the empty value so a fresh
// installation starts with an empty tree.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianFlux/services/devicetree"
	bdb "github.com/AleutianAI/AleutianFlux/services/energy/storage/badger"
	"github.com/AleutianAI/AleutianFlux/services/energy/session"
)

const (
	keyTree         = "tree"
	keyPeriod       = "period"
	keyFlux         = "flux"
	deviceKeyPrefix = "device/"
)

// Store implements session.LocalStore on BadgerDB.
//
// Thread Safety: Safe for concurrent use.
type Store struct {
	db *bdb.DB
}

// NewStore wraps an open database. The caller keeps ownership of db.
func NewStore(db *bdb.DB) *Store {
	return &Store{db: db}
}

// LoadTree returns the saved tree, or an empty forest.
func (s *Store) LoadTree(ctx context.Context) (devicetree.Forest, error) {
	var raw []byte
	found, err := s.get(ctx, keyTree, func(val []byte) error {
		raw = append([]byte(nil), val...)
		return nil
	})
	if err != nil || !found {
		return devicetree.Forest{}, err
	}
	tree, err := devicetree.ParseForest(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", keyTree, err)
	}
	return tree, nil
}

// SaveTree replaces the saved tree.
func (s *Store) SaveTree(ctx context.Context, tree devicetree.Forest) error {
	if tree == nil {
		tree = devicetree.Forest{}
	}
	return s.put(ctx, keyTree, tree)
}

// LoadPeriod returns the saved period, or the zero period.
func (s *Store) LoadPeriod(ctx context.Context) (session.Period, error) {
	var p session.Period
	_, err := s.getJSON(ctx, keyPeriod, &p)
	return p, err
}

// SavePeriod replaces the saved period.
func (s *Store) SavePeriod(ctx context.Context, p session.Period) error {
	return s.put(ctx, keyPeriod, p)
}

// LoadFlux returns the saved flux edges, or nil.
func (s *Store) LoadFlux(ctx context.Context) ([]devicetree.FluxEdge, error) {
	var edges []devicetree.FluxEdge
	_, err := s.getJSON(ctx, keyFlux, &edges)
	return edges, err
}

// SaveFlux replaces the saved flux edges.
func (s *Store) SaveFlux(ctx context.Context, edges []devicetree.FluxEdge) error {
	if edges == nil {
		edges = []devicetree.FluxEdge{}
	}
	return s.put(ctx, keyFlux, edges)
}

// LoadDeviceCache returns every cached device record keyed by id.
func (s *Store) LoadDeviceCache(ctx context.Context) (map[string]devicetree.Device, error) {
	out := make(map[string]devicetree.Device)
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(deviceKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			var d devicetree.Device
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &d) }); err != nil {
				return fmt.Errorf("decode %s: %w", item.Key(), err)
			}
			out[d.ID] = d
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SaveDevice writes one device's metadata to the cache.
func (s *Store) SaveDevice(ctx context.Context, d devicetree.Device) error {
	if d.ID == "" {
		return errors.New("device id is required")
	}
	return s.put(ctx, deviceKeyPrefix+d.ID, d)
}

func (s *Store) put(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

func (s *Store) getJSON(ctx context.Context, key string, v any) (bool, error) {
	found, err := s.get(ctx, key, func(val []byte) error {
		return json.Unmarshal(val, v)
	})
	if err != nil {
		return false, fmt.Errorf("load %s: %w", key, err)
	}
	return found, nil
}

func (s *Store) get(ctx context.Context, key string, fn func(val []byte) error) (bool, error) {
	found := false
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(fn)
	})
	return found, err
}

var _ session.LocalStore = (*Store)(nil)
