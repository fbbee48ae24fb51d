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
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianFlux/services/devicetree"
)

// --- Fakes ---

type fakeSource struct {
	devices []devicetree.Device
	err     error
	calls   int
	last    Period
}

func (f *fakeSource) FetchMeasuredDevices(_ context.Context, p Period) ([]devicetree.Device, error) {
	f.calls++
	f.last = p
	if f.err != nil {
		return nil, f.err
	}
	return append([]devicetree.Device{}, f.devices...), nil
}

type fakeLocal struct {
	mu      sync.Mutex
	tree    devicetree.Forest
	period  Period
	flux    []devicetree.FluxEdge
	cache   map[string]devicetree.Device
	saveErr error
	loadErr error
	saves   int
}

func (f *fakeLocal) LoadTree(context.Context) (devicetree.Forest, error) {
	return f.tree.Clone(), f.loadErr
}

func (f *fakeLocal) SaveTree(_ context.Context, tree devicetree.Forest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.saveErr != nil {
		return f.saveErr
	}
	f.tree = tree.Clone()
	return nil
}

func (f *fakeLocal) LoadPeriod(context.Context) (Period, error) { return f.period, nil }

func (f *fakeLocal) SavePeriod(_ context.Context, p Period) error {
	f.period = p
	return f.saveErr
}

func (f *fakeLocal) LoadFlux(context.Context) ([]devicetree.FluxEdge, error) { return f.flux, nil }

func (f *fakeLocal) SaveFlux(_ context.Context, edges []devicetree.FluxEdge) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flux = edges
	return f.saveErr
}

func (f *fakeLocal) LoadDeviceCache(context.Context) (map[string]devicetree.Device, error) {
	out := map[string]devicetree.Device{}
	for k, v := range f.cache {
		out[k] = v
	}
	return out, nil
}

func (f *fakeLocal) SaveDevice(_ context.Context, d devicetree.Device) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cache == nil {
		f.cache = map[string]devicetree.Device{}
	}
	f.cache[d.ID] = d
	return f.saveErr
}

type fakeRemote struct {
	err   error
	saved devicetree.Forest
	calls int
}

func (f *fakeRemote) PersistTree(_ context.Context, tree devicetree.Forest) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.saved = tree
	return nil
}

type recordingRecorder struct {
	saves   []string
	fetches int
}

func (r *recordingRecorder) ObserveFetch(time.Duration, error)          { r.fetches++ }
func (r *recordingRecorder) ObserveReconcile(devicetree.TreeStats, int) {}
func (r *recordingRecorder) ObserveFlux(int)                            {}
func (r *recordingRecorder) ObserveSave(outcome string)                 { r.saves = append(r.saves, outcome) }

// --- Helpers ---

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestSession(t *testing.T, src *fakeSource, local *fakeLocal, remote *fakeRemote) (*Session, *recordingRecorder) {
	t.Helper()
	rec := &recordingRecorder{}
	s, err := New(Options{
		Source:   src,
		Local:    local,
		Remote:   remote,
		Recorder: rec,
		Now:      func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return s, rec
}

func dev(id string, value float64) devicetree.Device {
	return devicetree.Device{ID: id, Name: id, Value: value, Available: true}
}

func node(id string, value float64, children ...*devicetree.Node) *devicetree.Node {
	return &devicetree.Node{Title: id, DeviceID: id, Value: value, Available: true, Children: children}
}

// --- Tests ---

func TestNew_RequiresPorts(t *testing.T) {
	_, err := New(Options{Source: &fakeSource{}})
	assert.Error(t, err)
}

func TestInit_ReconcilesSavedTree(t *testing.T) {
	src := &fakeSource{devices: []devicetree.Device{dev("A", 10), dev("B", 4), dev("C", 1)}}
	local := &fakeLocal{
		tree:   devicetree.Forest{node("A", 0, node("B", 0))},
		period: Period{Selector: "year"},
	}
	s, rec := newTestSession(t, src, local, &fakeRemote{})

	require.NoError(t, s.Init(context.Background()))

	st := s.Snapshot()
	assert.Equal(t, "year", st.Period.Selector)
	assert.Equal(t, 10.0, st.Tree[0].Value)
	assert.Equal(t, 4.0, st.Tree[0].Children[0].Value)
	require.Len(t, st.Devices, 1)
	assert.Equal(t, "C", st.Devices[0].ID)
	require.Len(t, st.Tree[0].Children, 2)
	assert.Equal(t, devicetree.KindDiff, st.Tree[0].Children[1].Kind)
	require.Len(t, st.Flux, 2)
	assert.Equal(t, devicetree.FluxEdge{From: "A", To: "B", Weight: 4}, st.Flux[0])
	assert.Equal(t, "diff A", st.Flux[1].To)
	assert.InDelta(t, 6.0, st.Flux[1].Weight, 1e-9)
	assert.Equal(t, 1, rec.fetches)

	assert.Equal(t, fixedNow, src.last.To)
	assert.Equal(t, fixedNow.Add(-DefaultLookback), src.last.From)
}

func TestInit_FetchFailureKeepsLocalTree(t *testing.T) {
	src := &fakeSource{err: errors.New("connection refused")}
	local := &fakeLocal{tree: devicetree.Forest{node("A", 7)}}
	s, _ := newTestSession(t, src, local, &fakeRemote{})

	err := s.Init(context.Background())
	require.ErrorIs(t, err, ErrUpstreamFetch)

	st := s.Snapshot()
	require.Len(t, st.Tree, 1)
	assert.Equal(t, 7.0, st.Tree[0].Value)
	assert.True(t, st.Tree[0].Available)
}

func TestInit_LoadFailure(t *testing.T) {
	local := &fakeLocal{loadErr: errors.New("disk gone")}
	s, _ := newTestSession(t, &fakeSource{}, local, &fakeRemote{})

	err := s.Init(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load tree")
}

func TestChangePeriod_FetchFailureLeavesStateUntouched(t *testing.T) {
	src := &fakeSource{devices: []devicetree.Device{dev("A", 5)}}
	s, _ := newTestSession(t, src, &fakeLocal{tree: devicetree.Forest{node("A", 0)}}, &fakeRemote{})
	require.NoError(t, s.Init(context.Background()))
	before := s.Snapshot()

	src.err = errors.New("timeout")
	err := s.ChangePeriod(context.Background(), Period{Selector: "month"})

	require.ErrorIs(t, err, ErrUpstreamFetch)
	assert.Equal(t, before, s.Snapshot())
}

func TestChangePeriod_InvalidPeriod(t *testing.T) {
	src := &fakeSource{}
	s, _ := newTestSession(t, src, &fakeLocal{}, &fakeRemote{})

	err := s.ChangePeriod(context.Background(), Period{From: fixedNow, To: fixedNow.Add(-time.Hour)})

	require.ErrorIs(t, err, ErrInvalidPeriod)
	assert.Zero(t, src.calls)
}

func TestEditOps_RequireEditing(t *testing.T) {
	s, _ := newTestSession(t, &fakeSource{}, &fakeLocal{}, &fakeRemote{})
	ctx := context.Background()

	assert.ErrorIs(t, s.MoveToTree(0, nil), ErrNotEditing)
	assert.ErrorIs(t, s.MoveToList(devicetree.Path{0}), ErrNotEditing)
	assert.ErrorIs(t, s.CreateUnion(0, nil), ErrNotEditing)
	assert.ErrorIs(t, s.MoveNode(devicetree.Path{0}, nil, -1), ErrNotEditing)
	assert.ErrorIs(t, s.EditNode(ctx, devicetree.Path{0}, devicetree.Presentation{}), ErrNotEditing)
}

func TestEditing_BuildTreeAndSave(t *testing.T) {
	src := &fakeSource{devices: []devicetree.Device{dev("A", 10), dev("B", 4)}}
	local := &fakeLocal{}
	remote := &fakeRemote{}
	s, rec := newTestSession(t, src, local, remote)
	ctx := context.Background()
	require.NoError(t, s.Init(ctx))

	s.SetEditing(true)
	require.NoError(t, s.CreateUnion(0, nil))
	require.NoError(t, s.MoveToTree(0, devicetree.Path{0}))
	require.NoError(t, s.MoveToTree(0, devicetree.Path{0}))

	st := s.Snapshot()
	require.Len(t, st.Tree, 1)
	assert.Equal(t, devicetree.KindUnion, st.Tree[0].Kind)
	assert.Equal(t, 14.0, st.Tree[0].Value)
	assert.Empty(t, st.Devices)

	require.NoError(t, s.Save(ctx))

	st = s.Snapshot()
	assert.False(t, st.Editing)
	assert.Equal(t, 1, remote.calls)
	assert.Len(t, local.tree, 1)
	assert.Len(t, st.Flux, 2)
	assert.Equal(t, []string{SaveOK}, rec.saves)
}

func TestSave_AddsVerificationNodes(t *testing.T) {
	src := &fakeSource{devices: []devicetree.Device{dev("A", 10), dev("B", 4)}}
	local := &fakeLocal{tree: devicetree.Forest{node("A", 0, node("B", 0))}}
	remote := &fakeRemote{}
	s, _ := newTestSession(t, src, local, remote)
	require.NoError(t, s.Init(context.Background()))

	require.NoError(t, s.Save(context.Background()))

	children := remote.saved[0].Children
	require.Len(t, children, 2)
	assert.Equal(t, devicetree.KindDiff, children[1].Kind)
	assert.InDelta(t, 6.0, children[1].Value, 1e-9)
}

func TestSave_InvalidTreeIsNotPersisted(t *testing.T) {
	local := &fakeLocal{}
	remote := &fakeRemote{}
	s, rec := newTestSession(t, &fakeSource{}, local, remote)
	require.NoError(t, s.Init(context.Background()))

	s.SetEditing(true)
	require.NoError(t, s.CreateUnion(0, nil))

	err := s.Save(context.Background())

	require.ErrorIs(t, err, devicetree.ErrStructuralInvalid)
	assert.Zero(t, remote.calls)
	assert.Zero(t, local.saves)
	assert.True(t, s.Snapshot().Editing)
	assert.Equal(t, []string{SaveInvalid}, rec.saves)
}

func TestSave_RemoteFailureKeepsEditing(t *testing.T) {
	src := &fakeSource{devices: []devicetree.Device{dev("A", 3)}}
	local := &fakeLocal{tree: devicetree.Forest{node("A", 0)}}
	remote := &fakeRemote{err: errors.New("influx down")}
	s, rec := newTestSession(t, src, local, remote)
	require.NoError(t, s.Init(context.Background()))
	s.SetEditing(true)

	err := s.Save(context.Background())

	require.ErrorIs(t, err, ErrPersistence)
	assert.True(t, s.Snapshot().Editing)
	assert.Len(t, local.tree, 1, "local checkpoint is still written")
	assert.Equal(t, []string{SaveRemoteFail}, rec.saves)
}

func TestSave_LocalFailureIsNotFatal(t *testing.T) {
	src := &fakeSource{devices: []devicetree.Device{dev("A", 3)}}
	local := &fakeLocal{tree: devicetree.Forest{node("A", 0)}}
	s, _ := newTestSession(t, src, local, &fakeRemote{})
	require.NoError(t, s.Init(context.Background()))
	local.saveErr = errors.New("read-only")

	assert.NoError(t, s.Save(context.Background()))
}

func TestEditNode_UpdatesCacheAndSurvivesReconcile(t *testing.T) {
	src := &fakeSource{devices: []devicetree.Device{dev("A", 3), dev("B", 1)}}
	local := &fakeLocal{tree: devicetree.Forest{node("A", 0)}}
	s, _ := newTestSession(t, src, local, &fakeRemote{})
	ctx := context.Background()
	require.NoError(t, s.Init(ctx))
	s.SetEditing(true)

	require.NoError(t, s.EditNode(ctx, devicetree.Path{0}, devicetree.Presentation{CustomName: "Main"}))
	assert.Equal(t, "Main", local.cache["A"].CustomName)

	require.NoError(t, s.MoveToList(devicetree.Path{0}))
	require.NoError(t, s.ChangePeriod(ctx, Period{Selector: "month"}))

	st := s.Snapshot()
	var listed *devicetree.Device
	for i := range st.Devices {
		if st.Devices[i].ID == "A" {
			listed = &st.Devices[i]
		}
	}
	require.NotNil(t, listed)
	assert.Equal(t, "Main", listed.CustomName)
	assert.Equal(t, 3.0, listed.Value)
}

func TestEditNode_RejectsUnion(t *testing.T) {
	s, _ := newTestSession(t, &fakeSource{}, &fakeLocal{}, &fakeRemote{})
	s.SetEditing(true)
	require.NoError(t, s.CreateUnion(0, nil))

	err := s.EditNode(context.Background(), devicetree.Path{0}, devicetree.Presentation{})
	assert.ErrorIs(t, err, devicetree.ErrNotDeviceNode)
}

func TestAnalyseFlux_PersistsEdges(t *testing.T) {
	src := &fakeSource{devices: []devicetree.Device{dev("A", 3), dev("B", 2)}}
	local := &fakeLocal{tree: devicetree.Forest{node("A", 0, node("B", 0))}}
	s, _ := newTestSession(t, src, local, &fakeRemote{})
	require.NoError(t, s.Init(context.Background()))

	edges := s.AnalyseFlux(context.Background())

	require.Len(t, edges, 2)
	assert.Equal(t, devicetree.FluxEdge{From: "A", To: "B", Weight: 2}, edges[0])
	assert.Equal(t, "diff A", edges[1].To)
	assert.Equal(t, edges, local.flux)
}

func TestSnapshot_IsIsolated(t *testing.T) {
	src := &fakeSource{devices: []devicetree.Device{dev("A", 3)}}
	s, _ := newTestSession(t, src, &fakeLocal{tree: devicetree.Forest{node("A", 0)}}, &fakeRemote{})
	require.NoError(t, s.Init(context.Background()))

	snap := s.Snapshot()
	snap.Tree[0].Value = 999

	assert.Equal(t, 3.0, s.Snapshot().Tree[0].Value)
}

// gatedSource serves the initial period at once and holds later fetches
// until release is closed.
type gatedSource struct {
	mu      sync.Mutex
	calls   int
	entered chan struct{}
	release chan struct{}
	events  *eventLog
}

func (g *gatedSource) FetchMeasuredDevices(context.Context, Period) ([]devicetree.Device, error) {
	g.mu.Lock()
	g.calls++
	first := g.calls == 1
	g.mu.Unlock()
	if first {
		return []devicetree.Device{dev("m1", 1), dev("m2", 2)}, nil
	}
	close(g.entered)
	<-g.release
	g.events.add("fetch")
	return []devicetree.Device{dev("m3", 3)}, nil
}

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func TestSession_ConcurrentCallersWaitForReconcile(t *testing.T) {
	events := &eventLog{}
	src := &gatedSource{entered: make(chan struct{}), release: make(chan struct{}), events: events}
	s, err := New(Options{
		Source: src,
		Local:  &fakeLocal{},
		Remote: &fakeRemote{},
		Now:    func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	require.NoError(t, s.Init(context.Background()))
	s.SetEditing(true)

	var wg sync.WaitGroup
	var periodErr, attachErr, saveErr error

	wg.Add(1)
	go func() {
		defer wg.Done()
		periodErr = s.ChangePeriod(context.Background(), Period{Selector: "month"})
	}()
	<-src.entered

	wg.Add(3)
	go func() {
		defer wg.Done()
		attachErr = s.MoveToTree(0, nil)
		events.add("attach")
	}()
	go func() {
		defer wg.Done()
		saveErr = s.Save(context.Background())
		events.add("save")
	}()
	go func() {
		defer wg.Done()
		_ = s.Snapshot()
		events.add("snapshot")
	}()

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, events.list(), "callers must wait while the fetch is in flight")

	close(src.release)
	wg.Wait()

	require.NoError(t, periodErr)
	require.NoError(t, saveErr)
	got := events.list()
	require.Len(t, got, 4)
	assert.Equal(t, "fetch", got[0])

	st := s.Snapshot()
	assert.Equal(t, "month", st.Period.Selector)
	if attachErr == nil {
		// The attach saw the reconciled list, not the one from before the fetch.
		require.NotEmpty(t, st.Tree)
		assert.Equal(t, "m3", st.Tree[0].DeviceID)
		assert.Empty(t, st.Devices)
	} else {
		assert.ErrorIs(t, attachErr, ErrNotEditing)
		assert.Empty(t, st.Tree)
		require.Len(t, st.Devices, 1)
		assert.Equal(t, "m3", st.Devices[0].ID)
	}
}
