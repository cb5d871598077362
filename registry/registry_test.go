//
// Copyright (C) 2025 The flowmesh Authors. All rights reserved.
//
// flowmesh is licensed under the Apache License Version 2.0.
//

package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh/flowmesh/node"
)

type stubNode struct {
	md node.Metadata
}

func (s *stubNode) Metadata() node.Metadata { return s.md }

func (s *stubNode) Execute(context.Context, *node.ExecutionContext, map[string]any) (node.EdgeMap, error) {
	return node.StaticEdge(node.EdgeSuccess, nil), nil
}

func stub(id string) *stubNode {
	return &stubNode{md: node.Metadata{ID: id, Name: id, Version: "1.0.0"}}
}

func TestRegisterAndGet(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(stub("alpha")))

	got, err := r.Get("alpha")
	require.NoError(t, err)
	assert.Equal(t, "alpha", got.Metadata().ID)

	assert.True(t, r.Has("alpha"))
	assert.False(t, r.Has("beta"))
}

func TestRegisterDuplicateID(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(stub("alpha")))

	err := r.Register(stub("alpha"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestRegisterInvalidMetadata(t *testing.T) {
	r := New()
	err := r.Register(&stubNode{md: node.Metadata{ID: "no-version", Name: "x"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidMetadata)
}

func TestGetUnknownNode(t *testing.T) {
	r := New()
	_, err := r.Get("nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownNode)
}

func TestListSorted(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(stub("zeta")))
	require.NoError(t, r.Register(stub("alpha")))
	require.NoError(t, r.Register(stub("mid")))

	list := r.List()
	require.Len(t, list, 3)
	assert.Equal(t, "alpha", list[0].ID)
	assert.Equal(t, "mid", list[1].ID)
	assert.Equal(t, "zeta", list[2].ID)
}

func TestListBySource(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(stub("a"), WithSource("pkg-one")))
	require.NoError(t, r.Register(stub("b"), WithSource("pkg-two")))
	require.NoError(t, r.Register(stub("c"), WithSource("pkg-one")))

	one := r.ListBySource("pkg-one")
	require.Len(t, one, 2)
	assert.Equal(t, "a", one[0].ID)
	assert.Equal(t, "c", one[1].ID)
	assert.Empty(t, r.ListBySource("pkg-three"))
}

func TestDiscoverFromPackages(t *testing.T) {
	RegisterProvider("test-pack", func(sr *Registrar) error {
		if err := sr.Register(stub("discovered-one")); err != nil {
			return err
		}
		return sr.Register(stub("discovered-two"))
	})

	r := New()
	count, err := r.DiscoverFromPackages("test-pack")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.True(t, r.Has("discovered-one"))

	bySource := r.ListBySource("test-pack")
	assert.Len(t, bySource, 2)
}

func TestDiscoverUnknownSource(t *testing.T) {
	r := New()
	_, err := r.DiscoverFromPackages("never-registered")
	assert.Error(t, err)
}

func TestUnregister(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(stub("gone")))
	r.Unregister("gone")
	assert.False(t, r.Has("gone"))
	assert.Equal(t, 0, r.Size())
}
