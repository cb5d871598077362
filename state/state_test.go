//
// Copyright (C) 2025 The flowmesh Authors. All rights reserved.
//
// flowmesh is licensed under the Apache License Version 2.0.
//

package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBagSeedIsCopied(t *testing.T) {
	seed := map[string]any{"nested": map[string]any{"k": "v"}}
	bag := New(seed)

	seed["nested"].(map[string]any)["k"] = "mutated"

	v, ok := bag.GetPath("nested.k")
	require.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestBagSetGetDelete(t *testing.T) {
	bag := New(nil)

	_, ok := bag.Get("missing")
	assert.False(t, ok)

	bag.Set("count", 3)
	v, ok := bag.Get("count")
	require.True(t, ok)
	assert.Equal(t, 3, v)

	bag.Delete("count")
	_, ok = bag.Get("count")
	assert.False(t, ok)
}

func TestBagSetPathCreatesIntermediates(t *testing.T) {
	bag := New(nil)
	bag.SetPath("config.timeout", 30)

	v, ok := bag.GetPath("config.timeout")
	require.True(t, ok)
	assert.Equal(t, 30, v)

	cfg, ok := bag.Get("config")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"timeout": 30}, cfg)
}

func TestBagSetPathOverwritesScalarIntermediate(t *testing.T) {
	bag := New(map[string]any{"config": "not-an-object"})
	bag.SetPath("config.retries", 2)

	v, ok := bag.GetPath("config.retries")
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestBagSnapshotIsDetached(t *testing.T) {
	bag := New(map[string]any{"list": []any{1, 2}})

	snap := bag.Snapshot()
	snap["list"].([]any)[0] = 99

	v, ok := bag.GetPath("list[0]")
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestBagMerge(t *testing.T) {
	bag := New(map[string]any{"a": 1, "b": 1})
	bag.Merge(map[string]any{"b": 2, "c": 3})

	assert.Equal(t, map[string]any{"a": 1, "b": 2, "c": 3}, bag.Snapshot())
	assert.Equal(t, 3, bag.Len())
}

func TestLookup(t *testing.T) {
	root := map[string]any{
		"users": []any{
			map[string]any{"name": "ada"},
			map[string]any{"name": "grace"},
		},
		"meta": map[string]any{"total": float64(2)},
	}

	tests := []struct {
		path  string
		want  any
		found bool
	}{
		{"users[0].name", "ada", true},
		{"users[1].name", "grace", true},
		{"meta.total", float64(2), true},
		{"meta['total']", float64(2), true},
		{"users[5].name", nil, false},
		{"missing.deeply", nil, false},
	}
	for _, tt := range tests {
		got, ok := Lookup(root, tt.path)
		assert.Equal(t, tt.found, ok, "path %q", tt.path)
		if tt.found {
			assert.Equal(t, tt.want, got, "path %q", tt.path)
		}
	}
}

func TestParsePathRejectsMalformed(t *testing.T) {
	for _, path := range []string{"", "a.", "a[", "a[x]", "a['unclosed"} {
		_, err := ParsePath(path)
		assert.Error(t, err, "path %q", path)
	}
}

func TestParsePathSegments(t *testing.T) {
	segs, err := ParsePath("a.b[2]['c'].d")
	require.NoError(t, err)
	require.Len(t, segs, 5)
	assert.Equal(t, "a", segs[0].Key)
	assert.Equal(t, "b", segs[1].Key)
	assert.True(t, segs[2].IsIndex)
	assert.Equal(t, 2, segs[2].Index)
	assert.Equal(t, "c", segs[3].Key)
	assert.Equal(t, "d", segs[4].Key)
}
