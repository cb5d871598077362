//
// Copyright (C) 2025 The flowmesh Authors. All rights reserved.
//
// flowmesh is licensed under the Apache License Version 2.0.
//

package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh/flowmesh/state"
)

func newResolver(stateSeed, inputs map[string]any) *resolver {
	return &resolver{bag: state.New(stateSeed), inputs: inputs}
}

func TestResolvePurePathPreservesType(t *testing.T) {
	r := newResolver(map[string]any{
		"count": float64(42),
		"user":  map[string]any{"name": "ada"},
		"tags":  []any{"x", "y"},
	}, nil)

	cfg, err := r.resolveConfig(map[string]any{
		"n":    "$.count",
		"who":  "$.user.name",
		"tags": "$.tags",
	})
	require.NoError(t, err)
	assert.Equal(t, float64(42), cfg["n"])
	assert.Equal(t, "ada", cfg["who"])
	assert.Equal(t, []any{"x", "y"}, cfg["tags"])
}

func TestResolveMissingPurePathBecomesNil(t *testing.T) {
	r := newResolver(nil, nil)
	cfg, err := r.resolveConfig(map[string]any{"v": "$.not.there"})
	require.NoError(t, err)
	assert.Nil(t, cfg["v"])
}

func TestResolveMalformedPathIsError(t *testing.T) {
	r := newResolver(nil, nil)
	_, err := r.resolveConfig(map[string]any{"v": "$.a["})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed path")
}

func TestResolveStateWinsOverInputs(t *testing.T) {
	r := newResolver(
		map[string]any{"value": "from-state"},
		map[string]any{"value": "from-inputs"},
	)
	cfg, err := r.resolveConfig(map[string]any{"v": "$.value"})
	require.NoError(t, err)
	assert.Equal(t, "from-state", cfg["v"])
}

func TestResolveFallsBackToInputs(t *testing.T) {
	r := newResolver(nil, map[string]any{"result": float64(136)})
	cfg, err := r.resolveConfig(map[string]any{"v": "$.result"})
	require.NoError(t, err)
	assert.Equal(t, float64(136), cfg["v"])
}

func TestResolveInterpolation(t *testing.T) {
	r := newResolver(map[string]any{
		"name":  "ada",
		"count": float64(3),
		"ratio": 2.5,
	}, nil)

	cfg, err := r.resolveConfig(map[string]any{
		"greeting": "hello {{ name }}, you have {{ count }} items",
		"ratio":    "r={{ratio}}",
		"missing":  "<{{ nope }}>",
		"dollar":   "total {{ $.count }}",
	})
	require.NoError(t, err)
	assert.Equal(t, "hello ada, you have 3 items", cfg["greeting"])
	assert.Equal(t, "r=2.5", cfg["ratio"])
	assert.Equal(t, "<>", cfg["missing"])
	assert.Equal(t, "total 3", cfg["dollar"])
}

func TestResolveWalksNestedStructures(t *testing.T) {
	r := newResolver(map[string]any{"token": "abc"}, nil)

	cfg, err := r.resolveConfig(map[string]any{
		"headers": map[string]any{"Authorization": "Bearer {{ token }}"},
		"list":    []any{"$.token", "static"},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"Authorization": "Bearer abc"}, cfg["headers"])
	assert.Equal(t, []any{"abc", "static"}, cfg["list"])
}

func TestResolveDoesNotMutateOriginal(t *testing.T) {
	r := newResolver(map[string]any{"v": "resolved"}, nil)
	original := map[string]any{"nested": map[string]any{"k": "$.v"}}

	cfg, err := r.resolveConfig(original)
	require.NoError(t, err)
	assert.Equal(t, "resolved", cfg["nested"].(map[string]any)["k"])
	assert.Equal(t, "$.v", original["nested"].(map[string]any)["k"])
}

func TestResolvedValueIsDetachedFromState(t *testing.T) {
	r := newResolver(map[string]any{"obj": map[string]any{"k": "v"}}, nil)

	cfg, err := r.resolveConfig(map[string]any{"copy": "$.obj"})
	require.NoError(t, err)

	cfg["copy"].(map[string]any)["k"] = "mutated"
	v, ok := r.bag.GetPath("obj.k")
	require.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "3", stringify(float64(3)))
	assert.Equal(t, "2.5", stringify(2.5))
	assert.Equal(t, "text", stringify("text"))
	assert.Equal(t, "true", stringify(true))
}
