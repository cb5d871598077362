//
// Copyright (C) 2025 The flowmesh Authors. All rights reserved.
//
// flowmesh is licensed under the Apache License Version 2.0.
//

package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh/flowmesh/node"
	"github.com/flowmesh/flowmesh/registry"
)

type fakeNode struct {
	id      string
	outputs []string
}

func (f *fakeNode) Metadata() node.Metadata {
	return node.Metadata{ID: f.id, Name: f.id, Version: "1.0.0", Outputs: f.outputs}
}

func (f *fakeNode) Execute(context.Context, *node.ExecutionContext, map[string]any) (node.EdgeMap, error) {
	return node.StaticEdge(node.EdgeSuccess, nil), nil
}

func testRegistry(t *testing.T, ids ...string) *registry.Registry {
	t.Helper()
	r := registry.New()
	for _, id := range ids {
		require.NoError(t, r.Register(&fakeNode{id: id, outputs: []string{node.EdgeSuccess}}))
	}
	return r
}

func def(entries ...NodeEntry) *Definition {
	return &Definition{ID: "wf", Name: "wf", Version: "1.0.0", Workflow: entries}
}

func TestParseFlatSequence(t *testing.T) {
	reg := testRegistry(t, "fetch", "store")
	p := NewParser(reg)

	pw, err := p.Parse(def(
		NodeEntry{"fetch": map[string]any{"url": "/things"}},
		NodeEntry{"store": map[string]any{}},
	))
	require.NoError(t, err)
	require.Len(t, pw.Nodes, 2)

	first := pw.Nodes[0]
	assert.Equal(t, "fetch", first.NodeID)
	assert.Equal(t, "fetch", first.InstanceID)
	assert.Equal(t, map[string]any{"url": "/things"}, first.Config)

	// Flat-list order synthesizes a success link to the next sibling.
	require.Contains(t, first.Edges, node.EdgeSuccess)
	assert.Equal(t, "store", first.Edges[node.EdgeSuccess].InstanceID)
	assert.True(t, first.Edges[node.EdgeSuccess].Implicit)

	assert.Empty(t, pw.Nodes[1].Edges)
}

func TestParseDisambiguationSuffix(t *testing.T) {
	reg := testRegistry(t, "fetch")
	p := NewParser(reg)

	pw, err := p.Parse(def(
		NodeEntry{"fetch": map[string]any{}},
		NodeEntry{"fetch-2": map[string]any{}},
	))
	require.NoError(t, err)

	second := pw.Nodes[1]
	assert.Equal(t, "fetch", second.NodeID)
	assert.Equal(t, "fetch-2", second.InstanceID)
}

func TestParseDuplicateInstanceRejected(t *testing.T) {
	reg := testRegistry(t, "fetch")
	p := NewParser(reg)

	_, err := p.Parse(def(
		NodeEntry{"fetch": map[string]any{}},
		NodeEntry{"fetch": map[string]any{}},
	))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate node instance")
}

func TestParseLoopMarker(t *testing.T) {
	reg := testRegistry(t, "every-item", "log", "done")
	p := NewParser(reg)

	pw, err := p.Parse(def(
		NodeEntry{"every-item...": map[string]any{
			"items":         []any{1, 2},
			"current-item?": "log",
			"complete?":     "done",
		}},
		NodeEntry{"log": map[string]any{}},
		NodeEntry{"done": map[string]any{}},
	))
	require.NoError(t, err)

	loop := pw.Nodes[0]
	assert.True(t, loop.IsLoop)
	assert.Equal(t, "every-item", loop.NodeID)
	assert.Equal(t, "every-item", loop.InstanceID)
	assert.Equal(t, "log", loop.Edges["current-item"].InstanceID)
	assert.Equal(t, "done", loop.Edges["complete"].InstanceID)
	// Edge keys are stripped out of the config.
	assert.Equal(t, map[string]any{"items": []any{1, 2}}, loop.Config)
}

func TestParseStateSetterSugar(t *testing.T) {
	reg := testRegistry(t, StateSetterNodeID)
	p := NewParser(reg)

	pw, err := p.Parse(def(
		NodeEntry{"$.config.timeout": map[string]any{"value": 30}},
	))
	require.NoError(t, err)

	setter := pw.Nodes[0]
	assert.True(t, setter.IsStateSetter)
	assert.Equal(t, StateSetterNodeID, setter.NodeID)
	assert.Equal(t, "$.config.timeout", setter.InstanceID)
	assert.Equal(t, "config.timeout", setter.Config["statePath"])
	assert.Equal(t, 30, setter.Config["value"])
}

func TestParseStateSetterScalarConfig(t *testing.T) {
	reg := testRegistry(t, StateSetterNodeID)
	p := NewParser(reg)

	pw, err := p.Parse(def(NodeEntry{"$.retries": 5}))
	require.NoError(t, err)

	setter := pw.Nodes[0]
	assert.Equal(t, "retries", setter.Config["statePath"])
	assert.Equal(t, 5, setter.Config["value"])
}

func TestParseStateSetterWholeConfigValue(t *testing.T) {
	reg := testRegistry(t, StateSetterNodeID)
	p := NewParser(reg)

	pw, err := p.Parse(def(
		NodeEntry{"$.user": map[string]any{"name": "ada", "admin": true}},
	))
	require.NoError(t, err)

	setter := pw.Nodes[0]
	assert.Equal(t, "user", setter.Config["statePath"])
	assert.Equal(t, map[string]any{"name": "ada", "admin": true}, setter.Config["value"])
}

func TestParseInlineFragment(t *testing.T) {
	reg := testRegistry(t, "check", "notify", "cleanup")
	p := NewParser(reg)

	pw, err := p.Parse(def(
		NodeEntry{"check": map[string]any{
			"error?": []any{
				map[string]any{"notify": map[string]any{"to": "ops"}},
				map[string]any{"cleanup": map[string]any{}},
			},
		}},
	))
	require.NoError(t, err)

	check := pw.Nodes[0]
	target := check.Edges[node.EdgeError]
	require.NotNil(t, target)
	require.Len(t, target.Inline, 2)
	assert.Equal(t, "notify", target.Inline[0].NodeID)
	assert.Equal(t, "cleanup", target.Inline[1].NodeID)

	instances := pw.Instances()
	assert.Contains(t, instances, "notify")
	assert.Contains(t, instances, "cleanup")
}

func TestParseUnknownNodeRejected(t *testing.T) {
	reg := testRegistry(t, "known")
	p := NewParser(reg)

	_, err := p.Parse(def(NodeEntry{"mystery": map[string]any{}}))
	require.Error(t, err)
	assert.ErrorIs(t, err, registry.ErrUnknownNode)
}

func TestParseUnresolvedEdgeTargetRejected(t *testing.T) {
	reg := testRegistry(t, "fetch")
	p := NewParser(reg)

	_, err := p.Parse(def(
		NodeEntry{"fetch": map[string]any{"success?": "missing"}},
	))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not name a node")
}

func TestParseCycleWithoutLoopMarkerRejected(t *testing.T) {
	reg := testRegistry(t, "a", "b")
	p := NewParser(reg)

	_, err := p.Parse(def(
		NodeEntry{"a": map[string]any{"success?": "b"}},
		NodeEntry{"b": map[string]any{"success?": "a"}},
	))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestParseCycleThroughLoopMarkerAllowed(t *testing.T) {
	reg := testRegistry(t, "poll", "handle")
	p := NewParser(reg)

	_, err := p.Parse(def(
		NodeEntry{"poll...": map[string]any{"item?": "handle", "complete?": "handle"}},
		NodeEntry{"handle": map[string]any{"success?": "poll"}},
	))
	require.NoError(t, err)
}

func TestParseEntryMultipleKeysRejected(t *testing.T) {
	reg := testRegistry(t, "a", "b")
	p := NewParser(reg)

	_, err := p.Parse(def(NodeEntry{"a": map[string]any{}, "b": map[string]any{}}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one key")
}

func TestParseDefinitionDocument(t *testing.T) {
	doc := []byte(`{
		"id": "demo",
		"name": "Demo",
		"version": "1.0.0",
		"initialState": {"greeting": "hi"},
		"workflow": [ {"echo": {"msg": "$.greeting"}} ]
	}`)
	parsed, err := ParseDefinition(doc)
	require.NoError(t, err)
	assert.Equal(t, "demo", parsed.ID)
	require.Len(t, parsed.Workflow, 1)

	_, err = ParseDefinition([]byte(`{"name": "missing id", "workflow": []}`))
	require.Error(t, err)

	_, err = ParseDefinition([]byte(`{not json`))
	require.Error(t, err)
}
