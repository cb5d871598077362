//
// Copyright (C) 2025 The flowmesh Authors. All rights reserved.
//
// flowmesh is licensed under the Apache License Version 2.0.
//

// Package node defines the node contract, the core's main extension point.
// A node consumes an execution context plus a resolved configuration and
// returns an EdgeMap naming the outgoing transition it selected.
package node

import (
	"context"

	"github.com/flowmesh/flowmesh/log"
	"github.com/flowmesh/flowmesh/state"
)

// Well-known edge names. The engine treats "error" as the failure route and
// "complete"/"done" as loop exit edges; everything else is ordinary routing.
const (
	EdgeSuccess  = "success"
	EdgeError    = "error"
	EdgeComplete = "complete"
	EdgeDone     = "done"
)

// PayloadFunc lazily produces the payload of an edge. The engine invokes it
// only for the edge it selects, so unselected edges cost nothing.
type PayloadFunc func() map[string]any

// EdgeMap maps edge names to lazy payload producers. Nodes are contracted
// to return exactly one entry per invocation.
type EdgeMap map[string]PayloadFunc

// Edge builds a single-entry EdgeMap, the common case.
func Edge(name string, payload PayloadFunc) EdgeMap {
	return EdgeMap{name: payload}
}

// StaticEdge builds a single-entry EdgeMap with an eagerly known payload.
func StaticEdge(name string, payload map[string]any) EdgeMap {
	return EdgeMap{name: func() map[string]any { return payload }}
}

// AIHints carries introspection metadata describing how a node is meant to
// be used. It is never consulted during execution.
type AIHints struct {
	Purpose       string         `json:"purpose,omitempty"`
	WhenToUse     string         `json:"when_to_use,omitempty"`
	ExpectedEdges []string       `json:"expected_edges,omitempty"`
	ExampleUsage  string         `json:"example_usage,omitempty"`
	ExampleConfig map[string]any `json:"example_config,omitempty"`
	GetFromState  []string       `json:"get_from_state,omitempty"`
	PostToState   []string       `json:"post_to_state,omitempty"`
}

// Metadata describes a registered node.
type Metadata struct {
	// ID is the registry key (e.g. "set-state").
	ID string `json:"id"`
	// Name is the human-readable node name.
	Name string `json:"name"`
	// Version is the node implementation version.
	Version string `json:"version"`
	// Inputs lists the input fields the node reads.
	Inputs []string `json:"inputs"`
	// Outputs lists the edges the node may select.
	Outputs []string `json:"outputs"`
	// AIHints is optional introspection metadata.
	AIHints *AIHints `json:"ai_hints,omitempty"`
}

// Node is a stateless unit of behavior registered in the node registry.
// Instances are singletons shared across executions: implementations must
// treat the receiver as read-only and keep all per-call state in the
// ExecutionContext.
type Node interface {
	// Metadata returns the node's registry metadata.
	Metadata() Metadata
	// Execute runs the node against a resolved config and returns the
	// selected edge. A returned error (or panic) is materialized by the
	// engine as an "error" edge selection.
	Execute(ctx context.Context, ec *ExecutionContext, config map[string]any) (EdgeMap, error)
}

// Invoker starts a nested workflow execution. The engine provides one to
// nodes so that sub-workflow invocation does not leak engine internals.
type Invoker interface {
	// RunWorkflow executes the stored workflow with the given id, seeding
	// its state with seed, and returns the nested execution's final state.
	RunWorkflow(ctx context.Context, workflowID string, seed map[string]any) (map[string]any, error)
}

// EmitFunc publishes a custom progress payload on the execution's event
// stream. May be nil when no event bus is wired.
type EmitFunc func(eventType string, payload map[string]any)

// ExecutionContext is passed to every node invocation.
type ExecutionContext struct {
	// WorkflowID is the id of the workflow being executed.
	WorkflowID string
	// ExecutionID is the id of the current execution.
	ExecutionID string
	// NodeID is the instance id of the current node.
	NodeID string
	// Inputs is the payload produced by the previous node's chosen edge.
	Inputs map[string]any
	// State is the execution's shared state bag.
	State *state.Bag
	// Logger is the execution-scoped logger.
	Logger log.Logger
	// Invoker starts nested workflow executions. Nil outside an engine.
	Invoker Invoker
	// Emit publishes custom node progress. May be nil.
	Emit EmitFunc
}
