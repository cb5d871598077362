//
// Copyright (C) 2025 The flowmesh Authors. All rights reserved.
//
// flowmesh is licensed under the Apache License Version 2.0.
//

package builtin

import (
	"context"
	"fmt"

	"github.com/flowmesh/flowmesh/node"
)

// jwtTokenKey is the state key automated triggers seed credentials under.
// A sub-workflow inherits it from the parent execution unless the config
// overrides it.
const jwtTokenKey = "JWT_token"

// RunWorkflow invokes a stored workflow definition as a nested execution
// and returns its final state on the success edge.
type RunWorkflow struct{}

// Metadata implements node.Node.
func (n *RunWorkflow) Metadata() node.Metadata {
	return node.Metadata{
		ID:      "run-workflow",
		Name:    "Run Workflow",
		Version: "1.0.0",
		Inputs:  []string{"workflowId", "state"},
		Outputs: []string{node.EdgeSuccess, node.EdgeError},
		AIHints: &node.AIHints{
			Purpose:       "Execute another stored workflow as a sub-workflow.",
			WhenToUse:     "Compose workflows; the nested run gets its own execution id and event stream.",
			ExpectedEdges: []string{node.EdgeSuccess, node.EdgeError},
			ExampleConfig: map[string]any{"workflowId": "child-flow", "state": map[string]any{"k": "v"}},
		},
	}
}

// Execute implements node.Node.
func (n *RunWorkflow) Execute(ctx context.Context, ec *node.ExecutionContext, config map[string]any) (node.EdgeMap, error) {
	workflowID, ok := config["workflowId"].(string)
	if !ok || workflowID == "" {
		return nil, fmt.Errorf("run-workflow requires a workflowId")
	}
	if ec.Invoker == nil {
		return nil, fmt.Errorf("run-workflow is not available outside an engine")
	}

	seed, _ := config["state"].(map[string]any)
	if seed == nil {
		seed = make(map[string]any)
	}
	if _, ok := seed[jwtTokenKey]; !ok {
		if token, ok := ec.State.Get(jwtTokenKey); ok {
			seed[jwtTokenKey] = token
		}
	}

	final, err := ec.Invoker.RunWorkflow(ctx, workflowID, seed)
	if err != nil {
		return nil, fmt.Errorf("sub-workflow %q: %w", workflowID, err)
	}
	return node.Edge(node.EdgeSuccess, func() map[string]any {
		return map[string]any{"workflowId": workflowID, "finalState": final}
	}), nil
}
