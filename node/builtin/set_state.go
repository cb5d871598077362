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

// SetState writes a value at a dot path in the execution state. The parser
// routes "$.a.b.c" sugar entries to this node with config
// { statePath: "a.b.c", value: <value> }.
type SetState struct{}

// Metadata implements node.Node.
func (n *SetState) Metadata() node.Metadata {
	return node.Metadata{
		ID:      "set-state",
		Name:    "Set State",
		Version: "1.0.0",
		Inputs:  []string{"statePath", "value"},
		Outputs: []string{node.EdgeSuccess},
		AIHints: &node.AIHints{
			Purpose:       "Write a value into execution state at a dot path.",
			WhenToUse:     "Use the \"$.path.to.value\" key form in a workflow document.",
			ExpectedEdges: []string{node.EdgeSuccess},
			ExampleUsage:  `{"$.config.timeout": {"value": 30}}`,
			PostToState:   []string{"<statePath>"},
		},
	}
}

// Execute implements node.Node.
func (n *SetState) Execute(_ context.Context, ec *node.ExecutionContext, config map[string]any) (node.EdgeMap, error) {
	path, ok := config["statePath"].(string)
	if !ok || path == "" {
		return nil, fmt.Errorf("set-state requires a statePath")
	}
	value := config["value"]

	ec.State.SetPath(path, value)
	return node.Edge(node.EdgeSuccess, func() map[string]any {
		return map[string]any{"statePath": path, "value": value}
	}), nil
}
