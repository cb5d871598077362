//
// Copyright (C) 2025 The flowmesh Authors. All rights reserved.
//
// flowmesh is licensed under the Apache License Version 2.0.
//

package builtin

import (
	"context"

	"github.com/flowmesh/flowmesh/node"
)

// bookkeepingPrefix scopes the iteration cursor to one node instance, under
// the reserved double-underscore namespace.
const bookkeepingPrefix = "__everyArrayItem_"

// totalKey is the public counter of items visited by the last completed
// iteration.
const totalKey = "everyArrayItemTotal"

// EveryItem iterates over config.items, selecting the "current-item" edge
// once per element and "complete" when the array is exhausted. It is meant
// to be used with the "..." loop marker so the engine re-enters it until
// the exit edge fires. The cursor lives in execution state, keyed by the
// node's instance id, so the singleton node instance stays stateless.
type EveryItem struct{}

// EveryItem edge names.
const (
	EdgeCurrentItem = "current-item"
)

// Metadata implements node.Node.
func (n *EveryItem) Metadata() node.Metadata {
	return node.Metadata{
		ID:      "every-item",
		Name:    "Every Array Item",
		Version: "1.0.0",
		Inputs:  []string{"items"},
		Outputs: []string{EdgeCurrentItem, node.EdgeComplete},
		AIHints: &node.AIHints{
			Purpose:       "Iterate an array, emitting one item per loop pass.",
			WhenToUse:     "Mark the node with \"...\" and route current-item? to the loop body.",
			ExpectedEdges: []string{EdgeCurrentItem, node.EdgeComplete},
			ExampleUsage:  `{"every-item...": {"items": [1,2,3], "current-item?": "body", "complete?": "done"}}`,
			PostToState:   []string{totalKey},
		},
	}
}

// Execute implements node.Node.
func (n *EveryItem) Execute(_ context.Context, ec *node.ExecutionContext, config map[string]any) (node.EdgeMap, error) {
	items, _ := config["items"].([]any)
	cursorKey := bookkeepingPrefix + ec.NodeID

	idx := 0
	if v, ok := ec.State.Get(cursorKey); ok {
		if i, ok := v.(int); ok {
			idx = i
		}
	}

	if idx >= len(items) {
		ec.State.Delete(cursorKey)
		ec.State.Set(totalKey, len(items))
		total := len(items)
		return node.Edge(node.EdgeComplete, func() map[string]any {
			return map[string]any{"total": total}
		}), nil
	}

	item := items[idx]
	ec.State.Set(cursorKey, idx+1)
	index := idx
	return node.Edge(EdgeCurrentItem, func() map[string]any {
		return map[string]any{"item": item, "index": index}
	}), nil
}
