//
// Copyright (C) 2025 The flowmesh Authors. All rights reserved.
//
// flowmesh is licensed under the Apache License Version 2.0.
//

package builtin

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/flowmesh/flowmesh/node"
)

// Transform applies a single value operation to config.value. Supported
// operations: uppercase, lowercase, trim, length, keys, reverse.
type Transform struct{}

// Metadata implements node.Node.
func (n *Transform) Metadata() node.Metadata {
	return node.Metadata{
		ID:      "transform",
		Name:    "Transform",
		Version: "1.0.0",
		Inputs:  []string{"value", "operation"},
		Outputs: []string{node.EdgeSuccess, node.EdgeError},
		AIHints: &node.AIHints{
			Purpose:       "Apply a simple transformation to a value.",
			WhenToUse:     "Reshape strings, arrays, or objects between nodes.",
			ExpectedEdges: []string{node.EdgeSuccess, node.EdgeError},
			ExampleConfig: map[string]any{"value": "hello", "operation": "uppercase"},
		},
	}
}

// Execute implements node.Node.
func (n *Transform) Execute(_ context.Context, _ *node.ExecutionContext, config map[string]any) (node.EdgeMap, error) {
	op, ok := config["operation"].(string)
	if !ok || op == "" {
		return nil, fmt.Errorf("transform requires an operation")
	}
	value := config["value"]

	result, err := applyTransform(op, value)
	if err != nil {
		return nil, err
	}
	return node.Edge(node.EdgeSuccess, func() map[string]any {
		return map[string]any{"result": result, "operation": op}
	}), nil
}

func applyTransform(op string, value any) (any, error) {
	switch op {
	case "uppercase":
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("transform %q needs a string value", op)
		}
		return strings.ToUpper(s), nil
	case "lowercase":
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("transform %q needs a string value", op)
		}
		return strings.ToLower(s), nil
	case "trim":
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("transform %q needs a string value", op)
		}
		return strings.TrimSpace(s), nil
	case "length":
		switch v := value.(type) {
		case string:
			return len(v), nil
		case []any:
			return len(v), nil
		case map[string]any:
			return len(v), nil
		}
		return nil, fmt.Errorf("transform %q needs a string, array, or object", op)
	case "keys":
		m, ok := value.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("transform %q needs an object value", op)
		}
		keys := make([]any, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i].(string) < keys[j].(string) })
		return keys, nil
	case "reverse":
		switch v := value.(type) {
		case string:
			runes := []rune(v)
			for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
				runes[i], runes[j] = runes[j], runes[i]
			}
			return string(runes), nil
		case []any:
			out := make([]any, len(v))
			for i, item := range v {
				out[len(v)-1-i] = item
			}
			return out, nil
		}
		return nil, fmt.Errorf("transform %q needs a string or array value", op)
	}
	return nil, fmt.Errorf("unknown transform operation %q", op)
}
