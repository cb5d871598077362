//
// Copyright (C) 2025 The flowmesh Authors. All rights reserved.
//
// flowmesh is licensed under the Apache License Version 2.0.
//

package workflow

// StateSetterNodeID is the registry id of the built-in node that the parser
// routes "$.path" sugar entries to.
const StateSetterNodeID = "set-state"

// EdgeTarget is the parsed target of an edge. Exactly one of InstanceID or
// Inline is set: a named reference to another node in the document, or an
// inline sub-workflow fragment.
type EdgeTarget struct {
	// InstanceID names another node in the same workflow.
	InstanceID string `json:"instanceId,omitempty"`
	// Inline is a nested fragment to execute before returning to the
	// enclosing sequence.
	Inline []*ParsedNode `json:"inline,omitempty"`
	// Implicit marks a "success" link synthesized from flat-list sequence
	// order rather than declared in the document. Loop-continue subflows
	// ignore implicit links so control returns to the loop node.
	Implicit bool `json:"implicit,omitempty"`
}

// ParsedNode is the flat representation of one document node entry.
type ParsedNode struct {
	// NodeID is the registry key (base id without suffixes).
	NodeID string `json:"nodeId"`
	// InstanceID is the entry's full raw key, unique within the execution.
	InstanceID string `json:"instanceId"`
	// Config is the node configuration with edge-target keys removed but
	// placeholders still unresolved.
	Config map[string]any `json:"config,omitempty"`
	// Edges maps edge names to their parsed targets.
	Edges map[string]*EdgeTarget `json:"edges,omitempty"`
	// IsLoop reports the "..." suffix.
	IsLoop bool `json:"isLoop,omitempty"`
	// IsStateSetter reports the "$." sugar form.
	IsStateSetter bool `json:"isStateSetter,omitempty"`
}

// ParsedWorkflow is the parser output: document metadata plus the lowered
// node list.
type ParsedWorkflow struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Version      string         `json:"version"`
	Description  string         `json:"description,omitempty"`
	InitialState map[string]any `json:"initialState,omitempty"`
	Nodes        []*ParsedNode  `json:"nodes"`
}

// Instances returns every parsed node in the workflow, including nodes
// nested in inline fragments, keyed by instance id.
func (pw *ParsedWorkflow) Instances() map[string]*ParsedNode {
	out := make(map[string]*ParsedNode)
	var walk func(nodes []*ParsedNode)
	walk = func(nodes []*ParsedNode) {
		for _, n := range nodes {
			out[n.InstanceID] = n
			for _, target := range n.Edges {
				if len(target.Inline) > 0 {
					walk(target.Inline)
				}
			}
		}
	}
	walk(pw.Nodes)
	return out
}
