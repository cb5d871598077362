//
// Copyright (C) 2025 The flowmesh Authors. All rights reserved.
//
// flowmesh is licensed under the Apache License Version 2.0.
//

package workflow

import (
	"fmt"
	"strings"

	"github.com/flowmesh/flowmesh/node"
	"github.com/flowmesh/flowmesh/registry"
)

const (
	loopSuffix     = "..."
	stateSugar     = "$."
	edgeKeySuffix  = "?"
	configKeyPath  = "statePath"
	configKeyValue = "value"
)

// Parser lowers workflow documents into ParsedWorkflows. It consults the
// node registry for id resolution and edge metadata but never executes
// anything; Parse is a pure function of the document and registry contents.
type Parser struct {
	registry *registry.Registry
}

// NewParser creates a parser backed by the given registry.
func NewParser(reg *registry.Registry) *Parser {
	return &Parser{registry: reg}
}

// Parse lowers def into a flat ParsedNode list and validates it: every node
// id must be registered, every named edge target must resolve, and the only
// cycles allowed are re-entries through loop-marked nodes.
func (p *Parser) Parse(def *Definition) (*ParsedWorkflow, error) {
	seen := make(map[string]bool)
	nodes, err := p.parseSequence(def.Workflow, "workflow", seen)
	if err != nil {
		return nil, err
	}

	pw := &ParsedWorkflow{
		ID:           def.ID,
		Name:         def.Name,
		Version:      def.Version,
		Description:  def.Description,
		InitialState: def.InitialState,
		Nodes:        nodes,
	}
	if err := p.validate(pw); err != nil {
		return nil, err
	}
	return pw, nil
}

// parseSequence lowers one ordered list of node entries.
func (p *Parser) parseSequence(entries []NodeEntry, path string, seen map[string]bool) ([]*ParsedNode, error) {
	nodes := make([]*ParsedNode, 0, len(entries))
	for i, entry := range entries {
		entryPath := fmt.Sprintf("%s[%d]", path, i)
		rawKey, rawConfig, err := entry.Key()
		if err != nil {
			return nil, parseErrorf(entryPath, "%v", err)
		}

		parsed, err := p.parseEntry(rawKey, rawConfig, entryPath, seen)
		if err != nil {
			return nil, err
		}
		if seen[parsed.InstanceID] {
			return nil, parseErrorf(entryPath, "duplicate node instance %q; add a -<n> suffix to disambiguate", parsed.InstanceID)
		}
		seen[parsed.InstanceID] = true
		nodes = append(nodes, parsed)
	}
	p.linkImplicitEdges(nodes)
	return nodes, nil
}

// parseEntry lowers a single rawKey/config pair into a ParsedNode.
func (p *Parser) parseEntry(rawKey string, rawConfig any, path string, seen map[string]bool) (*ParsedNode, error) {
	if strings.HasPrefix(rawKey, stateSugar) {
		return p.parseStateSetter(rawKey, rawConfig, path, seen)
	}

	key := rawKey
	isLoop := strings.HasSuffix(key, loopSuffix)
	if isLoop {
		key = strings.TrimSuffix(key, loopSuffix)
	}
	if key == "" {
		return nil, parseErrorf(path, "node key %q has no id", rawKey)
	}

	config, edges, err := p.splitConfig(rawConfig, path, seen)
	if err != nil {
		return nil, err
	}

	return &ParsedNode{
		NodeID:     p.baseID(key),
		InstanceID: key,
		Config:     config,
		Edges:      edges,
		IsLoop:     isLoop,
	}, nil
}

// parseStateSetter rewrites "$.a.b.c" sugar into a call to the built-in
// state-setter node with statePath "a.b.c".
func (p *Parser) parseStateSetter(rawKey string, rawConfig any, path string, seen map[string]bool) (*ParsedNode, error) {
	statePath := strings.TrimPrefix(rawKey, stateSugar)
	if statePath == "" {
		return nil, parseErrorf(path, "state-setter key %q has an empty path", rawKey)
	}

	// A non-object config is the value itself: {"$.x": 5} writes 5 to x.
	if _, ok := rawConfig.(map[string]any); !ok && rawConfig != nil {
		return &ParsedNode{
			NodeID:        StateSetterNodeID,
			InstanceID:    rawKey,
			Config:        map[string]any{configKeyPath: statePath, configKeyValue: rawConfig},
			IsStateSetter: true,
		}, nil
	}

	config, edges, err := p.splitConfig(rawConfig, path, seen)
	if err != nil {
		return nil, err
	}

	// The value comes from config.value when present, otherwise the whole
	// config stands in as the value.
	value, ok := config[configKeyValue]
	if !ok {
		value = any(config)
	}

	return &ParsedNode{
		NodeID:     StateSetterNodeID,
		InstanceID: rawKey,
		Config: map[string]any{
			configKeyPath:  statePath,
			configKeyValue: value,
		},
		Edges:         edges,
		IsStateSetter: true,
	}, nil
}

// splitConfig separates a raw config object into plain configuration and
// parsed edge targets ("?" keys).
func (p *Parser) splitConfig(rawConfig any, path string, seen map[string]bool) (map[string]any, map[string]*EdgeTarget, error) {
	if rawConfig == nil {
		return map[string]any{}, nil, nil
	}
	cfgMap, ok := rawConfig.(map[string]any)
	if !ok {
		return nil, nil, parseErrorf(path, "config must be an object, got %T", rawConfig)
	}

	config := make(map[string]any, len(cfgMap))
	var edges map[string]*EdgeTarget
	for k, v := range cfgMap {
		if !strings.HasSuffix(k, edgeKeySuffix) {
			config[k] = v
			continue
		}
		edgeName := strings.TrimSuffix(k, edgeKeySuffix)
		if edgeName == "" {
			return nil, nil, parseErrorf(path, "edge key %q has no name", k)
		}
		target, err := p.parseEdgeTarget(v, path+"."+k, seen)
		if err != nil {
			return nil, nil, err
		}
		if edges == nil {
			edges = make(map[string]*EdgeTarget)
		}
		edges[edgeName] = target
	}
	return config, edges, nil
}

// parseEdgeTarget lowers an edge-target descriptor: a string names another
// node by instance id; an object or list is an inline fragment parsed
// recursively.
func (p *Parser) parseEdgeTarget(v any, path string, seen map[string]bool) (*EdgeTarget, error) {
	switch target := v.(type) {
	case string:
		if target == "" {
			return nil, parseErrorf(path, "edge target cannot be empty")
		}
		return &EdgeTarget{InstanceID: target}, nil
	case map[string]any:
		inline, err := p.parseSequence([]NodeEntry{NodeEntry(target)}, path, seen)
		if err != nil {
			return nil, err
		}
		return &EdgeTarget{Inline: inline}, nil
	case []any:
		entries := make([]NodeEntry, 0, len(target))
		for i, item := range target {
			entry, ok := item.(map[string]any)
			if !ok {
				return nil, parseErrorf(fmt.Sprintf("%s[%d]", path, i), "inline fragment element must be a node entry, got %T", item)
			}
			entries = append(entries, NodeEntry(entry))
		}
		inline, err := p.parseSequence(entries, path, seen)
		if err != nil {
			return nil, err
		}
		return &EdgeTarget{Inline: inline}, nil
	default:
		return nil, parseErrorf(path, "edge target must be a string, object, or list, got %T", v)
	}
}

// baseID resolves the registry key for a node key, stripping a trailing
// "-<suffix>" disambiguator when the stripped base is registered and the
// full key is not.
func (p *Parser) baseID(key string) string {
	if p.registry.Has(key) {
		return key
	}
	if idx := strings.LastIndex(key, "-"); idx > 0 {
		if base := key[:idx]; p.registry.Has(base) {
			return base
		}
	}
	return key
}

// linkImplicitEdges gives each node without explicit edge targets its next
// sibling as the "success" target, provided the node's metadata lists
// success among its expected edges. This supports flat-list documents.
func (p *Parser) linkImplicitEdges(nodes []*ParsedNode) {
	for i, n := range nodes {
		if len(n.Edges) > 0 || i == len(nodes)-1 {
			continue
		}
		impl, err := p.registry.Get(n.NodeID)
		if err != nil {
			continue // unknown node, validation reports it
		}
		if !edgeListed(impl.Metadata().Outputs, node.EdgeSuccess) {
			continue
		}
		n.Edges = map[string]*EdgeTarget{
			node.EdgeSuccess: {InstanceID: nodes[i+1].InstanceID, Implicit: true},
		}
	}
}

func edgeListed(edges []string, name string) bool {
	for _, e := range edges {
		if e == name {
			return true
		}
	}
	return false
}

// validate enforces the parsed-workflow invariants.
func (p *Parser) validate(pw *ParsedWorkflow) error {
	instances := pw.Instances()

	for _, n := range instances {
		if !p.registry.Has(n.NodeID) {
			return fmt.Errorf("instance %q: %w: %q", n.InstanceID, registry.ErrUnknownNode, n.NodeID)
		}
		for edgeName, target := range n.Edges {
			if target.InstanceID == "" {
				continue
			}
			if _, ok := instances[target.InstanceID]; !ok {
				return parseErrorf(
					fmt.Sprintf("%s.%s?", n.InstanceID, edgeName),
					"edge target %q does not name a node in this workflow", target.InstanceID)
			}
		}
	}
	return p.checkCycles(pw, instances)
}

// checkCycles rejects cycles that do not pass through a loop-marked node.
// Sequence fall-through always moves forward, so only explicit edges and
// inline fragments can close a cycle.
func (p *Parser) checkCycles(pw *ParsedWorkflow, instances map[string]*ParsedNode) error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(instances))

	var visit func(n *ParsedNode) error
	visit = func(n *ParsedNode) error {
		color[n.InstanceID] = gray
		for _, target := range n.Edges {
			var nexts []*ParsedNode
			if target.InstanceID != "" {
				nexts = append(nexts, instances[target.InstanceID])
			}
			if len(target.Inline) > 0 {
				nexts = append(nexts, target.Inline[0])
			}
			for _, next := range nexts {
				switch color[next.InstanceID] {
				case gray:
					if !next.IsLoop && !n.IsLoop {
						return parseErrorf(n.InstanceID, "cycle through %q; only loop-marked (\"...\") nodes may be re-entered", next.InstanceID)
					}
				case white:
					if err := visit(next); err != nil {
						return err
					}
				}
			}
		}
		color[n.InstanceID] = black
		return nil
	}

	for _, n := range pw.Nodes {
		if color[n.InstanceID] == white {
			if err := visit(n); err != nil {
				return err
			}
		}
	}
	return nil
}
