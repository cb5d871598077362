//
// Copyright (C) 2025 The flowmesh Authors. All rights reserved.
//
// flowmesh is licensed under the Apache License Version 2.0.
//

// Package registry manages node registration and lookup.
// It provides a central place to register and retrieve the node
// implementations referenced by workflow documents.
//
// Nodes can be registered in two ways:
//  1. Built-in nodes (registered at init time through providers)
//  2. Embedder custom nodes (registered before workflows are submitted)
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/flowmesh/flowmesh/node"
)

// Registration failure modes.
var (
	// ErrDuplicateID reports a node id that is already registered.
	ErrDuplicateID = errors.New("node id already registered")
	// ErrInvalidMetadata reports node metadata missing id, name, or version.
	ErrInvalidMetadata = errors.New("invalid node metadata")
	// ErrUnknownNode reports a lookup for an unregistered node id.
	ErrUnknownNode = errors.New("unknown node")
)

type entry struct {
	node   node.Node
	source string
}

// Registry is a catalog of node implementations keyed by metadata id.
// Registration is expected during initialization; lookups afterwards are
// lock-free in practice (read-mostly RWMutex).
type Registry struct {
	mu    sync.RWMutex
	nodes map[string]entry
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{nodes: make(map[string]entry)}
}

// RegisterOption configures a registration.
type RegisterOption func(*entry)

// WithSource tags the registration with its originating package or plugin
// source, for ListBySource filtering.
func WithSource(source string) RegisterOption {
	return func(e *entry) {
		e.source = source
	}
}

// Register indexes n by its metadata id.
func (r *Registry) Register(n node.Node, opts ...RegisterOption) error {
	md := n.Metadata()
	if md.ID == "" || md.Name == "" || md.Version == "" {
		return fmt.Errorf("%w: id, name, and version are required (got id=%q name=%q version=%q)",
			ErrInvalidMetadata, md.ID, md.Name, md.Version)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.nodes[md.ID]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateID, md.ID)
	}
	e := entry{node: n}
	for _, opt := range opts {
		opt(&e)
	}
	r.nodes[md.ID] = e
	return nil
}

// MustRegister registers a node and panics if registration fails.
// This is useful for init-time registration of built-in nodes.
func (r *Registry) MustRegister(n node.Node, opts ...RegisterOption) {
	if err := r.Register(n, opts...); err != nil {
		panic(err)
	}
}

// Get retrieves a node by id.
func (r *Registry) Get(id string) (node.Node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, exists := r.nodes[id]
	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNode, id)
	}
	return e.node, nil
}

// Has checks whether a node id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.nodes[id]
	return exists
}

// List returns metadata for all registered nodes, sorted by id.
func (r *Registry) List() []node.Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]node.Metadata, 0, len(r.nodes))
	for _, e := range r.nodes {
		out = append(out, e.node.Metadata())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListBySource returns metadata for nodes registered under the given source.
func (r *Registry) ListBySource(source string) []node.Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []node.Metadata
	for _, e := range r.nodes {
		if e.source == source {
			out = append(out, e.node.Metadata())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Size returns the number of registered nodes.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}

// Unregister removes a node from the registry.
// This is mainly for testing purposes.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.nodes, id)
}

// Default is the global default registry. Built-in nodes register their
// providers against it at init time.
var Default = New()

// Register registers a node in the default registry.
func Register(n node.Node, opts ...RegisterOption) error {
	return Default.Register(n, opts...)
}

// MustRegister registers a node in the default registry and panics on error.
func MustRegister(n node.Node, opts ...RegisterOption) {
	Default.MustRegister(n, opts...)
}

// Get retrieves a node from the default registry.
func Get(id string) (node.Node, error) {
	return Default.Get(id)
}

// Has checks whether a node exists in the default registry.
func Has(id string) bool {
	return Default.Has(id)
}

// List returns all node metadata from the default registry.
func List() []node.Metadata {
	return Default.List()
}
