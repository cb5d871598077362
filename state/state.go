//
// Copyright (C) 2025 The flowmesh Authors. All rights reserved.
//
// flowmesh is licensed under the Apache License Version 2.0.
//

// Package state implements the per-execution key/value bag shared by the
// nodes of a single workflow execution.
//
// Keys starting with "_" or "__" are reserved for engine and node
// bookkeeping. They are preserved across node calls within an execution and
// must not be used for user data.
package state

import (
	"sort"
	"strings"
)

// Bag is a per-execution mutable key/value store. Within one execution,
// nodes run sequentially, so Bag requires no internal locking; Bag instances
// are never shared across executions.
type Bag struct {
	data map[string]any
}

// New creates a Bag seeded with a deep copy of initial. A nil initial
// produces an empty bag.
func New(initial map[string]any) *Bag {
	data := make(map[string]any, len(initial))
	for k, v := range initial {
		data[k] = CopyValue(v)
	}
	return &Bag{data: data}
}

// Get returns the value stored under key.
func (b *Bag) Get(key string) (any, bool) {
	v, ok := b.data[key]
	return v, ok
}

// Set stores value under key.
func (b *Bag) Set(key string, value any) {
	b.data[key] = value
}

// Delete removes key from the bag.
func (b *Bag) Delete(key string) {
	delete(b.data, key)
}

// Merge applies every entry of patch onto the bag.
func (b *Bag) Merge(patch map[string]any) {
	for k, v := range patch {
		b.data[k] = v
	}
}

// SetPath writes value at the given dot path (e.g. "config.timeout"),
// creating intermediate maps as needed. Writing through an existing
// non-map intermediate replaces it with a map.
func (b *Bag) SetPath(dotPath string, value any) {
	segments := strings.Split(dotPath, ".")
	if len(segments) == 1 {
		b.data[dotPath] = value
		return
	}

	current := b.data
	for _, seg := range segments[:len(segments)-1] {
		next, ok := current[seg].(map[string]any)
		if !ok {
			next = make(map[string]any)
			current[seg] = next
		}
		current = next
	}
	current[segments[len(segments)-1]] = value
}

// GetPath reads the value at the given path. The path follows the resolver
// grammar: dot-separated segments with optional [index] and ['key'] steps.
func (b *Bag) GetPath(path string) (any, bool) {
	return Lookup(b.data, path)
}

// Snapshot returns a deep copy of the bag's contents, suitable for
// embedding in events without aliasing live state.
func (b *Bag) Snapshot() map[string]any {
	snapshot := make(map[string]any, len(b.data))
	for k, v := range b.data {
		snapshot[k] = CopyValue(v)
	}
	return snapshot
}

// Keys returns the sorted list of keys currently in the bag.
func (b *Bag) Keys() []string {
	keys := make([]string, 0, len(b.data))
	for k := range b.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of top-level keys.
func (b *Bag) Len() int {
	return len(b.data)
}

// CopyValue deep-copies JSON-like values (maps, slices, scalars). Values of
// other kinds are returned as-is.
func CopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = CopyValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = CopyValue(item)
		}
		return out
	default:
		return v
	}
}
