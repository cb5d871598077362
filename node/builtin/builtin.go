//
// Copyright (C) 2025 The flowmesh Authors. All rights reserved.
//
// flowmesh is licensed under the Apache License Version 2.0.
//

// Package builtin provides the nodes the runtime ships with: state-setter
// sugar support, array iteration, sub-workflow invocation, HTTP calls, and
// small value transforms.
//
// Importing the package registers a "builtin" provider; call
// Registry.DiscoverFromPackages("builtin") or RegisterAll to populate a
// registry with these nodes.
package builtin

import (
	"github.com/flowmesh/flowmesh/node"
	"github.com/flowmesh/flowmesh/registry"
)

// Source is the provider name the builtin nodes register under.
const Source = "builtin"

// All returns fresh instances of every builtin node.
func All() []node.Node {
	return []node.Node{
		&SetState{},
		&EveryItem{},
		&RunWorkflow{},
		&HTTPRequest{},
		&Transform{},
	}
}

// RegisterAll registers every builtin node directly on reg.
func RegisterAll(reg *registry.Registry) error {
	for _, n := range All() {
		if err := reg.Register(n, registry.WithSource(Source)); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	registry.RegisterProvider(Source, func(sr *registry.Registrar) error {
		for _, n := range All() {
			if err := sr.Register(n); err != nil {
				return err
			}
		}
		return nil
	})
}
