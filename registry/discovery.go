//
// Copyright (C) 2025 The flowmesh Authors. All rights reserved.
//
// flowmesh is licensed under the Apache License Version 2.0.
//

package registry

import (
	"fmt"
	"sync"

	"github.com/flowmesh/flowmesh/log"
	"github.com/flowmesh/flowmesh/node"
)

// Registrar registers nodes on behalf of one package source. Registrations
// made through it are automatically tagged with the source name so that
// ListBySource can filter them later.
type Registrar struct {
	registry *Registry
	source   string
}

// Register registers a node tagged with the registrar's source.
func (sr *Registrar) Register(n node.Node) error {
	return sr.registry.Register(n, WithSource(sr.source))
}

// Provider populates a registry with the nodes of one package source.
// Node packages register a provider from their init function; discovery then
// runs providers on demand, so importing a node package is enough to make
// its nodes discoverable without registering them eagerly.
type Provider func(sr *Registrar) error

var (
	providerMu sync.Mutex
	providers  = make(map[string]Provider)
)

// RegisterProvider makes a package source discoverable. Registering the same
// source twice replaces the earlier provider.
func RegisterProvider(source string, p Provider) {
	providerMu.Lock()
	defer providerMu.Unlock()
	providers[source] = p
}

// DiscoverFromPackages runs the providers for the named sources against r.
// With no sources given, every known provider runs. It returns the number of
// nodes added.
func (r *Registry) DiscoverFromPackages(sources ...string) (int, error) {
	providerMu.Lock()
	selected := make(map[string]Provider)
	if len(sources) == 0 {
		for name, p := range providers {
			selected[name] = p
		}
	} else {
		for _, name := range sources {
			p, ok := providers[name]
			if !ok {
				providerMu.Unlock()
				return 0, fmt.Errorf("no node provider registered for source %q", name)
			}
			selected[name] = p
		}
	}
	providerMu.Unlock()

	before := r.Size()
	for name, p := range selected {
		if err := p(&Registrar{registry: r, source: name}); err != nil {
			return r.Size() - before, fmt.Errorf("discovering nodes from %q: %w", name, err)
		}
		log.Debugf("registry: discovered nodes from source %q", name)
	}
	return r.Size() - before, nil
}
