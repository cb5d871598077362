//
// Copyright (C) 2025 The flowmesh Authors. All rights reserved.
//
// flowmesh is licensed under the Apache License Version 2.0.
//

package workflow

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrDefinitionNotFound reports a lookup for an unknown workflow id.
var ErrDefinitionNotFound = errors.New("workflow definition not found")

// DefinitionStore keeps named workflow documents in memory. The engine
// consults it when a run-workflow node invokes a stored sub-workflow.
type DefinitionStore struct {
	mu   sync.RWMutex
	defs map[string]*Definition
}

// NewDefinitionStore creates an empty store.
func NewDefinitionStore() *DefinitionStore {
	return &DefinitionStore{defs: make(map[string]*Definition)}
}

// Save stores def under its id, replacing any previous version.
func (s *DefinitionStore) Save(def *Definition) error {
	if def == nil || def.ID == "" {
		return fmt.Errorf("definition must have an id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defs[def.ID] = def
	return nil
}

// Get returns the definition stored under id.
func (s *DefinitionStore) Get(id string) (*Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.defs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrDefinitionNotFound, id)
	}
	return def, nil
}

// Delete removes the definition stored under id.
func (s *DefinitionStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.defs, id)
}

// List returns the stored definitions sorted by id.
func (s *DefinitionStore) List() []*Definition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Definition, 0, len(s.defs))
	for _, def := range s.defs {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
