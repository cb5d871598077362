//
// Copyright (C) 2025 The flowmesh Authors. All rights reserved.
//
// flowmesh is licensed under the Apache License Version 2.0.
//

// Package workflow defines the declarative workflow document format, the
// parser that lowers it into a flat node list, and the store of named
// definitions used for sub-workflow invocation.
package workflow

import (
	"encoding/json"
	"fmt"
)

// Definition is a declarative workflow document. The Workflow list holds
// node entries: one-key mappings from a raw node key to its configuration.
//
// The raw key grammar:
//
//	rawKey := stateSetter | nodeRef
//	stateSetter := "$." segment ("." segment)*
//	nodeRef := id ("-" suffix)? ("...")?
//
// Inside a config, keys ending in "?" denote edge targets.
type Definition struct {
	// ID identifies the workflow.
	ID string `json:"id"`
	// Name is the human-readable workflow name.
	Name string `json:"name"`
	// Version is the document version.
	Version string `json:"version"`
	// Description describes what the workflow does.
	Description string `json:"description,omitempty"`
	// InitialState optionally seeds the execution state.
	InitialState map[string]any `json:"initialState,omitempty"`
	// Workflow is the ordered list of node entries.
	Workflow []NodeEntry `json:"workflow"`
}

// NodeEntry is a one-key mapping from raw node key to config. A config may
// be any JSON value; object configs may embed edge targets under "?" keys.
type NodeEntry map[string]any

// Key returns the entry's single raw key and its config. It fails when the
// entry does not have exactly one key.
func (e NodeEntry) Key() (string, any, error) {
	if len(e) != 1 {
		return "", nil, fmt.Errorf("node entry must have exactly one key, got %d", len(e))
	}
	for k, v := range e {
		return k, v, nil
	}
	return "", nil, fmt.Errorf("node entry is empty")
}

// ParseDefinition decodes a JSON workflow document.
func ParseDefinition(data []byte) (*Definition, error) {
	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, &ParseError{Path: "$", Message: fmt.Sprintf("invalid workflow document: %v", err)}
	}
	if def.ID == "" {
		return nil, &ParseError{Path: "id", Message: "workflow id is required"}
	}
	return &def, nil
}
