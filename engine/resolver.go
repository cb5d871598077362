//
// Copyright (C) 2025 The flowmesh Authors. All rights reserved.
//
// flowmesh is licensed under the Apache License Version 2.0.
//

package engine

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/flowmesh/flowmesh/state"
)

// pathPrefix marks a string value as a pure path expression into state.
const pathPrefix = "$."

var interpolationPattern = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// resolver substitutes placeholders in node configurations against the
// execution state and the current inputs. It is deliberately not an
// expression language: only path navigation and {{ }} interpolation are
// supported. Paths are looked up in state first, then in inputs.
type resolver struct {
	bag    *state.Bag
	inputs map[string]any
}

// lookup resolves a path against state, falling back to inputs.
func (r *resolver) lookup(path string) (any, bool) {
	if v, ok := r.bag.GetPath(path); ok {
		return v, true
	}
	return state.Lookup(r.inputs, path)
}

// resolveConfig walks config and returns a resolved clone. The original is
// never mutated. A malformed path expression yields a ResolveError.
func (r *resolver) resolveConfig(config map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(config))
	for k, v := range config {
		resolved, err := r.resolveValue(v)
		if err != nil {
			return nil, fmt.Errorf("config key %q: %w", k, err)
		}
		out[k] = resolved
	}
	return out, nil
}

func (r *resolver) resolveValue(v any) (any, error) {
	switch val := v.(type) {
	case string:
		return r.resolveString(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			resolved, err := r.resolveValue(item)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			resolved, err := r.resolveValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return v, nil
	}
}

// resolveString handles the two placeholder forms. A string starting with
// "$." is a pure path expression and is replaced by the referenced value,
// preserving its runtime type; unresolved pure references become nil.
// Strings containing "{{ path }}" fragments have each fragment replaced by
// the stringified value, with absent paths substituting the empty string.
func (r *resolver) resolveString(s string) (any, error) {
	if strings.HasPrefix(s, pathPrefix) {
		path := strings.TrimPrefix(s, pathPrefix)
		if _, err := state.ParsePath(path); err != nil {
			return nil, fmt.Errorf("malformed path expression %q: %w", s, err)
		}
		v, ok := r.lookup(path)
		if !ok {
			return nil, nil
		}
		return state.CopyValue(v), nil
	}

	if !interpolationPattern.MatchString(s) {
		return s, nil
	}
	result := interpolationPattern.ReplaceAllStringFunc(s, func(match string) string {
		path := strings.TrimSpace(match[2 : len(match)-2])
		path = strings.TrimPrefix(path, pathPrefix)
		v, ok := r.lookup(path)
		if !ok || v == nil {
			return ""
		}
		return stringify(v)
	})
	return result, nil
}

func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		// JSON numbers decode as float64; render integers without a
		// trailing ".0".
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
