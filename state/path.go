//
// Copyright (C) 2025 The flowmesh Authors. All rights reserved.
//
// flowmesh is licensed under the Apache License Version 2.0.
//

package state

import (
	"fmt"
	"strconv"
	"strings"
)

// Segment is one step of a parsed value path. Either Key is set (map
// access) or Index is set with IsIndex true (slice access).
type Segment struct {
	Key     string
	Index   int
	IsIndex bool
}

// ParsePath parses a path expression such as "a.b[0]['key']" into segments.
// The leading "$." of resolver expressions must already be stripped.
func ParsePath(path string) ([]Segment, error) {
	if path == "" {
		return nil, fmt.Errorf("empty path")
	}

	var segments []Segment
	rest := path
	for rest != "" {
		switch {
		case rest[0] == '.':
			rest = rest[1:]
			if rest == "" {
				return nil, fmt.Errorf("path %q ends with a dot", path)
			}
		case rest[0] == '[':
			end := strings.IndexByte(rest, ']')
			if end < 0 {
				return nil, fmt.Errorf("path %q has an unterminated bracket", path)
			}
			inner := rest[1:end]
			rest = rest[end+1:]
			if len(inner) >= 2 && inner[0] == '\'' && inner[len(inner)-1] == '\'' {
				segments = append(segments, Segment{Key: inner[1 : len(inner)-1]})
				continue
			}
			idx, err := strconv.Atoi(inner)
			if err != nil {
				return nil, fmt.Errorf("path %q has invalid index %q", path, inner)
			}
			segments = append(segments, Segment{Index: idx, IsIndex: true})
		default:
			end := strings.IndexAny(rest, ".[")
			if end < 0 {
				segments = append(segments, Segment{Key: rest})
				rest = ""
				continue
			}
			if end == 0 {
				return nil, fmt.Errorf("path %q has an empty segment", path)
			}
			segments = append(segments, Segment{Key: rest[:end]})
			rest = rest[end:]
		}
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("empty path")
	}
	return segments, nil
}

// Lookup navigates root along the parsed path and returns the referenced
// value. Missing keys, out-of-range indices, and type mismatches report
// not-found rather than an error.
func Lookup(root any, path string) (any, bool) {
	segments, err := ParsePath(path)
	if err != nil {
		return nil, false
	}
	return lookupSegments(root, segments)
}

func lookupSegments(root any, segments []Segment) (any, bool) {
	current := root
	for _, seg := range segments {
		if seg.IsIndex {
			list, ok := current.([]any)
			if !ok || seg.Index < 0 || seg.Index >= len(list) {
				return nil, false
			}
			current = list[seg.Index]
			continue
		}
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[seg.Key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}
