//
// Copyright (C) 2025 The flowmesh Authors. All rights reserved.
//
// flowmesh is licensed under the Apache License Version 2.0.
//

package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/flowmesh/flowmesh/node"
)

// defaultBaseURL is used for relative request paths when API_BASE_URL is
// not set in the environment.
const defaultBaseURL = "http://localhost:3013"

// HTTPRequest performs an HTTP call and routes success or error based on
// the response status. Relative urls are resolved against API_BASE_URL.
type HTTPRequest struct {
	// Client is overridable for tests; nil means a default client with a
	// 30 second timeout.
	Client *http.Client
}

// Metadata implements node.Node.
func (n *HTTPRequest) Metadata() node.Metadata {
	return node.Metadata{
		ID:      "http-request",
		Name:    "HTTP Request",
		Version: "1.0.0",
		Inputs:  []string{"url", "method", "headers", "body"},
		Outputs: []string{node.EdgeSuccess, node.EdgeError},
		AIHints: &node.AIHints{
			Purpose:       "Call an HTTP endpoint and expose status and body.",
			WhenToUse:     "Fetch or push data to external services from a workflow.",
			ExpectedEdges: []string{node.EdgeSuccess, node.EdgeError},
			ExampleConfig: map[string]any{"url": "/api/items", "method": "GET"},
		},
	}
}

func (n *HTTPRequest) client() *http.Client {
	if n.Client != nil {
		return n.Client
	}
	return &http.Client{Timeout: 30 * time.Second}
}

// baseURL resolves the base for relative request paths.
func baseURL() string {
	if v := os.Getenv("API_BASE_URL"); v != "" {
		return v
	}
	return defaultBaseURL
}

// Execute implements node.Node.
func (n *HTTPRequest) Execute(ctx context.Context, ec *node.ExecutionContext, config map[string]any) (node.EdgeMap, error) {
	rawURL, ok := config["url"].(string)
	if !ok || rawURL == "" {
		return nil, fmt.Errorf("http-request requires a url")
	}
	if strings.HasPrefix(rawURL, "/") {
		rawURL = strings.TrimRight(baseURL(), "/") + rawURL
	}

	method, _ := config["method"].(string)
	if method == "" {
		method = http.MethodGet
	}
	method = strings.ToUpper(method)

	var body io.Reader
	contentType := ""
	if raw, ok := config["body"]; ok && raw != nil {
		switch v := raw.(type) {
		case string:
			body = strings.NewReader(v)
		default:
			enc, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("http-request: encode body: %w", err)
			}
			body = bytes.NewReader(enc)
			contentType = "application/json"
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("http-request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if headers, ok := config["headers"].(map[string]any); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				req.Header.Set(k, s)
			}
		}
	}
	if token, ok := ec.State.Get(jwtTokenKey); ok {
		if s, ok := token.(string); ok && s != "" && req.Header.Get("Authorization") == "" {
			req.Header.Set("Authorization", "Bearer "+s)
		}
	}

	resp, err := n.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("http-request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("http-request: read body: %w", err)
	}

	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		parsed = string(raw)
	}

	status := resp.StatusCode
	edge := node.EdgeSuccess
	if status < 200 || status >= 300 {
		edge = node.EdgeError
	}
	return node.Edge(edge, func() map[string]any {
		return map[string]any{"status": status, "body": parsed}
	}), nil
}
