//
// Copyright (C) 2025 The flowmesh Authors. All rights reserved.
//
// flowmesh is licensed under the Apache License Version 2.0.
//

// Package server exposes the workflow runtime over HTTP: node metadata,
// workflow definition storage, execution submission and inspection, and the
// WebSocket event stream.
package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/flowmesh/flowmesh/engine"
	"github.com/flowmesh/flowmesh/log"
	"github.com/flowmesh/flowmesh/registry"
	"github.com/flowmesh/flowmesh/workflow"
	"github.com/flowmesh/flowmesh/ws"
)

// Server wires the engine, registry, and WebSocket hub behind an HTTP API.
type Server struct {
	engine   *engine.Engine
	registry *registry.Registry
	hub      *ws.Hub
	handler  http.Handler
}

// Options contains configuration options for creating a Server.
type Options struct {
	// Hub is the WebSocket hub events are broadcast through. A new hub is
	// created and attached to the engine's bus when nil.
	Hub *ws.Hub
	// AllowedOrigins configures CORS. Empty means allow all origins.
	AllowedOrigins []string
}

// Option is a function that configures a Server.
type Option func(*Options)

// WithHub sets the WebSocket hub serving /ws.
func WithHub(hub *ws.Hub) Option {
	return func(o *Options) {
		o.Hub = hub
	}
}

// WithAllowedOrigins restricts CORS to the given origins.
func WithAllowedOrigins(origins []string) Option {
	return func(o *Options) {
		o.AllowedOrigins = origins
	}
}

// New creates a server over the given engine and registry.
func New(eng *engine.Engine, reg *registry.Registry, opts ...Option) *Server {
	var options Options
	for _, opt := range opts {
		opt(&options)
	}
	hub := options.Hub
	if hub == nil {
		hub = ws.NewHub()
		hub.Attach(eng.Bus())
	}

	s := &Server{
		engine:   eng,
		registry: reg,
		hub:      hub,
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/nodes", s.handleListNodes).Methods(http.MethodGet)
	r.HandleFunc("/api/workflows", s.handleListWorkflows).Methods(http.MethodGet)
	r.HandleFunc("/api/workflows", s.handleSaveWorkflow).Methods(http.MethodPost)
	r.HandleFunc("/api/workflows/{id}", s.handleGetWorkflow).Methods(http.MethodGet)
	r.HandleFunc("/api/workflows/{id}", s.handleDeleteWorkflow).Methods(http.MethodDelete)
	r.HandleFunc("/api/workflows/{id}/execute", s.handleExecuteWorkflow).Methods(http.MethodPost)
	r.HandleFunc("/api/execute", s.handleExecuteInline).Methods(http.MethodPost)
	r.HandleFunc("/api/executions", s.handleListExecutions).Methods(http.MethodGet)
	r.HandleFunc("/api/executions/{id}", s.handleGetExecution).Methods(http.MethodGet)
	r.HandleFunc("/api/executions/{id}/events", s.handleExecutionEvents).Methods(http.MethodGet)
	r.HandleFunc("/api/executions/{id}/cancel", s.handleCancelExecution).Methods(http.MethodPost)
	r.Handle("/ws", hub)

	c := cors.New(cors.Options{
		AllowedOrigins: options.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	s.handler = c.Handler(r)
	return s
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Hub returns the WebSocket hub serving /ws.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleListNodes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"nodes": s.registry.List()})
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"workflows": s.engine.Definitions().List()})
}

func (s *Server) handleSaveWorkflow(w http.ResponseWriter, r *http.Request) {
	var def workflow.Definition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		writeError(w, http.StatusBadRequest, "invalid workflow document: "+err.Error())
		return
	}
	if err := s.engine.Definitions().Save(&def); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	log.Infof("server: stored workflow %s", def.ID)
	writeJSON(w, http.StatusCreated, map[string]any{"id": def.ID})
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	def, err := s.engine.Definitions().Get(mux.Vars(r)["id"])
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, workflow.ErrDefinitionNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, def)
}

func (s *Server) handleDeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	s.engine.Definitions().Delete(mux.Vars(r)["id"])
	w.WriteHeader(http.StatusNoContent)
}

// executeRequest is the body of an execution submission.
type executeRequest struct {
	InitialState map[string]any `json:"initialState"`
}

func (s *Server) handleExecuteWorkflow(w http.ResponseWriter, r *http.Request) {
	def, err := s.engine.Definitions().Get(mux.Vars(r)["id"])
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, workflow.ErrDefinitionNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}

	var req executeRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}

	x, err := s.engine.Submit(def, engine.WithInitialState(req.InitialState))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"executionId": x.ID(),
		"workflowId":  x.WorkflowID(),
		"status":      x.Status(),
	})
}

// handleExecuteInline runs a workflow document from the request body
// synchronously and returns the terminal execution.
func (s *Server) handleExecuteInline(w http.ResponseWriter, r *http.Request) {
	var def workflow.Definition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		writeError(w, http.StatusBadRequest, "invalid workflow document: "+err.Error())
		return
	}

	x, err := s.engine.Execute(r.Context(), &def)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, executionView(x, true))
}

func (s *Server) handleListExecutions(w http.ResponseWriter, _ *http.Request) {
	executions := s.engine.List()
	views := make([]map[string]any, 0, len(executions))
	for _, x := range executions {
		views = append(views, executionView(x, false))
	}
	writeJSON(w, http.StatusOK, map[string]any{"executions": views})
}

func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	x, ok := s.engine.Get(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "execution not found")
		return
	}
	writeJSON(w, http.StatusOK, executionView(x, true))
}

func (s *Server) handleExecutionEvents(w http.ResponseWriter, r *http.Request) {
	x, ok := s.engine.Get(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "execution not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": x.Events()})
}

func (s *Server) handleCancelExecution(w http.ResponseWriter, r *http.Request) {
	x, ok := s.engine.Get(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "execution not found")
		return
	}
	x.Cancel()
	writeJSON(w, http.StatusAccepted, map[string]any{
		"executionId": x.ID(),
		"status":      x.Status(),
	})
}

// executionView renders an execution for API responses. Final state and the
// structured error are included only in detail views.
func executionView(x *engine.Execution, detail bool) map[string]any {
	view := map[string]any{
		"executionId": x.ID(),
		"workflowId":  x.WorkflowID(),
		"status":      x.Status(),
		"startedAt":   x.StartedAt(),
	}
	if ended := x.EndedAt(); !ended.IsZero() {
		view["endedAt"] = ended
	}
	if !detail {
		return view
	}
	if final := x.FinalState(); final != nil {
		view["finalState"] = final
	}
	if err := x.Err(); err != nil {
		view["error"] = err
	}
	return view
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Errorf("server: encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
