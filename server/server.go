//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

// Package server exposes the workflow engine over HTTP: workflow CRUD,
// graph validation, run triggers (manual and webhook), run inspection with
// cursor-paged and streamed logs, the block catalog and the assistant.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"trpc.group/trpc-go/trpc-flow-go/artifact"
	"trpc.group/trpc-go/trpc-flow-go/assistant"
	"trpc.group/trpc-go/trpc-flow-go/block"
	"trpc.group/trpc-go/trpc-flow-go/engine"
	"trpc.group/trpc-go/trpc-flow-go/log"
	"trpc.group/trpc-go/trpc-flow-go/storage"
)

// defaultPollInterval paces the log stream's cursor queries.
const defaultPollInterval = time.Second

// defaultSignedURLTTL bounds re-signed file URLs when not configured.
const defaultSignedURLTTL = time.Hour

// Server is the HTTP surface over the store, the orchestrator and the
// block registry.
type Server struct {
	store        storage.Store
	registry     *block.Registry
	orchestrator *engine.Orchestrator
	assistant    *assistant.Service
	artifacts    artifact.Service

	router       *mux.Router
	corsOrigins  []string
	pollInterval time.Duration
	signedURLTTL time.Duration
}

// Option configures the Server.
type Option func(*Server)

// WithAssistant mounts the assistant endpoints.
func WithAssistant(svc *assistant.Service) Option {
	return func(s *Server) { s.assistant = svc }
}

// WithArtifacts enables file re-signing through the object store.
func WithArtifacts(svc artifact.Service) Option {
	return func(s *Server) { s.artifacts = svc }
}

// WithCORSOrigins sets the allowed CORS origins; "*" allows any.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.corsOrigins = origins
		}
	}
}

// WithPollInterval sets the log stream poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithSignedURLTTL sets the lifetime of re-signed file URLs.
func WithSignedURLTTL(ttl time.Duration) Option {
	return func(s *Server) {
		if ttl > 0 {
			s.signedURLTTL = ttl
		}
	}
}

// New builds the HTTP server over its collaborators.
func New(store storage.Store, registry *block.Registry, orch *engine.Orchestrator, opts ...Option) *Server {
	s := &Server{
		store:        store,
		registry:     registry,
		orchestrator: orch,
		router:       mux.NewRouter(),
		corsOrigins:  []string{"*"},
		pollInterval: defaultPollInterval,
		signedURLTTL: defaultSignedURLTTL,
	}
	for _, opt := range opts {
		opt(s)
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   s.corsOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Content-Length", "Content-Type"},
	})
	s.router.Use(c.Handler)
	s.registerRoutes()
	return s
}

// Handler returns the http.Handler for the server.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)

	// Workflow APIs.
	s.router.HandleFunc("/workflows", s.handleCreateWorkflow).Methods(http.MethodPost)
	s.router.HandleFunc("/workflows", s.handleListWorkflows).Methods(http.MethodGet)
	s.router.HandleFunc("/workflows/{id}", s.handleGetWorkflow).Methods(http.MethodGet)
	s.router.HandleFunc("/workflows/{id}", s.handleUpdateWorkflow).Methods(http.MethodPut)
	s.router.HandleFunc("/workflows/{id}", s.handleDeleteWorkflow).Methods(http.MethodDelete)
	s.router.HandleFunc("/validate-graph", s.handleValidateGraph).Methods(http.MethodPost)

	// Trigger APIs.
	s.router.HandleFunc("/workflows/{id}/run", s.handleStartRun).Methods(http.MethodPost)
	s.router.HandleFunc("/workflows/{id}/runs", s.handleListRuns).Methods(http.MethodGet)
	s.router.HandleFunc("/hooks/{slug}", s.handleWebhook).Methods(http.MethodPost)

	// Run APIs.
	s.router.HandleFunc("/runs/{id}", s.handleGetRun).Methods(http.MethodGet)
	s.router.HandleFunc("/runs/{id}/logs", s.handleGetRunLogs).Methods(http.MethodGet)
	s.router.HandleFunc("/runs/{id}/logs/stream", s.handleStreamRunLogs).Methods(http.MethodGet)

	// Catalog APIs.
	s.router.HandleFunc("/blocks", s.handleListBlocks).Methods(http.MethodGet)
	s.router.HandleFunc("/block-specs", s.handleBlockSpecs).Methods(http.MethodGet)

	// Integration and file APIs.
	s.router.HandleFunc("/integrations/accounts", s.handleListIntegrationAccounts).Methods(http.MethodGet)
	s.router.HandleFunc("/integrations/accounts", s.handleCreateIntegrationAccount).Methods(http.MethodPost)
	s.router.HandleFunc("/files/{id}/sign", s.handleSignFile).Methods(http.MethodPost)

	// Assistant APIs.
	if s.assistant != nil {
		s.router.HandleFunc("/assistant/workflows", s.handleAssistantWorkflow).Methods(http.MethodPost)
		s.router.HandleFunc("/assistant/workflows/stream", s.handleAssistantWorkflowStream).Methods(http.MethodPost)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// ---- helpers ------------------------------------------------------------

func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("server: encode response: %v", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]any{"error": message})
}

func decodeBody(r *http.Request, dst any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}
