//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"trpc.group/trpc-go/trpc-flow-go/graph"
	"trpc.group/trpc-go/trpc-flow-go/storage"
)

type workflowCreateRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	WebhookSlug string          `json:"webhook_slug"`
	UserID      string          `json:"user_id"`
	Graph       json.RawMessage `json:"graph"`
}

type workflowUpdateRequest struct {
	Name        *string         `json:"name"`
	Description *string         `json:"description"`
	WebhookSlug *string         `json:"webhook_slug"`
	Graph       json.RawMessage `json:"graph"`
}

// checkGraph parses and validates a graph document against the registry.
func (s *Server) checkGraph(raw json.RawMessage) (issues []graph.Issue, err error) {
	g, err := graph.Parse(raw)
	if err != nil {
		return nil, err
	}
	if err := graph.Validate(g, s.registry); err != nil {
		var ige *graph.InvalidGraphError
		if errors.As(err, &ige) {
			return ige.Issues, err
		}
		return nil, err
	}
	return nil, nil
}

// respondInvalidGraph writes the multi-issue 400 response.
func (s *Server) respondInvalidGraph(w http.ResponseWriter, issues []graph.Issue, err error) {
	body := map[string]any{"valid": false, "error": err.Error()}
	if len(issues) > 0 {
		body["errors"] = issues
	}
	s.respondJSON(w, http.StatusBadRequest, body)
}

func (s *Server) handleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req workflowCreateRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Name == "" {
		s.respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	if len(req.Graph) == 0 {
		s.respondError(w, http.StatusBadRequest, "graph is required")
		return
	}
	if issues, err := s.checkGraph(req.Graph); err != nil {
		s.respondInvalidGraph(w, issues, err)
		return
	}
	slug := req.WebhookSlug
	if slug == "" {
		slug = uuid.NewString()
	}
	wf := &storage.Workflow{
		UserID:      req.UserID,
		Name:        req.Name,
		Description: req.Description,
		WebhookSlug: slug,
		Graph:       req.Graph,
	}
	if err := s.store.CreateWorkflow(r.Context(), wf); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, wf)
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	workflows, err := s.store.ListWorkflows(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, workflows)
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	wf, err := s.store.GetWorkflow(r.Context(), id)
	if err != nil {
		s.respondNotFound(w, err, "workflow not found")
		return
	}
	s.respondJSON(w, http.StatusOK, wf)
}

func (s *Server) handleUpdateWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	var req workflowUpdateRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	wf, err := s.store.GetWorkflow(r.Context(), id)
	if err != nil {
		s.respondNotFound(w, err, "workflow not found")
		return
	}
	updated := false
	if req.Name != nil {
		wf.Name = *req.Name
		updated = true
	}
	if req.Description != nil {
		wf.Description = *req.Description
		updated = true
	}
	if req.WebhookSlug != nil {
		wf.WebhookSlug = *req.WebhookSlug
		updated = true
	}
	if len(req.Graph) > 0 {
		if issues, err := s.checkGraph(req.Graph); err != nil {
			s.respondInvalidGraph(w, issues, err)
			return
		}
		wf.Graph = req.Graph
		updated = true
	}
	if !updated {
		s.respondJSON(w, http.StatusOK, map[string]any{"updated": false})
		return
	}
	if err := s.store.UpdateWorkflow(r.Context(), wf); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"updated": true})
}

func (s *Server) handleDeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := s.store.DeleteWorkflow(r.Context(), id); err != nil {
		s.respondNotFound(w, err, "workflow not found")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (s *Server) handleValidateGraph(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Graph json.RawMessage `json:"graph"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Graph) == 0 {
		s.respondError(w, http.StatusBadRequest, "graph is required")
		return
	}
	if issues, err := s.checkGraph(req.Graph); err != nil {
		s.respondInvalidGraph(w, issues, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"valid": true})
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		StartInput map[string]any `json:"start_input"`
		UserID     string         `json:"user_id"`
	}
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	payload := req.StartInput
	if payload == nil {
		payload = map[string]any{}
	}
	run, err := s.orchestrator.StartRun(r.Context(), id, storage.TriggerManual, payload, req.UserID)
	if err != nil {
		s.respondNotFound(w, err, "workflow not found")
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]any{"id": run.ID})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	runs, err := s.store.ListRuns(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, runs)
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	slug := mux.Vars(r)["slug"]
	wf, err := s.store.GetWorkflowBySlug(r.Context(), slug)
	if err != nil {
		s.respondNotFound(w, err, "workflow not found")
		return
	}
	var req struct {
		Payload map[string]any `json:"payload"`
	}
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	payload := req.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	run, err := s.orchestrator.StartRun(r.Context(), wf.ID, storage.TriggerWebhook, payload, "")
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]any{"id": run.ID})
}

func (s *Server) handleListBlocks(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{"blocks": s.registry.List()})
}

func (s *Server) handleBlockSpecs(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{"blocks": s.registry.Specs()})
}

// pathID parses the integer path variable, writing a 400 on failure.
func (s *Server) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

// respondNotFound maps ErrNotFound to 404 and anything else to 500.
func (s *Server) respondNotFound(w http.ResponseWriter, err error, message string) {
	if errors.Is(err, storage.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, message)
		return
	}
	s.respondError(w, http.StatusInternalServerError, err.Error())
}
