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

	"trpc.group/trpc-go/trpc-flow-go/assistant"
)

type assistantRequest struct {
	Prompt string `json:"prompt"`
	UserID string `json:"user_id"`
	Create *bool  `json:"create"`
}

// create defaults to true: the common path persists the generated workflow.
func (req *assistantRequest) wantCreate() bool {
	return req.Create == nil || *req.Create
}

func (s *Server) handleAssistantWorkflow(w http.ResponseWriter, r *http.Request) {
	var req assistantRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !req.wantCreate() {
		raw, err := s.assistant.GenerateGraph(r.Context(), req.Prompt)
		if err != nil {
			s.respondAssistantError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, map[string]any{"graph": json.RawMessage(raw)})
		return
	}
	wf, cached, err := s.assistant.CreateWorkflow(r.Context(), req.Prompt, req.UserID)
	if err != nil {
		s.respondAssistantError(w, err)
		return
	}
	status := http.StatusCreated
	if cached {
		status = http.StatusOK
	}
	s.respondJSON(w, status, map[string]any{
		"graph":    wf.Graph,
		"workflow": wf,
		"cached":   cached,
	})
}

// handleAssistantWorkflowStream streams generation envelopes as
// server-sent events.
func (s *Server) handleAssistantWorkflowStream(w http.ResponseWriter, r *http.Request) {
	var req assistantRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	s.assistant.Stream(r.Context(), req.Prompt, req.UserID, req.wantCreate(), func(e assistant.Envelope) {
		writeSSE(w, flusher, e)
	})
}

func (s *Server) respondAssistantError(w http.ResponseWriter, err error) {
	if errors.Is(err, assistant.ErrEmptyPrompt) {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondError(w, http.StatusUnprocessableEntity, err.Error())
}
