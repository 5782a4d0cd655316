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
	"fmt"
	"net/http"
	"strconv"
	"time"

	"trpc.group/trpc-go/trpc-flow-go/engine"
	"trpc.group/trpc-go/trpc-flow-go/log"
	"trpc.group/trpc-go/trpc-flow-go/storage"
)

// runView is the run representation served by GET /runs/{id}. It extends
// the stored row with the currently executing node.
type runView struct {
	*storage.Run
	CurrentNodeID string `json:"current_node_id,omitempty"`
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	run, err := s.store.GetRun(r.Context(), id)
	if err != nil {
		s.respondNotFound(w, err, "run not found")
		return
	}
	view := runView{Run: run}
	if run.Status == storage.RunStatusRunning {
		view.CurrentNodeID, err = s.currentNodeID(r, id)
		if err != nil {
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	s.respondJSON(w, http.StatusOK, view)
}

// currentNodeID is the most recent node run whose finished_at is unset.
func (s *Server) currentNodeID(r *http.Request, runID int64) (string, error) {
	nodeRuns, err := s.store.ListNodeRuns(r.Context(), runID)
	if err != nil {
		return "", err
	}
	for i := len(nodeRuns) - 1; i >= 0; i-- {
		if nodeRuns[i].FinishedAt == nil {
			return nodeRuns[i].NodeID, nil
		}
	}
	return "", nil
}

func (s *Server) handleGetRunLogs(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	if _, err := s.store.GetRun(r.Context(), id); err != nil {
		s.respondNotFound(w, err, "run not found")
		return
	}
	afterID := queryInt64(r, "after_id", 0)
	limit := int(queryInt64(r, "limit", 0))
	entries, err := s.store.ListLogs(r.Context(), id, afterID, limit)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, entries)
}

// handleStreamRunLogs serves the run's log as server-sent events: log
// frames for every entry past the cursor, typed node lifecycle frames
// derived from lifecycle entries, and a status frame on every status
// change. The stream ends when the run reaches a terminal status.
func (s *Server) handleStreamRunLogs(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "id")
	if !ok {
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

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	var cursor int64
	lastStatus := storage.RunStatus("")
	for {
		run, err := s.store.GetRun(r.Context(), id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				writeSSE(w, flusher, map[string]any{"type": "status", "status": "not_found"})
				return
			}
			log.Errorf("server: stream run %d: %v", id, err)
			return
		}

		entries, err := s.store.ListLogs(r.Context(), id, cursor, 0)
		if err != nil {
			log.Errorf("server: stream run %d logs: %v", id, err)
			return
		}
		for _, entry := range entries {
			cursor = entry.ID
			writeSSE(w, flusher, map[string]any{"type": "log", "entry": entry})
			if frame := lifecycleFrame(entry); frame != nil {
				writeSSE(w, flusher, frame)
			}
		}

		if run.Status != lastStatus {
			lastStatus = run.Status
			writeSSE(w, flusher, map[string]any{"type": "status", "status": string(run.Status)})
		}
		if run.Status.Terminal() {
			return
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

// lifecycleFrame derives a typed frame from a lifecycle log entry, or nil
// for plain log entries.
func lifecycleFrame(entry *storage.LogEntry) map[string]any {
	event, _ := entry.Data[engine.EventKey].(string)
	switch event {
	case engine.EventNodeStarted, engine.EventNodeFinished, engine.EventNodeFailed:
		return map[string]any{"type": event, "node_id": entry.NodeID}
	default:
		return nil
	}
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, frame map[string]any) {
	data, err := json.Marshal(frame)
	if err != nil {
		log.Errorf("server: marshal SSE frame: %v", err)
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}

func queryInt64(r *http.Request, name string, fallback int64) int64 {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}
