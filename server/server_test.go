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
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-flow-go/assistant"
	"trpc.group/trpc-go/trpc-flow-go/block"
	"trpc.group/trpc-go/trpc-flow-go/block/builtin"
	"trpc.group/trpc-go/trpc-flow-go/engine"
	"trpc.group/trpc-go/trpc-flow-go/storage"
	storageinmemory "trpc.group/trpc-go/trpc-flow-go/storage/inmemory"
)

const simpleGraph = `{
  "nodes": [
    {"id": "start", "type": "start", "settings": {"payload": {"topic": "go"}}},
    {"id": "show", "type": "show", "settings": {"template": "Topic: {{ start.topic }}"}}
  ],
  "edges": [{"id": "e1", "from": "start", "to": "show"}]
}`

type testEnv struct {
	store  storage.Store
	server *httptest.Server
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	store := storageinmemory.NewStore()
	reg := block.NewRegistry()
	require.NoError(t, builtin.Register(reg))
	exec := engine.New(store, reg)
	orch, err := engine.NewOrchestrator(store, exec)
	require.NoError(t, err)
	t.Cleanup(func() { orch.Close() })

	opts = append([]Option{WithPollInterval(10 * time.Millisecond)}, opts...)
	srv := New(store, reg, orch, opts...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{store: store, server: ts}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.server.URL+path, rd)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var parsed map[string]any
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &parsed))
	}
	return resp, parsed
}

func (e *testEnv) doList(t *testing.T, path string) (*http.Response, []map[string]any) {
	t.Helper()
	resp, err := http.Get(e.server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	var parsed []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	return resp, parsed
}

func (e *testEnv) createWorkflow(t *testing.T, body map[string]any) int64 {
	t.Helper()
	resp, parsed := e.do(t, http.MethodPost, "/workflows", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return int64(parsed["id"].(float64))
}

func (e *testEnv) waitForRun(t *testing.T, runID int64, want string) map[string]any {
	t.Helper()
	var last map[string]any
	require.Eventually(t, func() bool {
		resp, parsed := e.do(t, http.MethodGet, fmt.Sprintf("/runs/%d", runID), nil)
		if resp.StatusCode != http.StatusOK {
			return false
		}
		last = parsed
		return parsed["status"] == want
	}, 5*time.Second, 10*time.Millisecond)
	return last
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	resp, parsed := env.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", parsed["status"])
}

func TestWorkflowLifecycle(t *testing.T) {
	env := newTestEnv(t)

	id := env.createWorkflow(t, map[string]any{
		"name":  "demo",
		"graph": json.RawMessage(simpleGraph),
	})

	resp, parsed := env.do(t, http.MethodGet, fmt.Sprintf("/workflows/%d", id), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "demo", parsed["name"])
	require.NotEmpty(t, parsed["webhook_slug"], "slug is generated when absent")

	resp, list := env.doList(t, "/workflows")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, list, 1)

	resp, parsed = env.do(t, http.MethodPut, fmt.Sprintf("/workflows/%d", id),
		map[string]any{"description": "updated"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, parsed["updated"])

	resp, parsed = env.do(t, http.MethodPut, fmt.Sprintf("/workflows/%d", id), map[string]any{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, false, parsed["updated"])

	resp, parsed = env.do(t, http.MethodDelete, fmt.Sprintf("/workflows/%d", id), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, parsed["deleted"])

	resp, _ = env.do(t, http.MethodGet, fmt.Sprintf("/workflows/%d", id), nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateWorkflowRejectsInvalidGraph(t *testing.T) {
	env := newTestEnv(t)
	resp, parsed := env.do(t, http.MethodPost, "/workflows", map[string]any{
		"name":  "broken",
		"graph": json.RawMessage(`{"nodes": [{"id": "x", "type": "no.such.block", "settings": {}}], "edges": []}`),
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, false, parsed["valid"])
	require.NotEmpty(t, parsed["errors"])
}

func TestValidateGraph(t *testing.T) {
	env := newTestEnv(t)

	resp, parsed := env.do(t, http.MethodPost, "/validate-graph",
		map[string]any{"graph": json.RawMessage(simpleGraph)})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, parsed["valid"])

	// A cycle is reported with field-level issues.
	resp, parsed = env.do(t, http.MethodPost, "/validate-graph", map[string]any{
		"graph": json.RawMessage(`{
		  "nodes": [
		    {"id": "a", "type": "show", "settings": {}},
		    {"id": "b", "type": "show", "settings": {}}
		  ],
		  "edges": [
		    {"id": "e1", "from": "a", "to": "b"},
		    {"id": "e2", "from": "b", "to": "a"}
		  ]
		}`),
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, false, parsed["valid"])
	require.NotEmpty(t, parsed["errors"])
}

func TestRunWorkflowToCompletion(t *testing.T) {
	env := newTestEnv(t)
	id := env.createWorkflow(t, map[string]any{
		"name":  "runnable",
		"graph": json.RawMessage(simpleGraph),
	})

	resp, parsed := env.do(t, http.MethodPost, fmt.Sprintf("/workflows/%d/run", id),
		map[string]any{"start_input": map[string]any{"extra": true}})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	runID := int64(parsed["id"].(float64))

	run := env.waitForRun(t, runID, "succeeded")
	require.Equal(t, "manual", run["trigger_type"])
	require.NotNil(t, run["outputs"])
	require.Empty(t, run["current_node_id"])

	resp, list := env.doList(t, fmt.Sprintf("/workflows/%d/runs", id))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, list, 1)
}

func TestRunLogsCursor(t *testing.T) {
	env := newTestEnv(t)
	id := env.createWorkflow(t, map[string]any{
		"name":  "logged",
		"graph": json.RawMessage(simpleGraph),
	})
	_, parsed := env.do(t, http.MethodPost, fmt.Sprintf("/workflows/%d/run", id), nil)
	runID := int64(parsed["id"].(float64))
	env.waitForRun(t, runID, "succeeded")

	resp, entries := env.doList(t, fmt.Sprintf("/runs/%d/logs", runID))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, entries)

	// Paging past the first entry drops it.
	first := int64(entries[0]["id"].(float64))
	_, rest := env.doList(t, fmt.Sprintf("/runs/%d/logs?after_id=%d", runID, first))
	require.Len(t, rest, len(entries)-1)

	_, limited := env.doList(t, fmt.Sprintf("/runs/%d/logs?limit=1", runID))
	require.Len(t, limited, 1)

	resp, _ = env.do(t, http.MethodGet, "/runs/999999/logs", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebhookTrigger(t *testing.T) {
	env := newTestEnv(t)
	id := env.createWorkflow(t, map[string]any{
		"name":         "hooked",
		"webhook_slug": "my-hook",
		"graph": json.RawMessage(`{
		  "nodes": [
		    {"id": "start", "type": "start", "settings": {}},
		    {"id": "show", "type": "show", "settings": {"template": "{{ start.ping }}"}}
		  ],
		  "edges": [{"id": "e1", "from": "start", "to": "show"}]
		}`),
	})
	_ = id

	resp, parsed := env.do(t, http.MethodPost, "/hooks/my-hook",
		map[string]any{"payload": map[string]any{"ping": "pong"}})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	runID := int64(parsed["id"].(float64))

	run := env.waitForRun(t, runID, "succeeded")
	require.Equal(t, "webhook", run["trigger_type"])

	resp, _ = env.do(t, http.MethodPost, "/hooks/no-such-hook", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStreamRunLogs(t *testing.T) {
	env := newTestEnv(t)
	id := env.createWorkflow(t, map[string]any{
		"name":  "streamed",
		"graph": json.RawMessage(simpleGraph),
	})
	_, parsed := env.do(t, http.MethodPost, fmt.Sprintf("/workflows/%d/run", id), nil)
	runID := int64(parsed["id"].(float64))

	resp, err := http.Get(env.server.URL + fmt.Sprintf("/runs/%d/logs/stream", runID))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	frames := readSSE(t, resp.Body)
	require.NotEmpty(t, frames)

	types := make(map[string]bool)
	var lastStatus string
	for _, f := range frames {
		ft := f["type"].(string)
		types[ft] = true
		if ft == "status" {
			lastStatus = f["status"].(string)
		}
	}
	require.True(t, types["log"])
	require.True(t, types["node_started"])
	require.True(t, types["node_finished"])
	require.Equal(t, "succeeded", lastStatus, "stream ends at the terminal status")
}

func TestStreamUnknownRun(t *testing.T) {
	env := newTestEnv(t)
	resp, err := http.Get(env.server.URL + "/runs/424242/logs/stream")
	require.NoError(t, err)
	defer resp.Body.Close()

	frames := readSSE(t, resp.Body)
	require.Len(t, frames, 1)
	require.Equal(t, "status", frames[0]["type"])
	require.Equal(t, "not_found", frames[0]["status"])
}

// readSSE parses data frames until the server closes the stream.
func readSSE(t *testing.T, body io.Reader) []map[string]any {
	t.Helper()
	var frames []map[string]any
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var frame map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &frame))
		frames = append(frames, frame)
	}
	require.NoError(t, scanner.Err())
	return frames
}

func TestBlockCatalog(t *testing.T) {
	env := newTestEnv(t)

	resp, parsed := env.do(t, http.MethodGet, "/blocks", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	blocks := parsed["blocks"].([]any)
	require.Contains(t, blocks, "start")
	require.Contains(t, blocks, "agent.react")

	resp, parsed = env.do(t, http.MethodGet, "/block-specs", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	specs := parsed["blocks"].([]any)
	require.NotEmpty(t, specs)
	first := specs[0].(map[string]any)
	require.Contains(t, first, "type")
	require.Contains(t, first, "settings_schema")
}

func TestIntegrationAccounts(t *testing.T) {
	env := newTestEnv(t)

	resp, parsed := env.do(t, http.MethodPost, "/integrations/accounts", map[string]any{
		"user_id":              "u1",
		"toolkit":              "github",
		"connected_account_id": "ca_123",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "active", parsed["status"], "status defaults to active")

	resp, list := env.doList(t, "/integrations/accounts?user_id=u1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, list, 1)
	require.Equal(t, "github", list[0]["toolkit"])

	resp, _ = env.do(t, http.MethodPost, "/integrations/accounts",
		map[string]any{"toolkit": "github"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSignFileWithoutObjectStore(t *testing.T) {
	env := newTestEnv(t)
	resp, _ := env.do(t, http.MethodPost, "/files/1/sign", nil)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestAssistantEndpoints(t *testing.T) {
	store := storageinmemory.NewStore()
	reg := block.NewRegistry()
	require.NoError(t, builtin.Register(reg))
	exec := engine.New(store, reg)
	orch, err := engine.NewOrchestrator(store, exec)
	require.NoError(t, err)
	t.Cleanup(func() { orch.Close() })

	srv := New(store, reg, orch, WithAssistant(assistant.New(store, reg)))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	env := &testEnv{store: store, server: ts}

	resp, parsed := env.do(t, http.MethodPost, "/assistant/workflows",
		map[string]any{"prompt": "show me something", "user_id": "u9"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NotNil(t, parsed["graph"])
	wf := parsed["workflow"].(map[string]any)
	require.Equal(t, "u9", wf["user_id"])
	require.Equal(t, false, parsed["cached"])

	// Same prompt hits the cache.
	resp, parsed = env.do(t, http.MethodPost, "/assistant/workflows",
		map[string]any{"prompt": "show me something", "user_id": "u9"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, parsed["cached"])

	// create=false only drafts the graph.
	resp, parsed = env.do(t, http.MethodPost, "/assistant/workflows",
		map[string]any{"prompt": "draft only", "create": false})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, parsed["graph"])
	require.Nil(t, parsed["workflow"])

	resp, _ = env.do(t, http.MethodPost, "/assistant/workflows", map[string]any{"prompt": " "})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAssistantStream(t *testing.T) {
	store := storageinmemory.NewStore()
	reg := block.NewRegistry()
	require.NoError(t, builtin.Register(reg))
	exec := engine.New(store, reg)
	orch, err := engine.NewOrchestrator(store, exec)
	require.NoError(t, err)
	t.Cleanup(func() { orch.Close() })

	srv := New(store, reg, orch, WithAssistant(assistant.New(store, reg)))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	body, err := json.Marshal(map[string]any{"prompt": "make a workflow", "user_id": "u3"})
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+"/assistant/workflows/stream", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	frames := readSSE(t, resp.Body)
	types := make([]string, 0, len(frames))
	for _, f := range frames {
		types = append(types, f["type"].(string))
	}
	require.Equal(t, []string{"status", "status", "final_graph", "workflow_created"}, types)
}

func TestAssistantRoutesAbsentWithoutService(t *testing.T) {
	env := newTestEnv(t)
	resp, _ := env.do(t, http.MethodPost, "/assistant/workflows", map[string]any{"prompt": "x"})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
