//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

package engine

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-flow-go/block"
	"trpc.group/trpc-go/trpc-flow-go/block/builtin"
	"trpc.group/trpc-go/trpc-flow-go/graph"
	"trpc.group/trpc-go/trpc-flow-go/storage"
	"trpc.group/trpc-go/trpc-flow-go/storage/inmemory"
)

func newTestExecutor(t *testing.T, opts ...Option) (*Executor, *inmemory.Store) {
	t.Helper()
	store := inmemory.NewStore()
	t.Cleanup(func() { _ = store.Close() })
	reg := block.NewRegistry()
	require.NoError(t, builtin.Register(reg))
	return New(store, reg, opts...), store
}

func createRun(t *testing.T, store storage.Store, graphJSON string, trigger map[string]any) *storage.Run {
	t.Helper()
	ctx := context.Background()
	wf := &storage.Workflow{Name: "wf", UserID: "u1", Graph: json.RawMessage(graphJSON)}
	require.NoError(t, store.CreateWorkflow(ctx, wf))
	run := &storage.Run{
		WorkflowID:     wf.ID,
		UserID:         wf.UserID,
		Status:         storage.RunStatusPending,
		TriggerType:    storage.TriggerManual,
		TriggerPayload: trigger,
	}
	require.NoError(t, store.CreateRun(ctx, run))
	return run
}

func mustExecute(t *testing.T, exec *Executor, store *inmemory.Store, graphJSON string,
	trigger map[string]any) *storage.Run {
	t.Helper()
	ctx := context.Background()
	run := createRun(t, store, graphJSON, trigger)
	require.NoError(t, exec.ExecuteRun(ctx, run.ID))
	got, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	return got
}

// logEvents extracts the lifecycle events from a run's log, in id order.
func logEvents(entries []*storage.LogEntry) []string {
	var events []string
	for _, e := range entries {
		if ev, ok := e.Data[EventKey].(string); ok {
			events = append(events, ev)
		}
	}
	return events
}

func TestExecuteRunHello(t *testing.T) {
	exec, store := newTestExecutor(t)
	ctx := context.Background()

	run := mustExecute(t, exec, store,
		`{"nodes":[{"id":"s","type":"start","settings":{"payload":{"hello":"world"}}}],"edges":[]}`, nil)

	require.Equal(t, storage.RunStatusSucceeded, run.Status)
	require.Equal(t, map[string]any{"hello": "world"}, run.Outputs["s"])
	require.NotNil(t, run.StartedAt)
	require.NotNil(t, run.FinishedAt)

	logs, err := store.ListLogs(ctx, run.ID, 0, 0)
	require.NoError(t, err)
	require.Equal(t,
		[]string{EventRunStarted, EventNodeStarted, EventNodeFinished, EventRunFinished},
		logEvents(logs))
	for i := 1; i < len(logs); i++ {
		require.Greater(t, logs[i].ID, logs[i-1].ID)
	}
}

func TestExecuteRunUppercase(t *testing.T) {
	exec, store := newTestExecutor(t)

	run := mustExecute(t, exec, store,
		`{"nodes":[{"id":"u","type":"transform.uppercase","settings":{"text":"foo"}}],"edges":[]}`, nil)

	require.Equal(t, storage.RunStatusSucceeded, run.Status)
	require.Equal(t, map[string]any{"text": "FOO"}, run.Outputs["u"])
}

func TestExecuteRunTemplateChain(t *testing.T) {
	exec, store := newTestExecutor(t)
	ctx := context.Background()

	run := mustExecute(t, exec, store, `{
		"nodes": [
			{"id": "s", "type": "start", "settings": {"payload": {"name": "Alice"}}},
			{"id": "t", "type": "transform.template", "settings": {"template": "Hello {{ s.name }}"}},
			{"id": "u", "type": "transform.uppercase", "settings": {"text": "{{ t.text }}"}}
		],
		"edges": [
			{"from": "s", "to": "t"},
			{"from": "t", "to": "u"}
		]
	}`, nil)

	require.Equal(t, storage.RunStatusSucceeded, run.Status)
	require.Equal(t, map[string]any{"text": "HELLO ALICE"}, run.Outputs["u"])

	rows, err := store.ListNodeRuns(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for i, want := range []string{"s", "t", "u"} {
		require.Equal(t, want, rows[i].NodeID)
		require.Equal(t, storage.NodeRunStatusSucceeded, rows[i].Status)
		require.NotNil(t, rows[i].StartedAt)
		require.NotNil(t, rows[i].FinishedAt)
		if i > 0 {
			require.False(t, rows[i].StartedAt.Before(*rows[i-1].StartedAt))
		}
	}

	// The persisted input envelope carries the parent outputs.
	upstream, ok := rows[1].Input["upstream"].(map[string]map[string]any)
	require.True(t, ok)
	require.Contains(t, upstream, "s")
	require.Equal(t, "t", rows[1].Input["node_id"])
	require.Equal(t, "u1", rows[1].Input["user_id"])

	logs, err := store.ListLogs(ctx, run.ID, 0, 0)
	require.NoError(t, err)
	require.Equal(t, []string{
		EventRunStarted,
		EventNodeStarted, EventNodeFinished,
		EventNodeStarted, EventNodeFinished,
		EventNodeStarted, EventNodeFinished,
		EventRunFinished,
	}, logEvents(logs))
}

func TestExecuteRunSingleNodeOutputs(t *testing.T) {
	cases := []struct {
		name   string
		graph  string
		nodeID string
		want   map[string]any
	}{
		{
			name:   "math add",
			graph:  `{"nodes":[{"id":"m","type":"math.add","settings":{"a":1,"b":2}}]}`,
			nodeID: "m",
			want:   map[string]any{"result": 3.0},
		},
		{
			name: "json get hit",
			graph: `{"nodes":[{"id":"j","type":"json.get","settings":
				{"source":{"a":{"b":{"c":42}}},"path":["a","b","c"]}}]}`,
			nodeID: "j",
			want:   map[string]any{"value": 42.0},
		},
		{
			name: "json get miss",
			graph: `{"nodes":[{"id":"j","type":"json.get","settings":
				{"source":{"a":{"b":{"c":42}}},"path":["a","x"]}}]}`,
			nodeID: "j",
			want:   map[string]any{"value": nil},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			exec, store := newTestExecutor(t)
			run := mustExecute(t, exec, store, tc.graph, nil)
			require.Equal(t, storage.RunStatusSucceeded, run.Status)
			require.Equal(t, tc.want, run.Outputs[tc.nodeID])
		})
	}
}

func TestExecuteRunFailurePropagation(t *testing.T) {
	exec, store := newTestExecutor(t)
	ctx := context.Background()

	run := mustExecute(t, exec, store, `{
		"nodes": [
			{"id": "a", "type": "start", "settings": {"payload": {"ok": true}}},
			{"id": "b", "type": "transform.template", "settings": {"template": "{{ missing.value }}"}},
			{"id": "c", "type": "show", "settings": {}}
		],
		"edges": [
			{"from": "a", "to": "b"},
			{"from": "b", "to": "c"}
		]
	}`, nil)

	require.Equal(t, storage.RunStatusFailed, run.Status)
	require.NotNil(t, run.FinishedAt)

	// Completed upstream outputs survive; the failing node contributes none
	// and later nodes never start.
	require.Len(t, run.Outputs, 1)
	require.Contains(t, run.Outputs, "a")

	rows, err := store.ListNodeRuns(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "a", rows[0].NodeID)
	require.Equal(t, storage.NodeRunStatusSucceeded, rows[0].Status)
	require.Equal(t, "b", rows[1].NodeID)
	require.Equal(t, storage.NodeRunStatusFailed, rows[1].Status)
	require.Equal(t, string(block.ErrConfig), rows[1].Error["kind"])

	logs, err := store.ListLogs(ctx, run.ID, 0, 0)
	require.NoError(t, err)
	var failed, finished *storage.LogEntry
	for _, e := range logs {
		switch e.Data[EventKey] {
		case EventNodeFailed:
			failed = e
		case EventRunFinished:
			finished = e
		}
	}
	require.NotNil(t, failed)
	require.Equal(t, "b", failed.NodeID)
	require.Equal(t, storage.LevelError, failed.Level)
	require.True(t, strings.HasPrefix(failed.Message, "Node b failed: "))
	require.NotNil(t, finished)
	require.Equal(t, storage.LevelError, finished.Level)
	require.Equal(t, string(storage.RunStatusFailed), finished.Data["status"])
}

func TestExecuteRunAgentWithCalculatorTool(t *testing.T) {
	exec, store := newTestExecutor(t)
	ctx := context.Background()

	run := mustExecute(t, exec, store, `{
		"nodes": [
			{"id": "s", "type": "start", "settings": {"payload": {"topic": "math"}}},
			{"id": "ag", "type": "agent.react", "settings": {"prompt": "Please compute (12+7)*3 for me"}},
			{"id": "calc", "type": "tool.calculator", "settings": {"name": "calc"}}
		],
		"edges": [
			{"from": "s", "to": "ag"},
			{"from": "ag", "to": "calc", "kind": "tool"}
		]
	}`, nil)

	require.Equal(t, storage.RunStatusSucceeded, run.Status)

	// Tool nodes never contribute run outputs.
	require.Len(t, run.Outputs, 2)
	agentOut, ok := run.Outputs["ag"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "57", agentOut["final"])

	rows, err := store.ListNodeRuns(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	byNode := make(map[string]*storage.NodeRun, len(rows))
	for _, row := range rows {
		byNode[row.NodeID] = row
	}
	require.Equal(t, storage.NodeRunStatusSucceeded, byNode["s"].Status)
	require.Equal(t, storage.NodeRunStatusSkipped, byNode["calc"].Status)
	require.Equal(t, storage.NodeRunStatusSucceeded, byNode["ag"].Status)

	sub := byNode["ag::tool::calc"]
	require.NotNil(t, sub)
	require.Equal(t, "tool.calculator", sub.NodeType)
	require.Equal(t, storage.NodeRunStatusSucceeded, sub.Status)
	require.Equal(t, "(12+7)*3", sub.Input["expression"])

	// The agent's persisted input carries the bindings derived from the
	// tool edge.
	require.Contains(t, byNode["ag"].Input, block.DerivedToolsKey)

	logs, err := store.ListLogs(ctx, run.ID, 0, 0)
	require.NoError(t, err)
	var skipped bool
	for _, e := range logs {
		if e.NodeID == "calc" && e.Message == "skipped; invoked via agent" {
			skipped = true
		}
	}
	require.True(t, skipped)
}

func TestExecuteRunSkipsBareToolNode(t *testing.T) {
	exec, store := newTestExecutor(t)
	ctx := context.Background()

	run := mustExecute(t, exec, store,
		`{"nodes":[{"id":"calc","type":"tool.calculator","settings":{"expression":"1+1"}}]}`, nil)

	require.Equal(t, storage.RunStatusSucceeded, run.Status)
	require.Empty(t, run.Outputs)

	rows, err := store.ListNodeRuns(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, storage.NodeRunStatusSkipped, rows[0].Status)
	require.NotNil(t, rows[0].StartedAt)
	require.NotNil(t, rows[0].FinishedAt)
}

func TestExecuteRunNodeTimeout(t *testing.T) {
	exec, store := newTestExecutor(t)
	ctx := context.Background()

	start := time.Now()
	run := mustExecute(t, exec, store,
		`{"nodes":[{"id":"z","type":"util.sleep","settings":{"seconds":5,"timeout_seconds":0.05}}]}`, nil)
	require.Less(t, time.Since(start), 3*time.Second)

	require.Equal(t, storage.RunStatusFailed, run.Status)

	rows, err := store.ListNodeRuns(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, storage.NodeRunStatusFailed, rows[0].Status)
	require.Equal(t, string(block.ErrTimeout), rows[0].Error["kind"])
}

func TestExecuteRunRejectsControlCycle(t *testing.T) {
	exec, store := newTestExecutor(t)
	ctx := context.Background()

	run := mustExecute(t, exec, store, `{
		"nodes": [
			{"id": "a", "type": "start", "settings": {}},
			{"id": "b", "type": "show", "settings": {}}
		],
		"edges": [
			{"from": "a", "to": "b"},
			{"from": "b", "to": "a"}
		]
	}`, nil)

	require.Equal(t, storage.RunStatusFailed, run.Status)
	require.Empty(t, run.Outputs)

	logs, err := store.ListLogs(ctx, run.ID, 0, 0)
	require.NoError(t, err)
	var finished *storage.LogEntry
	for _, e := range logs {
		if e.Data[EventKey] == EventRunFinished {
			finished = e
		}
	}
	require.NotNil(t, finished)
	require.Contains(t, finished.Data["error"], "cycle detected among control edges")
}

func TestExecuteRunTerminalIsSticky(t *testing.T) {
	exec, store := newTestExecutor(t)
	ctx := context.Background()

	run := mustExecute(t, exec, store,
		`{"nodes":[{"id":"s","type":"start","settings":{"payload":{"hello":"world"}}}]}`, nil)
	require.Equal(t, storage.RunStatusSucceeded, run.Status)

	logs, err := store.ListLogs(ctx, run.ID, 0, 0)
	require.NoError(t, err)
	before := len(logs)

	require.NoError(t, exec.ExecuteRun(ctx, run.ID))

	again, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, storage.RunStatusSucceeded, again.Status)
	require.Equal(t, run.FinishedAt, again.FinishedAt)

	logs, err = store.ListLogs(ctx, run.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, logs, before)
}

func TestExecuteRunUnknownRun(t *testing.T) {
	exec, _ := newTestExecutor(t)
	err := exec.ExecuteRun(context.Background(), 4242)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestExecuteRunPassesTriggerToNodes(t *testing.T) {
	exec, store := newTestExecutor(t)

	run := mustExecute(t, exec, store,
		`{"nodes":[{"id":"s","type":"start","settings":{}}]}`,
		map[string]any{"city": "Paris"})

	require.Equal(t, storage.RunStatusSucceeded, run.Status)
	require.Equal(t, map[string]any{"city": "Paris"}, run.Outputs["s"])
}

func TestDerivedToolsAcceptsBothEdgeOrientations(t *testing.T) {
	doc := []byte(`{
		"nodes": [
			{"id": "ag", "type": "agent.react", "settings": {"prompt": "p"}},
			{"id": "calc", "type": "tool.calculator", "settings": {"name": "adder"}},
			{"id": "web", "type": "tool.web_search", "settings": {}}
		],
		"edges": [
			{"from": "ag", "to": "calc", "kind": "tool"},
			{"from": "web", "to": "ag", "kind": "tool"}
		]
	}`)
	g, err := graph.Parse(doc)
	require.NoError(t, err)

	specs := derivedTools(g, g.Node("ag"))
	require.Len(t, specs, 2)
	require.Equal(t, "adder", specs[0].Name)
	require.Equal(t, "calc", specs[0].ID)
	require.Equal(t, "tool.calculator", specs[0].Type)
	// Name falls back to the node id when settings carry none.
	require.Equal(t, "web", specs[1].Name)
}
