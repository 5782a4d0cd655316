//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

package builtin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-flow-go/block"
	"trpc.group/trpc-go/trpc-flow-go/model"
	"trpc.group/trpc-go/trpc-flow-go/react"
	"trpc.group/trpc-go/trpc-flow-go/storage"
	storeinmem "trpc.group/trpc-go/trpc-flow-go/storage/inmemory"
)

// queueModel pops scripted replies in order, for driving the agent loop.
type queueModel struct {
	replies  []string
	requests []*model.Request
}

var _ model.Model = (*queueModel)(nil)

func (m *queueModel) Info() model.Info { return model.Info{Name: "queued"} }

func (m *queueModel) GenerateContent(ctx context.Context, req *model.Request) (*model.Response, error) {
	m.requests = append(m.requests, req)
	if len(m.replies) == 0 {
		return &model.Response{}, nil
	}
	next := m.replies[0]
	m.replies = m.replies[1:]
	return &model.Response{Text: next, Model: "queued"}, nil
}

func TestAgentReactOfflineCalculatorFlow(t *testing.T) {
	reg := newTestRegistry(t)
	store := storeinmem.NewStore()
	logs := &logCapture{}
	rc := &block.RunContext{
		Registry: reg,
		Store:    store,
		RunID:    11,
		Log:      logs.fn(),
	}

	out, err := runBlock(t, reg, "agent.react", &block.Input{
		NodeID:   "agent",
		Settings: map[string]any{"prompt": "Please compute (12+7)*3 for me"},
		DerivedTools: []block.ToolSpec{
			{ID: "calc-node", Name: "calc", Type: "tool.calculator"},
		},
	}, rc)
	require.NoError(t, err)
	require.Equal(t, "57", out["final"])

	trace, ok := out["trace"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, trace, 1)
	require.Equal(t, "calc", trace[0]["action"])

	// The tool sub-call got its own lifecycle row.
	rows, err := store.ListNodeRuns(context.Background(), 11)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	sub := rows[0]
	require.Equal(t, "agent::tool::calc", sub.NodeID)
	require.Equal(t, "tool.calculator", sub.NodeType)
	require.Equal(t, storage.NodeRunStatusSucceeded, sub.Status)
	require.Equal(t, map[string]any{"expression": "(12+7)*3"}, sub.Input)
	require.Equal(t, 57.0, sub.Output["result"])
	require.NotNil(t, sub.StartedAt)
	require.NotNil(t, sub.FinishedAt)

	var started, finished bool
	for _, e := range logs.all() {
		switch e.message {
		case "agent.react: starting loop":
			started = true
			require.Equal(t, "offline", e.data["model"])
			require.Equal(t, []string{"calc"}, e.data["tools"])
		case "agent.react: loop finished":
			finished = true
			require.Equal(t, "57", e.data["final_preview"])
			require.Equal(t, 1, e.data["steps"])
		}
	}
	require.True(t, started)
	require.True(t, finished)
}

func TestAgentReactOfflineWithoutToolsExhausts(t *testing.T) {
	reg := newTestRegistry(t)

	out, err := runBlock(t, reg, "agent.react", &block.Input{
		NodeID:   "agent",
		Settings: map[string]any{"prompt": "tell me a story"},
	}, &block.RunContext{Registry: reg})
	require.NoError(t, err)
	require.Equal(t, react.ExhaustedAnswer, out["final"])
	require.Equal(t, []map[string]any{}, out["trace"], "trace is always an array")
}

func TestAgentReactPromptValidation(t *testing.T) {
	reg := newTestRegistry(t)

	_, err := runBlock(t, reg, "agent.react", &block.Input{}, &block.RunContext{Registry: reg})
	be := requireBlockError(t, err, block.ErrConfig)
	require.Equal(t, "agent.react requires a non-empty 'prompt'", be.Message)

	_, err = runBlock(t, reg, "agent.react", &block.Input{
		Settings: map[string]any{"prompt": "   "},
	}, &block.RunContext{Registry: reg})
	requireBlockError(t, err, block.ErrConfig)

	_, err = runBlock(t, reg, "agent.react", &block.Input{
		Settings: map[string]any{"prompt": "{{missing.value}}"},
	}, &block.RunContext{Registry: reg})
	requireBlockError(t, err, block.ErrConfig)
}

func TestAgentReactSkipsToolsWithMissingDependencies(t *testing.T) {
	reg := newTestRegistry(t)
	logs := &logCapture{}
	rc := &block.RunContext{Registry: reg, Log: logs.fn()}

	out, err := runBlock(t, reg, "agent.react", &block.Input{
		NodeID:   "agent",
		Settings: map[string]any{"prompt": "Please compute 6*7"},
		DerivedTools: []block.ToolSpec{
			{Name: "gmail", Type: "tool.composio", Settings: map[string]any{"tool_slug": "GMAIL_SEND_EMAIL"}},
			{Name: "runner", Type: "tool.code_interpreter"},
			{Name: "calc", Type: "tool.calculator"},
		},
	}, rc)
	require.NoError(t, err)
	require.Equal(t, "42", out["final"], "the gated tools do not block the rest")

	warns := logs.byLevel("warn")
	require.Len(t, warns, 1, "one consolidated warning for all skipped tools")
	require.Equal(t, "agent.react: skipping tools with missing dependencies", warns[0].message)
	require.Equal(t, []string{"gmail", "runner"}, warns[0].data["skipped"])
	require.Equal(t, []string{"composio api key", "code executor"}, warns[0].data["missing"])

	for _, e := range logs.all() {
		if e.message == "agent.react: starting loop" {
			require.Equal(t, []string{"calc"}, e.data["tools"])
		}
	}
}

func TestAgentReactModelLoopDispatchesTool(t *testing.T) {
	reg := newTestRegistry(t)
	store := storeinmem.NewStore()
	m := &queueModel{replies: []string{
		"Thought: I should calculate.\nAction: calc\nAction Input: {\"expression\": \"6*7\"}",
		"Final Answer: The answer is 42.",
	}}
	rc := &block.RunContext{Registry: reg, Store: store, RunID: 5, Model: m}

	out, err := runBlock(t, reg, "agent.react", &block.Input{
		NodeID:   "agent",
		Settings: map[string]any{"prompt": "what is six times seven?"},
		DerivedTools: []block.ToolSpec{
			{Name: "calc", Type: "tool.calculator"},
		},
	}, rc)
	require.NoError(t, err)
	require.Equal(t, "The answer is 42.", out["final"])

	trace := out["trace"].([]map[string]any)
	require.Len(t, trace, 2)
	require.Equal(t, "calc", trace[0]["action"])

	// The observation carried the tool output back into the transcript.
	require.Len(t, m.requests, 2)
	second := m.requests[1].Messages
	last := second[len(second)-1]
	require.Equal(t, model.RoleUser, last.Role)
	require.Contains(t, last.Content, `Observation: {"result":42}`)

	rows, err := store.ListNodeRuns(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, storage.NodeRunStatusSucceeded, rows[0].Status)
	require.Equal(t, "agent::tool::calc", rows[0].NodeID)
}

func TestAgentReactToolFailureRecordsRow(t *testing.T) {
	reg := newTestRegistry(t)
	store := storeinmem.NewStore()
	m := &queueModel{replies: []string{
		"Action: calc\nAction Input: {\"expression\": \"1/0\"}",
	}}
	rc := &block.RunContext{Registry: reg, Store: store, RunID: 6, Model: m}

	_, err := runBlock(t, reg, "agent.react", &block.Input{
		NodeID:   "agent",
		Settings: map[string]any{"prompt": "divide by zero"},
		DerivedTools: []block.ToolSpec{
			{Name: "calc", Type: "tool.calculator"},
		},
	}, rc)
	requireBlockError(t, err, block.ErrConfig)

	rows, lerr := store.ListNodeRuns(context.Background(), 6)
	require.NoError(t, lerr)
	require.Len(t, rows, 1)
	require.Equal(t, storage.NodeRunStatusFailed, rows[0].Status)
	require.Equal(t, "ConfigError", rows[0].Error["kind"])
	require.NotNil(t, rows[0].FinishedAt)
}

func TestMergeToolSpecs(t *testing.T) {
	merged := mergeToolSpecs(
		[]block.ToolSpec{
			{Name: "search", Type: "tool.websearch"},
			{Type: ""}, // no type, dropped
		},
		[]block.ToolSpec{
			{Name: "search", Type: "tool.websearch", Settings: map[string]any{"x": 1}}, // duplicate name loses
			{ID: "node-7", Type: "tool.calculator"},                                    // name falls back to id
			{Type: "tool.http_request"},                                                // name falls back to type
		},
	)

	require.Len(t, merged, 3)
	require.Equal(t, "search", merged[0].Name)
	require.Nil(t, merged[0].Settings, "the first binding of a name wins")
	require.Equal(t, "node-7", merged[1].Name)
	require.Equal(t, "tool.calculator", merged[1].Type)
	require.Equal(t, "tool.http_request", merged[2].Name)
}

func TestComposioToolkit(t *testing.T) {
	cases := []struct {
		name     string
		settings map[string]any
		want     string
	}{
		{"explicit toolkit", map[string]any{"toolkit": "SLACK", "tool_slug": "GMAIL_SEND"}, "SLACK"},
		{"slug prefix", map[string]any{"tool_slug": "GMAIL_SEND_EMAIL"}, "GMAIL"},
		{"slug without underscore", map[string]any{"tool_slug": "GITHUB"}, "GITHUB"},
		{"nothing", map[string]any{}, ""},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, composioToolkit(tc.settings), tc.name)
	}
}

func TestHostedToolGap(t *testing.T) {
	ctx := context.Background()
	in := &block.Input{NodeID: "agent", UserID: "u1"}

	store := storeinmem.NewStore()
	require.NoError(t, store.CreateIntegrationAccount(ctx, &storage.IntegrationAccount{
		UserID:             "u1",
		Toolkit:            "GMAIL",
		ConnectedAccountID: "ca_99",
		Status:             "active",
	}))

	gmail := block.ToolSpec{Name: "gmail", Type: "tool.composio", Settings: map[string]any{"tool_slug": "GMAIL_SEND_EMAIL"}}
	slack := block.ToolSpec{Name: "slack", Type: "tool.composio", Settings: map[string]any{"tool_slug": "SLACK_POST"}}
	pinned := block.ToolSpec{Name: "pinned", Type: "tool.composio", Settings: map[string]any{
		"tool_slug": "SLACK_POST", "use_account": "ca_override",
	}}
	bare := block.ToolSpec{Name: "bare", Type: "tool.composio", Settings: map[string]any{}}

	// Always dispatchable tools never report a gap.
	require.Empty(t, hostedToolGap(ctx, in, &block.RunContext{}, block.ToolSpec{Type: "tool.websearch"}))
	require.Empty(t, hostedToolGap(ctx, in, &block.RunContext{}, block.ToolSpec{Type: "tool.http_request"}))
	require.Empty(t, hostedToolGap(ctx, in, &block.RunContext{}, block.ToolSpec{Type: "tool.calculator"}))

	require.Equal(t, "composio api key", hostedToolGap(ctx, in, &block.RunContext{}, gmail))
	require.Equal(t, "composio toolkit", hostedToolGap(ctx, in, &block.RunContext{ComposioKey: "k"}, bare))
	require.Equal(t, "integration account store", hostedToolGap(ctx, in, &block.RunContext{ComposioKey: "k"}, gmail))

	rc := &block.RunContext{ComposioKey: "k", Store: store}
	require.Empty(t, hostedToolGap(ctx, in, rc, gmail), "active account satisfies the gate")
	require.Equal(t, "connected account for toolkit SLACK", hostedToolGap(ctx, in, rc, slack))
	require.Empty(t, hostedToolGap(ctx, in, rc, pinned), "a pinned account skips the lookup")

	require.Equal(t, "code executor", hostedToolGap(ctx, in, &block.RunContext{}, block.ToolSpec{Type: "tool.code_interpreter"}))
	require.Empty(t, hostedToolGap(ctx, in, &block.RunContext{Code: &fakeExecutor{}}, block.ToolSpec{Type: "tool.code_interpreter"}))
}
