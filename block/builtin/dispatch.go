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
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	mcp "trpc.group/trpc-go/trpc-mcp-go"

	"trpc.group/trpc-go/trpc-flow-go/block"
	"trpc.group/trpc-go/trpc-flow-go/codeexecutor"
	"trpc.group/trpc-go/trpc-flow-go/react"
	"trpc.group/trpc-go/trpc-flow-go/render"
	"trpc.group/trpc-go/trpc-flow-go/storage"
)

// composioBaseURL is the Composio API host. Tests point it at a fake.
var composioBaseURL = "https://backend.composio.dev"

// dispatchTool executes one agent tool sub-call under a synthesized node id
// and records a NodeRun row for it so observers see tool activity with the
// same lifecycle granularity as regular nodes.
func dispatchTool(ctx context.Context, in *block.Input, rc *block.RunContext, t react.Tool, settings map[string]any) (map[string]any, error) {
	subID := in.NodeID + "::tool::" + t.Name
	nr := beginToolRun(ctx, in, rc, subID, t.Type, settings)
	out, err := invokeTool(ctx, in, rc, t, subID, settings)
	finishToolRun(ctx, in, rc, nr, out, err)
	return out, err
}

func beginToolRun(ctx context.Context, in *block.Input, rc *block.RunContext, subID, toolType string, settings map[string]any) *storage.NodeRun {
	if rc.Store == nil || rc.RunID == 0 {
		return nil
	}
	now := time.Now().UTC()
	nr := &storage.NodeRun{
		RunID:     rc.RunID,
		NodeID:    subID,
		NodeType:  toolType,
		Status:    storage.NodeRunStatusRunning,
		Input:     settings,
		StartedAt: &now,
	}
	if err := rc.Store.CreateNodeRun(ctx, nr); err != nil {
		rc.Warn(in.NodeID, "agent.react: tool sub-call row not persisted", map[string]any{
			"node_id": subID,
			"error":   err.Error(),
		})
		return nil
	}
	return nr
}

func finishToolRun(ctx context.Context, in *block.Input, rc *block.RunContext, nr *storage.NodeRun, out map[string]any, err error) {
	if nr == nil {
		return
	}
	now := time.Now().UTC()
	nr.FinishedAt = &now
	if err != nil {
		nr.Status = storage.NodeRunStatusFailed
		nr.Error = block.FromError(err).AsMap()
	} else {
		nr.Status = storage.NodeRunStatusSucceeded
		nr.Output = out
	}
	if uerr := rc.Store.UpdateNodeRun(ctx, nr); uerr != nil {
		rc.Warn(in.NodeID, "agent.react: tool sub-call row not updated", map[string]any{
			"node_id": nr.NodeID,
			"error":   uerr.Error(),
		})
	}
}

// invokeTool routes a tool call to its executor. Local tools run through
// the block registry; hosted tools run against their provider directly.
// tool.http_request proxies to the full http.request block so agents get a
// working fetch tool rather than a descriptor.
func invokeTool(ctx context.Context, in *block.Input, rc *block.RunContext, t react.Tool, subID string, settings map[string]any) (map[string]any, error) {
	switch t.Type {
	case "tool.mcp":
		return invokeMCPTool(ctx, in, rc, t, subID, settings)
	case "tool.composio":
		return invokeComposioTool(ctx, in, rc, subID, settings)
	case "tool.code_interpreter":
		return invokeCodeTool(ctx, rc, settings)
	case "tool.http_request":
		return invokeToolBlock(ctx, in, rc, "http.request", subID, settings)
	default:
		return invokeToolBlock(ctx, in, rc, t.Type, subID, settings)
	}
}

// invokeToolBlock runs a sub-call through the block registry so the target
// block renders and validates its own settings.
func invokeToolBlock(ctx context.Context, in *block.Input, rc *block.RunContext, blockType, subID string, settings map[string]any) (map[string]any, error) {
	if rc.Registry == nil {
		return nil, block.Dependencyf("no block registry configured for tool dispatch")
	}
	sub := &block.Input{
		Settings: settings,
		Upstream: in.Upstream,
		Trigger:  in.Trigger,
		NodeID:   subID,
		UserID:   in.UserID,
	}
	return rc.Registry.Run(ctx, blockType, sub, rc)
}

// invokeCodeTool executes the snippet carried in the tool arguments on the
// configured code executor. Non-zero exits surface in the observation, not
// as errors, so the model can correct its code and retry.
func invokeCodeTool(ctx context.Context, rc *block.RunContext, settings map[string]any) (map[string]any, error) {
	if rc.Code == nil {
		return nil, block.Dependencyf("tool.code_interpreter requires a code executor")
	}
	code, _ := settings["code"].(string)
	if strings.TrimSpace(code) == "" {
		code, _ = settings["input"].(string)
	}
	if strings.TrimSpace(code) == "" {
		return nil, block.Configf("tool.code_interpreter requires 'code'")
	}
	lang, _ := settings["language"].(string)
	if blocks := codeexecutor.ExtractCodeBlocks(code); len(blocks) > 0 {
		code = blocks[0].Code
		if blocks[0].Language != "" {
			lang = blocks[0].Language
		}
	}
	if lang == "" {
		lang = "python"
	}
	canonical, ok := codeexecutor.NormalizeLanguage(lang)
	if !ok {
		return nil, block.Configf("tool.code_interpreter: unsupported language %q", lang)
	}
	res, err := rc.Code.Execute(ctx, codeexecutor.Spec{Language: canonical, Code: code})
	if err != nil {
		return nil, block.FromError(err)
	}
	out := map[string]any{
		"stdout":    res.Stdout,
		"stderr":    res.Stderr,
		"exit_code": res.ExitCode,
		"output":    res.Output(),
	}
	if res.TimedOut {
		out["timed_out"] = true
	}
	return out, nil
}

// invokeComposioTool executes a Composio tool through its REST API using
// the connected account resolved for the run's user.
func invokeComposioTool(ctx context.Context, in *block.Input, rc *block.RunContext, subID string, settings map[string]any) (map[string]any, error) {
	if rc.ComposioKey == "" {
		return nil, block.Dependencyf("tool.composio requires a Composio API key")
	}
	slug, _ := settings["tool_slug"].(string)
	if slug == "" {
		return nil, block.Configf("tool.composio requires 'tool_slug'")
	}
	toolkit := composioToolkit(settings)

	accountID, _ := settings["use_account"].(string)
	if accountID == "" {
		if rc.Store == nil {
			return nil, block.Dependencyf("tool.composio requires an integration account store")
		}
		account, err := rc.Store.ResolveIntegrationAccount(ctx, runUserID(in), toolkit)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, block.Dependencyf("no connected account for toolkit %s", toolkit)
			}
			return nil, block.Internalf("resolve integration account: %v", err)
		}
		accountID = account.ConnectedAccountID
	}

	body := map[string]any{
		"user_id":              runUserID(in),
		"connected_account_id": accountID,
	}
	if raw, ok := settings["args"]; ok && raw != nil {
		body["arguments"] = render.DeepRender(raw, renderContext(in))
	}

	timeout := 60 * time.Second
	if ts, ok := settings["timeout_seconds"].(float64); ok && ts > 0 {
		timeout = time.Duration(ts * float64(time.Second))
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rc.Info(subID, "tool.composio: executing "+slug, map[string]any{
		"toolkit":    toolkit,
		"tool_slug":  slug,
		"account_id": accountID,
	})

	resp, berr := sendRequest(cctx, rc, requestSpec{
		Method:  http.MethodPost,
		URL:     composioBaseURL + "/api/v3/tools/execute/" + url.PathEscape(slug),
		Headers: map[string]string{"x-api-key": rc.ComposioKey},
		Body:    body,
	})
	if berr != nil {
		return nil, berr
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, block.Remotef("tool.composio: read response: %v", err)
	}
	if resp.StatusCode >= 400 {
		return nil, block.Remotef("tool.composio: %s returned status %d", slug, resp.StatusCode).
			WithDetail("body", preview(string(raw), 500))
	}
	var result any
	if err := json.Unmarshal(raw, &result); err != nil {
		result = string(raw)
	}
	return map[string]any{"provider": toolkit, "account_id": accountID, "result": result}, nil
}

// invokeMCPTool proxies a tool call to an MCP server over streamable HTTP.
// Without a server_url the registry shim answers, which keeps unconfigured
// MCP tools observable instead of fatal.
func invokeMCPTool(ctx context.Context, in *block.Input, rc *block.RunContext, t react.Tool, subID string, settings map[string]any) (map[string]any, error) {
	serverURL, _ := settings["server_url"].(string)
	if serverURL == "" {
		return invokeToolBlock(ctx, in, rc, t.Type, subID, settings)
	}
	rctx := renderContext(in)
	serverURL = render.Render(serverURL, rctx)
	toolName, _ := settings["tool"].(string)
	if toolName == "" {
		toolName = t.Name
	}

	clientInfo := mcp.Implementation{Name: "trpc-flow-go", Version: "1.0.0"}
	options := []mcp.ClientOption{mcp.WithClientLogger(mcp.GetDefaultLogger())}
	if headers := stringMap(settings["headers"]); len(headers) > 0 {
		h := http.Header{}
		for k, v := range headers {
			h.Set(k, render.Render(v, rctx))
		}
		options = append(options, mcp.WithHTTPHeaders(h))
	}
	client, err := mcp.NewClient(serverURL, clientInfo, options...)
	if err != nil {
		return nil, block.Dependencyf("tool.mcp: client for %s: %v", serverURL, err)
	}
	defer client.Close()

	if _, err := client.Initialize(ctx, &mcp.InitializeRequest{}); err != nil {
		return nil, block.Remotef("tool.mcp: initialize against %s: %v", serverURL, err)
	}

	args := make(map[string]any, len(settings))
	for k, v := range settings {
		switch k {
		case "server_url", "tool", "headers", "name":
		default:
			args[k] = v
		}
	}
	callReq := &mcp.CallToolRequest{}
	callReq.Params.Name = toolName
	callReq.Params.Arguments = args
	resp, err := client.CallTool(ctx, callReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, block.Timeoutf("tool.mcp: %s timed out", toolName)
		}
		return nil, block.Remotef("tool.mcp: call %s: %v", toolName, err)
	}
	text := mcpContentText(resp.Content)
	if resp.IsError {
		if text == "" {
			text = "tool returned an error"
		}
		return nil, block.Remotef("tool.mcp: %s: %s", toolName, text)
	}
	return map[string]any{"text": text}, nil
}

// mcpContentText joins the textual parts of an MCP tool result.
func mcpContentText(contents []mcp.Content) string {
	var parts []string
	for _, c := range contents {
		if tc, ok := c.(mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func stringMap(v any) map[string]string {
	switch t := v.(type) {
	case map[string]string:
		return t
	case map[string]any:
		out := make(map[string]string, len(t))
		for k, val := range t {
			if s, ok := val.(string); ok {
				out[k] = s
			}
		}
		return out
	}
	return nil
}
