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
	"errors"
	"strings"
	"time"

	"trpc.group/trpc-go/trpc-flow-go/block"
	"trpc.group/trpc-go/trpc-flow-go/react"
	"trpc.group/trpc-go/trpc-flow-go/storage"
)

// defaultAgentSystem seeds the transcript when the node sets no system
// prompt of its own.
const defaultAgentSystem = "You are a helpful assistant. Use tools when needed."

// defaultAgentTimeout bounds the whole reasoning loop including tool calls.
const defaultAgentTimeout = 60 * time.Second

// anonymousUserID stands in for the run's user when none is set, matching
// the owner recorded on integration accounts bound outside a user session.
const anonymousUserID = "system-user"

type agentReactSettings struct {
	System         string           `json:"system,omitempty" jsonschema:"description=System prompt; supports {{ }} expressions"`
	Prompt         string           `json:"prompt" jsonschema:"description=Task prompt; supports {{ }} expressions"`
	Model          string           `json:"model,omitempty" jsonschema:"description=Informational model name recorded in logs"`
	Temperature    *float64         `json:"temperature,omitempty"`
	MaxSteps       int              `json:"max_steps,omitempty" jsonschema:"description=Reasoning step budget"`
	TimeoutSeconds float64          `json:"timeout_seconds,omitempty" jsonschema:"description=Deadline for the whole loop including tool calls"`
	Tools          []block.ToolSpec `json:"tools,omitempty" jsonschema:"description=Tool bindings; tool edges append to these"`
}

type agentReactOutput struct {
	Final string           `json:"final"`
	Trace []map[string]any `json:"trace"`
}

// agentReactBlock runs a bounded reasoning loop over the tools attached to
// the node. With a configured model the loop is model-driven; without one a
// deterministic scripted runtime keeps offline runs and tests meaningful.
func agentReactBlock() block.Block {
	return block.New("agent.react",
		func(ctx context.Context, in *block.Input, rc *block.RunContext) (map[string]any, error) {
			var s agentReactSettings
			if err := block.DecodeSettings(in.Settings, &s); err != nil {
				return nil, err
			}
			rctx := renderContext(in)
			prompt, err := strictRender(s.Prompt, rctx)
			if err != nil {
				return nil, err
			}
			if strings.TrimSpace(prompt) == "" {
				return nil, block.Configf("agent.react requires a non-empty 'prompt'")
			}
			system := s.System
			if strings.TrimSpace(system) == "" {
				system = defaultAgentSystem
			}
			if system, err = strictRender(system, rctx); err != nil {
				return nil, err
			}

			specs := mergeToolSpecs(s.Tools, in.DerivedTools)
			tools, skipped := gateTools(ctx, in, rc, specs)
			if len(skipped) > 0 {
				names := make([]string, 0, len(skipped))
				missing := make([]string, 0, len(skipped))
				for _, sk := range skipped {
					names = append(names, sk.name)
					missing = append(missing, sk.missing)
				}
				rc.Warn(in.NodeID, "agent.react: skipping tools with missing dependencies", map[string]any{
					"skipped": names,
					"missing": missing,
				})
			}

			modelName := s.Model
			if rc.Model != nil {
				modelName = rc.Model.Info().Name
			} else if modelName == "" {
				modelName = "offline"
			}
			rc.Info(in.NodeID, "agent.react: starting loop", map[string]any{
				"model": modelName,
				"tools": toolNames(tools),
			})

			timeout := defaultAgentTimeout
			if s.TimeoutSeconds > 0 {
				timeout = time.Duration(s.TimeoutSeconds * float64(time.Second))
			}
			tctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			req := &react.Request{
				System:      system,
				Prompt:      prompt,
				Tools:       tools,
				MaxSteps:    s.MaxSteps,
				Temperature: s.Temperature,
				Invoke: func(ictx context.Context, t react.Tool, settings map[string]any) (map[string]any, error) {
					return dispatchTool(ictx, in, rc, t, settings)
				},
				Log: func(message string, data map[string]any) {
					rc.Info(in.NodeID, message, data)
				},
			}

			var rt react.Runtime
			if rc.Model != nil {
				rt = react.NewLoop(rc.Model)
			} else {
				rt = react.Offline{}
			}
			res, rerr := rt.Run(tctx, req)
			if rerr != nil {
				return nil, block.FromError(rerr)
			}
			rc.Info(in.NodeID, "agent.react: loop finished", map[string]any{
				"final_preview": preview(res.Final, 300),
				"steps":         len(res.Trace),
			})
			trace := res.Trace
			if trace == nil {
				trace = []map[string]any{}
			}
			return map[string]any{"final": res.Final, "trace": trace}, nil
		},
		block.WithKind(block.KindAgent),
		block.WithSummary("ReAct agent that reasons over attached tool blocks"),
		block.WithSettings(agentReactSettings{}),
		block.WithOutput(agentReactOutput{}),
		block.WithExtras(map[string]any{
			"connectors": []any{
				map[string]any{
					"name":         "tools",
					"display_name": "Tools",
					"kind":         "tool-connector",
					"multiple":     true,
					"accepts":      []any{"tool"},
					"description":  "Connect tool blocks to make them available to the agent",
				},
			},
		}),
	)
}

// mergeToolSpecs combines the node's configured tools with those derived
// from tool edges. The first binding of a name wins and every returned spec
// carries a resolved non-empty name.
func mergeToolSpecs(configured, derived []block.ToolSpec) []block.ToolSpec {
	merged := make([]block.ToolSpec, 0, len(configured)+len(derived))
	seen := make(map[string]bool, len(configured)+len(derived))
	for _, t := range append(append([]block.ToolSpec{}, configured...), derived...) {
		if t.Type == "" {
			continue
		}
		name := t.Name
		if name == "" {
			name = t.ID
		}
		if name == "" {
			name = t.Type
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		t.Name = name
		merged = append(merged, t)
	}
	return merged
}

type skippedTool struct {
	name    string
	missing string
}

// gateTools drops hosted tools whose provider dependency is absent and
// converts the rest into runtime bindings. Dropped tools are reported so
// the caller can emit one consolidated warning.
func gateTools(ctx context.Context, in *block.Input, rc *block.RunContext, specs []block.ToolSpec) ([]react.Tool, []skippedTool) {
	tools := make([]react.Tool, 0, len(specs))
	var skipped []skippedTool
	for _, spec := range specs {
		if missing := hostedToolGap(ctx, in, rc, spec); missing != "" {
			skipped = append(skipped, skippedTool{name: spec.Name, missing: missing})
			continue
		}
		tools = append(tools, react.Tool{Name: spec.Name, Type: spec.Type, Settings: spec.Settings})
	}
	return tools, skipped
}

// hostedToolGap names the dependency a hosted tool is missing, or returns
// empty when the tool can be dispatched.
func hostedToolGap(ctx context.Context, in *block.Input, rc *block.RunContext, spec block.ToolSpec) string {
	switch spec.Type {
	case "tool.composio":
		if rc.ComposioKey == "" {
			return "composio api key"
		}
		toolkit := composioToolkit(spec.Settings)
		if toolkit == "" {
			return "composio toolkit"
		}
		if useAccount, _ := spec.Settings["use_account"].(string); useAccount != "" {
			return ""
		}
		if rc.Store == nil {
			return "integration account store"
		}
		if _, err := rc.Store.ResolveIntegrationAccount(ctx, runUserID(in), toolkit); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return "connected account for toolkit " + toolkit
			}
			return "integration account lookup (" + err.Error() + ")"
		}
	case "tool.code_interpreter":
		if rc.Code == nil {
			return "code executor"
		}
	}
	return ""
}

// composioToolkit resolves the toolkit a Composio tool targets: the
// explicit setting when present, otherwise the slug prefix before the
// first underscore (GMAIL_SEND_EMAIL targets GMAIL).
func composioToolkit(settings map[string]any) string {
	if tk, ok := settings["toolkit"].(string); ok && tk != "" {
		return tk
	}
	slug, _ := settings["tool_slug"].(string)
	if slug == "" {
		return ""
	}
	if i := strings.IndexByte(slug, '_'); i > 0 {
		return slug[:i]
	}
	return slug
}

// runUserID is the user scope for credential lookups during a run.
func runUserID(in *block.Input) string {
	if in.UserID != "" {
		return in.UserID
	}
	return anonymousUserID
}

func toolNames(tools []react.Tool) []string {
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.Name)
	}
	return names
}

// preview truncates s for log payloads.
func preview(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
