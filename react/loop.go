//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

package react

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"trpc.group/trpc-go/trpc-flow-go/model"
)

// protocolInstructions teaches the model the dispatchable reply format.
const protocolInstructions = `Use tools when needed. Reply in the ReAct format:

Action: <tool name>
Action Input: <JSON arguments or a plain value>

After each Action you will receive a line starting with "Observation:".
When you know the answer, reply with:

Final Answer: <answer>`

var (
	finalPattern  = regexp.MustCompile(`(?is)Final Answer:\s*(.*)`)
	actionPattern = regexp.MustCompile(`(?is)Action:\s*([^\n]+)\nAction Input:\s*(.*)`)
)

// Loop is the model-backed runtime: it walks the model through the
// Action/Observation transcript until a final answer or step exhaustion.
type Loop struct {
	// Model produces the assistant turns.
	Model model.Model
}

var _ Runtime = (*Loop)(nil)

// NewLoop builds a loop runtime around a model.
func NewLoop(m model.Model) *Loop {
	return &Loop{Model: m}
}

// Run executes the reasoning loop.
func (l *Loop) Run(ctx context.Context, req *Request) (*Result, error) {
	if l.Model == nil {
		return nil, errors.New("react: loop requires a model")
	}
	maxSteps := req.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}

	messages := []model.Message{
		model.NewSystemMessage(systemPrompt(req)),
		model.NewUserMessage(req.Prompt),
	}

	var trace []map[string]any
	for step := 1; step <= maxSteps; step++ {
		mreq := &model.Request{Messages: messages}
		mreq.Temperature = req.Temperature
		resp, err := l.Model.GenerateContent(ctx, mreq)
		if err != nil {
			return nil, fmt.Errorf("react: model call at step %d: %w", step, err)
		}
		content := resp.Text
		req.log("agent.react: step", map[string]any{
			"step":              step,
			"assistant_preview": preview(content, 300),
		})

		if m := finalPattern.FindStringSubmatch(content); m != nil {
			trace = append(trace, map[string]any{"step": step})
			return &Result{Final: strings.TrimSpace(m[1]), Trace: trace}, nil
		}

		messages = append(messages, model.NewAssistantMessage(content))

		if m := actionPattern.FindStringSubmatch(content); m != nil {
			toolName := strings.TrimSpace(m[1])
			rawInput := strings.TrimSpace(m[2])
			tool, ok := findTool(req.Tools, toolName)
			if !ok {
				messages = append(messages, model.NewUserMessage("Observation: Unknown tool "+toolName))
				continue
			}
			if req.Invoke == nil {
				return nil, errors.New("react: no invoker configured for tool dispatch")
			}
			settings := mergeToolInput(tool, rawInput)
			req.log("agent.react: invoking tool", map[string]any{"tool": toolName})
			trace = append(trace, map[string]any{"step": step, "action": toolName})
			out, err := req.Invoke(ctx, tool, settings)
			if err != nil {
				return nil, err
			}
			messages = append(messages, model.NewUserMessage("Observation: "+observation(out)))
			continue
		}

		messages = append(messages, model.NewUserMessage("Please provide Final Answer."))
	}
	return &Result{Final: ExhaustedAnswer, Trace: trace}, nil
}

// systemPrompt assembles the system turn: caller prompt, tool inventory,
// protocol instructions.
func systemPrompt(req *Request) string {
	var sb strings.Builder
	if s := strings.TrimSpace(req.System); s != "" {
		sb.WriteString(s)
		sb.WriteString("\n\n")
	}
	sb.WriteString(toolInventory(req.Tools))
	sb.WriteString("\n\n")
	sb.WriteString(protocolInstructions)
	return sb.String()
}
