//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

// Package react drives agent nodes to a final answer: a transcript-based
// reasoning loop when a model is configured, and a deterministic offline
// runtime when none is.
//
// The loop protocol is plain text. The model acts with
//
//	Action: <tool name>
//	Action Input: <JSON arguments or a plain value>
//
// receives "Observation: ..." messages back, and terminates with
// "Final Answer: ...". Tool dispatch itself is delegated to the caller
// through the Invoker so the loop stays free of registry and storage
// concerns.
package react

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// DefaultMaxSteps bounds the reasoning loop when the caller does not.
const DefaultMaxSteps = 8

// ExhaustedAnswer is the final text when the loop runs out of steps.
const ExhaustedAnswer = "Failed to reach a final answer within max_steps."

// Tool is one invocable tool attached to an agent node.
type Tool struct {
	// Name is what the model calls the tool in Action lines.
	Name string
	// Type is the block type dispatched on invocation.
	Type string
	// Settings is the tool node's base settings; runtime input merges over
	// them.
	Settings map[string]any
}

// Invoker executes one tool call with merged settings and returns the
// block's output object.
type Invoker func(ctx context.Context, tool Tool, settings map[string]any) (map[string]any, error)

// LogFunc receives loop progress events.
type LogFunc func(message string, data map[string]any)

// Request describes one agent execution.
type Request struct {
	// System is the agent's system prompt, may be empty.
	System string
	// Prompt is the user task.
	Prompt string
	// Tools are the dispatchable tools, already filtered by the caller.
	Tools []Tool
	// MaxSteps caps model calls; 0 means DefaultMaxSteps.
	MaxSteps int
	// Temperature is forwarded to the model when set.
	Temperature *float64
	// Invoke dispatches tool calls. Required when Tools is non-empty.
	Invoke Invoker
	// Log receives progress events, may be nil.
	Log LogFunc
}

func (r *Request) log(message string, data map[string]any) {
	if r.Log != nil {
		r.Log(message, data)
	}
}

// Result is the loop outcome.
type Result struct {
	// Final is the agent's answer text.
	Final string
	// Trace records tool dispatches and the terminating step.
	Trace []map[string]any
}

// Runtime drives one agent execution to a final answer.
type Runtime interface {
	Run(ctx context.Context, req *Request) (*Result, error)
}

// findTool resolves an Action name against the attached tools.
func findTool(tools []Tool, name string) (Tool, bool) {
	for _, t := range tools {
		if t.Name == name {
			return t, true
		}
	}
	return Tool{}, false
}

// calculatorTool returns the first calculator-typed tool.
func calculatorTool(tools []Tool) (Tool, bool) {
	for _, t := range tools {
		if strings.HasSuffix(t.Type, "calculator") {
			return t, true
		}
	}
	return Tool{}, false
}

// mergeToolInput lays the model-provided Action Input over the tool's base
// settings. Object inputs merge key-wise; anything else lands under an
// inferred key: "expression" for calculator-like tools, "input" otherwise.
func mergeToolInput(tool Tool, rawInput string) map[string]any {
	merged := make(map[string]any, len(tool.Settings)+1)
	for k, v := range tool.Settings {
		merged[k] = v
	}
	if rawInput == "" {
		return merged
	}
	var parsed any
	if err := json.Unmarshal([]byte(rawInput), &parsed); err == nil {
		if m, ok := parsed.(map[string]any); ok {
			for k, v := range m {
				merged[k] = v
			}
			return merged
		}
		merged[inferInputKey(tool)] = scalarInput(tool, parsed)
		return merged
	}
	merged[inferInputKey(tool)] = scalarInput(tool, rawInput)
	return merged
}

func inferInputKey(tool Tool) string {
	if _, ok := tool.Settings["expression"]; ok {
		return "expression"
	}
	if strings.HasSuffix(tool.Type, "calculator") {
		return "expression"
	}
	return "input"
}

// scalarInput keeps expression inputs as strings so number-shaped
// expressions survive the settings round trip.
func scalarInput(tool Tool, v any) any {
	if inferInputKey(tool) == "expression" {
		return stringifyValue(v)
	}
	return v
}

// observation renders a tool output for the transcript.
func observation(out map[string]any) string {
	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Sprintf("%v", out)
	}
	return string(data)
}

// stringifyValue renders a value as the model-facing text form: numbers
// without a trailing ".0", everything else via fmt.
func stringifyValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// preview caps a string for log payloads.
func preview(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}

// toolInventory lists the attached tools for the system prompt.
func toolInventory(tools []Tool) string {
	if len(tools) == 0 {
		return "No tools are attached."
	}
	var sb strings.Builder
	sb.WriteString("Available tools:\n")
	for _, t := range tools {
		sb.WriteString("- ")
		sb.WriteString(t.Name)
		sb.WriteString(" (")
		sb.WriteString(t.Type)
		sb.WriteString(")\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
