//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

package tool

import (
	"context"
	"fmt"

	"trpc.group/trpc-go/trpc-flow-go/tool"
)

// NamedToolSet wraps a ToolSet with named prefixing to avoid tool name conflicts.
// It automatically prefixes all tool names from the wrapped toolset with the toolset name.
type NamedToolSet struct {
	toolSet tool.ToolSet
}

// NewNamedToolSet creates a new named toolset wrapper. Wrapping an already
// wrapped toolset returns it unchanged.
func NewNamedToolSet(toolSet tool.ToolSet) *NamedToolSet {
	if named, ok := toolSet.(*NamedToolSet); ok {
		return named
	}
	return &NamedToolSet{
		toolSet: toolSet,
	}
}

// Tools implements the ToolSet interface.
func (s *NamedToolSet) Tools(ctx context.Context) []tool.Tool {
	tools := s.toolSet.Tools(ctx)

	toolSetName := s.toolSet.Name()
	if toolSetName == "" {
		return tools
	}

	// Create named copies of tools
	namedTools := make([]tool.Tool, 0, len(tools))
	for _, t := range tools {
		namedTool := &NamedTool{
			original: t,
			named:    toolSetName,
		}
		namedTools = append(namedTools, namedTool)
	}

	return namedTools
}

// Close implements the ToolSet interface.
func (s *NamedToolSet) Close() error {
	return s.toolSet.Close()
}

// Name implements the ToolSet interface.
func (s *NamedToolSet) Name() string {
	return s.toolSet.Name()
}

// NamedTool wraps an original tool with a named prefix. The prefix becomes
// the toolkit part of the tool name.
type NamedTool struct {
	original tool.Tool
	named    string
}

// Declaration implements the Tool interface.
func (t *NamedTool) Declaration() *tool.Declaration {
	decl := t.original.Declaration()
	return &tool.Declaration{
		Name:         t.named + "_" + decl.Name,
		Description:  decl.Description,
		InputSchema:  decl.InputSchema,
		OutputSchema: decl.OutputSchema,
	}
}

// Original returns the wrapped tool.
func (t *NamedTool) Original() tool.Tool {
	return t.original
}

// Call implements the CallableTool interface.
func (t *NamedTool) Call(ctx context.Context, jsonArgs []byte) (any, error) {
	if callable, ok := t.original.(tool.CallableTool); ok {
		return callable.Call(ctx, jsonArgs)
	}
	return nil, fmt.Errorf("tool is not callable")
}
