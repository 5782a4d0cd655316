//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

package block

import (
	"context"
	"encoding/json"

	"trpc.group/trpc-go/trpc-flow-go/tool"
)

// FromTool adapts a callable tool into a tool-compatible block so custom Go
// functions can be registered next to the builtin types. The block type is
// "tool." plus the tool's declared name, its settings object is passed to
// the tool as JSON arguments, and non-object results are wrapped under
// "result".
func FromTool(t tool.CallableTool) Block {
	decl := t.Declaration()
	return &toolBlock{tool: t, decl: decl}
}

type toolBlock struct {
	tool tool.CallableTool
	decl *tool.Declaration
}

var _ Block = (*toolBlock)(nil)

func (b *toolBlock) Type() string { return "tool." + b.decl.Name }

func (b *toolBlock) Kind() Kind { return KindExecutor }

func (b *toolBlock) ToolCompatible() bool { return true }

func (b *toolBlock) Summary() string { return b.decl.Description }

func (b *toolBlock) SettingsSchema() *tool.Schema { return b.decl.InputSchema }

func (b *toolBlock) OutputSchema() *tool.Schema { return b.decl.OutputSchema }

func (b *toolBlock) Extras() map[string]any {
	return map[string]any{"toolCompatible": true}
}

func (b *toolBlock) Run(ctx context.Context, in *Input, rc *RunContext) (map[string]any, error) {
	args, err := json.Marshal(in.Settings)
	if err != nil {
		return nil, Configf("tool.%s: encode arguments: %v", b.decl.Name, err)
	}
	result, err := b.tool.Call(ctx, args)
	if err != nil {
		return nil, FromError(err)
	}
	if m, ok := result.(map[string]any); ok {
		return m, nil
	}
	// Typed results round-trip through JSON into a plain object.
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, Internalf("tool.%s: encode result: %v", b.decl.Name, err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err == nil {
		return m, nil
	}
	return map[string]any{"result": result}, nil
}
