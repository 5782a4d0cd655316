//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

// Package builtin provides the standard block library: the start and show
// endpoints, transforms, HTTP fetchers, LLM and audio blocks, file and
// document blocks, the agent sub-executor and the tool shims agents invoke.
//
// Registration is explicit. Callers construct a registry and pass it to
// Register at startup; nothing registers through import side effects.
package builtin

import (
	"trpc.group/trpc-go/trpc-flow-go/block"
	"trpc.group/trpc-go/trpc-flow-go/render"
)

// Register adds every builtin block to the registry.
func Register(reg *block.Registry) error {
	blocks := []block.Block{
		startBlock(),
		showBlock(),
		templateBlock(),
		uppercaseBlock(),
		jsonGetBlock(),
		mathAddBlock(),
		sleepBlock(),
		branchBlock(),
		httpRequestBlock(),
		webGetBlock(),
		llmSimpleBlock(),
		audioTTSBlock(),
		audioSTTBlock(),
		fileSaveBlock(),
		storageWriteBlock(),
		docExtractBlock(),
		docRenderBlock(),
		agentReactBlock(),
		calculatorBlock(),
		httpRequestToolBlock(),
		webSearchToolBlock(),
		codeInterpreterToolBlock(),
		composioToolBlock(),
		mcpToolBlock(),
	}
	for _, b := range blocks {
		if err := reg.Register(b); err != nil {
			return err
		}
	}
	return nil
}

// renderContext assembles the template context for one node execution.
func renderContext(in *block.Input) render.Context {
	return render.BuildContext(in.Settings, in.Trigger, in.Upstream)
}

// strictRender renders s and converts template failures to ConfigError.
func strictRender(s string, rctx render.Context) (string, error) {
	out, err := render.RenderStrict(s, rctx)
	if err != nil {
		return "", block.Configf("%v", err)
	}
	return out, nil
}
