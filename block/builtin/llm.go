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
	"strings"

	"trpc.group/trpc-go/trpc-flow-go/block"
	"trpc.group/trpc-go/trpc-flow-go/model"
)

type llmSimpleSettings struct {
	Prompt      string   `json:"prompt" jsonschema:"description=User prompt; supports {{ }} expressions"`
	System      string   `json:"system,omitempty" jsonschema:"description=Optional system prompt"`
	Model       string   `json:"model,omitempty" jsonschema:"description=Informational model name recorded in the output"`
	Temperature *float64 `json:"temperature,omitempty"`
}

type llmSimpleOutput struct {
	Text  string `json:"text"`
	Model string `json:"model"`
}

// llmSimpleBlock produces a single completion. Without a configured model
// it degrades to a deterministic echo that uppercases the rendered prompt,
// which keeps offline runs and tests meaningful.
func llmSimpleBlock() block.Block {
	return block.New("llm.simple",
		func(ctx context.Context, in *block.Input, rc *block.RunContext) (map[string]any, error) {
			var s llmSimpleSettings
			if err := block.DecodeSettings(in.Settings, &s); err != nil {
				return nil, err
			}
			if s.Prompt == "" {
				return nil, block.Configf("llm.simple requires 'prompt'")
			}
			rctx := renderContext(in)
			prompt, err := strictRender(s.Prompt, rctx)
			if err != nil {
				return nil, err
			}

			if rc.Model == nil {
				return map[string]any{
					"text":  strings.ToUpper(prompt),
					"model": "echo",
				}, nil
			}

			messages := make([]model.Message, 0, 2)
			if s.System != "" {
				system, err := strictRender(s.System, rctx)
				if err != nil {
					return nil, err
				}
				messages = append(messages, model.NewSystemMessage(system))
			}
			messages = append(messages, model.NewUserMessage(prompt))

			req := &model.Request{Messages: messages}
			req.Temperature = s.Temperature
			resp, err := rc.Model.GenerateContent(ctx, req)
			if err != nil {
				return nil, block.Remotef("llm.simple: %v", err)
			}
			name := resp.Model
			if name == "" {
				name = rc.Model.Info().Name
			}
			return map[string]any{"text": resp.Text, "model": name}, nil
		},
		block.WithSummary("Single LLM completion with a deterministic offline fallback"),
		block.WithSettings(llmSimpleSettings{}),
		block.WithOutput(llmSimpleOutput{}),
	)
}
