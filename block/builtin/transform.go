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
)

type templateSettings struct {
	Template string         `json:"template" jsonschema:"description=Template string with {{ }} expressions"`
	Values   map[string]any `json:"values,omitempty" jsonschema:"description=Extra names bound into the template context"`
}

type textOutput struct {
	Text string `json:"text"`
}

// templateBlock renders its template against upstream outputs, the trigger
// payload and any extra values. Rendering is strict: an undefined name
// fails the node instead of silently emitting an empty string.
func templateBlock() block.Block {
	return block.New("transform.template",
		func(ctx context.Context, in *block.Input, rc *block.RunContext) (map[string]any, error) {
			var s templateSettings
			if err := block.DecodeSettings(in.Settings, &s); err != nil {
				return nil, err
			}
			rctx := renderContext(in)
			for name, value := range s.Values {
				rctx[name] = value
			}
			text, err := strictRender(s.Template, rctx)
			if err != nil {
				return nil, err
			}
			return map[string]any{"text": text}, nil
		},
		block.WithSummary("Render a template into text"),
		block.WithSettings(templateSettings{}),
		block.WithOutput(textOutput{}),
	)
}

type uppercaseSettings struct {
	Text string `json:"text" jsonschema:"description=Text to transform to uppercase"`
}

func uppercaseBlock() block.Block {
	return block.New("transform.uppercase",
		func(ctx context.Context, in *block.Input, rc *block.RunContext) (map[string]any, error) {
			var s uppercaseSettings
			if err := block.DecodeSettings(in.Settings, &s); err != nil {
				return nil, err
			}
			text, err := strictRender(s.Text, renderContext(in))
			if err != nil {
				return nil, err
			}
			return map[string]any{"text": strings.ToUpper(text)}, nil
		},
		block.WithSummary("Convert a text string to uppercase"),
		block.WithSettings(uppercaseSettings{}),
		block.WithOutput(textOutput{}),
	)
}
