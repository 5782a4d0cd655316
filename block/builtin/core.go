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
	"sort"
	"strconv"
	"strings"
	"time"

	"trpc.group/trpc-go/trpc-flow-go/block"
	"trpc.group/trpc-go/trpc-flow-go/render"
)

// maxSleepSeconds caps util.sleep so a mistyped setting cannot stall a run
// for hours.
const maxSleepSeconds = 300

type startSettings struct {
	Payload any `json:"payload,omitempty" jsonschema:"description=Fixed payload to emit; falls back to the trigger payload"`
}

// startBlock builds the workflow entry point. Its output is the payload
// object itself so downstream templates read {{ <id>.field }} directly.
func startBlock() block.Block {
	return block.New("start",
		func(ctx context.Context, in *block.Input, rc *block.RunContext) (map[string]any, error) {
			var s startSettings
			if err := block.DecodeSettings(in.Settings, &s); err != nil {
				return nil, err
			}
			if s.Payload != nil {
				if m, ok := s.Payload.(map[string]any); ok {
					return m, nil
				}
				return map[string]any{"data": s.Payload}, nil
			}
			if len(in.Trigger) > 0 {
				return in.Trigger, nil
			}
			return map[string]any{}, nil
		},
		block.WithSummary("Entry point; emits the fixed payload or the trigger payload"),
		block.WithSettings(startSettings{}),
	)
}

type showSettings struct {
	Template string `json:"template,omitempty" jsonschema:"description=Template rendered against upstream outputs for display"`
}

type showOutput struct {
	Data map[string]any `json:"data"`
}

// showBlock builds the terminal display sink. Rendering is permissive so a
// broken template still yields a result to inspect.
func showBlock() block.Block {
	return block.New("show",
		func(ctx context.Context, in *block.Input, rc *block.RunContext) (map[string]any, error) {
			var s showSettings
			if err := block.DecodeSettings(in.Settings, &s); err != nil {
				return nil, err
			}
			rendered := ""
			if s.Template != "" {
				rendered = render.Render(s.Template, renderContext(in))
			}
			upstream := make(map[string]any, len(in.Upstream))
			for id, output := range in.Upstream {
				upstream[id] = output
			}
			data := map[string]any{
				"upstream": upstream,
				"settings": in.Settings,
				"template": s.Template,
				"rendered": rendered,
			}
			rc.Info(in.NodeID, "show: rendered "+previewMessage(in.Upstream), map[string]any{
				"upstream_keys": upstreamKeys(in.Upstream),
				"has_rendered":  rendered != "",
			})
			return map[string]any{"data": data}, nil
		},
		block.WithSummary("Display input data in the UI; terminal sink block"),
		block.WithSettings(showSettings{}),
		block.WithOutput(showOutput{}),
	)
}

func upstreamKeys(upstream map[string]map[string]any) []string {
	keys := make([]string, 0, len(upstream))
	for id := range upstream {
		keys = append(keys, id)
	}
	sort.Strings(keys)
	return keys
}

// previewMessage summarizes the first upstream output for the inline log
// line, preferring a text field when one exists.
func previewMessage(upstream map[string]map[string]any) string {
	keys := upstreamKeys(upstream)
	if len(keys) == 0 {
		return "with no upstream"
	}
	first := upstream[keys[0]]
	preview := render.Stringify(first)
	if text, ok := first["text"].(string); ok {
		preview = text
	}
	if len(preview) > 120 {
		preview = preview[:120]
	}
	return "upstream " + strings.Join(keys, ",") + " preview " + strconv.Quote(preview)
}

type jsonGetSettings struct {
	Path   []string       `json:"path" jsonschema:"description=Keys to traverse into"`
	Source map[string]any `json:"source,omitempty" jsonschema:"description=JSON object to traverse"`
}

type jsonGetOutput struct {
	Value any `json:"value"`
}

// jsonGetBlock extracts a nested value by path; a missing key yields an
// explicit null value rather than an error.
func jsonGetBlock() block.Block {
	return block.New("json.get",
		func(ctx context.Context, in *block.Input, rc *block.RunContext) (map[string]any, error) {
			var s jsonGetSettings
			if err := block.DecodeSettings(in.Settings, &s); err != nil {
				return nil, err
			}
			var cur any = s.Source
			for _, key := range s.Path {
				m, ok := cur.(map[string]any)
				if !ok {
					cur = nil
					break
				}
				next, present := m[key]
				if !present {
					cur = nil
					break
				}
				cur = next
			}
			return map[string]any{"value": cur}, nil
		},
		block.WithSummary("Extract a nested value from JSON by path"),
		block.WithSettings(jsonGetSettings{}),
		block.WithOutput(jsonGetOutput{}),
	)
}

type mathAddSettings struct {
	A float64 `json:"a" jsonschema:"description=First addend"`
	B float64 `json:"b" jsonschema:"description=Second addend"`
}

type mathAddOutput struct {
	Result float64 `json:"result"`
}

func mathAddBlock() block.Block {
	return block.New("math.add",
		func(ctx context.Context, in *block.Input, rc *block.RunContext) (map[string]any, error) {
			var s mathAddSettings
			if err := block.DecodeSettings(in.Settings, &s); err != nil {
				return nil, err
			}
			return map[string]any{"result": s.A + s.B}, nil
		},
		block.WithSummary("Add two numbers"),
		block.WithSettings(mathAddSettings{}),
		block.WithOutput(mathAddOutput{}),
	)
}

type sleepSettings struct {
	Seconds float64 `json:"seconds,omitempty" jsonschema:"description=Seconds to sleep"`
}

type sleepOutput struct {
	SleptSeconds float64 `json:"slept_seconds"`
}

func sleepBlock() block.Block {
	return block.New("util.sleep",
		func(ctx context.Context, in *block.Input, rc *block.RunContext) (map[string]any, error) {
			var s sleepSettings
			if err := block.DecodeSettings(in.Settings, &s); err != nil {
				return nil, err
			}
			secs := s.Seconds
			if secs < 0 {
				secs = 0
			}
			if secs > maxSleepSeconds {
				secs = maxSleepSeconds
			}
			timer := time.NewTimer(time.Duration(secs * float64(time.Second)))
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				return nil, block.FromError(ctx.Err())
			}
			return map[string]any{"slept_seconds": secs}, nil
		},
		block.WithSummary("Sleep for N seconds, capped at five minutes"),
		block.WithSettings(sleepSettings{}),
		block.WithOutput(sleepOutput{}),
	)
}

type branchSettings struct {
	Condition any `json:"condition,omitempty" jsonschema:"description=Value or template expression evaluated for truthiness"`
}

type branchOutput struct {
	Result bool `json:"result"`
}

// branchBlock evaluates its condition to a boolean. The engine has no
// conditional routing; downstream nodes gate on {{ <id>.result }} instead.
func branchBlock() block.Block {
	return block.New("control.branch",
		func(ctx context.Context, in *block.Input, rc *block.RunContext) (map[string]any, error) {
			var s branchSettings
			if err := block.DecodeSettings(in.Settings, &s); err != nil {
				return nil, err
			}
			return map[string]any{"result": evalCondition(s.Condition, renderContext(in))}, nil
		},
		block.WithSummary("Evaluate a condition to a boolean output"),
		block.WithSettings(branchSettings{}),
		block.WithOutput(branchOutput{}),
	)
}

// evalCondition resolves a condition setting to a boolean. A string that is
// a single template expression evaluates to its typed value first, so
// {{ check.ok }} gates on the upstream boolean rather than on the
// non-emptiness of its rendering.
func evalCondition(v any, rctx render.Context) bool {
	s, ok := v.(string)
	if !ok {
		return render.Truthy(v)
	}
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "{{") && strings.HasSuffix(trimmed, "}}") &&
		strings.Count(trimmed, "{{") == 1 {
		expr := strings.TrimSuffix(strings.TrimPrefix(trimmed, "{{"), "}}")
		value, err := render.Eval(expr, rctx)
		if err != nil {
			return false
		}
		return render.Truthy(value)
	}
	rendered := render.Render(s, rctx)
	if parsed, err := strconv.ParseBool(strings.TrimSpace(rendered)); err == nil {
		return parsed
	}
	return render.Truthy(rendered)
}
