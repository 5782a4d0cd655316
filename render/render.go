//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

// Package render substitutes {{ ... }} expressions in node settings.
// Expressions read from a context assembled out of upstream node outputs,
// the node's own settings and the trigger payload.
package render

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"trpc.group/trpc-go/trpc-flow-go/log"
)

// Context is the name to value binding set templates evaluate against.
type Context map[string]any

// BuildContext assembles the evaluation context for one node.
//
// Every upstream node id binds to that node's output. When an output
// carries a "data" object its entries are exposed under the node id as
// well, so {{ fetch.status }} and {{ fetch.data.status }} both resolve.
// The reserved names settings, trigger and upstream always win over node
// ids of the same name.
func BuildContext(settings, trigger map[string]any, upstream map[string]map[string]any) Context {
	ctx := make(Context, len(upstream)+3)
	raw := make(map[string]any, len(upstream))
	for id, output := range upstream {
		ctx[id] = flattenOutput(output)
		raw[id] = output
	}
	if settings == nil {
		settings = map[string]any{}
	}
	if trigger == nil {
		trigger = map[string]any{}
	}
	ctx["settings"] = settings
	ctx["trigger"] = trigger
	ctx["upstream"] = raw
	return ctx
}

func flattenOutput(output map[string]any) map[string]any {
	data, ok := output["data"].(map[string]any)
	if !ok {
		return output
	}
	merged := make(map[string]any, len(output)+len(data))
	for k, v := range data {
		merged[k] = v
	}
	// Direct output keys win over data entries of the same name.
	for k, v := range output {
		merged[k] = v
	}
	return merged
}

// Render substitutes every {{ ... }} expression in s. Undefined names and
// evaluation failures render as the empty string; an unterminated opening
// delimiter is kept verbatim.
func Render(s string, ctx Context) string {
	out, _ := renderTemplate(s, ctx, false)
	return out
}

// RenderStrict substitutes every {{ ... }} expression in s and fails on
// the first undefined name or evaluation error.
func RenderStrict(s string, ctx Context) (string, error) {
	return renderTemplate(s, ctx, true)
}

// DeepRender walks maps and lists and permissively renders every string
// leaf. Non-string leaves pass through untouched.
func DeepRender(v any, ctx Context) any {
	switch t := v.(type) {
	case string:
		return Render(t, ctx)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = DeepRender(item, ctx)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = DeepRender(item, ctx)
		}
		return out
	default:
		return v
	}
}

// DeepRenderStrict is DeepRender with strict expression evaluation.
func DeepRenderStrict(v any, ctx Context) (any, error) {
	switch t := v.(type) {
	case string:
		return RenderStrict(t, ctx)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			rendered, err := DeepRenderStrict(item, ctx)
			if err != nil {
				return nil, err
			}
			out[k] = rendered
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			rendered, err := DeepRenderStrict(item, ctx)
			if err != nil {
				return nil, err
			}
			out[i] = rendered
		}
		return out, nil
	default:
		return v, nil
	}
}

// Stringify converts an expression value to its template form: strings
// verbatim, numbers and booleans via strconv, nil empty, everything else
// compact JSON.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	}
	if f, ok := toFloat(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

func renderTemplate(s string, ctx Context, strict bool) (string, error) {
	if !strings.Contains(s, "{{") {
		return s, nil
	}
	var b strings.Builder
	for {
		start := strings.Index(s, "{{")
		if start < 0 {
			b.WriteString(s)
			return b.String(), nil
		}
		b.WriteString(s[:start])
		rest := s[start+2:]
		end := findExprEnd(rest)
		if end < 0 {
			if strict {
				return "", fmt.Errorf("unterminated expression at %q", s[start:])
			}
			b.WriteString(s[start:])
			return b.String(), nil
		}
		src := rest[:end]
		value, err := Eval(src, ctx)
		if err != nil {
			if strict {
				return "", fmt.Errorf("render %q: %w", strings.TrimSpace(src), err)
			}
			log.Tracef("render: expression %q resolved empty: %v", strings.TrimSpace(src), err)
		} else {
			b.WriteString(Stringify(value))
		}
		s = rest[end+2:]
	}
}

// findExprEnd locates the closing }} for an expression, ignoring braces
// inside string literals.
func findExprEnd(s string) int {
	var inString bool
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			if c == '\\' {
				i++
				continue
			}
			if c == quote {
				inString = false
			}
			continue
		}
		switch c {
		case '"', '\'':
			inString = true
			quote = c
		case '}':
			if i+1 < len(s) && s[i+1] == '}' {
				return i
			}
		}
	}
	return -1
}
