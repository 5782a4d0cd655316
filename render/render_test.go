//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

package render

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testContext() Context {
	return BuildContext(
		map[string]any{"prefix": "Hello"},
		map[string]any{"source": "manual"},
		map[string]map[string]any{
			"start": {"name": "Alice", "count": float64(3)},
			"fetch": {
				"status": float64(200),
				"data":   map[string]any{"answer": float64(42), "tags": []any{"a", "b"}},
			},
		},
	)
}

func TestRender_Basic(t *testing.T) {
	ctx := testContext()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain text", in: "no expressions here", want: "no expressions here"},
		{name: "single expression", in: "Hello {{ start.name }}", want: "Hello Alice"},
		{name: "multiple expressions", in: "{{ start.name }} x{{ start.count }}", want: "Alice x3"},
		{name: "settings binding", in: "{{ settings.prefix }}!", want: "Hello!"},
		{name: "trigger binding", in: "via {{ trigger.source }}", want: "via manual"},
		{name: "whitespace tolerant", in: "{{start.name}}", want: "Alice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Render(tt.in, ctx))
		})
	}
}

func TestRender_DataFallthrough(t *testing.T) {
	ctx := testContext()

	// Entries of a "data" object resolve directly under the node id and
	// through the explicit data path.
	require.Equal(t, "42", Render("{{ fetch.answer }}", ctx))
	require.Equal(t, "42", Render("{{ fetch.data.answer }}", ctx))
	require.Equal(t, "200", Render("{{ fetch.status }}", ctx))

	// A direct output key wins over a data entry of the same name.
	collide := BuildContext(nil, nil, map[string]map[string]any{
		"n": {"x": "direct", "data": map[string]any{"x": "shadowed"}},
	})
	require.Equal(t, "direct", Render("{{ n.x }}", collide))
	require.Equal(t, "shadowed", Render("{{ n.data.x }}", collide))
}

func TestRender_UpstreamBinding(t *testing.T) {
	ctx := testContext()
	require.Equal(t, "Alice", Render(`{{ upstream["start"].name }}`, ctx))
	require.Equal(t, "Alice", Render("{{ upstream.start.name }}", ctx))
}

func TestRender_Indexing(t *testing.T) {
	ctx := testContext()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "list index", in: "{{ fetch.data.tags[0] }}", want: "a"},
		{name: "negative index", in: "{{ fetch.data.tags[-1] }}", want: "b"},
		{name: "string key", in: `{{ fetch["status"] }}`, want: "200"},
		{name: "single quoted key", in: "{{ fetch['status'] }}", want: "200"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Render(tt.in, ctx))
		})
	}
}

func TestRender_Logic(t *testing.T) {
	ctx := testContext()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "equality", in: "{{ fetch.status == 200 }}", want: "true"},
		{name: "inequality", in: "{{ start.name != 'Bob' }}", want: "true"},
		{name: "less than", in: "{{ start.count < 10 }}", want: "true"},
		{name: "greater equal", in: "{{ start.count >= 3 }}", want: "true"},
		{name: "string order", in: `{{ "abc" < "abd" }}`, want: "true"},
		{name: "and", in: "{{ start.count > 1 && fetch.status == 200 }}", want: "true"},
		{name: "or short circuit", in: "{{ start.name || 'anonymous' }}", want: "Alice"},
		{name: "or default", in: "{{ '' || 'anonymous' }}", want: "anonymous"},
		{name: "not", in: "{{ !false }}", want: "true"},
		{name: "parens", in: "{{ (1 < 2) == true }}", want: "true"},
		{name: "unary minus", in: "{{ -start.count }}", want: "-3"},
		{name: "null literal", in: "{{ null == null }}", want: "true"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Render(tt.in, ctx))
		})
	}
}

func TestRender_PermissiveUndefined(t *testing.T) {
	ctx := testContext()

	require.Equal(t, "value: ", Render("value: {{ missing.attr }}", ctx))
	require.Equal(t, "", Render("{{ start.nope }}", ctx))
	require.Equal(t, "", Render("{{ fetch.data.tags[9] }}", ctx))
	// Evaluation errors also resolve empty in permissive mode.
	require.Equal(t, "", Render("{{ 1 < 'a' }}", ctx))
	// An unterminated delimiter stays verbatim.
	require.Equal(t, "tail {{ start.name", Render("tail {{ start.name", ctx))
}

func TestRenderStrict_Errors(t *testing.T) {
	ctx := testContext()

	_, err := RenderStrict("value: {{ missing.attr }}", ctx)
	require.Error(t, err)
	var undef *UndefinedError
	require.ErrorAs(t, err, &undef)

	_, err = RenderStrict("{{ start.nope }}", ctx)
	require.ErrorAs(t, err, &undef)

	_, err = RenderStrict("tail {{ start.name", ctx)
	require.ErrorContains(t, err, "unterminated")

	_, err = RenderStrict("{{ 1 < 'a' }}", ctx)
	require.ErrorContains(t, err, "cannot compare")

	out, err := RenderStrict("Hello {{ start.name }}", ctx)
	require.NoError(t, err)
	require.Equal(t, "Hello Alice", out)
}

func TestRender_StringLiteralWithBraces(t *testing.T) {
	ctx := testContext()
	require.Equal(t, "}} ok", Render(`{{ "}} ok" }}`, ctx))
}

func TestRender_NonStringValues(t *testing.T) {
	ctx := BuildContext(nil, nil, map[string]map[string]any{
		"n": {
			"num":   float64(3),
			"frac":  2.5,
			"flag":  true,
			"obj":   map[string]any{"a": float64(1)},
			"list":  []any{float64(1), "two"},
			"empty": nil,
		},
	})

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "integral float", in: "{{ n.num }}", want: "3"},
		{name: "fraction", in: "{{ n.frac }}", want: "2.5"},
		{name: "bool", in: "{{ n.flag }}", want: "true"},
		{name: "object json", in: "{{ n.obj }}", want: `{"a":1}`},
		{name: "list json", in: "{{ n.list }}", want: `[1,"two"]`},
		{name: "nil empty", in: "{{ n.empty }}", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Render(tt.in, ctx))
		})
	}
}

func TestDeepRender(t *testing.T) {
	ctx := testContext()

	in := map[string]any{
		"greeting": "Hello {{ start.name }}",
		"nested": map[string]any{
			"status": "{{ fetch.status }}",
			"count":  float64(7),
		},
		"list": []any{"{{ start.name }}", true},
	}
	out := DeepRender(in, ctx)
	want := map[string]any{
		"greeting": "Hello Alice",
		"nested": map[string]any{
			"status": "200",
			"count":  float64(7),
		},
		"list": []any{"Alice", true},
	}
	require.Equal(t, want, out)

	// The input is left untouched.
	require.Equal(t, "Hello {{ start.name }}", in["greeting"])
}

func TestDeepRenderStrict(t *testing.T) {
	ctx := testContext()

	out, err := DeepRenderStrict(map[string]any{"v": "{{ start.name }}"}, ctx)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"v": "Alice"}, out)

	_, err = DeepRenderStrict(map[string]any{"v": "{{ missing }}"}, ctx)
	require.Error(t, err)

	_, err = DeepRenderStrict([]any{"{{ missing }}"}, ctx)
	require.Error(t, err)
}

func TestEval(t *testing.T) {
	ctx := testContext()

	v, err := Eval("fetch.status == 200", ctx)
	require.NoError(t, err)
	require.Equal(t, true, v)

	v, err = Eval("start.count", ctx)
	require.NoError(t, err)
	require.Equal(t, float64(3), v)

	_, err = Eval("start.count ==", ctx)
	require.Error(t, err)

	_, err = Eval("start.count = 3", ctx)
	require.Error(t, err)

	_, err = Eval("(start.count", ctx)
	require.ErrorContains(t, err, "expected ')'")
}

func TestTruthy(t *testing.T) {
	require.False(t, Truthy(nil))
	require.False(t, Truthy(""))
	require.False(t, Truthy(float64(0)))
	require.False(t, Truthy([]any{}))
	require.False(t, Truthy(map[string]any{}))
	require.True(t, Truthy("x"))
	require.True(t, Truthy(float64(1)))
	require.True(t, Truthy([]any{1}))
}

func TestStringify(t *testing.T) {
	require.Equal(t, "", Stringify(nil))
	require.Equal(t, "verbatim", Stringify("verbatim"))
	require.Equal(t, "3", Stringify(float64(3)))
	require.Equal(t, "3.5", Stringify(3.5))
	require.Equal(t, "42", Stringify(42))
	require.Equal(t, "false", Stringify(false))
	require.Equal(t, `{"k":"v"}`, Stringify(map[string]any{"k": "v"}))
}
