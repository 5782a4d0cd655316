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
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-flow-go/tool"
)

type webSettings struct {
	URL          string            `json:"url" jsonschema:"description=Target URL,required"`
	Method       string            `json:"method,omitempty" jsonschema:"enum=GET,enum=POST"`
	Timeout      float64           `json:"timeout_secs,omitempty"`
	Verify       bool              `json:"verify,omitempty"`
	MaxRedirects int               `json:"max_redirects,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	Ignored      string            `json:"-"`
	hidden       string
}

func TestGenerateJSONSchema_Struct(t *testing.T) {
	schema := GenerateJSONSchema(reflect.TypeOf(webSettings{}))

	require.Equal(t, "object", schema.Type)
	require.Contains(t, schema.Properties, "url")
	require.Contains(t, schema.Properties, "method")
	require.Contains(t, schema.Properties, "timeout_secs")
	require.Contains(t, schema.Properties, "verify")
	require.Contains(t, schema.Properties, "max_redirects")
	require.Contains(t, schema.Properties, "headers")
	require.NotContains(t, schema.Properties, "Ignored")
	require.NotContains(t, schema.Properties, "hidden")

	require.Equal(t, "string", schema.Properties["url"].Type)
	require.Equal(t, "Target URL", schema.Properties["url"].Description)
	require.Equal(t, []any{"GET", "POST"}, schema.Properties["method"].Enum)
	require.Equal(t, "number", schema.Properties["timeout_secs"].Type)
	require.Equal(t, "boolean", schema.Properties["verify"].Type)
	require.Equal(t, "integer", schema.Properties["max_redirects"].Type)
	require.Equal(t, "object", schema.Properties["headers"].Type)

	// url is required (no omitempty); the omitempty fields are not.
	require.Contains(t, schema.Required, "url")
	require.NotContains(t, schema.Required, "method")
}

type node struct {
	Name     string  `json:"name"`
	Children []*node `json:"children,omitempty"`
}

func TestGenerateJSONSchema_Recursive(t *testing.T) {
	schema := GenerateJSONSchema(reflect.TypeOf(node{}))

	require.Equal(t, "object", schema.Type)
	require.NotEmpty(t, schema.Defs)
	require.Contains(t, schema.Defs, "node")

	children := schema.Properties["children"]
	require.Equal(t, "array", children.Type)
	require.Equal(t, "#/$defs/node", children.Items.Ref)
}

func TestGenerateFieldSchema_Primitives(t *testing.T) {
	cases := []struct {
		typ  reflect.Type
		want string
	}{
		{reflect.TypeOf(""), "string"},
		{reflect.TypeOf(0), "integer"},
		{reflect.TypeOf(uint8(0)), "integer"},
		{reflect.TypeOf(0.0), "number"},
		{reflect.TypeOf(false), "boolean"},
		{reflect.TypeOf([]string{}), "array"},
		{reflect.TypeOf(map[string]int{}), "object"},
		{reflect.TypeOf(any(nil)), "object"},
	}
	for _, c := range cases {
		got := GenerateFieldSchema(c.typ)
		require.Equal(t, c.want, got.Type, "type %v", c.typ)
	}
}

// fakeTool implements tool.CallableTool for testing.
type fakeTool struct {
	decl       *tool.Declaration
	callResult any
	callErr    error
}

func (f *fakeTool) Declaration() *tool.Declaration                { return f.decl }
func (f *fakeTool) Call(_ context.Context, _ []byte) (any, error) { return f.callResult, f.callErr }

// simpleTool implements only tool.Tool (not callable) for negative paths.
type simpleTool struct{ name, desc string }

func (s *simpleTool) Declaration() *tool.Declaration {
	return &tool.Declaration{Name: s.name, Description: s.desc}
}

// fakeToolSet implements tool.ToolSet.
type fakeToolSet struct {
	name   string
	tools  []tool.Tool
	closed bool
}

func (f *fakeToolSet) Tools(context.Context) []tool.Tool { return f.tools }
func (f *fakeToolSet) Close() error                      { f.closed = true; return nil }
func (f *fakeToolSet) Name() string                      { return f.name }

func TestNamedToolSet_Idempotent(t *testing.T) {
	ts := &fakeToolSet{name: "fs"}
	nts := NewNamedToolSet(ts)
	// Calling again with an already wrapped toolset should return the same instance.
	nts2 := NewNamedToolSet(nts)
	require.Same(t, nts, nts2, "idempotent wrapper should be same instance")
}

func TestNamedToolSet_Tools_PrefixingAndPassthrough(t *testing.T) {
	// With a name, tool names should be prefixed.
	base := &fakeToolSet{
		name:  "fs",
		tools: []tool.Tool{&simpleTool{name: "read", desc: "read file"}},
	}
	nts := NewNamedToolSet(base)
	got := nts.Tools(context.Background())
	require.Len(t, got, 1)
	require.Equal(t, "fs_read", got[0].Declaration().Name)

	// Without a name, names should be unchanged.
	base2 := &fakeToolSet{name: "", tools: []tool.Tool{&simpleTool{name: "write", desc: "write file"}}}
	nts2 := NewNamedToolSet(base2)
	got2 := nts2.Tools(context.Background())
	require.Equal(t, "write", got2[0].Declaration().Name)
}

func TestNamedTool_OriginalAndCloseAndName(t *testing.T) {
	base := &fakeToolSet{name: "fs"}
	nts := NewNamedToolSet(base)
	// Wrap a single tool.
	t1 := &simpleTool{name: "copy", desc: "copy file"}
	base.tools = []tool.Tool{t1}
	got := nts.Tools(context.Background())
	nt, ok := got[0].(*NamedTool)
	require.True(t, ok, "expected NamedTool, got %T", got[0])
	require.Equal(t, t1, nt.Original())
	require.Equal(t, "fs", nts.Name())
	require.NoError(t, nts.Close())
	require.True(t, base.closed, "underlying Close() not called")
}

func TestNamedTool_Call(t *testing.T) {
	f := &fakeTool{decl: &tool.Declaration{Name: "sum"}, callResult: 42}
	nts := NewNamedToolSet(&fakeToolSet{name: "math", tools: []tool.Tool{f}})
	ts := nts.Tools(context.Background())
	nt, ok := ts[0].(*NamedTool)
	require.True(t, ok, "expected NamedTool, got %T", ts[0])
	v, err := nt.Call(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, 42, v)

	// A tool that is not callable returns an error.
	nts2 := NewNamedToolSet(&fakeToolSet{name: "fs", tools: []tool.Tool{&simpleTool{name: "stat"}}})
	nt2 := nts2.Tools(context.Background())[0].(*NamedTool)
	_, err = nt2.Call(context.Background(), nil)
	require.Error(t, err)
}
