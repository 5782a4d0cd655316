//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

// Package block defines the contract between the run executor and the typed
// computation nodes of a workflow graph: the Block interface, the input
// envelope and capability bundle passed to each execution, the typed error
// taxonomy, and the registry the engine and validator resolve types against.
package block

import (
	"context"
	"reflect"

	itool "trpc.group/trpc-go/trpc-flow-go/internal/tool"
	"trpc.group/trpc-go/trpc-flow-go/tool"
)

// Kind classifies a block: executors compute an output from their input,
// agents drive a reasoning loop over attached tools.
type Kind string

const (
	// KindExecutor is a plain computation node.
	KindExecutor Kind = "executor"
	// KindAgent is a reasoning node that may call tool nodes.
	KindAgent Kind = "agent"
)

// Block is one node type in the workflow graph.
type Block interface {
	// Type is the registry key, e.g. "http.request".
	Type() string
	// Kind reports whether the block is an executor or an agent.
	Kind() Kind
	// ToolCompatible reports whether the block may be attached to an agent
	// node as a tool.
	ToolCompatible() bool
	// Summary is a one-line description for the catalog.
	Summary() string
	// SettingsSchema describes the block's settings object; nil when the
	// block accepts anything.
	SettingsSchema() *tool.Schema
	// OutputSchema describes the block's output object; nil when undeclared.
	OutputSchema() *tool.Schema
	// Extras carries editor hints such as connector declarations.
	Extras() map[string]any
	// Run executes the block. The returned map is the node's output object.
	// Failures should be *Error values; anything else is reported as an
	// InternalError.
	Run(ctx context.Context, in *Input, rc *RunContext) (map[string]any, error)
}

// RunFunc is the execution body of a declaratively built block.
type RunFunc func(ctx context.Context, in *Input, rc *RunContext) (map[string]any, error)

// def is the declarative Block implementation returned by New.
type def struct {
	typ            string
	kind           Kind
	toolCompatible bool
	summary        string
	settingsSchema *tool.Schema
	outputSchema   *tool.Schema
	extras         map[string]any
	run            RunFunc
}

// Compile-time check that def implements Block.
var _ Block = (*def)(nil)

// Option configures a block built by New.
type Option func(*def)

// WithKind sets the block kind. The default is KindExecutor.
func WithKind(k Kind) Option {
	return func(d *def) { d.kind = k }
}

// WithToolCompatible marks the block attachable to agent nodes as a tool.
func WithToolCompatible() Option {
	return func(d *def) { d.toolCompatible = true }
}

// WithSummary sets the one-line catalog description.
func WithSummary(s string) Option {
	return func(d *def) { d.summary = s }
}

// WithSettings derives the settings schema from the sample struct. The
// schema is generated once, at construction.
func WithSettings(sample any) Option {
	return func(d *def) {
		d.settingsSchema = itool.GenerateJSONSchema(reflect.TypeOf(sample))
	}
}

// WithOutput derives the output schema from the sample struct.
func WithOutput(sample any) Option {
	return func(d *def) {
		d.outputSchema = itool.GenerateJSONSchema(reflect.TypeOf(sample))
	}
}

// WithExtras attaches editor hints (connector declarations and the like).
func WithExtras(extras map[string]any) Option {
	return func(d *def) { d.extras = extras }
}

// New builds a Block from a type name, a run function and options.
func New(blockType string, run RunFunc, opts ...Option) Block {
	d := &def{
		typ:  blockType,
		kind: KindExecutor,
		run:  run,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *def) Type() string { return d.typ }

func (d *def) Kind() Kind { return d.kind }

func (d *def) ToolCompatible() bool { return d.toolCompatible }

func (d *def) Summary() string { return d.summary }

func (d *def) SettingsSchema() *tool.Schema { return d.settingsSchema }

func (d *def) OutputSchema() *tool.Schema { return d.outputSchema }

func (d *def) Extras() map[string]any { return d.extras }

func (d *def) Run(ctx context.Context, in *Input, rc *RunContext) (map[string]any, error) {
	return d.run(ctx, in, rc)
}
