//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

// Package tool provides interfaces and types for tools callable from agent
// nodes in a workflow graph.
package tool

import "context"

// Tool represents any tool that can be attached to an agent node. It only
// exposes metadata; whether it can be invoked locally depends on whether it
// also implements CallableTool.
type Tool interface {
	// Declaration returns the metadata describing the tool.
	Declaration() *Declaration
}

// CallableTool is a tool that can be executed in-process with JSON arguments.
type CallableTool interface {
	Tool

	// Call executes the tool with the given JSON-encoded arguments and
	// returns the result. Implementations should honor ctx cancellation.
	Call(ctx context.Context, jsonArgs []byte) (any, error)
}

// ToolSet is a collection of tools sharing a lifecycle, typically backed by
// a remote server such as an MCP endpoint.
type ToolSet interface {
	// Tools returns the tools currently offered by the set.
	Tools(ctx context.Context) []Tool

	// Close releases resources held by the set.
	Close() error

	// Name returns the set name, used as a prefix for tool names.
	Name() string
}

// Declaration describes a tool: its name, human-readable description and the
// JSON schemas of its input and output.
type Declaration struct {
	// Name is the identifier the agent uses to select the tool.
	Name string `json:"name"`
	// Description tells the agent what the tool does.
	Description string `json:"description"`
	// InputSchema describes the expected arguments.
	InputSchema *Schema `json:"inputSchema,omitempty"`
	// OutputSchema describes the shape of the result.
	OutputSchema *Schema `json:"outputSchema,omitempty"`
}

// Schema is a JSON schema describing tool inputs and outputs. Only the
// subset of JSON schema needed for tool declarations is modeled.
type Schema struct {
	// Type is the JSON schema type ("object", "string", "integer", ...).
	Type string `json:"type,omitempty"`
	// Description documents the field.
	Description string `json:"description,omitempty"`
	// Properties lists the schemas of an object's fields.
	Properties map[string]*Schema `json:"properties,omitempty"`
	// Required lists the property names that must be present.
	Required []string `json:"required,omitempty"`
	// Items is the element schema for array types.
	Items *Schema `json:"items,omitempty"`
	// Enum restricts the value to a fixed set.
	Enum []any `json:"enum,omitempty"`
	// Default is the default value, if any.
	Default any `json:"default,omitempty"`
	// AdditionalProperties mirrors the JSON schema field of the same name.
	// It is typically a *Schema or a bool.
	AdditionalProperties any `json:"additionalProperties,omitempty"`
	// Ref is a reference to a definition under $defs.
	Ref string `json:"$ref,omitempty"`
	// Defs holds reusable definitions for recursive schemas.
	Defs map[string]*Schema `json:"$defs,omitempty"`
}
