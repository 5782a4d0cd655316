//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

package graph

import (
	"fmt"
	"strings"
)

// Issue identifies one problem found during graph validation.
type Issue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// InvalidGraphError reports every issue found in a graph document so a
// client can fix them all in one pass.
type InvalidGraphError struct {
	Issues []Issue
}

// Error implements the error interface.
func (e *InvalidGraphError) Error() string {
	if len(e.Issues) == 0 {
		return "invalid graph"
	}
	msgs := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		if issue.Field != "" {
			msgs = append(msgs, issue.Field+": "+issue.Message)
			continue
		}
		msgs = append(msgs, issue.Message)
	}
	return "invalid graph: " + strings.Join(msgs, "; ")
}

// BlockChecker is the slice of the block registry the validator needs.
type BlockChecker interface {
	// HasType reports whether the block type is registered.
	HasType(blockType string) bool
	// CheckSettings validates settings against the block's schema.
	CheckSettings(blockType string, settings map[string]any) error
	// ToolCompatible reports whether the type may be attached to an agent as a tool.
	ToolCompatible(blockType string) bool
	// IsAgent reports whether the type drives a reasoning loop over attached tools.
	IsAgent(blockType string) bool
}

// Validate checks a graph document against the structural invariants and the
// block registry. It returns an *InvalidGraphError carrying every issue
// found, or nil when the graph is valid.
func Validate(g *Graph, reg BlockChecker) error {
	var issues []Issue

	seen := make(map[string]bool, len(g.Nodes))
	for i, n := range g.Nodes {
		field := fmt.Sprintf("nodes[%d]", i)
		if n.ID == "" {
			issues = append(issues, Issue{Field: field + ".id", Message: "node id cannot be empty"})
			continue
		}
		if seen[n.ID] {
			issues = append(issues, Issue{Field: field + ".id", Message: fmt.Sprintf("duplicate node id %q", n.ID)})
			continue
		}
		seen[n.ID] = true

		if !reg.HasType(n.Type) {
			issues = append(issues, Issue{Field: field + ".type", Message: fmt.Sprintf("unknown block type %q", n.Type)})
			continue
		}
		if err := reg.CheckSettings(n.Type, n.Settings); err != nil {
			issues = append(issues, Issue{Field: field + ".settings", Message: err.Error()})
		}
		if reg.IsAgent(n.Type) {
			issues = append(issues, validateAgentTools(field, n, reg)...)
		}
	}

	for i, e := range g.Edges {
		field := fmt.Sprintf("edges[%d]", i)
		if e.From == "" || e.To == "" {
			issues = append(issues, Issue{Field: field, Message: "edge from and to cannot be empty"})
			continue
		}
		if !seen[e.From] {
			issues = append(issues, Issue{Field: field + ".from", Message: fmt.Sprintf("unknown edge endpoint %q", e.From)})
		}
		if !seen[e.To] {
			issues = append(issues, Issue{Field: field + ".to", Message: fmt.Sprintf("unknown edge endpoint %q", e.To)})
		}
		switch e.EffectiveKind() {
		case EdgeKindControl, EdgeKindTool:
		default:
			issues = append(issues, Issue{Field: field + ".kind", Message: fmt.Sprintf("invalid edge kind %q", e.Kind)})
		}
	}

	// Cycle detection only makes sense once the structure is sound.
	if len(issues) == 0 {
		if _, err := TopoOrder(g); err != nil {
			issues = append(issues, Issue{Field: "edges", Message: err.Error()})
		}
	}

	if len(issues) > 0 {
		return &InvalidGraphError{Issues: issues}
	}
	return nil
}

// validateAgentTools checks the inline settings.tools entries of an agent
// node: unique names, tool-compatible types, and tool-valid settings.
func validateAgentTools(field string, n *Node, reg BlockChecker) []Issue {
	raw, ok := n.Settings["tools"]
	if !ok {
		return nil
	}
	entries, ok := raw.([]any)
	if !ok {
		return []Issue{{Field: field + ".settings.tools", Message: "tools must be a list"}}
	}

	var issues []Issue
	names := make(map[string]bool, len(entries))
	for i, raw := range entries {
		toolField := fmt.Sprintf("%s.settings.tools[%d]", field, i)
		entry, ok := raw.(map[string]any)
		if !ok {
			issues = append(issues, Issue{Field: toolField, Message: "tool entry must be an object"})
			continue
		}
		name, _ := entry["name"].(string)
		if name == "" {
			issues = append(issues, Issue{Field: toolField + ".name", Message: "tool name cannot be empty"})
		} else if names[name] {
			issues = append(issues, Issue{Field: toolField + ".name", Message: fmt.Sprintf("duplicate tool name %q", name)})
		}
		names[name] = true

		typ, _ := entry["type"].(string)
		switch {
		case typ == "":
			issues = append(issues, Issue{Field: toolField + ".type", Message: "tool type cannot be empty"})
		case !reg.HasType(typ):
			issues = append(issues, Issue{Field: toolField + ".type", Message: fmt.Sprintf("unknown block type %q", typ)})
		case !reg.ToolCompatible(typ):
			issues = append(issues, Issue{Field: toolField + ".type", Message: fmt.Sprintf("block type %q is not tool compatible", typ)})
		default:
			settings, _ := entry["settings"].(map[string]any)
			if err := reg.CheckSettings(typ, settings); err != nil {
				issues = append(issues, Issue{Field: toolField + ".settings", Message: err.Error()})
			}
		}
	}
	return issues
}
