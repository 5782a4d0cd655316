//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

package block

import (
	"encoding/json"
)

// DerivedToolsKey is the JSON key carrying the tool bindings an agent node
// derives from its outbound tool edges when an input envelope is persisted.
const DerivedToolsKey = "__derived_tools_from_edges__"

// ToolSpec names one tool bound to an agent node, either from
// settings.tools or derived from a tool edge.
type ToolSpec struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name"`
	Type     string         `json:"type"`
	Settings map[string]any `json:"settings,omitempty"`
}

// Input is the envelope passed to a block execution.
type Input struct {
	// Settings is the node's settings object from the graph.
	Settings map[string]any
	// Upstream maps each parent node id to that node's output object.
	Upstream map[string]map[string]any
	// Trigger is the run's trigger payload.
	Trigger map[string]any
	// NodeID is the executing node's id (or the synthesized id of an agent
	// tool sub-call).
	NodeID string
	// UserID is the run's user, when known.
	UserID string
	// DerivedTools carries the agent's tool bindings from tool edges.
	// Empty for executor blocks.
	DerivedTools []ToolSpec
}

// AsMap renders the envelope in its persisted JSON shape, the one stored in
// NodeRun.input rows.
func (in *Input) AsMap() map[string]any {
	m := map[string]any{
		"settings": in.Settings,
		"upstream": in.Upstream,
		"trigger":  in.Trigger,
		"node_id":  in.NodeID,
	}
	if in.UserID != "" {
		m["user_id"] = in.UserID
	}
	if len(in.DerivedTools) > 0 {
		tools := make([]any, 0, len(in.DerivedTools))
		for _, t := range in.DerivedTools {
			spec := map[string]any{
				"name": t.Name,
				"type": t.Type,
			}
			if t.ID != "" {
				spec["id"] = t.ID
			}
			if t.Settings != nil {
				spec["settings"] = t.Settings
			}
			tools = append(tools, spec)
		}
		m[DerivedToolsKey] = tools
	}
	return m
}

// DecodeSettings binds a settings object to a typed struct by JSON
// round-trip. Unknown keys are ignored; a shape mismatch is a ConfigError.
func DecodeSettings(settings map[string]any, dst any) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return Internalf("encode settings: %v", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return Configf("invalid settings: %v", err)
	}
	return nil
}
