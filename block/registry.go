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
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"trpc.group/trpc-go/trpc-flow-go/tool"
)

// Spec is one catalog entry, the shape served by the block-specs endpoint.
type Spec struct {
	Type           string         `json:"type"`
	Kind           Kind           `json:"kind"`
	ToolCompatible bool           `json:"tool_compatible"`
	Summary        string         `json:"summary,omitempty"`
	SettingsSchema *tool.Schema   `json:"settings_schema,omitempty"`
	OutputSchema   *tool.Schema   `json:"output_schema,omitempty"`
	Extras         map[string]any `json:"extras,omitempty"`
}

// Registry resolves block types. It is populated explicitly at startup and
// read-only afterwards; the mutex only guards against racy registration in
// tests.
type Registry struct {
	mu     sync.RWMutex
	blocks map[string]Block
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{blocks: make(map[string]Block)}
}

// Register adds a block. Registering an empty or duplicate type is an error.
func (r *Registry) Register(b Block) error {
	if b == nil || b.Type() == "" {
		return fmt.Errorf("block: registering unnamed block")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.blocks[b.Type()]; exists {
		return fmt.Errorf("block: duplicate type %q", b.Type())
	}
	r.blocks[b.Type()] = b
	return nil
}

// Get returns the block registered under the type.
func (r *Registry) Get(blockType string) (Block, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.blocks[blockType]
	return b, ok
}

// List returns the registered type names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.blocks))
	for t := range r.blocks {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Specs returns the full catalog, sorted by type.
func (r *Registry) Specs() []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]Spec, 0, len(r.blocks))
	for _, b := range r.blocks {
		specs = append(specs, Spec{
			Type:           b.Type(),
			Kind:           b.Kind(),
			ToolCompatible: b.ToolCompatible(),
			Summary:        b.Summary(),
			SettingsSchema: b.SettingsSchema(),
			OutputSchema:   b.OutputSchema(),
			Extras:         b.Extras(),
		})
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Type < specs[j].Type })
	return specs
}

// HasType implements graph.BlockChecker.
func (r *Registry) HasType(blockType string) bool {
	_, ok := r.Get(blockType)
	return ok
}

// ToolCompatible implements graph.BlockChecker.
func (r *Registry) ToolCompatible(blockType string) bool {
	b, ok := r.Get(blockType)
	return ok && b.ToolCompatible()
}

// IsAgent implements graph.BlockChecker.
func (r *Registry) IsAgent(blockType string) bool {
	b, ok := r.Get(blockType)
	return ok && b.Kind() == KindAgent
}

// CheckSettings implements graph.BlockChecker: it validates a settings
// object against the block's declared schema. Strings carrying template
// expressions validate against any type since they render at run time.
func (r *Registry) CheckSettings(blockType string, settings map[string]any) error {
	b, ok := r.Get(blockType)
	if !ok {
		return fmt.Errorf("unknown block type: %s", blockType)
	}
	schema := b.SettingsSchema()
	if schema == nil {
		return nil
	}
	if settings == nil {
		settings = map[string]any{}
	}
	return checkValue("settings", settings, schema)
}

// Run resolves and executes a block, coercing failures into the typed
// error taxonomy.
func (r *Registry) Run(ctx context.Context, blockType string, in *Input, rc *RunContext) (map[string]any, error) {
	b, ok := r.Get(blockType)
	if !ok {
		return nil, Internalf("unknown block type: %s", blockType)
	}
	out, err := b.Run(ctx, in, rc)
	if err != nil {
		return nil, FromError(err)
	}
	return out, nil
}

// checkValue validates one value against a schema subset: type names,
// required object fields, and array item shapes. Unknown keys pass.
func checkValue(path string, v any, s *tool.Schema) error {
	if s == nil || s.Type == "" {
		return nil
	}
	if str, ok := v.(string); ok && strings.Contains(str, "{{") {
		return nil
	}
	switch s.Type {
	case "object":
		m, ok := v.(map[string]any)
		if !ok {
			// The schema generator emits a bare object schema for
			// interface-typed fields; those accept any value.
			if len(s.Properties) == 0 && len(s.Required) == 0 && s.AdditionalProperties == nil {
				return nil
			}
			return fmt.Errorf("%s: expected object", path)
		}
		for _, req := range s.Required {
			if _, present := m[req]; !present {
				return fmt.Errorf("%s: missing required field %q", path, req)
			}
		}
		for name, sub := range s.Properties {
			if val, present := m[name]; present && val != nil {
				if err := checkValue(path+"."+name, val, sub); err != nil {
					return err
				}
			}
		}
	case "array":
		arr, ok := v.([]any)
		if !ok {
			return fmt.Errorf("%s: expected array", path)
		}
		if s.Items != nil {
			for i, item := range arr {
				if err := checkValue(fmt.Sprintf("%s[%d]", path, i), item, s.Items); err != nil {
					return err
				}
			}
		}
	case "string":
		if _, ok := v.(string); !ok {
			return fmt.Errorf("%s: expected string", path)
		}
	case "number", "integer":
		if !isNumeric(v) {
			return fmt.Errorf("%s: expected %s", path, s.Type)
		}
	case "boolean":
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("%s: expected boolean", path)
		}
	}
	return nil
}

func isNumeric(v any) bool {
	switch v.(type) {
	case float64, float32, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, json.Number:
		return true
	default:
		return false
	}
}
