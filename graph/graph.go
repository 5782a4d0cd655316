//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

// Package graph provides the workflow graph model: typed nodes joined by
// control and tool edges, validation, and deterministic topological ordering.
package graph

import (
	"cmp"
	"encoding/json"
)

// Edge kinds. Control edges order execution; tool edges attach tool nodes to
// agent nodes and are invisible to scheduling.
const (
	EdgeKindControl = "control"
	EdgeKindTool    = "tool"
)

// Position is an optional editor hint for node placement.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is a single computation step in a workflow graph. Type must resolve
// in the block registry; Settings are interpreted by the block.
type Node struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Settings map[string]any `json:"settings,omitempty"`
	Position *Position      `json:"position,omitempty"`
}

// Edge joins two nodes. Kind defaults to "control" when empty.
type Edge struct {
	ID   string `json:"id,omitempty"`
	From string `json:"from"`
	To   string `json:"to"`
	Kind string `json:"kind,omitempty"`
}

// edgeWire tolerates the from_node alias produced by older clients.
type edgeWire struct {
	ID       string `json:"id"`
	From     string `json:"from"`
	FromNode string `json:"from_node"`
	To       string `json:"to"`
	Kind     string `json:"kind"`
}

// UnmarshalJSON accepts both "from" and the legacy "from_node" key.
func (e *Edge) UnmarshalJSON(data []byte) error {
	var w edgeWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	e.ID = w.ID
	e.From = cmp.Or(w.From, w.FromNode)
	e.To = w.To
	e.Kind = w.Kind
	return nil
}

// EffectiveKind returns the edge kind, defaulting to control.
func (e *Edge) EffectiveKind() string {
	if e.Kind == "" {
		return EdgeKindControl
	}
	return e.Kind
}

// Graph is a workflow document. Node order is significant: it breaks ties in
// the topological order, so two runs of the same graph observe identical
// node visit order.
type Graph struct {
	Nodes []*Node `json:"nodes"`
	Edges []*Edge `json:"edges"`
}

// Parse decodes a graph document from JSON.
func Parse(data []byte) (*Graph, error) {
	var g Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// Node returns the node with the given id, or nil.
func (g *Graph) Node(id string) *Node {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// ControlEdges returns the edges that participate in scheduling.
func (g *Graph) ControlEdges() []*Edge {
	var edges []*Edge
	for _, e := range g.Edges {
		if e.EffectiveKind() == EdgeKindControl {
			edges = append(edges, e)
		}
	}
	return edges
}

// ToolEdges returns the tool edges leaving the given node. For agent nodes
// these identify the attached tool nodes.
func (g *Graph) ToolEdges(from string) []*Edge {
	var edges []*Edge
	for _, e := range g.Edges {
		if e.EffectiveKind() == EdgeKindTool && e.From == from {
			edges = append(edges, e)
		}
	}
	return edges
}

// ControlParents returns the ids of nodes with a control edge into the given
// node, in edge declaration order.
func (g *Graph) ControlParents(id string) []string {
	var parents []string
	for _, e := range g.Edges {
		if e.EffectiveKind() == EdgeKindControl && e.To == id {
			parents = append(parents, e.From)
		}
	}
	return parents
}
