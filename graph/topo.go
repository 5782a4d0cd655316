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
	"errors"
	"fmt"
)

// ErrControlCycle is returned when the control subgraph has a cycle.
var ErrControlCycle = errors.New("cycle detected among control edges")

// TopoOrder returns the node ids in an order where for every control edge
// u→v, u precedes v. Ties resolve by node insertion order, so the result is
// deterministic for a given document. Tool edges are ignored.
func TopoOrder(g *Graph) ([]string, error) {
	index := make(map[string]int, len(g.Nodes))
	for i, n := range g.Nodes {
		if _, dup := index[n.ID]; dup {
			return nil, fmt.Errorf("duplicate node id %q", n.ID)
		}
		index[n.ID] = i
	}

	inDegree := make(map[string]int, len(g.Nodes))
	children := make(map[string][]string, len(g.Nodes))
	for _, e := range g.ControlEdges() {
		if _, ok := index[e.From]; !ok {
			return nil, fmt.Errorf("unknown edge endpoint %q", e.From)
		}
		if _, ok := index[e.To]; !ok {
			return nil, fmt.Errorf("unknown edge endpoint %q", e.To)
		}
		children[e.From] = append(children[e.From], e.To)
		inDegree[e.To]++
	}

	// Kahn's algorithm. Each round emits the first node in insertion order
	// whose dependencies are all satisfied; graphs are small so the scan is
	// preferable to a priority queue.
	order := make([]string, 0, len(g.Nodes))
	emitted := make(map[string]bool, len(g.Nodes))
	for len(order) < len(g.Nodes) {
		picked := ""
		for _, n := range g.Nodes {
			if !emitted[n.ID] && inDegree[n.ID] == 0 {
				picked = n.ID
				break
			}
		}
		if picked == "" {
			return nil, ErrControlCycle
		}
		emitted[picked] = true
		order = append(order, picked)
		for _, child := range children[picked] {
			inDegree[child]--
		}
	}
	return order, nil
}
