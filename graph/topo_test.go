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
	"testing"

	"github.com/stretchr/testify/require"
)

func nodes(ids ...string) []*Node {
	ns := make([]*Node, 0, len(ids))
	for _, id := range ids {
		ns = append(ns, &Node{ID: id, Type: "show"})
	}
	return ns
}

func TestTopoOrder_Chain(t *testing.T) {
	g := &Graph{
		Nodes: nodes("a", "b", "c"),
		Edges: []*Edge{
			{From: "a", To: "b"},
			{From: "b", To: "c"},
		},
	}
	order, err := TopoOrder(g)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, order)
}

func TestTopoOrder_TiesFollowInsertionOrder(t *testing.T) {
	// Diamond: a feeds both c and b; declaration order of the fan-out nodes
	// decides who runs first.
	g := &Graph{
		Nodes: nodes("a", "c", "b", "d"),
		Edges: []*Edge{
			{From: "a", To: "b"},
			{From: "a", To: "c"},
			{From: "b", To: "d"},
			{From: "c", To: "d"},
		},
	}
	order, err := TopoOrder(g)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "c", "b", "d"}, order)

	// The result is stable across repeated calls.
	for i := 0; i < 5; i++ {
		again, err := TopoOrder(g)
		require.NoError(t, err)
		require.Equal(t, order, again)
	}
}

func TestTopoOrder_DisconnectedNodesKeepInsertionOrder(t *testing.T) {
	g := &Graph{Nodes: nodes("z", "m", "a")}
	order, err := TopoOrder(g)
	require.NoError(t, err)
	require.Equal(t, []string{"z", "m", "a"}, order)
}

func TestTopoOrder_ControlCycle(t *testing.T) {
	g := &Graph{
		Nodes: nodes("a", "b"),
		Edges: []*Edge{
			{From: "a", To: "b"},
			{From: "b", To: "a"},
		},
	}
	_, err := TopoOrder(g)
	require.ErrorIs(t, err, ErrControlCycle)
}

func TestTopoOrder_ToolEdgesInvisible(t *testing.T) {
	// A cycle formed only by tool edges must not affect ordering.
	g := &Graph{
		Nodes: nodes("agent", "calc"),
		Edges: []*Edge{
			{From: "agent", To: "calc", Kind: EdgeKindTool},
			{From: "calc", To: "agent", Kind: EdgeKindTool},
		},
	}
	order, err := TopoOrder(g)
	require.NoError(t, err)
	require.Equal(t, []string{"agent", "calc"}, order)
}

func TestTopoOrder_DuplicateNodeID(t *testing.T) {
	g := &Graph{Nodes: nodes("a", "a")}
	_, err := TopoOrder(g)
	require.Error(t, err)
	require.Contains(t, err.Error(), "duplicate node id")
}

func TestTopoOrder_UnknownEndpoint(t *testing.T) {
	g := &Graph{
		Nodes: nodes("a"),
		Edges: []*Edge{{From: "a", To: "ghost"}},
	}
	_, err := TopoOrder(g)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown edge endpoint")
}
