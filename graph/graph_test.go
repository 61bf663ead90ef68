package graph

import (
	"testing"

	"github.com/hupe1980/eduswarm/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraph_NodesInInsertionOrder(t *testing.T) {
	g := New()
	assert.True(t, g.AddNode(core.Node{ID: "b"}))
	assert.True(t, g.AddNode(core.Node{ID: "a"}))
	assert.False(t, g.AddNode(core.Node{ID: "b", Content: "again"}))

	nodes := g.Nodes()
	require.Len(t, nodes, 2)
	assert.Equal(t, "b", nodes[0].ID)
	assert.Equal(t, "", nodes[0].Content)
	assert.True(t, g.HasNode("a"))
	assert.False(t, g.HasNode("c"))
}

func TestGraph_DistinctTypesAreNotMerged(t *testing.T) {
	g := New()
	g.AddConnection("p", "r", core.EdgeResponse, 1.0)
	g.AddConnection("p", "r", core.EdgeContext, 0.6)

	conns := g.Connections("p", "r")
	require.Len(t, conns, 2)
	assert.Equal(t, core.EdgeContext, conns[0].Type)
	assert.Equal(t, 0.6, conns[0].Strength)
	assert.Equal(t, core.EdgeResponse, conns[1].Type)

	_, edges := g.Len()
	assert.Equal(t, 2, edges)
}

func TestGraph_SameTypeOverwrites(t *testing.T) {
	g := New()
	g.AddConnection("a", "b", core.EdgeDirect, 0.8)
	g.AddConnection("a", "b", core.EdgeDirect, 0.5)

	conns := g.Connections("a", "b")
	require.Len(t, conns, 1)
	assert.Equal(t, 0.5, conns[0].Strength)
	_, edges := g.Len()
	assert.Equal(t, 1, edges)
}

func TestGraph_OutgoingIncoming(t *testing.T) {
	g := New()
	g.AddConnection("u", "p", core.EdgeContext, 0.6)
	g.AddConnection("p", "r", core.EdgeResponse, 1.0)
	g.AddConnection("x", "p", core.EdgeContext, 2.0)

	out := g.Outgoing("p")
	require.Len(t, out, 1)
	assert.Equal(t, "r", out[0].TargetID)

	in := g.Incoming("p")
	require.Len(t, in, 2)
	assert.Equal(t, "u", in[0].SourceID)
	assert.Equal(t, "x", in[1].SourceID)
	assert.Equal(t, 1.0, in[1].Strength)
}

func TestGraph_Reset(t *testing.T) {
	g := New()
	g.AddNode(core.Node{ID: "a"})
	g.AddConnection("a", "b", core.EdgeDirect, 0.8)
	g.Reset()

	nodes, edges := g.Len()
	assert.Zero(t, nodes)
	assert.Zero(t, edges)
	assert.Empty(t, g.Snapshot().Connections)
}
