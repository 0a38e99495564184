package dag

import (
	"testing"

	"github.com/dreamware/flowcore/internal/proc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopFactory(proc.Context) proc.Processor { return nil }

func TestAddVertexRejectsDuplicateName(t *testing.T) {
	d := NewDAG("t")
	require.NoError(t, d.AddVertex(Vertex{Name: "a", Parallelism: 1, Factory: noopFactory}))
	err := d.AddVertex(Vertex{Name: "a", Parallelism: 1, Factory: noopFactory})
	assert.Error(t, err)
}

func TestFreezeRejectsDanglingEdge(t *testing.T) {
	d := NewDAG("t")
	require.NoError(t, d.AddVertex(Vertex{Name: "a", Parallelism: 1, Factory: noopFactory}))
	require.NoError(t, d.AddEdge(Edge{From: "a", To: "ghost"}))
	assert.Error(t, d.Freeze())
}

func TestFreezeRejectsDuplicateEdgePair(t *testing.T) {
	d := NewDAG("t")
	require.NoError(t, d.AddVertex(Vertex{Name: "a", Parallelism: 1, Factory: noopFactory}))
	require.NoError(t, d.AddVertex(Vertex{Name: "b", Parallelism: 1, Factory: noopFactory}))
	require.NoError(t, d.AddEdge(Edge{From: "a", To: "b", SourceOrdinal: 0, DestOrdinal: 0}))
	require.NoError(t, d.AddEdge(Edge{From: "a", To: "b", SourceOrdinal: 0, DestOrdinal: 0}))
	assert.Error(t, d.Freeze())
}

func TestFreezeRejectsCycle(t *testing.T) {
	d := NewDAG("t")
	require.NoError(t, d.AddVertex(Vertex{Name: "a", Parallelism: 1, Factory: noopFactory}))
	require.NoError(t, d.AddVertex(Vertex{Name: "b", Parallelism: 1, Factory: noopFactory}))
	require.NoError(t, d.AddEdge(Edge{From: "a", To: "b"}))
	require.NoError(t, d.AddEdge(Edge{From: "b", To: "a"}))
	assert.Error(t, d.Freeze())
}

func TestFreezeAcceptsLinearDag(t *testing.T) {
	d := NewDAG("t")
	require.NoError(t, d.AddVertex(Vertex{Name: "source", Parallelism: 1, Factory: noopFactory}))
	require.NoError(t, d.AddVertex(Vertex{Name: "sink", Parallelism: 2, Factory: noopFactory}))
	require.NoError(t, d.AddEdge(Edge{From: "source", To: "sink", Pattern: Unicast}))
	require.NoError(t, d.Freeze())

	vs := d.Vertices()
	require.Len(t, vs, 2)
	assert.Equal(t, "source", vs[0].Name)
	assert.Equal(t, "sink", vs[1].Name)

	assert.Contains(t, d.DOT(), "source")
}

func TestPartitionedEdgeRequiresFns(t *testing.T) {
	d := NewDAG("t")
	err := d.AddEdge(Edge{From: "a", To: "b", Pattern: Partitioned})
	assert.Error(t, err)
}

func TestEdgesToSortedByPriority(t *testing.T) {
	d := NewDAG("t")
	require.NoError(t, d.AddVertex(Vertex{Name: "a", Parallelism: 1, Factory: noopFactory}))
	require.NoError(t, d.AddVertex(Vertex{Name: "b", Parallelism: 1, Factory: noopFactory}))
	require.NoError(t, d.AddVertex(Vertex{Name: "sink", Parallelism: 1, Factory: noopFactory}))
	require.NoError(t, d.AddEdge(Edge{From: "a", To: "sink", DestOrdinal: 0, Priority: 5}))
	require.NoError(t, d.AddEdge(Edge{From: "b", To: "sink", DestOrdinal: 1, Priority: 1}))
	require.NoError(t, d.Freeze())

	edges := d.EdgesTo("sink")
	require.Len(t, edges, 2)
	assert.Equal(t, "b", edges[0].From)
	assert.Equal(t, "a", edges[1].From)
}

func TestMutationRejectedAfterFreeze(t *testing.T) {
	d := NewDAG("t")
	require.NoError(t, d.Freeze())
	assert.Error(t, d.AddVertex(Vertex{Name: "late", Parallelism: 1}))
	assert.Error(t, d.AddEdge(Edge{From: "a", To: "b"}))
}
