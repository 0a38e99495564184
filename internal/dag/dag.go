// Package dag implements the DAG model: vertices, edges, forwarding
// patterns, ordinals, and the validation that rejects duplicate names (in
// AddVertex) and cycles, dangling edges, and duplicate ordinal pairs (in
// Freeze). A DAG is
// built mutably, then frozen once; after Freeze, Vertices and Edges return
// copies so nothing downstream can mutate a running job's topology — the
// same "return copies to prevent external modification" convention the
// teacher repo uses for its cluster and shard metadata.
package dag

import (
	"fmt"

	"github.com/dreamware/flowcore/internal/flowerr"
	"github.com/dreamware/flowcore/internal/proc"
	"github.com/emicklei/dot"
)

// ForwardingPattern selects how an edge routes items from a producer
// instance to one or more consumer instances.
type ForwardingPattern int

const (
	// Unicast sends each item to exactly one downstream instance,
	// typically chosen round-robin.
	Unicast ForwardingPattern = iota
	// Broadcast sends each item to every downstream instance.
	Broadcast
	// Partitioned sends each item to the downstream instance selected by
	// PartitionFn(KeyFn(item), downstreamParallelism).
	Partitioned
	// AllToOne fans every upstream instance into a single downstream
	// instance (instance index 0).
	AllToOne
)

func (p ForwardingPattern) String() string {
	switch p {
	case Unicast:
		return "unicast"
	case Broadcast:
		return "broadcast"
	case Partitioned:
		return "partitioned"
	case AllToOne:
		return "all-to-one"
	default:
		return "unknown"
	}
}

// Vertex is the identity and factory for one processing stage. Parallelism
// is the number of parallel instances the executor creates for this
// vertex; it must be >= 1.
type Vertex struct {
	Factory     proc.ProcessorFactory
	Name        string
	Parallelism int
}

// Edge is a directed connection between two vertices, named by vertex name
// rather than index so a DAG can be built incrementally before freeze.
type Edge struct {
	KeyFn         func(any) any
	PartitionFn   func(key any, numPartitions int) int
	From          string
	To            string
	SourceOrdinal int
	DestOrdinal   int
	Priority      int
	Pattern       ForwardingPattern
	Distributed   bool
}

type edgeKey struct {
	from          string
	to            string
	sourceOrdinal int
	destOrdinal   int
}

// DAG is the mutable builder and, once frozen, the immutable topology
// handed to the executor.
type DAG struct {
	vertices map[string]Vertex
	edges    []Edge
	order    []string // vertex insertion order, kept for deterministic iteration
	name     string
	frozen   bool
}

// NewDAG creates an empty, unfrozen DAG named name (used only for logging
// and DOT export).
func NewDAG(name string) *DAG {
	return &DAG{name: name, vertices: make(map[string]Vertex)}
}

// AddVertex registers a vertex. It is an error to add a vertex after
// Freeze, to reuse a name, or to pass Parallelism < 1.
func (d *DAG) AddVertex(v Vertex) error {
	if d.frozen {
		return flowerr.DagInvalid("cannot add vertex to frozen dag " + d.name)
	}
	if v.Name == "" {
		return flowerr.DagInvalid("vertex name must not be empty")
	}
	if _, exists := d.vertices[v.Name]; exists {
		return flowerr.DagInvalid(fmt.Sprintf("duplicate vertex name %q", v.Name))
	}
	if v.Parallelism < 1 {
		return flowerr.DagInvalid(fmt.Sprintf("vertex %q parallelism must be >= 1, got %d", v.Name, v.Parallelism))
	}
	d.vertices[v.Name] = v
	d.order = append(d.order, v.Name)
	return nil
}

// AddEdge registers an edge. Endpoint existence and cycle-freedom are
// checked at Freeze, not here, since edges may be added in any order
// relative to the vertices they reference.
func (d *DAG) AddEdge(e Edge) error {
	if d.frozen {
		return flowerr.DagInvalid("cannot add edge to frozen dag " + d.name)
	}
	if e.Pattern == Partitioned && (e.KeyFn == nil || e.PartitionFn == nil) {
		return flowerr.DagInvalid(fmt.Sprintf("partitioned edge %s->%s requires KeyFn and PartitionFn", e.From, e.To))
	}
	d.edges = append(d.edges, e)
	return nil
}

// Freeze validates the DAG and makes it immutable. Validation covers:
// dangling edge endpoints, duplicate (from.sourceOrdinal, to.destOrdinal)
// pairs across a vertex pair, and cycles (via Kahn's algorithm, whose
// resulting topological order is cached as the order Vertices returns).
func (d *DAG) Freeze() error {
	if d.frozen {
		return nil
	}

	seenPairs := make(map[edgeKey]struct{}, len(d.edges))
	for _, e := range d.edges {
		if _, ok := d.vertices[e.From]; !ok {
			return flowerr.DagInvalid(fmt.Sprintf("edge references unknown source vertex %q", e.From))
		}
		if _, ok := d.vertices[e.To]; !ok {
			return flowerr.DagInvalid(fmt.Sprintf("edge references unknown dest vertex %q", e.To))
		}
		key := edgeKey{e.From, e.To, e.SourceOrdinal, e.DestOrdinal}
		if _, dup := seenPairs[key]; dup {
			return flowerr.DagInvalid(fmt.Sprintf(
				"duplicate edge %s[%d]->%s[%d]", e.From, e.SourceOrdinal, e.To, e.DestOrdinal))
		}
		seenPairs[key] = struct{}{}
	}

	order, err := topoSort(d.order, d.edges)
	if err != nil {
		return err
	}
	d.order = order
	d.frozen = true
	return nil
}

// topoSort runs Kahn's algorithm over the vertex names and edges, returning
// a topological order or a flowerr.DagInvalid error naming a cycle.
func topoSort(names []string, edges []Edge) ([]string, error) {
	indegree := make(map[string]int, len(names))
	adj := make(map[string][]string, len(names))
	for _, n := range names {
		indegree[n] = 0
	}
	for _, e := range edges {
		adj[e.From] = append(adj[e.From], e.To)
		indegree[e.To]++
	}

	var queue []string
	for _, n := range names {
		if indegree[n] == 0 {
			queue = append(queue, n)
		}
	}

	var order []string
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		order = append(order, n)
		for _, next := range adj[n] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(order) != len(names) {
		return nil, flowerr.DagInvalid("dag contains a cycle")
	}
	return order, nil
}

// Vertices returns a copy of the frozen DAG's vertices in topological
// order.
func (d *DAG) Vertices() []Vertex {
	out := make([]Vertex, 0, len(d.order))
	for _, n := range d.order {
		out = append(out, d.vertices[n])
	}
	return out
}

// Edges returns a copy of the frozen DAG's edges.
func (d *DAG) Edges() []Edge {
	out := make([]Edge, len(d.edges))
	copy(out, d.edges)
	return out
}

// EdgesFrom returns the edges whose From matches name, in no particular
// order — priority only governs fan-in drain order on the consumer side,
// so only EdgesTo sorts by it.
func (d *DAG) EdgesFrom(name string) []Edge {
	var out []Edge
	for _, e := range d.edges {
		if e.From == name {
			out = append(out, e)
		}
	}
	return out
}

// EdgesTo returns the edges whose To matches name, ordered by Priority
// ascending.
func (d *DAG) EdgesTo(name string) []Edge {
	var out []Edge
	for _, e := range d.edges {
		if e.To == name {
			out = append(out, e)
		}
	}
	sortByPriority(out)
	return out
}

func sortByPriority(edges []Edge) {
	for i := 1; i < len(edges); i++ {
		for j := i; j > 0 && edges[j].Priority < edges[j-1].Priority; j-- {
			edges[j], edges[j-1] = edges[j-1], edges[j]
		}
	}
}

// DOT renders the frozen DAG as Graphviz source, for debugging topology by
// eye. It has no bearing on execution; it's diagnostic only, the same way
// the teacher repo's admin endpoints exist purely for operators to look at.
func (d *DAG) DOT() string {
	g := dot.NewGraph(dot.Directed)
	g.Attr("label", d.name)
	nodes := make(map[string]dot.Node, len(d.vertices))
	for _, n := range d.order {
		v := d.vertices[n]
		nodes[n] = g.Node(n).Attr("label", fmt.Sprintf("%s (p=%d)", n, v.Parallelism))
	}
	for _, e := range d.edges {
		from, ok := nodes[e.From]
		if !ok {
			continue
		}
		to, ok := nodes[e.To]
		if !ok {
			continue
		}
		from.Edge(to).Attr("label", e.Pattern.String())
	}
	return g.String()
}
