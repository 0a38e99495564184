// Package executor builds tasklets and edge queues from a frozen dag.DAG and
// drives them to quiescence over a small worker pool, per spec.md §4.5/§5.
package executor

import (
	"fmt"

	"github.com/dreamware/flowcore/internal/dag"
	"github.com/dreamware/flowcore/internal/edge"
	"github.com/dreamware/flowcore/internal/flowerr"
	"github.com/dreamware/flowcore/internal/proc"
	"github.com/dreamware/flowcore/internal/tasklet"
)

// Config tunes the queue sizing and worker pool shape. Zero-value fields
// fall back to DefaultConfig's values via applyDefaults.
type Config struct {
	// Workers is the size of the shared cooperative-tasklet pool.
	Workers int
	// QueueCapacity is the per edge-instance-pair Queue size, rounded up
	// to a power of two by internal/edge.
	QueueCapacity int
	// HighWaterMark is the backpressure threshold each Outbox bucket
	// reports via HasReachedLimit; must be <= QueueCapacity.
	HighWaterMark int
}

// DefaultConfig returns the executor's default tuning: 128-slot queues with
// backpressure signaled at 3/4 full, and a worker per logical CPU (set by
// applyDefaults, since runtime.NumCPU() isn't a compile-time constant).
func DefaultConfig() Config {
	return Config{QueueCapacity: 128, HighWaterMark: 96}
}

func (c Config) applyDefaults(numCPU int) Config {
	if c.Workers <= 0 {
		c.Workers = numCPU
		if c.Workers < 1 {
			c.Workers = 1
		}
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = DefaultConfig().QueueCapacity
	}
	if c.HighWaterMark <= 0 || c.HighWaterMark > c.QueueCapacity {
		c.HighWaterMark = c.QueueCapacity * 3 / 4
		if c.HighWaterMark < 1 {
			c.HighWaterMark = 1
		}
	}
	return c
}

// builtTasklet pairs a wired Tasklet with the proc.Context its processor
// instance was constructed with, so the executor can pass the same Context
// to Processor.Init before scheduling begins.
type builtTasklet struct {
	tl  *tasklet.Tasklet
	ctx proc.Context
}

// buildJob wires every vertex instance into a Tasklet, creating one
// producer-to-consumer Queue per (producer instance, consumer instance)
// pair on each edge, per spec.md §5's "single-producer, single-consumer per
// queue; multiple queues aggregate into one Inbox" rule.
func buildJob(d *dag.DAG, cfg Config) ([]builtTasklet, error) {
	vertices := d.Vertices()
	parallelism := make(map[string]int, len(vertices))
	for _, v := range vertices {
		parallelism[v.Name] = v.Parallelism
	}

	// queues[edgeIdx][i][j] is the Queue from producer instance i of the
	// edge's source vertex to consumer instance j of its dest vertex.
	edges := d.Edges()
	queues := make([][][]*edge.Queue, len(edges))
	for ei, e := range edges {
		pa := parallelism[e.From]
		pb := parallelism[e.To]
		perEdge := make([][]*edge.Queue, pa)
		for i := 0; i < pa; i++ {
			perEdge[i] = make([]*edge.Queue, pb)
			for j := 0; j < pb; j++ {
				perEdge[i][j] = edge.NewQueue(cfg.QueueCapacity)
			}
		}
		queues[ei] = perEdge
	}

	built := make([]builtTasklet, 0, len(vertices))
	for _, v := range vertices {
		outgoing := indexedEdgesFrom(edges, v.Name)
		incoming := indexedEdgesTo(edges, v.Name) // priority-sorted below

		numOutOrdinals := 0
		for _, ie := range outgoing {
			if ie.e.SourceOrdinal+1 > numOutOrdinals {
				numOutOrdinals = ie.e.SourceOrdinal + 1
			}
		}

		for inst := 0; inst < v.Parallelism; inst++ {
			queuesPerOrdinal := make([][]*edge.Queue, numOutOrdinals)
			forwarders := make([]edge.Forwarder, numOutOrdinals)
			highWaterMarks := make([]int, numOutOrdinals)
			for _, ie := range outgoing {
				e := ie.e
				bucketQueues := make([]*edge.Queue, parallelism[e.To])
				for j := range bucketQueues {
					bucketQueues[j] = queues[ie.idx][inst][j]
				}
				queuesPerOrdinal[e.SourceOrdinal] = bucketQueues
				forwarders[e.SourceOrdinal] = forwarderFor(e)
				highWaterMarks[e.SourceOrdinal] = cfg.HighWaterMark
			}
			outbox := edge.NewOutbox(queuesPerOrdinal, forwarders, highWaterMarks)

			var inbound []tasklet.InboundEdge
			for _, ie := range incoming {
				e := ie.e
				pa := parallelism[e.From]
				producerQueues := make([]*edge.Queue, pa)
				for i := 0; i < pa; i++ {
					producerQueues[i] = queues[ie.idx][i][inst]
				}
				inbound = append(inbound, tasklet.InboundEdge{
					Ordinal: e.DestOrdinal,
					Inbox:   edge.NewInbox(producerQueues),
				})
			}

			name := fmt.Sprintf("%s[%d]", v.Name, inst)
			ctx := proc.Context{
				GlobalParallelism: v.Parallelism,
				LocalParallelism:  v.Parallelism,
				InstanceIndex:     inst,
			}
			p := v.Factory(ctx)
			if p == nil {
				return nil, flowerr.DagInvalid(fmt.Sprintf("vertex %q factory returned a nil processor", v.Name))
			}
			built = append(built, builtTasklet{tl: tasklet.New(name, p, inbound, outbox), ctx: ctx})
		}
	}
	return built, nil
}

// indexedEdge pairs an edge with its position in dag.DAG.Edges(), since
// dag.Edge embeds func fields (KeyFn, PartitionFn) and so isn't comparable
// with == — the index is how wiring ties a vertex's outgoing/incoming edge
// back to the Queue matrix built for it.
type indexedEdge struct {
	idx int
	e   dag.Edge
}

func indexedEdgesFrom(edges []dag.Edge, name string) []indexedEdge {
	var out []indexedEdge
	for i, e := range edges {
		if e.From == name {
			out = append(out, indexedEdge{idx: i, e: e})
		}
	}
	return out
}

func indexedEdgesTo(edges []dag.Edge, name string) []indexedEdge {
	var out []indexedEdge
	for i, e := range edges {
		if e.To == name {
			out = append(out, indexedEdge{idx: i, e: e})
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].e.Priority < out[j-1].e.Priority; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// forwarderFor builds a fresh, independently-stateful Forwarder for one
// producer instance's outgoing bucket, matching the edge's forwarding
// pattern. Unicast gets its own round-robin counter per producer instance
// so two producer instances of the same vertex don't contend over one
// shared cursor.
func forwarderFor(e dag.Edge) edge.Forwarder {
	switch e.Pattern {
	case dag.Broadcast:
		return edge.BroadcastAll()
	case dag.Partitioned:
		return edge.Partitioned(e.KeyFn, e.PartitionFn)
	case dag.AllToOne:
		return edge.AllToOneForwarder()
	default:
		return edge.RoundRobin()
	}
}
