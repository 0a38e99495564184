package remote

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/flowcore/internal/dag"
	"github.com/dreamware/flowcore/internal/executor"
	"github.com/dreamware/flowcore/internal/item"
	"github.com/dreamware/flowcore/internal/proc"
)

type onceProc struct{ done bool }

func (p *onceProc) Init(proc.Outbox, proc.Context) error { return nil }
func (p *onceProc) TryProcess(int, item.Item) bool       { return true }
func (p *onceProc) TryProcessWatermark(int, int64) bool  { return true }
func (p *onceProc) Complete() bool                       { return true }
func (p *onceProc) Close() error                         { return nil }
func (p *onceProc) IsCooperative() bool                  { return true }

func TestLocalSubmitterRunsSynchronously(t *testing.T) {
	d := dag.NewDAG("solo")
	require.NoError(t, d.AddVertex(dag.Vertex{
		Name: "v", Parallelism: 1,
		Factory: func(proc.Context) proc.Processor { return &onceProc{} },
	}))

	sub := NewLocalSubmitter(executor.Config{Workers: 1})
	handle, err := sub.Submit(context.Background(), d)
	require.NoError(t, err)

	result, err := handle.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.TaskletCount)
	assert.NotEqual(t, handle.ID().String(), "00000000-0000-0000-0000-000000000000")
}

func TestNopMetricsSinkDiscardsObservations(t *testing.T) {
	var sink MetricsSink = NopMetricsSink{}
	sink.Observe("tasklets.scheduled", 1, "vertex=gen")
}
