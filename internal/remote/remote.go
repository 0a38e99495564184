// Package remote defines the seams spec.md explicitly scopes out of the
// core — cluster transport, job submission, and metrics/tracing sinks — so
// the executor can be exercised standalone while still leaving a place for
// a real cluster deployment to plug into, the same way the teacher repo's
// internal/cluster package defines NodeInfo and registration types without
// itself running a transport.
package remote

import (
	"context"

	"github.com/google/uuid"

	"github.com/dreamware/flowcore/internal/dag"
	"github.com/dreamware/flowcore/internal/executor"
)

// JobHandle is what a JobSubmitter hands back immediately after accepting a
// DAG; Wait blocks until the job finishes (or ctx is cancelled) and returns
// its outcome.
type JobHandle interface {
	ID() uuid.UUID
	Wait(ctx context.Context) (*executor.JobResult, error)
}

// JobSubmitter accepts a frozen-or-freezable DAG for execution. A real
// deployment's implementation would serialize the DAG, ship it to a
// coordinator, and track membership across a cluster transport — all of
// which spec.md §1 scopes out of the core; this package only defines the
// contract a caller (cmd/flowrun, an integration test) programs against.
type JobSubmitter interface {
	Submit(ctx context.Context, d *dag.DAG) (JobHandle, error)
}

// LocalSubmitter runs a DAG directly on an in-process executor.Executor,
// with no cluster, transport, or distributed edge behavior — the
// single-process seam cmd/flowrun and integration tests use in place of a
// real job-submission service.
type LocalSubmitter struct {
	Executor *executor.Executor
}

// NewLocalSubmitter builds a LocalSubmitter around an Executor configured
// with cfg.
func NewLocalSubmitter(cfg executor.Config) *LocalSubmitter {
	return &LocalSubmitter{Executor: executor.New(cfg)}
}

// Submit runs d to completion synchronously and wraps the outcome in a
// handle whose Wait returns immediately with the already-known result —
// there's no asynchronous submission to wait on without a real transport.
func (s *LocalSubmitter) Submit(ctx context.Context, d *dag.DAG) (JobHandle, error) {
	result, err := s.Executor.Run(ctx, d)
	return &localHandle{result: result, err: err}, nil
}

type localHandle struct {
	result *executor.JobResult
	err    error
}

func (h *localHandle) ID() uuid.UUID {
	if h.result == nil {
		return uuid.Nil
	}
	return h.result.JobID
}

func (h *localHandle) Wait(context.Context) (*executor.JobResult, error) {
	return h.result, h.err
}

// MetricsSink is the observability seam spec.md §1 scopes tracing/metrics
// sinks out of; NopMetricsSink is the default when no real backend is
// wired up. The executor and tasklet packages do not emit through it.
type MetricsSink interface {
	Observe(name string, value float64, tags ...string)
}

// NopMetricsSink discards every observation.
type NopMetricsSink struct{}

// Observe implements MetricsSink by doing nothing.
func (NopMetricsSink) Observe(string, float64, ...string) {}
