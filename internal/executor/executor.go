package executor

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dreamware/flowcore/internal/dag"
	"github.com/dreamware/flowcore/internal/flog"
	"github.com/dreamware/flowcore/internal/flowerr"
	"github.com/dreamware/flowcore/internal/tasklet"
)

// JobResult is what Run hands back once a job finishes, whether cleanly,
// by failure, or by cancellation.
type JobResult struct {
	JobID        uuid.UUID
	TaskletCount int
}

// Executor runs a frozen dag.DAG's tasklets to quiescence over a small
// worker pool, per spec.md §4.5's final paragraph and §5's scheduling model.
type Executor struct {
	cfg Config
}

// New builds an Executor with cfg, defaulting zero fields via Config's
// own rules (a worker per logical CPU, 128-slot queues).
func New(cfg Config) *Executor {
	return &Executor{cfg: cfg.applyDefaults(runtime.NumCPU())}
}

// Run builds tasklets and edge queues from d, then drives them to
// quiescence: cooperative tasklets share a fair runnable deque across
// e.cfg.Workers goroutines managed by an errgroup.Group, so the first
// tasklet failure cancels every sibling worker the same moment it cancels
// the group's derived context; non-cooperative ones (IsCooperative() ==
// false) each get a dedicated goroutine in the same group, per spec.md
// §4.5. Run returns once every tasklet reports Done, ctx is cancelled
// (flowerr.Cancelled), or any tasklet surfaces a flowerr error
// (flowerr.WatermarkMisorder or flowerr.ProcessorFailure) — in all three
// cases every processor's Close is invoked exactly once before Run returns.
func (e *Executor) Run(ctx context.Context, d *dag.DAG) (*JobResult, error) {
	jobID := uuid.New()
	log := flog.With("job", jobID.String())

	if err := d.Freeze(); err != nil {
		return nil, err
	}

	built, err := buildJob(d, e.cfg)
	if err != nil {
		return nil, err
	}

	all := make([]*tasklet.Tasklet, len(built))
	for i, b := range built {
		all[i] = b.tl
		if err := b.tl.Init(b.ctx); err != nil {
			closeAll(all[:i+1])
			return nil, flowerr.ProcessorFailure(b.tl.Name+".Init", err)
		}
	}
	defer closeAll(all)

	result := &JobResult{JobID: jobID, TaskletCount: len(all)}
	if len(all) == 0 {
		return result, nil
	}

	log.Infow("job starting", "tasklets", len(all), "workers", e.cfg.Workers)

	var cooperative, dedicated []*tasklet.Tasklet
	for _, tl := range all {
		if tl.IsCooperative() {
			cooperative = append(cooperative, tl)
		} else {
			dedicated = append(dedicated, tl)
		}
	}

	var remaining int64 = int64(len(all))
	done := make(chan struct{})
	markDone := func() {
		if atomic.AddInt64(&remaining, -1) == 0 {
			close(done)
		}
	}

	q := newDeque()
	for _, tl := range cooperative {
		q.push(&runnable{tl: tl})
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < e.cfg.Workers; i++ {
		g.Go(func() error {
			return e.cooperativeWorker(gctx, q, markDone)
		})
	}
	for _, tl := range dedicated {
		tl := tl
		g.Go(func() error {
			return e.dedicatedWorker(gctx, tl, markDone)
		})
	}
	g.Go(func() error {
		select {
		case <-done:
			q.close()
			return nil
		case <-gctx.Done():
			q.close()
			return nil
		}
	})

	runErr := g.Wait()

	finished := false
	select {
	case <-done:
		finished = true
	default:
	}

	if runErr != nil {
		log.Errorw("job failed", "error", runErr)
		return result, runErr
	}
	if !finished {
		cancelErr := flowerr.Cancelled("job " + jobID.String() + " cancelled before completion")
		log.Warnw("job cancelled", "error", ctx.Err())
		return result, cancelErr
	}
	log.Infow("job completed")
	return result, nil
}

// cooperativeWorker repeatedly pops a runnable tasklet, calls it once, and
// either re-enqueues it (immediately on progress, after a backoff on none)
// or reports it done, until the deque closes or ctx is cancelled. A
// non-nil return is a processor failure or watermark misorder, which
// cancels every sibling goroutine in the errgroup.
func (e *Executor) cooperativeWorker(ctx context.Context, q *deque, markDone func()) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		r := q.pop()
		if r == nil {
			return nil
		}
		state, err := r.tl.Call()
		if err != nil {
			markDone()
			return err
		}
		switch state {
		case tasklet.Done:
			markDone()
		case tasklet.MadeProgress:
			r.backoff = 0
			q.push(r)
		default:
			r.backoff = nextBackoff(r.backoff)
			q.pushAfter(r, r.backoff)
		}
	}
}

// dedicatedWorker drives a non-cooperative tasklet on its own goroutine so
// it never competes with the shared pool for a slot, per spec.md §4.5's
// "Non-cooperative tasklets run on dedicated threads" rule. Tasklet.Call
// itself still never blocks (Go processors don't get a blocking variant of
// the SPI), so the loop still backs off on NoProgress the same way, just
// without sharing a deque.
func (e *Executor) dedicatedWorker(ctx context.Context, tl *tasklet.Tasklet, markDone func()) error {
	backoff := time.Duration(0)
	for {
		if ctx.Err() != nil {
			return nil
		}
		state, err := tl.Call()
		if err != nil {
			markDone()
			return err
		}
		switch state {
		case tasklet.Done:
			markDone()
			return nil
		case tasklet.MadeProgress:
			backoff = 0
		default:
			backoff = nextBackoff(backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func closeAll(tasklets []*tasklet.Tasklet) {
	for _, tl := range tasklets {
		if tl == nil {
			continue
		}
		if err := tl.Close(); err != nil {
			flog.With("tasklet", tl.Name).Warnw("processor close failed", "error", err)
		}
	}
}
