// Command flowrun is a small demonstration harness for the flowcore engine:
// it wires a three-vertex DAG (a synthetic event generator, a session-window
// aggregator, and a sink that prints finished sessions), submits it through
// a remote.LocalSubmitter, and serves a /healthz endpoint for the duration
// of the run — mirroring cmd/coordinator's env-config, background-server,
// and signal-driven graceful shutdown shape.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dreamware/flowcore/internal/dag"
	"github.com/dreamware/flowcore/internal/executor"
	"github.com/dreamware/flowcore/internal/flog"
	"github.com/dreamware/flowcore/internal/item"
	"github.com/dreamware/flowcore/internal/proc"
	"github.com/dreamware/flowcore/internal/remote"
	"github.com/dreamware/flowcore/internal/session"
)

func main() {
	addr := getenv("FLOWRUN_ADDR", ":8090")
	flog.Init(getenv("FLOWRUN_LOG_LEVEL", "info"))
	workers := getenvInt("FLOWRUN_WORKERS", 4)

	mux := http.NewServeMux()
	ready := make(chan struct{})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		select {
		case <-ready:
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	})

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		flog.L().Infow("flowrun listening", "addr", addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	jobCtx, cancelJob := context.WithCancel(context.Background())
	defer cancelJob()

	jobDone := make(chan struct{})
	go func() {
		defer close(jobDone)
		close(ready)
		if err := runDemoJob(jobCtx, workers); err != nil {
			flog.L().Errorw("demo job failed", "error", err)
		}
	}()

	select {
	case <-stop:
		flog.L().Infow("shutdown signal received")
		cancelJob()
	case <-jobDone:
		flog.L().Infow("demo job completed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	<-jobDone
	flog.L().Infow("flowrun stopped")
}

// clickEvent is the synthetic payload the generator vertex emits: a
// session key, an event timestamp, and a value folded into the session's
// running total.
type clickEvent struct {
	key   string
	ts    int64
	value int
}

// runDemoJob builds and submits the generator -> session-window -> sink
// DAG, then waits for it to finish.
func runDemoJob(ctx context.Context, workers int) error {
	d := dag.NewDAG("flowrun-demo")

	if err := d.AddVertex(dag.Vertex{
		Name:        "generate",
		Parallelism: 1,
		Factory:     func(proc.Context) proc.Processor { return newGeneratorProcessor() },
	}); err != nil {
		return err
	}
	if err := d.AddVertex(dag.Vertex{
		Name:        "session-window",
		Parallelism: 1,
		Factory:     func(proc.Context) proc.Processor { return newSessionWindowProcessor() },
	}); err != nil {
		return err
	}
	if err := d.AddVertex(dag.Vertex{
		Name:        "print-sink",
		Parallelism: 1,
		Factory:     func(proc.Context) proc.Processor { return newSinkProcessor() },
	}); err != nil {
		return err
	}
	if err := d.AddEdge(dag.Edge{
		From: "generate", To: "session-window", Pattern: dag.Unicast,
	}); err != nil {
		return err
	}
	if err := d.AddEdge(dag.Edge{
		From: "session-window", To: "print-sink", Pattern: dag.Unicast,
	}); err != nil {
		return err
	}

	sub := remote.NewLocalSubmitter(executor.Config{Workers: workers})
	handle, err := sub.Submit(ctx, d)
	if err != nil {
		return err
	}
	result, err := handle.Wait(ctx)
	if err != nil {
		return err
	}
	flog.L().Infow("job finished", "job", handle.ID().String(), "tasklets", result.TaskletCount)
	return nil
}

// generatorProcessor emits a handful of synthetic clickEvents spread across
// two session keys, then a single watermark, then signals completion.
type generatorProcessor struct {
	events  []clickEvent
	emitted int
	wmSent  bool
	ob      proc.Outbox
}

func newGeneratorProcessor() *generatorProcessor {
	return &generatorProcessor{
		events: []clickEvent{
			{key: "alice", ts: 0, value: 1},
			{key: "alice", ts: 2, value: 1},
			{key: "bob", ts: 1, value: 5},
			{key: "alice", ts: 20, value: 1}, // gap beyond the 10-unit session window
			{key: "bob", ts: 3, value: 5},
		},
	}
}

func (g *generatorProcessor) Init(ob proc.Outbox, _ proc.Context) error {
	g.ob = ob
	return nil
}

func (g *generatorProcessor) TryProcess(int, item.Item) bool      { return true }
func (g *generatorProcessor) TryProcessWatermark(int, int64) bool { return true }
func (g *generatorProcessor) Close() error                        { return nil }
func (g *generatorProcessor) IsCooperative() bool                 { return true }

func (g *generatorProcessor) Complete() bool {
	for g.emitted < len(g.events) {
		e := g.events[g.emitted]
		if !g.ob.Add(0, item.NewDataItem(e)) {
			return false
		}
		g.emitted++
	}
	if !g.wmSent {
		if !g.ob.Add(0, item.NewWatermark(30)) {
			return false
		}
		g.wmSent = true
	}
	return true
}

// sessionWindowProcessor wraps a session.Operator with a 10-unit gap,
// folding each key's events into a running sum and forwarding finished
// sessions (plus the watermark that closed them) downstream once the
// outbox has room.
type sessionWindowProcessor struct {
	op      *session.Operator[string, clickEvent, int, int]
	pending []item.Item
	ob      proc.Outbox
}

func newSessionWindowProcessor() *sessionWindowProcessor {
	collector := proc.Collector[clickEvent, int, int]{
		Supplier:    func() int { return 0 },
		Accumulator: func(acc int, e clickEvent) int { return acc + e.value },
		Combiner:    func(a, b int) int { return a + b },
		Finisher:    func(acc int) int { return acc },
	}
	return &sessionWindowProcessor{
		op: session.NewOperator[string, clickEvent, int, int](
			10,
			func(e clickEvent) int64 { return e.ts },
			func(e clickEvent) string { return e.key },
			collector,
		),
	}
}

func (s *sessionWindowProcessor) Init(ob proc.Outbox, _ proc.Context) error {
	s.ob = ob
	return nil
}

func (s *sessionWindowProcessor) TryProcess(_ int, it item.Item) bool {
	s.op.OnItem(it.Payload.(clickEvent))
	return true
}

func (s *sessionWindowProcessor) TryProcessWatermark(_ int, wm int64) bool {
	finished := s.op.OnWatermark(wm)
	for _, sess := range finished {
		s.pending = append(s.pending, item.NewDataItem(sess))
	}
	s.pending = append(s.pending, item.NewWatermark(wm))
	s.flush()
	return true
}

func (s *sessionWindowProcessor) flush() {
	for len(s.pending) > 0 {
		if !s.ob.Add(0, s.pending[0]) {
			return
		}
		s.pending = s.pending[1:]
	}
}

func (s *sessionWindowProcessor) Complete() bool {
	s.flush()
	return len(s.pending) == 0
}

func (s *sessionWindowProcessor) Close() error       { return nil }
func (s *sessionWindowProcessor) IsCooperative() bool { return true }

// sinkProcessor prints every finished session and watermark it observes.
type sinkProcessor struct {
	mu    sync.Mutex
	count int
}

func newSinkProcessor() *sinkProcessor { return &sinkProcessor{} }

func (s *sinkProcessor) Init(proc.Outbox, proc.Context) error { return nil }

func (s *sinkProcessor) TryProcess(_ int, it item.Item) bool {
	sess := it.Payload.(session.Session[string, int])
	s.mu.Lock()
	s.count++
	s.mu.Unlock()
	fmt.Printf("session closed: key=%s sum=%d window=[%d,%d)\n", sess.Key, sess.Result, sess.Start, sess.BeyondEnd)
	return true
}

func (s *sinkProcessor) TryProcessWatermark(_ int, wm int64) bool {
	fmt.Printf("watermark advanced to %d\n", wm)
	return true
}

func (s *sinkProcessor) Complete() bool { return true }

func (s *sinkProcessor) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Printf("sink closed after %d sessions\n", s.count)
	return nil
}

func (s *sinkProcessor) IsCooperative() bool { return true }

// getenv mirrors the teacher's coordinator/node pattern: return the
// environment variable's value if set and non-empty, else def.
func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := parseInt(v)
	if err != nil {
		return def
	}
	return n
}

func parseInt(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}
