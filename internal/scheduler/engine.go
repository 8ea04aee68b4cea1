// Package scheduler wires the dependency graphs and the worker pool into
// a single process: ComputationDependencyGraph's priority propagation
// drives CpuAssignmentDependencyGraph and WorkerThreadPool's queue, the
// way the teacher wires its collector, processor, and output stages
// together under one cobra-booted service.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fora-lang/cumulus/internal/compgraph"
	"github.com/fora-lang/cumulus/internal/cpuassign"
	"github.com/fora-lang/cumulus/internal/sharedlog"
	"github.com/fora-lang/cumulus/internal/workerpool"
	"github.com/fora-lang/cumulus/pkg/collections"
	"github.com/fora-lang/cumulus/pkg/cumid"
	"github.com/fora-lang/cumulus/pkg/eventbus"
	"github.com/fora-lang/cumulus/pkg/utils"
)

// recentCompletionsCapacity bounds the diagnostic ring buffer of the most
// recently checked-in computations, surfaced for /debug-style inspection
// without holding every completion the process has ever seen.
const recentCompletionsCapacity = 256

var tracer = otel.Tracer("cumulus/scheduler")

// Executor performs the actual FORA computation behind a checked-out
// State. Parsing, typechecking, and axiom evaluation are out of scope for
// this core (spec non-goals); Executor is the seam a real interpreter
// plugs into. DefaultExecutor completes immediately with no children,
// which is enough to exercise checkout/checkin/priority wiring end to
// end without one.
type Executor interface {
	// Run performs guid's computation, returning any sub-computations it
	// spawned. It must return promptly once interrupted is closed.
	Run(ctx context.Context, id cumid.ComputationId, guid string, interrupted <-chan struct{}) ([]cumid.ComputationId, error)
}

// DefaultExecutor is a no-op Executor: it completes immediately.
type DefaultExecutor struct{}

func (DefaultExecutor) Run(ctx context.Context, id cumid.ComputationId, guid string, interrupted <-chan struct{}) ([]cumid.ComputationId, error) {
	return nil, nil
}

// Config bundles the knobs Engine needs beyond its collaborators.
type Config struct {
	WorkerPoolSize int
	ConvergeEvery  time.Duration
}

// Engine owns one machine's view of the cluster: the priority graph, the
// CPU-assignment graph, the worker pool draining it, and the checksummed
// log backing durable state. It is the thing cmd/cumulusd boots.
type Engine struct {
	cfg Config

	Priorities *compgraph.Graph
	CpuAssign  *cpuassign.Graph
	Log        *sharedlog.OpenFiles
	Pool       *workerpool.Pool

	machine cumid.MachineId
	exec    Executor
	logger  utils.Logger

	mu      sync.Mutex
	states  map[cumid.ID160]*execState
	recent  *collections.RingBuffer[cumid.ComputationId]
	stopCh  chan struct{}
	wg      sync.WaitGroup
	stopped bool
}

type execState struct {
	id          cumid.ComputationId
	interrupted chan struct{}
	once        sync.Once
}

func (s *execState) interrupt() {
	s.once.Do(func() { close(s.interrupted) })
}

// New builds an Engine. log, exec and logger may be nil; New supplies
// defaults for exec and logger (an in-memory-only OpenFiles is NOT
// created automatically — callers needing durability must pass one,
// since the log directory is operator-configured).
func New(cfg Config, log *sharedlog.OpenFiles, machine cumid.MachineId, exec Executor, logger utils.Logger) *Engine {
	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = 4
	}
	if cfg.ConvergeEvery <= 0 {
		cfg.ConvergeEvery = 50 * time.Millisecond
	}
	if exec == nil {
		exec = DefaultExecutor{}
	}
	if logger == nil {
		logger = utils.GetGlobalLogger()
	}

	e := &Engine{
		cfg:     cfg,
		machine: machine,
		exec:    exec,
		logger:  logger,
		Log:     log,
		states:  map[cumid.ID160]*execState{},
		recent:  collections.NewRingBuffer[cumid.ComputationId](recentCompletionsCapacity),
		stopCh:  make(chan struct{}),
	}

	broadcast := eventbus.New[cpuassign.Assignment](nil)
	e.Priorities = compgraph.New()
	e.CpuAssign = cpuassign.New(broadcast)
	e.Pool = workerpool.New(cfg.WorkerPoolSize, e.checkout, e.checkin, logger)
	return e
}

// Start launches the worker pool and the background convergence loop
// that periodically drains dirty priority/assignment state and feeds the
// resulting diffs to the worker pool's queue.
func (e *Engine) Start() {
	e.Pool.Start()
	e.wg.Add(1)
	go e.convergeLoop()
}

// Stop drains in-flight computations and joins the convergence loop and
// worker pool, mirroring the teacher's PersistentPostRunE shutdown.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	e.mu.Unlock()

	close(e.stopCh)
	e.wg.Wait()
	e.Pool.Stop()
}

func (e *Engine) convergeLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cfg.ConvergeEvery)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.converge()
		}
	}
}

// converge runs one pass of priority propagation and CPU-assignment
// aggregation, then upserts every locally changed root into the worker
// pool's queue at its freshly computed priority.
func (e *Engine) converge() {
	_, span := tracer.Start(context.Background(), "scheduler.converge")
	defer span.End()

	var local, all []cumid.ComputationId
	e.Priorities.Update(&local, &all)
	span.SetAttributes(
		attribute.Int("cumulus.priority.local_changed", len(local)),
		attribute.Int("cumulus.priority.all_changed", len(all)),
	)

	for _, id := range local {
		priority := e.Priorities.Priority(id)
		e.Pool.OnComputationStatusChanged(id, true, priority)
	}

	changed := e.CpuAssign.Update()
	span.SetAttributes(attribute.Int("cumulus.cpuassign.changed", len(changed)))
}

// checkout adapts Executor into workerpool's CheckoutFunc, appending a
// "checkout:<guid>" frame to the checksummed log when one is configured.
func (e *Engine) checkout(id cumid.ComputationId) (workerpool.State, string, error) {
	guid := id.String()

	e.mu.Lock()
	st := &execState{id: id, interrupted: make(chan struct{})}
	e.states[id.ID()] = st
	e.mu.Unlock()

	if e.Log != nil {
		_ = e.Log.Append(e.logPath(), []byte("checkout:"+guid))
	}

	e.CpuAssign.OnRootComputationComputeStatusChanged(e.machine, id, 1)

	return &engineState{engine: e, st: st}, guid, nil
}

// checkin adapts workerpool's CheckinFunc: it updates CpuAssignment's
// compute-status signal and clears the tracked interrupt channel.
func (e *Engine) checkin(id cumid.ComputationId, created []cumid.ComputationId, err error) {
	e.mu.Lock()
	delete(e.states, id.ID())
	e.mu.Unlock()

	for _, child := range created {
		e.Priorities.AddRootToRootDependency(id, child)
		e.CpuAssign.OnRootToRootDependencyCreated(id, child)
	}

	if err != nil {
		e.logger.Warn("scheduler: computation %s finished with error: %v", id, err)
	}
	e.CpuAssign.OnRootComputationComputeStatusChanged(e.machine, id, 0)
	e.recordCompletion(id)
}

// recordCompletion appends id to the recent-completions ring buffer,
// evicting the oldest entry when full.
func (e *Engine) recordCompletion(id cumid.ComputationId) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.recent.IsFull() {
		e.recent.Pop()
	}
	e.recent.Push(id)
}

// RecentCompletions returns, oldest first, the most recently checked-in
// computations (bounded by recentCompletionsCapacity), for diagnostics.
func (e *Engine) RecentCompletions() []cumid.ComputationId {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := e.recent.Len()
	out := make([]cumid.ComputationId, 0, n)
	for i := 0; i < n; i++ {
		v, ok := e.recent.Peek()
		if !ok {
			break
		}
		e.recent.Pop()
		out = append(out, v)
	}
	for _, v := range out {
		e.recent.Push(v)
	}
	return out
}

func (e *Engine) logPath() string {
	return "cumulus-scheduler.log"
}

// engineState bridges Executor back into workerpool.State.
type engineState struct {
	engine *Engine
	st     *execState
}

func (s *engineState) Compute(guid string) ([]cumid.ComputationId, error) {
	ctx, span := tracer.Start(context.Background(), "scheduler.compute", trace.WithAttributes(
		attribute.String("cumulus.computation.guid", guid),
	))
	defer span.End()
	return s.engine.exec.Run(ctx, s.st.id, guid, s.st.interrupted)
}

func (s *engineState) Interrupt() {
	s.st.interrupt()
}
