// Package workerpool implements WorkerThreadPool: a bounded set of
// worker goroutines that execute checked-out computations in strict
// priority order, with FIFO tie-breaking and interrupt-driven
// preemption when a running computation's priority falls below the top
// of the queue.
package workerpool

import (
	"container/heap"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/fora-lang/cumulus/pkg/cumid"
	"github.com/fora-lang/cumulus/pkg/utils"
)

// State is the checked-out execution state of a computation. Compute may
// return voluntarily with sub-computations it spawned, or be preempted by
// a concurrent call to Interrupt, in which case it must still return
// (possibly with a partial result) rather than block forever.
type State interface {
	Compute(guid string) (created []cumid.ComputationId, err error)
	Interrupt()
}

// CheckoutFunc obtains the State and an opaque guid for id immediately
// before it runs on a worker.
type CheckoutFunc func(id cumid.ComputationId) (State, string, error)

// CheckinFunc reports id's result back to the scheduler after Compute
// returns (voluntarily or via interrupt).
type CheckinFunc func(id cumid.ComputationId, created []cumid.ComputationId, err error)

type item struct {
	id       cumid.ComputationId
	priority cumid.ComputationPriority
	seq      int64
	index    int
}

// priorityHeap is a max-heap ordered by ComputationPriority.Less, with
// earlier insertion sequence winning ties — the same container/heap
// pattern as pkg/depgraph's dirtyHeap, inverted for priority-descending
// order and extended with an index field so Pool can remove or re-prioritize
// an arbitrary entry, not just the top.
type priorityHeap []*item

func (h priorityHeap) Len() int { return len(h) }
func (h priorityHeap) Less(i, j int) bool {
	if h[i].priority.Equal(h[j].priority) {
		return h[i].seq < h[j].seq
	}
	return h[j].priority.Less(h[i].priority)
}
func (h priorityHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *priorityHeap) Push(x interface{}) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}
func (h *priorityHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}

type running struct {
	state    State
	worker   int
	priority cumid.ComputationPriority
}

// Pool is WorkerThreadPool: N worker goroutines draining a shared
// priority queue via a checkout/checkin contract.
type Pool struct {
	mu   sync.Mutex
	cond *sync.Cond

	queue    priorityHeap
	byID     map[cumid.ID160]*item
	inFlight map[cumid.ID160]*running
	nextSeq  int64
	stopping bool

	n        int
	checkout CheckoutFunc
	checkin  CheckinFunc
	logger   utils.Logger
	wg       sync.WaitGroup
}

// New builds a Pool with n worker goroutines, not yet started.
func New(n int, checkout CheckoutFunc, checkin CheckinFunc, logger utils.Logger) *Pool {
	if n <= 0 {
		n = 1
	}
	if logger == nil {
		logger = utils.GetGlobalLogger()
	}
	p := &Pool{
		byID:     map[cumid.ID160]*item{},
		inFlight: map[cumid.ID160]*running{},
		n:        n,
		checkout: checkout,
		checkin:  checkin,
		logger:   logger,
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Start launches the n worker goroutines. Must be called at most once.
func (p *Pool) Start() {
	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go p.workerLoop(i)
	}
}

// OnComputationStatusChanged upserts id into the schedulable queue at
// priority when active is true, or removes it when false. If id is
// already checked out and running, its recorded priority is updated in
// place instead (a running computation isn't re-enqueued alongside
// itself); if that now-lower priority falls strictly below the queue's
// top, the running worker is interrupted so the higher-priority entry
// can be picked up promptly.
func (p *Pool) OnComputationStatusChanged(id cumid.ComputationId, active bool, priority cumid.ComputationPriority) {
	p.mu.Lock()

	key := id.ID()
	if !active {
		if it, ok := p.byID[key]; ok {
			heap.Remove(&p.queue, it.index)
			delete(p.byID, key)
		}
		p.mu.Unlock()
		return
	}

	var preempt State
	if r, ok := p.inFlight[key]; ok {
		r.priority = priority
		if p.queue.Len() > 0 && priority.Less(p.queue[0].priority) {
			preempt = r.state
		}
	} else if it, ok := p.byID[key]; ok {
		it.priority = priority
		heap.Fix(&p.queue, it.index)
	} else {
		p.nextSeq++
		it := &item{id: id, priority: priority, seq: p.nextSeq}
		heap.Push(&p.queue, it)
		p.byID[key] = it
	}
	p.cond.Signal()
	p.mu.Unlock()

	if preempt != nil {
		preempt.Interrupt()
	}
}

// stopComputations per spec; exported as Stop for Go naming. Every
// in-flight computation is interrupted concurrently via errgroup rather
// than one at a time, since a State's Interrupt may itself block briefly
// (e.g. on a channel send) and there's no ordering dependency between
// them.
func (p *Pool) Stop() {
	p.mu.Lock()
	p.stopping = true
	var toInterrupt []State
	for _, r := range p.inFlight {
		toInterrupt = append(toInterrupt, r.state)
	}
	p.cond.Broadcast()
	p.mu.Unlock()

	var g errgroup.Group
	for _, s := range toInterrupt {
		s := s
		g.Go(func() error {
			s.Interrupt()
			return nil
		})
	}
	_ = g.Wait()

	p.wg.Wait()
}

func (p *Pool) workerLoop(worker int) {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for p.queue.Len() == 0 && !p.stopping {
			p.cond.Wait()
		}
		if p.stopping && p.queue.Len() == 0 {
			p.mu.Unlock()
			return
		}
		if p.queue.Len() == 0 {
			p.mu.Unlock()
			continue
		}
		it := heap.Pop(&p.queue).(*item)
		delete(p.byID, it.id.ID())
		p.mu.Unlock()

		p.runOne(worker, it.id, it.priority)
	}
}

func (p *Pool) runOne(worker int, id cumid.ComputationId, priority cumid.ComputationPriority) {
	state, guid, err := p.checkout(id)
	if err != nil {
		p.logger.Error("workerpool: checkout failed id=%s error=%v", id, err)
		p.checkin(id, nil, err)
		return
	}

	p.mu.Lock()
	p.inFlight[id.ID()] = &running{state: state, worker: worker, priority: priority}
	p.mu.Unlock()

	created, err := state.Compute(guid)

	p.mu.Lock()
	delete(p.inFlight, id.ID())
	p.mu.Unlock()

	p.checkin(id, created, err)
}

// Len returns the number of computations currently queued (not
// in-flight), for diagnostics and tests.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Len()
}
