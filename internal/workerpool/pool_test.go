package workerpool

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fora-lang/cumulus/pkg/cumid"
)

func newRoot(t *testing.T, seed string) cumid.ComputationId {
	t.Helper()
	return cumid.NewRootComputationId([]byte(seed), []byte("salt-"+seed))
}

// fakeState completes Compute immediately, recording the guid it was
// given and whether Interrupt was ever called.
type fakeState struct {
	mu          sync.Mutex
	interrupted bool
	gotGuid     string
	done        chan struct{}
}

func newFakeState() *fakeState { return &fakeState{done: make(chan struct{})} }

func (s *fakeState) Compute(guid string) ([]cumid.ComputationId, error) {
	s.mu.Lock()
	s.gotGuid = guid
	s.mu.Unlock()
	close(s.done)
	return nil, nil
}

func (s *fakeState) Interrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interrupted = true
}

// blockingState blocks in Compute until Interrupt is called.
type blockingState struct {
	interrupt chan struct{}
	started   chan struct{}
}

func newBlockingState() *blockingState {
	return &blockingState{interrupt: make(chan struct{}), started: make(chan struct{})}
}

func (s *blockingState) Compute(guid string) ([]cumid.ComputationId, error) {
	close(s.started)
	<-s.interrupt
	return nil, nil
}

func (s *blockingState) Interrupt() {
	close(s.interrupt)
}

func TestPool_RunsSingleComputationToCompletion(t *testing.T) {
	root := newRoot(t, "r1")
	state := newFakeState()

	var checkedIn cumid.ComputationId
	checkinDone := make(chan struct{})
	p := New(1,
		func(id cumid.ComputationId) (State, string, error) { return state, "guid-1", nil },
		func(id cumid.ComputationId, created []cumid.ComputationId, err error) {
			checkedIn = id
			close(checkinDone)
		},
		nil,
	)
	p.Start()
	defer p.Stop()

	p.OnComputationStatusChanged(root, true, cumid.NewPriority(5))

	select {
	case <-checkinDone:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for checkin")
	}

	assert.True(t, checkedIn.Equal(root))
	assert.Equal(t, "guid-1", state.gotGuid)
}

func TestPool_SelectsStrictPriorityOrderWithFIFOTiebreak(t *testing.T) {
	roots := []cumid.ComputationId{
		newRoot(t, "low"),
		newRoot(t, "high"),
		newRoot(t, "mid-first"),
		newRoot(t, "mid-second"),
	}
	priorities := map[cumid.ID160]cumid.ComputationPriority{
		roots[0].ID(): cumid.NewPriority(1),
		roots[1].ID(): cumid.NewPriority(10),
		roots[2].ID(): cumid.NewPriority(5),
		roots[3].ID(): cumid.NewPriority(5),
	}

	var mu sync.Mutex
	var order []cumid.ComputationId
	allDone := make(chan struct{})

	checkout := func(id cumid.ComputationId) (State, string, error) {
		return newFakeState(), "g", nil
	}
	checkin := func(id cumid.ComputationId, created []cumid.ComputationId, err error) {
		mu.Lock()
		order = append(order, id)
		done := len(order) == len(roots)
		mu.Unlock()
		if done {
			close(allDone)
		}
	}

	// A single, not-yet-started worker: every priority is enqueued
	// before Start() ever runs a goroutine, so the pop order is
	// deterministically driven by the heap rather than a race between
	// enqueue and an already-running worker.
	p := New(1, checkout, checkin, nil)

	for _, r := range roots {
		p.OnComputationStatusChanged(r, true, priorities[r.ID()])
	}
	// mid-first was enqueued before mid-second at the same priority
	// level, so FIFO must keep it ahead.
	p.Start()
	defer p.Stop()

	select {
	case <-allDone:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for all computations to run")
	}

	require.Len(t, order, 4)
	assert.True(t, order[0].Equal(roots[1])) // high
	assert.True(t, order[1].Equal(roots[2])) // mid-first
	assert.True(t, order[2].Equal(roots[3])) // mid-second
	assert.True(t, order[3].Equal(roots[0])) // low
}

func TestPool_RemovesFromQueueWhenMarkedInactive(t *testing.T) {
	root := newRoot(t, "r1")
	checkoutCalled := make(chan struct{}, 1)
	p := New(1,
		func(id cumid.ComputationId) (State, string, error) {
			checkoutCalled <- struct{}{}
			return newFakeState(), "g", nil
		},
		func(id cumid.ComputationId, created []cumid.ComputationId, err error) {},
		nil,
	)

	p.OnComputationStatusChanged(root, true, cumid.NewPriority(1))
	require.Equal(t, 1, p.Len())
	p.OnComputationStatusChanged(root, false, cumid.ComputationPriority{})
	assert.Equal(t, 0, p.Len())

	p.Start()
	defer p.Stop()
	select {
	case <-checkoutCalled:
		t.Fatal("checkout should not have been called for a removed computation")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPool_PreemptsRunningComputationOnLowerPriority(t *testing.T) {
	running := newRoot(t, "running")
	contender := newRoot(t, "contender")
	state := newBlockingState()

	checkinDone := make(chan struct{}, 2)
	p := New(1,
		func(id cumid.ComputationId) (State, string, error) {
			if id.Equal(running) {
				return state, "g", nil
			}
			return newFakeState(), "g", nil
		},
		func(id cumid.ComputationId, created []cumid.ComputationId, err error) {
			checkinDone <- struct{}{}
		},
		nil,
	)
	p.Start()
	defer p.Stop()

	p.OnComputationStatusChanged(running, true, cumid.NewPriority(5))
	select {
	case <-state.started:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for computation to start")
	}

	// A higher-priority contender arrives, then the running computation's
	// own priority is reported as having dropped below it.
	p.OnComputationStatusChanged(contender, true, cumid.NewPriority(10))
	p.OnComputationStatusChanged(running, true, cumid.NewPriority(1))

	select {
	case <-state.interrupt:
	case <-time.After(time.Second):
		t.Fatal("expected the running computation to be interrupted")
	}
}

func TestPool_Stop_JoinsAfterInterruptingRunning(t *testing.T) {
	root := newRoot(t, "r1")
	state := newBlockingState()

	p := New(1,
		func(id cumid.ComputationId) (State, string, error) { return state, "g", nil },
		func(id cumid.ComputationId, created []cumid.ComputationId, err error) {},
		nil,
	)
	p.Start()

	p.OnComputationStatusChanged(root, true, cumid.NewPriority(1))
	select {
	case <-state.started:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for computation to start")
	}

	stopped := make(chan struct{})
	go func() {
		p.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return after interrupting the running computation")
	}
}
