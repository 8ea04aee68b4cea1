package scheduler

import (
	"context"
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

// countingExecutor completes immediately and records every id it ran.
type countingExecutor struct {
	ran chan cumid.ComputationId
}

func (e *countingExecutor) Run(ctx context.Context, id cumid.ComputationId, guid string, interrupted <-chan struct{}) ([]cumid.ComputationId, error) {
	e.ran <- id
	return nil, nil
}

func TestEngine_ConvergeLoopFeedsPrioritizedRootsIntoPool(t *testing.T) {
	exec := &countingExecutor{ran: make(chan cumid.ComputationId, 1)}
	e := New(Config{WorkerPoolSize: 1, ConvergeEvery: 5 * time.Millisecond}, nil, cumid.NewMachineId("m1", []byte("salt")), exec, nil)

	client := cumid.NewCumulusClientId("client", []byte("salt"))
	root := newRoot(t, "r1")
	e.Priorities.MarkComputationLocal(root)
	e.Priorities.SetClientPriority(client, root, cumid.NewPriority(5))

	e.Start()
	defer e.Stop()

	select {
	case got := <-exec.ran:
		assert.True(t, got.Equal(root))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for converge loop to schedule the root")
	}
}

func TestEngine_CheckinReportsCompletionToCpuAssignment(t *testing.T) {
	exec := &countingExecutor{ran: make(chan cumid.ComputationId, 1)}
	m := cumid.NewMachineId("m1", []byte("salt"))
	e := New(Config{WorkerPoolSize: 1, ConvergeEvery: 5 * time.Millisecond}, nil, m, exec, nil)

	client := cumid.NewCumulusClientId("client", []byte("salt"))
	root := newRoot(t, "r1")
	e.Priorities.MarkComputationLocal(root)
	e.Priorities.SetClientPriority(client, root, cumid.NewPriority(5))

	e.Start()
	defer e.Stop()

	select {
	case <-exec.ran:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for computation to run")
	}

	require.Eventually(t, func() bool {
		e.CpuAssign.Update()
		a, ok := e.CpuAssign.Assignment(root)
		return ok && a.TotalCpus == 0
	}, 2*time.Second, 10*time.Millisecond)
}
