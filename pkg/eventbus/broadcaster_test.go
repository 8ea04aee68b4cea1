package eventbus

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublish_DeliversToLiveSubscribers(t *testing.T) {
	b := New[int](InlineScheduler{})

	var got []int
	sub := NewSubscriber(func(e int) {
		got = append(got, e)
	})
	b.Subscribe(sub)

	b.Publish(1)
	b.Publish(2)

	assert.Equal(t, []int{1, 2}, got)
	assert.Equal(t, 1, b.SubscriberCount())
}

func TestPublish_FansOutToMultipleSubscribers(t *testing.T) {
	b := New[string](InlineScheduler{})

	var mu sync.Mutex
	count := 0
	subs := make([]*Subscriber[string], 0, 3)
	for i := 0; i < 3; i++ {
		s := NewSubscriber(func(string) {
			mu.Lock()
			count++
			mu.Unlock()
		})
		subs = append(subs, s)
		b.Subscribe(s)
	}

	b.Publish("hello")
	assert.Equal(t, 3, count)
	_ = subs
}

func TestSuspendResume_GatesDelivery(t *testing.T) {
	b := New[int](InlineScheduler{})

	delivered := 0
	sub := NewSubscriber(func(int) { delivered++ })
	b.Subscribe(sub)

	b.Suspend()
	b.Publish(1)
	assert.Equal(t, 0, delivered)
	assert.True(t, b.IsSuspended())

	b.Resume()
	b.Publish(2)
	assert.Equal(t, 1, delivered)
	assert.False(t, b.IsSuspended())
}

func TestGoroutineScheduler_PendingDrainsToZero(t *testing.T) {
	b := New[int](GoroutineScheduler{})

	var wg sync.WaitGroup
	wg.Add(1)
	sub := NewSubscriber(func(int) { wg.Done() })
	b.Subscribe(sub)

	b.Publish(42)
	wg.Wait()

	// Pending should settle at zero eventually; poll briefly since the
	// decrement happens after the callback returns on another goroutine.
	require.Eventually(t, func() bool {
		return b.Pending() == 0
	}, time.Second, 10*time.Millisecond)
}
