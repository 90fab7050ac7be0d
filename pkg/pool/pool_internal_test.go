package pool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/connpool/internal/testutil"
	"github.com/ajitpratap0/connpool/pkg/config"
)

type result struct {
	lease *Lease
	err   error
}

func waitAsync(ctx context.Context, p *Pool) <-chan result {
	ch := make(chan result, 1)
	go func() {
		l, err := p.Acquire(ctx)
		ch <- result{l, err}
	}()
	return ch
}

// A waiter that is signalled and cancelled at the same moment must not
// swallow the wakeup: either it takes the connection or the next waiter does.
func TestCancelledWaiterPassesSignalOn(t *testing.T) {
	p, err := New(config.PoolConfig{Name: "handoff", Capacity: 1}, testutil.NewFakeConnector(),
		WithLogger(testutil.TestLogger(t)))
	require.NoError(t, err)

	held, err := p.Acquire(context.Background())
	require.NoError(t, err)

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()
	ctxB, cancelB := context.WithCancel(context.Background())
	defer cancelB()

	a := waitAsync(ctxA, p)
	testutil.AssertEventually(t, func() bool { return p.Stats().Waiting == 1 }, time.Second, "first waiter not queued")
	b := waitAsync(ctxB, p)
	testutil.AssertEventually(t, func() bool { return p.Stats().Waiting == 2 }, time.Second, "second waiter not queued")

	// Release by hand so the cancellation lands while the lock is held.
	conn := held.state.take()
	held.cleanup.Stop()
	p.mu.Lock()
	p.leased--
	p.idle = append(p.idle, conn)
	p.signalLocked()
	cancelA()
	p.mu.Unlock()

	ra := testutil.Receive(t, a, time.Second, "first waiter")
	var winner *Lease
	if ra.err == nil {
		winner = ra.lease
		testutil.AssertBlocked(t, b, 50*time.Millisecond, "second waiter has nothing to take")
		cancelB()
		rb := testutil.Receive(t, b, time.Second, "second waiter")
		assert.ErrorIs(t, rb.err, context.Canceled)
	} else {
		assert.ErrorIs(t, ra.err, context.Canceled)
		rb := testutil.Receive(t, b, time.Second, "second waiter should inherit the wakeup")
		require.NoError(t, rb.err)
		winner = rb.lease
	}

	stats := p.Stats()
	assert.Equal(t, 1, stats.InUse)
	assert.Equal(t, 0, stats.Idle)
	assert.Equal(t, 0, stats.Waiting)

	require.NoError(t, winner.Release())
	require.NoError(t, p.Close(context.Background()))
}

func TestSignalLockedWakesOldestWaiter(t *testing.T) {
	p := &Pool{}
	first, second := make(chan struct{}), make(chan struct{})
	p.waiters = []chan struct{}{first, second}

	p.signalLocked()

	select {
	case <-first:
	default:
		t.Fatal("oldest waiter was not signalled")
	}
	select {
	case <-second:
		t.Fatal("only one waiter should be signalled")
	default:
	}
	assert.Len(t, p.waiters, 1)

	assert.True(t, p.removeWaiterLocked(second))
	assert.False(t, p.removeWaiterLocked(second))
	p.signalLocked()
}
