package client

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gateway-bench/internal/gateway"
)

func TestMailboxBuffersUntilConsumed(t *testing.T) {
	m := NewMailbox()
	m.Push(gateway.PushEvent{Token: "a"})
	m.Push(gateway.PushEvent{Token: "b"})
	m.Push(gateway.PushEvent{Token: "c"})

	// Buffered events are returned immediately, in arrival order.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for _, want := range []string{"a", "b", "c"} {
		ev, err := m.WaitToken(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, ev.Token)
	}
}

func TestMailboxWakesBlockedWaiter(t *testing.T) {
	m := NewMailbox()

	got := make(chan gateway.PushEvent, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		ev, err := m.WaitToken(ctx)
		require.NoError(t, err)
		got <- ev
	}()

	// Give the waiter time to register before pushing.
	time.Sleep(20 * time.Millisecond)
	m.Push(gateway.PushEvent{Token: "wake"})

	select {
	case ev := <-got:
		assert.Equal(t, "wake", ev.Token)
	case <-time.After(time.Second):
		t.Fatal("waiter was never woken")
	}
}

func TestMailboxWaitTokenTimesOut(t *testing.T) {
	m := NewMailbox()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := m.WaitToken(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The timed-out waiter must have deregistered: a later push is buffered,
	// not lost into a dead channel.
	m.Push(gateway.PushEvent{Token: "later"})
	ev, err := m.WaitToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "later", ev.Token)
}

func TestMailboxWaitDone(t *testing.T) {
	m := NewMailbox()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, m.WaitDone(ctx), context.DeadlineExceeded)

	m.Push(gateway.PushEvent{Done: true})
	assert.NoError(t, m.WaitDone(context.Background()))

	// Already-set completion resolves without suspending.
	assert.NoError(t, m.WaitDone(context.Background()))
}

func TestMailboxTokenAndDoneInOneEvent(t *testing.T) {
	m := NewMailbox()
	m.Push(gateway.PushEvent{Token: "last", Done: true})

	ev, err := m.WaitToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "last", ev.Token)
	assert.NoError(t, m.WaitDone(context.Background()))
}

func TestMailboxResetDiscardsStaleEvents(t *testing.T) {
	m := NewMailbox()

	// Cycle k times out waiting for its first token.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	_, err := m.WaitToken(ctx)
	cancel()
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// The stream events arrive late, after the deadline but before cycle k+1.
	m.Push(gateway.PushEvent{Token: "stale"})
	m.Push(gateway.PushEvent{Done: true})

	// Cycle k+1 starts with a reset; the stale token and completion signal
	// must not satisfy its waits.
	m.Reset()

	waitCtx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = m.WaitToken(waitCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	doneCtx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, m.WaitDone(doneCtx), context.DeadlineExceeded)
}

func TestMailboxResetThenFreshEvents(t *testing.T) {
	m := NewMailbox()
	m.Push(gateway.PushEvent{Token: "old"})
	m.Reset()

	m.Push(gateway.PushEvent{Token: "new"})
	m.Push(gateway.PushEvent{Done: true})

	ev, err := m.WaitToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new", ev.Token)
	assert.NoError(t, m.WaitDone(context.Background()))
}
