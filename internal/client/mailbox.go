package client

import (
	"context"
	"sync"

	"gateway-bench/internal/gateway"
)

// Mailbox bridges the push-driven stream reader to the cycle loop's pull-style
// waits. Tokens are buffered FIFO and handed to waiters FIFO, so arrival order
// is preserved no matter whether the consumer or the event got there first.
//
// Reset must be called at the start of every cycle: it discards buffered
// tokens and the completion signal so that a late arrival from a timed-out
// cycle can never satisfy the next cycle's wait.
type Mailbox struct {
	mu      sync.Mutex
	buf     []gateway.PushEvent
	waiters []chan gateway.PushEvent
	done    bool
	doneCh  chan struct{}
}

func NewMailbox() *Mailbox {
	return &Mailbox{doneCh: make(chan struct{})}
}

// Reset discards pending tokens and arms a fresh completion signal.
func (m *Mailbox) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.buf = m.buf[:0]
	m.done = false
	m.doneCh = make(chan struct{})
}

// Push delivers one stream event. A token goes to the oldest waiter if one is
// queued, otherwise it is buffered. A completion marker trips the current
// cycle's done signal. Never blocks.
func (m *Mailbox) Push(ev gateway.PushEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ev.Token != "" {
		token := gateway.PushEvent{Token: ev.Token}
		if len(m.waiters) > 0 {
			w := m.waiters[0]
			m.waiters = m.waiters[1:]
			w <- token
		} else {
			m.buf = append(m.buf, token)
		}
	}

	if ev.Done && !m.done {
		m.done = true
		close(m.doneCh)
	}
}

// WaitToken returns the next token event, consuming from the buffer without
// suspending when one is already pending. On context expiry the waiter
// deregisters itself; an event raced to it at the deadline is dropped, since
// the cycle is aborted and the buffer is reset before the next one.
func (m *Mailbox) WaitToken(ctx context.Context) (gateway.PushEvent, error) {
	m.mu.Lock()
	if len(m.buf) > 0 {
		ev := m.buf[0]
		m.buf = m.buf[1:]
		m.mu.Unlock()
		return ev, nil
	}
	w := make(chan gateway.PushEvent, 1)
	m.waiters = append(m.waiters, w)
	m.mu.Unlock()

	select {
	case ev := <-w:
		return ev, nil
	case <-ctx.Done():
		m.mu.Lock()
		for i, queued := range m.waiters {
			if queued == w {
				m.waiters = append(m.waiters[:i], m.waiters[i+1:]...)
				break
			}
		}
		m.mu.Unlock()
		return gateway.PushEvent{}, ctx.Err()
	}
}

// WaitDone blocks until the current cycle's completion marker has arrived.
func (m *Mailbox) WaitDone(ctx context.Context) error {
	m.mu.Lock()
	if m.done {
		m.mu.Unlock()
		return nil
	}
	doneCh := m.doneCh
	m.mu.Unlock()

	select {
	case <-doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
