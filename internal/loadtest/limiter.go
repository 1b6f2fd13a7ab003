package loadtest

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Limiter is the admission gate capping how many clients run at once. Waiters
// are admitted in FIFO order as capacity frees up, so no queued client
// starves.
type Limiter struct {
	sem *semaphore.Weighted
}

// NewLimiter creates a Limiter admitting up to capacity clients.
func NewLimiter(capacity int) *Limiter {
	return &Limiter{sem: semaphore.NewWeighted(int64(capacity))}
}

// Acquire blocks until a slot is free or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	return l.sem.Acquire(ctx, 1)
}

// Release frees one slot, admitting the longest-waiting client if any.
func (l *Limiter) Release() {
	l.sem.Release(1)
}
