package client

import "time"

// BackoffPolicy bounds a retry loop: at most MaxAttempts tries, with the pause
// before each retry doubling from Base up to Cap.
type BackoffPolicy struct {
	MaxAttempts int
	Base        time.Duration
	Cap         time.Duration
}

// DefaultBackoff mirrors the reconnect schedule the gateway tolerates well:
// three attempts at 1s, 2s, capped at 10s.
var DefaultBackoff = BackoffPolicy{
	MaxAttempts: 3,
	Base:        time.Second,
	Cap:         10 * time.Second,
}

// Delay returns the pause before retry number attempt (0-based, so attempt 0
// is the pause after the first failure).
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if p.Base <= 0 {
		return 0
	}
	d := p.Base << uint(attempt)
	if d <= 0 || d > p.Cap {
		return p.Cap
	}
	return d
}
