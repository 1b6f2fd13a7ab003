package stats

import "sync/atomic"

// Counters are the live running totals every client increments while the test
// is in flight. The progress ticker and the metrics exporter read them; the
// final report comes from the per-client records instead.
type Counters struct {
	Cycles        atomic.Int64
	Tokens        atomic.Int64
	Errors        atomic.Int64
	Reconnects    atomic.Int64
	ActiveClients atomic.Int64
}
