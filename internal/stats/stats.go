package stats

import (
	"math"
	"sort"
	"sync/atomic"
	"time"
)

// TimeoutKind identifies which wait inside a cycle expired.
type TimeoutKind string

const (
	RequestTimeout    TimeoutKind = "RequestTimeout"
	FirstTokenTimeout TimeoutKind = "FirstTokenTimeout"
	CompletionTimeout TimeoutKind = "CompletionTimeout"
)

// ClientStats accumulates everything one simulated client observed during its
// run. Latencies and counters are written only by the owning client goroutine;
// TotalTokensReceived and ReconnectionCount are additionally written by the
// client's receive loop and are therefore atomics.
type ClientStats struct {
	ClientID  int
	SessionID string

	RequestLatencies []time.Duration
	TokenLatencies   []time.Duration

	CyclesCompleted int
	TotalRequests   int

	TotalTokensReceived atomic.Int64
	ReconnectionCount   atomic.Int64

	ConnectionErrors int
	TimeoutErrors    int
	OtherErrors      int
	TimeoutsByKind   map[TimeoutKind]int

	StartTime time.Time
	EndTime   time.Time
}

// NewClientStats creates an empty accumulator for one client.
func NewClientStats(clientID int) *ClientStats {
	return &ClientStats{
		ClientID:       clientID,
		TimeoutsByKind: make(map[TimeoutKind]int),
	}
}

// RecordTimeout classifies and counts one expired cycle wait.
func (s *ClientStats) RecordTimeout(kind TimeoutKind) {
	s.TimeoutErrors++
	s.TimeoutsByKind[kind]++
}

// TotalErrors sums every error category.
func (s *ClientStats) TotalErrors() int {
	return s.ConnectionErrors + s.TimeoutErrors + s.OtherErrors
}

// AggregatedStats is the read-only summary of a whole run, computed once from
// the full set of ClientStats. It is a pure function of its inputs.
type AggregatedStats struct {
	TotalClients int
	TotalCycles  int
	Duration     time.Duration

	RequestsPerSecond float64
	TokensPerSecond   float64
	CyclesPerSecond   float64

	RequestLatencyP50 float64
	RequestLatencyP95 float64
	RequestLatencyP99 float64
	RequestLatencyMax float64

	TokenLatencyP50 float64
	TokenLatencyP95 float64
	TokenLatencyP99 float64
	TokenLatencyMax float64

	TotalRequests        int
	TotalTokensReceived  int64
	SuccessfulConnections int
	FailedConnections    int
	TotalErrors          int
	TotalReconnections   int64
	TimeoutsByKind       map[TimeoutKind]int
}

// Aggregate reduces the per-client records into one AggregatedStats. Empty or
// all-failed input produces a zeroed summary, never an error. Duration is
// wall-clock from the earliest valid start to the latest end, so concurrent
// batches report true elapsed time rather than summed per-client time.
func Aggregate(clients []*ClientStats) *AggregatedStats {
	agg := &AggregatedStats{
		TotalClients:   len(clients),
		TimeoutsByKind: make(map[TimeoutKind]int),
	}
	if len(clients) == 0 {
		return agg
	}

	var requestLatencies, tokenLatencies []float64
	var start, end time.Time

	for _, c := range clients {
		for _, d := range c.RequestLatencies {
			requestLatencies = append(requestLatencies, durationMs(d))
		}
		for _, d := range c.TokenLatencies {
			tokenLatencies = append(tokenLatencies, durationMs(d))
		}

		agg.TotalCycles += c.CyclesCompleted
		agg.TotalRequests += c.TotalRequests
		agg.TotalTokensReceived += c.TotalTokensReceived.Load()
		agg.TotalReconnections += c.ReconnectionCount.Load()
		agg.TotalErrors += c.TotalErrors()
		for kind, n := range c.TimeoutsByKind {
			agg.TimeoutsByKind[kind] += n
		}

		if c.CyclesCompleted > 0 {
			agg.SuccessfulConnections++
		} else {
			agg.FailedConnections++
		}

		if !c.StartTime.IsZero() && (start.IsZero() || c.StartTime.Before(start)) {
			start = c.StartTime
		}
		if c.EndTime.After(end) {
			end = c.EndTime
		}
	}

	if !start.IsZero() && end.After(start) {
		agg.Duration = end.Sub(start)
	}
	if secs := agg.Duration.Seconds(); secs > 0 {
		agg.RequestsPerSecond = float64(agg.TotalRequests) / secs
		agg.TokensPerSecond = float64(agg.TotalTokensReceived) / secs
		agg.CyclesPerSecond = float64(agg.TotalCycles) / secs
	}

	sort.Float64s(requestLatencies)
	sort.Float64s(tokenLatencies)

	agg.RequestLatencyP50 = Percentile(requestLatencies, 50)
	agg.RequestLatencyP95 = Percentile(requestLatencies, 95)
	agg.RequestLatencyP99 = Percentile(requestLatencies, 99)
	agg.RequestLatencyMax = Percentile(requestLatencies, 100)

	agg.TokenLatencyP50 = Percentile(tokenLatencies, 50)
	agg.TokenLatencyP95 = Percentile(tokenLatencies, 95)
	agg.TokenLatencyP99 = Percentile(tokenLatencies, 99)
	agg.TokenLatencyMax = Percentile(tokenLatencies, 100)

	return agg
}

// Percentile calculates percentile p (0-100) of a sorted slice using linear
// interpolation between the two nearest ranks. Empty input yields 0.
func Percentile(sortedValues []float64, p float64) float64 {
	if len(sortedValues) == 0 {
		return 0
	}
	if p <= 0 {
		return sortedValues[0]
	}
	if p >= 100 {
		return sortedValues[len(sortedValues)-1]
	}

	index := (p / 100.0) * float64(len(sortedValues)-1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))

	if lower == upper {
		return sortedValues[lower]
	}

	weight := index - float64(lower)
	return sortedValues[lower]*(1-weight) + sortedValues[upper]*weight
}

// Average calculates the mean of a slice of float64.
func Average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func durationMs(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}
