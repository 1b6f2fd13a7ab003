package loadtest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"gateway-bench/internal/client"
	"gateway-bench/internal/config"
	"gateway-bench/internal/gateway"
)

// fakeStream delivers scripted events until closed.
type fakeStream struct {
	events    chan gateway.PushEvent
	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		events: make(chan gateway.PushEvent, 64),
		closed: make(chan struct{}),
	}
}

func (s *fakeStream) ReadEvent() (gateway.PushEvent, error) {
	select {
	case ev := <-s.events:
		return ev, nil
	case <-s.closed:
		return gateway.PushEvent{}, errors.New("stream closed")
	}
}

func (s *fakeStream) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

// scriptedGateway emulates the whole service: it issues sessions, answers run
// dispatches with scripted per-call latencies, and streams tokensPerCycle
// tokens plus a completion marker into the caller's session channel.
type scriptedGateway struct {
	mu             sync.Mutex
	latencies      []time.Duration
	nextLatency    int
	tokensPerCycle int
	sessionSeq     int
	streams        map[string]*fakeStream
	createCalls    int
	activeCreates  int
	maxConcurrent  int
}

func newScriptedGateway(tokensPerCycle int, latencies ...time.Duration) *scriptedGateway {
	return &scriptedGateway{
		latencies:      latencies,
		tokensPerCycle: tokensPerCycle,
		streams:        make(map[string]*fakeStream),
	}
}

func (g *scriptedGateway) CreateSession(ctx context.Context) (gateway.Session, error) {
	g.mu.Lock()
	g.sessionSeq++
	g.createCalls++
	g.activeCreates++
	if g.activeCreates > g.maxConcurrent {
		g.maxConcurrent = g.activeCreates
	}
	id := fmt.Sprintf("sess-%d", g.sessionSeq)
	g.mu.Unlock()

	// Hold the session-create call open briefly so concurrent admission is
	// observable.
	time.Sleep(10 * time.Millisecond)

	g.mu.Lock()
	g.activeCreates--
	g.mu.Unlock()

	return gateway.Session{ID: id, Token: id}, nil
}

func (g *scriptedGateway) CloseSession(ctx context.Context, sessionID string) error {
	return nil
}

func (g *scriptedGateway) Dial(ctx context.Context, token string) (client.Stream, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := newFakeStream()
	g.streams[token] = s
	return s, nil
}

func (g *scriptedGateway) Run(ctx context.Context, sessionID, question string) (string, error) {
	g.mu.Lock()
	var latency time.Duration
	if g.nextLatency < len(g.latencies) {
		latency = g.latencies[g.nextLatency]
		g.nextLatency++
	}
	stream := g.streams[sessionID]
	g.mu.Unlock()

	time.Sleep(latency)

	go func() {
		for i := 0; i < g.tokensPerCycle; i++ {
			select {
			case stream.events <- gateway.PushEvent{Token: "lorem"}:
			case <-stream.closed:
				return
			}
		}
		select {
		case stream.events <- gateway.PushEvent{Done: true}:
		case <-stream.closed:
		}
	}()

	return "full response", nil
}

func testConfig(clients, cycles, maxConcurrent int) *config.Config {
	return &config.Config{
		NumClients:         clients,
		CyclesPerClient:    cycles,
		MaxConcurrent:      maxConcurrent,
		HTTPURL:            "http://fake",
		WSURL:              "ws://fake",
		ConnectionTimeout:  5 * time.Second,
		RequestTimeout:     5 * time.Second,
		ReconnectAttempts:  3,
		ReconnectBaseDelay: 5 * time.Millisecond,
		ReconnectMaxDelay:  20 * time.Millisecond,
		ProgressInterval:   25 * time.Millisecond,
	}
}

func TestRunnerEndToEnd(t *testing.T) {
	gw := newScriptedGateway(10,
		10*time.Millisecond, 20*time.Millisecond, 30*time.Millisecond,
		40*time.Millisecond, 50*time.Millisecond, 60*time.Millisecond)

	runner := NewRunner(testConfig(3, 2, 3), gw, gw, zaptest.NewLogger(t))
	agg := runner.Run(context.Background())

	require.NotNil(t, agg)
	assert.Equal(t, 3, agg.TotalClients)
	assert.Equal(t, 6, agg.TotalCycles)
	assert.Equal(t, 6, agg.TotalRequests)
	assert.Equal(t, int64(60), agg.TotalTokensReceived)
	assert.Equal(t, 3, agg.SuccessfulConnections)
	assert.Equal(t, 0, agg.FailedConnections)
	assert.Equal(t, 0, agg.TotalErrors)
	assert.Greater(t, agg.Duration, time.Duration(0))
	assert.Greater(t, agg.RequestsPerSecond, 0.0)

	// Sleeps are lower bounds, so the interpolated percentiles sit at or
	// above the scripted schedule and stay ordered.
	assert.GreaterOrEqual(t, agg.RequestLatencyP50, 25.0)
	assert.GreaterOrEqual(t, agg.RequestLatencyMax, 60.0)
	assert.LessOrEqual(t, agg.RequestLatencyP50, agg.RequestLatencyP95)
	assert.LessOrEqual(t, agg.RequestLatencyP95, agg.RequestLatencyP99)
	assert.LessOrEqual(t, agg.RequestLatencyP99, agg.RequestLatencyMax)

	// First-token latency includes the request leg, so it can never be lower.
	assert.GreaterOrEqual(t, agg.TokenLatencyP50, agg.RequestLatencyP50)

	assert.Equal(t, int64(6), runner.Counters().Cycles.Load())
	assert.Equal(t, int64(60), runner.Counters().Tokens.Load())
	assert.Equal(t, int64(0), runner.Counters().ActiveClients.Load())
}

func TestRunnerBoundsConcurrency(t *testing.T) {
	gw := newScriptedGateway(1)

	runner := NewRunner(testConfig(6, 1, 2), gw, gw, zaptest.NewLogger(t))
	agg := runner.Run(context.Background())

	assert.Equal(t, 6, agg.TotalClients)
	assert.Equal(t, 6, agg.TotalCycles)
	assert.LessOrEqual(t, gw.maxConcurrent, 2)
}

func TestRunnerSurvivesFailingClients(t *testing.T) {
	gw := &failingGateway{}

	runner := NewRunner(testConfig(4, 2, 4), gw, gw, zaptest.NewLogger(t))
	agg := runner.Run(context.Background())

	// Every client failed, the batch still settles into a report.
	assert.Equal(t, 4, agg.TotalClients)
	assert.Equal(t, 0, agg.TotalCycles)
	assert.Equal(t, 4, agg.FailedConnections)
	assert.Equal(t, 4, agg.TotalErrors)
	assert.Equal(t, 0.0, agg.RequestLatencyP99)
}

func TestRunnerCancelledBeforeStart(t *testing.T) {
	gw := newScriptedGateway(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := NewRunner(testConfig(5, 1, 2), gw, gw, zaptest.NewLogger(t))
	agg := runner.Run(ctx)

	require.NotNil(t, agg)
	assert.Equal(t, 0, agg.TotalCycles)
}

// failingGateway refuses every session.
type failingGateway struct{}

func (f *failingGateway) CreateSession(ctx context.Context) (gateway.Session, error) {
	return gateway.Session{}, errors.New("session service unavailable")
}

func (f *failingGateway) CloseSession(ctx context.Context, sessionID string) error {
	return nil
}

func (f *failingGateway) Run(ctx context.Context, sessionID, question string) (string, error) {
	return "", errors.New("run service unavailable")
}

func (f *failingGateway) Dial(ctx context.Context, token string) (client.Stream, error) {
	return nil, errors.New("no stream either")
}
