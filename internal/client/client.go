package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"gateway-bench/internal/gateway"
	"gateway-bench/internal/stats"
)

// SessionAPI is the gateway's REST surface as one simulated user needs it.
type SessionAPI interface {
	CreateSession(ctx context.Context) (gateway.Session, error)
	CloseSession(ctx context.Context, sessionID string) error
	Run(ctx context.Context, sessionID, question string) (string, error)
}

// StreamDialer establishes the push connection for a session token.
type StreamDialer interface {
	Dial(ctx context.Context, token string) (Stream, error)
}

// DialerFunc adapts a dial function to the StreamDialer interface.
type DialerFunc func(ctx context.Context, token string) (Stream, error)

func (f DialerFunc) Dial(ctx context.Context, token string) (Stream, error) {
	return f(ctx, token)
}

// Stream is one established push connection. ReadEvent blocks until the next
// event; Close unblocks it.
type Stream interface {
	ReadEvent() (gateway.PushEvent, error)
	Close() error
}

// Options are the per-client run parameters.
type Options struct {
	Cycles         int
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	Retry          BackoffPolicy
}

// Client simulates one end user: it acquires a session, holds a stream
// connection, runs its cycles sequentially, and accumulates everything it
// observed into a ClientStats record. Run never fails: every error is
// recorded, not returned.
type Client struct {
	id       int
	opts     Options
	api      SessionAPI
	dialer   StreamDialer
	log      *zap.Logger
	counters *stats.Counters

	stats   *stats.ClientStats
	mailbox *Mailbox
	session gateway.Session

	streamMu sync.Mutex
	stream   Stream

	state    atomic.Int32
	closing  atomic.Bool
	closeCh  chan struct{}
	recvDone chan struct{}
}

func New(id int, opts Options, api SessionAPI, dialer StreamDialer, counters *stats.Counters, log *zap.Logger) *Client {
	return &Client{
		id:       id,
		opts:     opts,
		api:      api,
		dialer:   dialer,
		log:      log.With(zap.Int("client_id", id)),
		counters: counters,
		stats:    stats.NewClientStats(id),
		mailbox:  NewMailbox(),
		closeCh:  make(chan struct{}),
	}
}

// State reports the connection lifecycle state.
func (c *Client) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

func (c *Client) setState(s ConnectionState) {
	c.state.Store(int32(s))
}

// Run drives the full client lifecycle and returns its stats record. A failed
// session acquisition or initial connect records a connection error and
// returns with zero cycles; a failed cycle only skips that cycle.
func (c *Client) Run(ctx context.Context) *stats.ClientStats {
	c.stats.StartTime = time.Now()
	defer func() { c.stats.EndTime = time.Now() }()

	if err := c.connect(ctx); err != nil {
		c.log.Error("client connection failed", zap.Error(err))
		c.stats.ConnectionErrors++
		c.counters.Errors.Add(1)
		if c.session.ID != "" {
			// The session was issued before the stream dial failed; still
			// release the server-side resource.
			c.releaseSession()
		}
		return c.stats
	}
	c.log.Info("client connected", zap.String("session_id", c.session.ID))

	c.recvDone = make(chan struct{})
	go c.receiveLoop(ctx)

	for cycle := 1; cycle <= c.opts.Cycles; cycle++ {
		if ctx.Err() != nil {
			c.log.Info("run cancelled, stopping cycles", zap.Int("cycle", cycle))
			break
		}
		question := fmt.Sprintf("Question %d from client %d", cycle, c.id)
		if _, err := c.runCycle(ctx, question); err != nil {
			c.log.Warn("cycle failed", zap.Int("cycle", cycle), zap.Error(err))
		} else {
			c.log.Debug("cycle completed", zap.Int("cycle", cycle))
		}
	}

	c.disconnect()
	return c.stats
}

func (c *Client) connect(ctx context.Context) error {
	c.setState(Connecting)

	sessCtx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	session, err := c.api.CreateSession(sessCtx)
	cancel()
	if err != nil {
		c.setState(Disconnected)
		return err
	}
	c.session = session
	c.stats.SessionID = session.ID

	dialCtx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	stream, err := c.dialer.Dial(dialCtx, session.Token)
	cancel()
	if err != nil {
		c.setState(Disconnected)
		return err
	}
	c.setStream(stream)
	c.setState(Connected)
	return nil
}

// runCycle executes one request/stream/completion exchange. Each of its three
// waits is bounded: request dispatch by its own timeout, the first token by
// the same budget measured from cycle start (its latency includes the request
// leg), completion by a fresh timeout. A losing leg abandons the cycle; the
// in-flight exchange is left to finish into a mailbox the next cycle resets.
func (c *Client) runCycle(ctx context.Context, question string) (string, error) {
	c.mailbox.Reset()
	cycleStart := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	response, err := c.api.Run(reqCtx, c.session.ID, question)
	cancel()
	if err != nil {
		c.recordCycleError(ctx, err, stats.RequestTimeout)
		return "", fmt.Errorf("request dispatch: %w", err)
	}
	c.stats.RequestLatencies = append(c.stats.RequestLatencies, time.Since(cycleStart))
	c.stats.TotalRequests++

	tokenCtx, cancel := context.WithDeadline(ctx, cycleStart.Add(c.opts.RequestTimeout))
	_, err = c.mailbox.WaitToken(tokenCtx)
	cancel()
	if err != nil {
		c.recordCycleError(ctx, err, stats.FirstTokenTimeout)
		return "", fmt.Errorf("await first token: %w", err)
	}
	c.stats.TokenLatencies = append(c.stats.TokenLatencies, time.Since(cycleStart))

	doneCtx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	err = c.mailbox.WaitDone(doneCtx)
	cancel()
	if err != nil {
		c.recordCycleError(ctx, err, stats.CompletionTimeout)
		return "", fmt.Errorf("await completion: %w", err)
	}

	c.stats.CyclesCompleted++
	c.counters.Cycles.Add(1)
	return response, nil
}

// recordCycleError classifies one failed cycle leg. A deadline expiry counts
// as the leg's timeout kind; a cancelled run is not an error of the gateway's
// making and goes unrecorded.
func (c *Client) recordCycleError(ctx context.Context, err error, kind stats.TimeoutKind) {
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		c.stats.RecordTimeout(kind)
	} else {
		c.stats.OtherErrors++
	}
	c.counters.Errors.Add(1)
}

// receiveLoop pumps stream events into the mailbox for the whole run. On an
// unexpected stream error it reconnects with backoff; a cycle in flight at
// that moment is left to its own timeout rather than aborted early. When the
// retry budget is exhausted the loop exits and the client stays disconnected:
// its remaining cycles will time out, which the stats record as such.
func (c *Client) receiveLoop(ctx context.Context) {
	defer close(c.recvDone)

	for {
		stream := c.currentStream()
		ev, err := stream.ReadEvent()
		if err != nil {
			if c.closing.Load() || ctx.Err() != nil {
				return
			}
			c.log.Warn("stream connection lost", zap.Error(err))
			c.setState(Reconnecting)
			if !c.reconnect(ctx) {
				return
			}
			continue
		}

		if ev.Token != "" {
			c.stats.TotalTokensReceived.Add(1)
			c.counters.Tokens.Add(1)
		}
		c.mailbox.Push(ev)
	}
}

func (c *Client) reconnect(ctx context.Context) bool {
	for attempt := 1; attempt <= c.opts.Retry.MaxAttempts; attempt++ {
		if c.closing.Load() {
			return false
		}
		if attempt > 1 {
			select {
			case <-time.After(c.opts.Retry.Delay(attempt - 2)):
			case <-c.closeCh:
				return false
			case <-ctx.Done():
				return false
			}
		}

		c.log.Info("reconnecting stream", zap.Int("attempt", attempt))
		dialCtx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
		stream, err := c.dialer.Dial(dialCtx, c.session.Token)
		cancel()
		if err != nil {
			c.log.Warn("reconnection attempt failed",
				zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		if c.closing.Load() {
			stream.Close()
			return false
		}

		c.setStream(stream)
		c.setState(Connected)
		c.stats.ReconnectionCount.Add(1)
		c.counters.Reconnects.Add(1)
		c.log.Info("reconnected", zap.Int("attempt", attempt))
		return true
	}

	c.log.Error("reconnection attempts exhausted",
		zap.Int("attempts", c.opts.Retry.MaxAttempts))
	return false
}

// disconnect releases the session and closes the stream, tolerating failures
// on the way out.
func (c *Client) disconnect() {
	c.closing.Store(true)
	close(c.closeCh)
	c.setState(Closed)

	c.releaseSession()

	if stream := c.currentStream(); stream != nil {
		_ = stream.Close()
	}
	if c.recvDone != nil {
		<-c.recvDone
	}
}

// releaseSession closes the server-side session, best effort. Uses a
// background context so shutdown still works after the run context is
// cancelled.
func (c *Client) releaseSession() {
	closeCtx, cancel := context.WithTimeout(context.Background(), c.opts.ConnectTimeout)
	defer cancel()
	if err := c.api.CloseSession(closeCtx, c.session.ID); err != nil {
		c.log.Warn("failed to close session",
			zap.String("session_id", c.session.ID), zap.Error(err))
	}
}

func (c *Client) setStream(s Stream) {
	c.streamMu.Lock()
	c.stream = s
	c.streamMu.Unlock()
}

func (c *Client) currentStream() Stream {
	c.streamMu.Lock()
	defer c.streamMu.Unlock()
	return c.stream
}
