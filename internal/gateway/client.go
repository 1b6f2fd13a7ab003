package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Client talks to the gateway's REST surface: session lifecycle and request
// dispatch. One Client is shared safely by many simulated users; each request
// carries its own context deadline.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

// NewClient creates a REST client against baseURL (no trailing slash). The
// timeout is a hard per-request cap on top of whatever context each call gets.
func NewClient(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

// CreateSession asks the gateway for a fresh session identity and stream token.
func (c *Client) CreateSession(ctx context.Context) (Session, error) {
	var resp createSessionResponse
	if err := c.do(ctx, http.MethodPost, "/api/sessions/create", nil, &resp); err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	if resp.SessionID == "" || resp.Token == "" {
		return Session{}, fmt.Errorf("create session: incomplete response")
	}
	return Session{ID: resp.SessionID, Token: resp.Token}, nil
}

// CloseSession releases the server-side session resource. Best effort; callers
// log failures rather than escalating them.
func (c *Client) CloseSession(ctx context.Context, sessionID string) error {
	if err := c.do(ctx, http.MethodDelete, "/api/sessions/"+sessionID, nil, nil); err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	return nil
}

// Run dispatches one question and returns the full response text. The token
// stream for the same exchange arrives separately on the session's channel.
func (c *Client) Run(ctx context.Context, sessionID, question string) (string, error) {
	req := runRequest{SessionID: sessionID, Question: question}
	var resp runResponse
	if err := c.do(ctx, http.MethodPost, "/api/run", req, &resp); err != nil {
		return "", fmt.Errorf("run request: %w", err)
	}
	return resp.Response, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Debug("gateway returned non-2xx",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode))
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
