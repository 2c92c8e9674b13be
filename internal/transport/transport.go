// Package transport performs the single-shot HTTP round trips to the
// execution service.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/talonlabs/talonfire/internal/protocol"
	"github.com/talonlabs/talonfire/internal/tracing"
)

const (
	maxBodyReadSize   = 1024 * 1024
	maxErrorBodyBytes = 1024
)

// ErrorKind classifies a failed round trip.
type ErrorKind int

const (
	KindTimeout ErrorKind = iota
	KindConnectionFailed
	KindHTTPStatus
	KindMalformedResponse
)

func (k ErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindConnectionFailed:
		return "connection failed"
	case KindHTTPStatus:
		return "http status"
	case KindMalformedResponse:
		return "malformed response"
	}
	return "unknown"
}

// Error is a failed round trip. StatusCode and Body are populated for
// KindHTTPStatus; Err carries the underlying cause when there is one.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindHTTPStatus:
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
	case KindTimeout:
		return fmt.Sprintf("request timed out: %v", e.Err)
	case KindConnectionFailed:
		return fmt.Sprintf("connection failed: %v", e.Err)
	case KindMalformedResponse:
		return "malformed response body"
	}
	return "transport error"
}

func (e *Error) Unwrap() error { return e.Err }

// Client sends envelopes to one fixed endpoint. The underlying
// http.Client is shared and safe for concurrent use; a zero timeout
// blocks until the transport itself gives up.
type Client struct {
	endpoint  string
	http      *http.Client
	propagate bool
	wire      wireStats
}

// NewClient creates a Client for the given endpoint. The timeout is
// fixed at construction; Send adds no per-call timeout logic on top.
func NewClient(endpoint string, timeout time.Duration) *Client {
	if timeout < 0 {
		timeout = 0
	}

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          256,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout, Transport: transport},
	}
}

// Endpoint returns the target URL the client posts to.
func (c *Client) Endpoint() string { return c.endpoint }

// EnablePropagation controls whether Send injects W3C trace context
// into outgoing request headers. Off by default; set it before the
// first Send.
func (c *Client) EnablePropagation(on bool) { c.propagate = on }

// Send serializes env, posts it, and returns the raw reply body.
// Exactly one network round trip, no retry; every failure surfaces as a
// *Error.
func (c *Client) Send(ctx context.Context, env protocol.Envelope) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	payload, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &Error{Kind: KindConnectionFailed, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.propagate {
		tracing.InjectHTTPHeaders(ctx, req.Header)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classify(err)
	}
	defer resp.Body.Close()

	// Body read errors are folded into the taxonomy below; an error
	// status still reports with whatever body arrived.
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyReadSize))
	if readErr != nil {
		body = nil
	}
	c.wire.record(int64(len(payload)), int64(len(body)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := body
		if len(snippet) > maxErrorBodyBytes {
			snippet = snippet[:maxErrorBodyBytes]
		}
		return nil, &Error{
			Kind:       KindHTTPStatus,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}
	if readErr != nil {
		return nil, &Error{Kind: KindConnectionFailed, Err: readErr}
	}
	if !gjson.ValidBytes(body) {
		return nil, &Error{Kind: KindMalformedResponse}
	}
	return body, nil
}

// classify sorts a round-trip failure into the error taxonomy.
func classify(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Err: err}
	}
	return &Error{Kind: KindConnectionFailed, Err: err}
}
