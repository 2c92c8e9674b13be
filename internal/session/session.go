// Package session runs one script execution end-to-end: build the
// request, send it, unwrap the reply, and flatten everything into an
// immutable Outcome.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/talonlabs/talonfire/internal/extract"
	"github.com/talonlabs/talonfire/internal/protocol"
	"github.com/talonlabs/talonfire/internal/tracing"
)

// State tracks where a session is in its lifecycle. Reported and
// Failed are terminal.
type State int

const (
	StateIdle State = iota
	StateSent
	StateDecoded
	StateReported
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSent:
		return "sent"
	case StateDecoded:
		return "decoded"
	case StateReported:
		return "reported"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Outcome is the flattened result of one execution attempt. Success
// reflects the script-level verdict; a nil error from Run with
// Success=false means the script itself failed, which is not a harness
// error. ResponseTime is the transport round trip in seconds, or -1
// when the call never produced a response.
type Outcome struct {
	ID           int     `json:"id"`
	Success      bool    `json:"success"`
	Output       string  `json:"output,omitempty"`
	ExecutionID  string  `json:"execution_id,omitempty"`
	SessionID    string  `json:"session_id,omitempty"`
	Err          string  `json:"error,omitempty"`
	ResponseTime float64 `json:"response_time_seconds"`
}

// Sender is the transport seam; satisfied by *transport.Client.
type Sender interface {
	Send(ctx context.Context, env protocol.Envelope) ([]byte, error)
	Endpoint() string
}

// Session orchestrates a single execution. It is single-use: Run moves
// it from Idle to a terminal state exactly once.
type Session struct {
	builder *protocol.Builder
	sender  Sender
	tracer  trace.Tracer
	state   State
}

// New creates an idle session. The tracer may be nil.
func New(builder *protocol.Builder, sender Sender, tracer trace.Tracer) *Session {
	return &Session{builder: builder, sender: sender, tracer: tracer}
}

// State returns the session's current lifecycle state.
func (s *Session) State() State { return s.state }

// Run executes one script. The returned error is non-nil only when the
// harness itself could not complete the call (build, transport, or
// extraction failure); in that case the Outcome still carries the
// failure as data for aggregation.
func (s *Session) Run(ctx context.Context, id int, script string, opts protocol.Options) (Outcome, error) {
	req, err := s.builder.Build(script, opts)
	if err != nil {
		s.state = StateFailed
		return Outcome{ID: id, Err: err.Error(), ResponseTime: -1}, err
	}

	if s.tracer != nil {
		var span trace.Span
		ctx, span = tracing.StartExecuteSpan(ctx, s.tracer, s.sender.Endpoint(), id)
		defer func() {
			tracing.EndSpan(span, err, attribute.String("talonfire.session.state", s.state.String()))
		}()
	}

	// Sent marks the handoff to the transport, not the round trip
	// completing.
	s.state = StateSent
	start := time.Now()
	body, err := s.sender.Send(ctx, protocol.NewEnvelope(id, req))
	elapsed := time.Since(start).Seconds()
	if err != nil {
		s.state = StateFailed
		return Outcome{ID: id, Err: err.Error(), ResponseTime: -1}, err
	}

	payload, err := extract.Unwrap(body)
	if err != nil {
		s.state = StateFailed
		return Outcome{ID: id, Err: compact(body), ResponseTime: elapsed}, err
	}
	s.state = StateDecoded

	outcome := Outcome{
		ID:           id,
		Success:      payload.IsSuccess == nil || *payload.IsSuccess,
		Output:       payload.Result,
		ExecutionID:  payload.ExecutionID,
		SessionID:    payload.SessionID,
		ResponseTime: elapsed,
	}
	s.state = StateReported
	return outcome, nil
}

// compact squeezes the raw reply for the Err field so diagnostics stay
// one line.
func compact(body []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, body); err != nil {
		return string(body)
	}
	return buf.String()
}
