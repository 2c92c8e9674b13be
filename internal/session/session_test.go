package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/talonlabs/talonfire/internal/extract"
	"github.com/talonlabs/talonfire/internal/protocol"
	"github.com/talonlabs/talonfire/internal/transport"
)

// fakeSender replays a canned reply or failure and records the
// envelope it was handed.
type fakeSender struct {
	reply []byte
	err   error
	sent  []protocol.Envelope
}

func (f *fakeSender) Send(_ context.Context, env protocol.Envelope) ([]byte, error) {
	f.sent = append(f.sent, env)
	if f.err != nil {
		return nil, f.err
	}
	return f.reply, nil
}

func (f *fakeSender) Endpoint() string { return "http://stub/mcp" }

func serviceReply(t *testing.T, inner map[string]interface{}) []byte {
	t.Helper()
	text, err := json.Marshal(inner)
	if err != nil {
		t.Fatalf("marshal inner: %v", err)
	}
	outer := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"result": map[string]interface{}{
			"content": []map[string]interface{}{{"type": "text", "text": string(text)}},
		},
	}
	body, err := json.Marshal(outer)
	if err != nil {
		t.Fatalf("marshal outer: %v", err)
	}
	return body
}

func newBuilder() *protocol.Builder {
	return protocol.NewBuilder(protocol.StandardDefaults())
}

func TestRunReportsDecodedOutcome(t *testing.T) {
	sender := &fakeSender{reply: serviceReply(t, map[string]interface{}{
		"result":      "Script 0 completed in 9ms, sum=125250",
		"isSuccess":   true,
		"executionId": "exec-1",
		"sessionId":   "sess-1",
	})}
	s := New(newBuilder(), sender, nil)

	outcome, err := s.Run(context.Background(), 7, "set sum 125250", protocol.Options{})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if s.State() != StateReported {
		t.Errorf("state = %v, want reported", s.State())
	}
	if !outcome.Success {
		t.Error("outcome should be a success")
	}
	if outcome.ID != 7 {
		t.Errorf("id = %d, want 7", outcome.ID)
	}
	if outcome.Output != "Script 0 completed in 9ms, sum=125250" {
		t.Errorf("output = %q", outcome.Output)
	}
	if outcome.ExecutionID != "exec-1" || outcome.SessionID != "sess-1" {
		t.Errorf("ids = %q/%q", outcome.ExecutionID, outcome.SessionID)
	}
	if outcome.ResponseTime < 0 {
		t.Errorf("response time = %f, want >= 0", outcome.ResponseTime)
	}

	if len(sender.sent) != 1 {
		t.Fatalf("sent %d envelopes, want 1", len(sender.sent))
	}
	if sender.sent[0].ID != 7 {
		t.Errorf("envelope id = %d, want 7", sender.sent[0].ID)
	}
}

func TestRunScriptFailureIsNotHarnessFailure(t *testing.T) {
	// A denied operation is a legitimate decoded outcome: Success=false
	// with a nil error. The two must never be conflated.
	sender := &fakeSender{reply: serviceReply(t, map[string]interface{}{
		"result":    "security policy violation: exec denied at level Minimal",
		"isSuccess": false,
	})}
	s := New(newBuilder(), sender, nil)

	outcome, err := s.Run(context.Background(), 1, "exec rm", protocol.Options{SecurityLevel: "Minimal"})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if s.State() != StateReported {
		t.Errorf("state = %v, want reported", s.State())
	}
	if outcome.Success {
		t.Error("script-level failure must surface as Success=false")
	}
	if outcome.Err != "" {
		t.Errorf("err = %q, want empty for a decoded outcome", outcome.Err)
	}
}

func TestRunMissingVerdictCountsAsSuccess(t *testing.T) {
	sender := &fakeSender{reply: serviceReply(t, map[string]interface{}{"result": "ok"})}
	s := New(newBuilder(), sender, nil)

	outcome, err := s.Run(context.Background(), 1, "puts ok", protocol.Options{})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !outcome.Success {
		t.Error("absent isSuccess should default to success")
	}
}

func TestRunTransportFailure(t *testing.T) {
	terr := &transport.Error{Kind: transport.KindConnectionFailed, Err: errors.New("dial tcp: refused")}
	sender := &fakeSender{err: terr}
	s := New(newBuilder(), sender, nil)

	outcome, err := s.Run(context.Background(), 3, "puts hi", protocol.Options{})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var gotErr *transport.Error
	if !errors.As(err, &gotErr) {
		t.Fatalf("error type = %T, want *transport.Error", err)
	}
	if s.State() != StateFailed {
		t.Errorf("state = %v, want failed", s.State())
	}
	if outcome.Success {
		t.Error("transport failure must record Success=false")
	}
	if outcome.ResponseTime != -1 {
		t.Errorf("response time = %f, want -1 sentinel", outcome.ResponseTime)
	}
	if outcome.Err == "" {
		t.Error("outcome should carry the failure text")
	}
}

func TestRunExtractionFailureKeepsRawReply(t *testing.T) {
	raw := `{"jsonrpc": "2.0", "id": 1, "error": {"code": -32000, "message": "pool exhausted"}}`
	sender := &fakeSender{reply: []byte(raw)}
	s := New(newBuilder(), sender, nil)

	outcome, err := s.Run(context.Background(), 2, "puts hi", protocol.Options{})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var formatErr *extract.FormatError
	if !errors.As(err, &formatErr) {
		t.Fatalf("error type = %T, want *extract.FormatError", err)
	}
	if s.State() != StateFailed {
		t.Errorf("state = %v, want failed", s.State())
	}
	if outcome.Err != `{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"pool exhausted"}}` {
		t.Errorf("err = %q, want the compacted raw reply", outcome.Err)
	}
	// Extraction failures happen after a round trip, so the measurement
	// is real, not the sentinel.
	if outcome.ResponseTime < 0 {
		t.Errorf("response time = %f, want measured value", outcome.ResponseTime)
	}
}

func TestRunBuildFailureSkipsTransport(t *testing.T) {
	sender := &fakeSender{}
	s := New(newBuilder(), sender, nil)

	_, err := s.Run(context.Background(), 1, "puts hi", protocol.Options{SecurityLevel: "Root"})
	var invalid *protocol.InvalidConfigError
	if !errors.As(err, &invalid) {
		t.Fatalf("error = %v, want *protocol.InvalidConfigError", err)
	}
	if s.State() != StateFailed {
		t.Errorf("state = %v, want failed", s.State())
	}
	if len(sender.sent) != 0 {
		t.Error("no envelope may leave the harness on a build failure")
	}
}

func TestSessionStartsIdle(t *testing.T) {
	s := New(newBuilder(), &fakeSender{}, nil)
	if s.State() != StateIdle {
		t.Errorf("state = %v, want idle", s.State())
	}
}

// stateSpy reports the session state observed at the moment the
// envelope is handed over.
type stateSpy struct {
	fakeSender
	session *Session
	atSend  State
}

func (s *stateSpy) Send(ctx context.Context, env protocol.Envelope) ([]byte, error) {
	s.atSend = s.session.State()
	return s.fakeSender.Send(ctx, env)
}

func TestRunEntersSentAtTransportHandoff(t *testing.T) {
	spy := &stateSpy{fakeSender: fakeSender{reply: serviceReply(t, map[string]interface{}{"result": "ok"})}}
	s := New(newBuilder(), spy, nil)
	spy.session = s

	if _, err := s.Run(context.Background(), 1, "puts ok", protocol.Options{}); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if spy.atSend != StateSent {
		t.Errorf("state during transport handoff = %v, want sent", spy.atSend)
	}
}
