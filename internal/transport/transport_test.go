package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/talonlabs/talonfire/internal/protocol"
)

func testEnvelope(t *testing.T) protocol.Envelope {
	t.Helper()
	b := protocol.NewBuilder(protocol.StandardDefaults())
	req, err := b.Build("set x 1", protocol.Options{})
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	return protocol.NewEnvelope(1, req)
}

func TestSendPostsEnvelopeAndReturnsBody(t *testing.T) {
	var gotMethod, gotContentType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"content":[{"type":"text","text":"{}"}]}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second)
	body, err := client.Send(context.Background(), testEnvelope(t))
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	if gotMethod != http.MethodPost {
		t.Errorf("method = %q, want POST", gotMethod)
	}
	if gotContentType != "application/json" {
		t.Errorf("content type = %q, want application/json", gotContentType)
	}
	if got := gjson.GetBytes(gotBody, "method").String(); got != "tools/call" {
		t.Errorf("posted method = %q, want tools/call", got)
	}
	if !json.Valid(body) {
		t.Error("returned body is not JSON")
	}
}

func TestSendHTTPStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream interpreter pool unavailable"))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second)
	_, err := client.Send(context.Background(), testEnvelope(t))
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var terr *Error
	if !errors.As(err, &terr) {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if terr.Kind != KindHTTPStatus {
		t.Errorf("kind = %v, want %v", terr.Kind, KindHTTPStatus)
	}
	if terr.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", terr.StatusCode)
	}
	if terr.Body != "upstream interpreter pool unavailable" {
		t.Errorf("body = %q, raw body should survive for diagnostics", terr.Body)
	}
}

func TestSendMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>definitely not json</html>"))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second)
	_, err := client.Send(context.Background(), testEnvelope(t))

	var terr *Error
	if !errors.As(err, &terr) {
		t.Fatalf("error = %v, want *Error", err)
	}
	if terr.Kind != KindMalformedResponse {
		t.Errorf("kind = %v, want %v", terr.Kind, KindMalformedResponse)
	}
}

func TestSendConnectionFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore

	client := NewClient(srv.URL, 5*time.Second)
	_, err := client.Send(context.Background(), testEnvelope(t))

	var terr *Error
	if !errors.As(err, &terr) {
		t.Fatalf("error = %v, want *Error", err)
	}
	if terr.Kind != KindConnectionFailed {
		t.Errorf("kind = %v, want %v", terr.Kind, KindConnectionFailed)
	}
	if terr.Unwrap() == nil {
		t.Error("connection failure should keep its cause")
	}
}

func TestSendTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer func() {
		close(release)
		srv.Close()
	}()

	client := NewClient(srv.URL, 50*time.Millisecond)
	_, err := client.Send(context.Background(), testEnvelope(t))

	var terr *Error
	if !errors.As(err, &terr) {
		t.Fatalf("error = %v, want *Error", err)
	}
	if terr.Kind != KindTimeout {
		t.Errorf("kind = %v, want %v", terr.Kind, KindTimeout)
	}
}

func TestSendContextDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer func() {
		close(release)
		srv.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	client := NewClient(srv.URL, 0)
	_, err := client.Send(ctx, testEnvelope(t))

	var terr *Error
	if !errors.As(err, &terr) {
		t.Fatalf("error = %v, want *Error", err)
	}
	if terr.Kind != KindTimeout {
		t.Errorf("kind = %v, want %v", terr.Kind, KindTimeout)
	}
}

func TestWireCounters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second)
	for i := 0; i < 3; i++ {
		if _, err := client.Send(context.Background(), testEnvelope(t)); err != nil {
			t.Fatalf("Send returned error: %v", err)
		}
	}

	wire := client.Wire()
	if wire.Requests != 3 {
		t.Errorf("requests = %d, want 3", wire.Requests)
	}
	if wire.BytesSent == 0 || wire.BytesReceived == 0 {
		t.Errorf("byte counters = %d/%d, want non-zero", wire.BytesSent, wire.BytesReceived)
	}
}

func TestSendPropagationToggle(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	defer otel.SetTextMapPropagator(prev)

	var gotTraceparent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTraceparent = r.Header.Get("traceparent")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x01},
		SpanID:     trace.SpanID{0x02},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), spanCtx)

	client := NewClient(srv.URL, 5*time.Second)
	if _, err := client.Send(ctx, testEnvelope(t)); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if gotTraceparent != "" {
		t.Errorf("traceparent = %q, headers must stay clean with propagation off", gotTraceparent)
	}

	client.EnablePropagation(true)
	if _, err := client.Send(ctx, testEnvelope(t)); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if gotTraceparent == "" {
		t.Error("traceparent missing with propagation on")
	}
}

func TestErrorKindStrings(t *testing.T) {
	kinds := map[ErrorKind]string{
		KindTimeout:           "timeout",
		KindConnectionFailed:  "connection failed",
		KindHTTPStatus:        "http status",
		KindMalformedResponse: "malformed response",
	}
	for kind, want := range kinds {
		if got := kind.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", kind, got, want)
		}
	}
}
