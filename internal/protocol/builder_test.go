package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/tidwall/gjson"
)

func TestBuildAppliesDefaults(t *testing.T) {
	b := NewBuilder(StandardDefaults())

	req, err := b.Build("puts hello", Options{})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}

	if req.SecurityLevel != SecurityStandard {
		t.Errorf("security level = %q, want %q", req.SecurityLevel, SecurityStandard)
	}
	if req.OutputFormat != FormatPlain {
		t.Errorf("output format = %q, want %q", req.OutputFormat, FormatPlain)
	}
	if req.WorkingDir != "/tmp" {
		t.Errorf("working dir = %q, want /tmp", req.WorkingDir)
	}
	if req.SessionID != nil {
		t.Errorf("session id = %v, want nil", *req.SessionID)
	}
	if got := req.Env["TEST_VAR"]; got != "test_value_123" {
		t.Errorf("TEST_VAR = %q, want test_value_123", got)
	}
}

func TestBuildRejectsUnknownValues(t *testing.T) {
	b := NewBuilder(StandardDefaults())

	tests := []struct {
		name string
		opts Options
	}{
		{"unknown security level", Options{SecurityLevel: "Turbo"}},
		{"unknown output format", Options{OutputFormat: "binary"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.Build("puts hello", tt.opts)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			var invalid *InvalidConfigError
			if !errors.As(err, &invalid) {
				t.Fatalf("error type = %T, want *InvalidConfigError", err)
			}
			if len(invalid.Allowed) == 0 {
				t.Error("expected the error to list the allowed values")
			}
		})
	}
}

func TestBuildRejectsEmptyScript(t *testing.T) {
	b := NewBuilder(StandardDefaults())

	_, err := b.Build("", Options{})
	var invalid *InvalidConfigError
	if !errors.As(err, &invalid) {
		t.Fatalf("error = %v, want *InvalidConfigError", err)
	}
	if invalid.Field != "script" {
		t.Errorf("field = %q, want script", invalid.Field)
	}
}

func TestBuildCanonicalizesCase(t *testing.T) {
	b := NewBuilder(StandardDefaults())

	req, err := b.Build("puts hello", Options{SecurityLevel: "minimal", OutputFormat: "JSON"})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if req.SecurityLevel != SecurityMinimal {
		t.Errorf("security level = %q, want %q", req.SecurityLevel, SecurityMinimal)
	}
	if req.OutputFormat != FormatJSON {
		t.Errorf("output format = %q, want %q", req.OutputFormat, FormatJSON)
	}
}

func TestBuildSessionAffinity(t *testing.T) {
	b := NewBuilder(StandardDefaults())

	t.Run("absent by default", func(t *testing.T) {
		req, err := b.Build("puts hello", Options{})
		if err != nil {
			t.Fatalf("Build returned error: %v", err)
		}
		if req.SessionID != nil {
			t.Errorf("session id = %q, want nil", *req.SessionID)
		}
	})

	t.Run("explicit id carried through", func(t *testing.T) {
		id := "abc123"
		req, err := b.Build("puts hello", Options{SessionID: &id})
		if err != nil {
			t.Fatalf("Build returned error: %v", err)
		}
		if req.SessionID == nil || *req.SessionID != "abc123" {
			t.Errorf("session id = %v, want abc123", req.SessionID)
		}
	})

	t.Run("explicit empty id is not absence", func(t *testing.T) {
		empty := ""
		req, err := b.Build("puts hello", Options{SessionID: &empty})
		if err != nil {
			t.Fatalf("Build returned error: %v", err)
		}
		if req.SessionID == nil {
			t.Error("session id = nil, want pointer to empty string")
		}
	})
}

func TestBuildEnvOverrides(t *testing.T) {
	b := NewBuilder(StandardDefaults())

	req, err := b.Build("puts hello", Options{Env: map[string]string{
		"TEST_VAR": "overridden",
		"EXTRA":    "1",
	}})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if got := req.Env["TEST_VAR"]; got != "overridden" {
		t.Errorf("TEST_VAR = %q, want overridden", got)
	}
	if got := req.Env["EXTRA"]; got != "1" {
		t.Errorf("EXTRA = %q, want 1", got)
	}

	// A later build must not see the previous call's overrides.
	req2, err := b.Build("puts hello", Options{})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if got := req2.Env["TEST_VAR"]; got != "test_value_123" {
		t.Errorf("defaults mutated: TEST_VAR = %q, want test_value_123", got)
	}
	if _, ok := req2.Env["EXTRA"]; ok {
		t.Error("defaults mutated: EXTRA leaked into a later request")
	}
}

func TestEnvelopeWireFormat(t *testing.T) {
	b := NewBuilder(StandardDefaults())
	req, err := b.Build("set x 1", Options{})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}

	body, err := json.Marshal(NewEnvelope(7, req))
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}

	if got := gjson.GetBytes(body, "jsonrpc").String(); got != "2.0" {
		t.Errorf("jsonrpc = %q, want 2.0", got)
	}
	if got := gjson.GetBytes(body, "id").Int(); got != 7 {
		t.Errorf("id = %d, want 7", got)
	}
	if got := gjson.GetBytes(body, "method").String(); got != "tools/call" {
		t.Errorf("method = %q, want tools/call", got)
	}
	if got := gjson.GetBytes(body, "params.name").String(); got != "execute_eagle_script" {
		t.Errorf("params.name = %q, want execute_eagle_script", got)
	}
	if got := gjson.GetBytes(body, "params.arguments.script").String(); got != "set x 1" {
		t.Errorf("script = %q, want set x 1", got)
	}

	// The environment travels as a JSON document inside a string field.
	envField := gjson.GetBytes(body, "params.arguments.environmentVariablesJson")
	if envField.Type != gjson.String {
		t.Fatalf("environmentVariablesJson type = %v, want string", envField.Type)
	}
	if got := gjson.Get(envField.String(), "TEST_VAR").String(); got != "test_value_123" {
		t.Errorf("nested TEST_VAR = %q, want test_value_123", got)
	}

	if gjson.GetBytes(body, "params.arguments.sessionId").Exists() {
		t.Error("sessionId present on the wire without session affinity")
	}
}

func TestSessionIDWirePresence(t *testing.T) {
	b := NewBuilder(StandardDefaults())
	empty := ""
	req, err := b.Build("set x 1", Options{SessionID: &empty})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}

	body, err := json.Marshal(NewEnvelope(1, req))
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}

	field := gjson.GetBytes(body, "params.arguments.sessionId")
	if !field.Exists() {
		t.Fatal("explicit empty sessionId was dropped from the wire")
	}
	if field.String() != "" {
		t.Errorf("sessionId = %q, want empty string", field.String())
	}
}
