// Package protocol builds the JSON-RPC envelopes understood by the
// script-execution service.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// Version is the JSON-RPC revision the service speaks.
	Version = "2.0"
	// Method is the single RPC method the harness invokes.
	Method = "tools/call"
	// ToolName identifies the execute tool on the service.
	ToolName = "execute_eagle_script"
)

// SecurityLevel is the execution privilege tier requested for a script.
type SecurityLevel string

const (
	SecurityMinimal  SecurityLevel = "Minimal"
	SecurityStandard SecurityLevel = "Standard"
	SecurityElevated SecurityLevel = "Elevated"
	SecurityMaximum  SecurityLevel = "Maximum"
)

// SecurityLevels lists every level the service recognizes, in ascending
// privilege order.
var SecurityLevels = []SecurityLevel{SecurityMinimal, SecurityStandard, SecurityElevated, SecurityMaximum}

// ParseSecurityLevel matches s against the known levels ignoring case
// and returns the canonical wire spelling.
func ParseSecurityLevel(s string) (SecurityLevel, error) {
	for _, level := range SecurityLevels {
		if strings.EqualFold(strings.TrimSpace(s), string(level)) {
			return level, nil
		}
	}
	return "", &InvalidConfigError{Field: "securityLevel", Value: s, Allowed: levelNames()}
}

// OutputFormat selects how the service renders script output.
type OutputFormat string

const (
	FormatPlain OutputFormat = "plain"
	FormatJSON  OutputFormat = "json"
	FormatXML   OutputFormat = "xml"
	FormatYAML  OutputFormat = "yaml"
	FormatTable OutputFormat = "table"
	FormatCSV   OutputFormat = "csv"
)

// OutputFormats lists every format the service recognizes.
var OutputFormats = []OutputFormat{FormatPlain, FormatJSON, FormatXML, FormatYAML, FormatTable, FormatCSV}

// ParseOutputFormat matches s against the known formats ignoring case
// and returns the canonical wire spelling.
func ParseOutputFormat(s string) (OutputFormat, error) {
	for _, format := range OutputFormats {
		if strings.EqualFold(strings.TrimSpace(s), string(format)) {
			return format, nil
		}
	}
	return "", &InvalidConfigError{Field: "outputFormat", Value: s, Allowed: formatNames()}
}

func levelNames() []string {
	names := make([]string, len(SecurityLevels))
	for i, level := range SecurityLevels {
		names[i] = string(level)
	}
	return names
}

func formatNames() []string {
	names := make([]string, len(OutputFormats))
	for i, format := range OutputFormats {
		names[i] = string(format)
	}
	return names
}

// InvalidConfigError reports a request option outside the values the
// service accepts.
type InvalidConfigError struct {
	Field   string
	Value   string
	Allowed []string
}

func (e *InvalidConfigError) Error() string {
	if len(e.Allowed) == 0 {
		return fmt.Sprintf("invalid %s: %q", e.Field, e.Value)
	}
	return fmt.Sprintf("invalid %s %q (expected one of: %s)", e.Field, e.Value, strings.Join(e.Allowed, ", "))
}

// Request is the argument payload for one execute call. SessionID nil
// means no session affinity was requested, which the service treats
// differently from an explicit empty id.
type Request struct {
	Script        string
	SecurityLevel SecurityLevel
	OutputFormat  OutputFormat
	SessionID     *string
	Env           map[string]string
	WorkingDir    string
}

// wireRequest is the marshaled shape. The service takes the environment
// map as a JSON document nested inside a string field.
type wireRequest struct {
	Script        string        `json:"script"`
	SecurityLevel SecurityLevel `json:"securityLevel"`
	OutputFormat  OutputFormat  `json:"outputFormat"`
	SessionID     *string       `json:"sessionId,omitempty"`
	EnvJSON       string        `json:"environmentVariablesJson,omitempty"`
	WorkingDir    string        `json:"workingDirectory,omitempty"`
}

func (r Request) MarshalJSON() ([]byte, error) {
	wire := wireRequest{
		Script:        r.Script,
		SecurityLevel: r.SecurityLevel,
		OutputFormat:  r.OutputFormat,
		SessionID:     r.SessionID,
		WorkingDir:    r.WorkingDir,
	}
	if len(r.Env) > 0 {
		encoded, err := json.Marshal(r.Env)
		if err != nil {
			return nil, fmt.Errorf("encode environment variables: %w", err)
		}
		wire.EnvJSON = string(encoded)
	}
	return json.Marshal(wire)
}

// Envelope is one JSON-RPC tools/call message.
type Envelope struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  Params `json:"params"`
}

// Params names the tool and carries its arguments.
type Params struct {
	Name      string  `json:"name"`
	Arguments Request `json:"arguments"`
}

// NewEnvelope wraps req in a tools/call envelope. The id only
// correlates a call with its log line; the service assigns it no
// ordering meaning.
func NewEnvelope(id int, req Request) Envelope {
	return Envelope{
		JSONRPC: Version,
		ID:      id,
		Method:  Method,
		Params:  Params{Name: ToolName, Arguments: req},
	}
}
