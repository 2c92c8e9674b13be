// Package extract unwraps the service's double-encoded reply envelope.
//
// The outer JSON-RPC envelope carries result.content[0].text, a string
// field that is itself a JSON document holding the actual execution
// fields. Both decode stages are reproduced here because the service's
// contract depends on them.
package extract

import (
	"github.com/tidwall/gjson"
)

// Payload is the flattened inner document of one execute reply.
// IsSuccess nil means the service did not report a verdict; ExecutionID
// and SessionID are empty when the service omitted them.
type Payload struct {
	Result      string
	IsSuccess   *bool
	ExecutionID string
	SessionID   string
}

// FormatError reports a reply that does not carry a usable result. One
// kind covers every shape problem: the wire gives no way to tell a
// missing result from a deliberately empty one. Raw keeps the full
// reply for diagnosis.
type FormatError struct {
	Raw []byte
}

func (e *FormatError) Error() string { return "unexpected response format" }

// Unwrap performs the two-stage decode and flattens the inner fields.
func Unwrap(body []byte) (*Payload, error) {
	outer := gjson.GetBytes(body, "result")
	if !outer.Exists() || emptyValue(outer) {
		return nil, &FormatError{Raw: body}
	}

	text := gjson.GetBytes(body, "result.content.0.text")
	if text.Type != gjson.String || text.String() == "" {
		return nil, &FormatError{Raw: body}
	}

	inner := gjson.Parse(text.String())
	if !inner.IsObject() {
		return nil, &FormatError{Raw: body}
	}
	resultField := inner.Get("result")
	if !resultField.Exists() {
		return nil, &FormatError{Raw: body}
	}

	payload := &Payload{Result: resultField.String()}
	if v := inner.Get("isSuccess"); v.Exists() {
		verdict := v.Bool()
		payload.IsSuccess = &verdict
	}
	payload.ExecutionID = inner.Get("executionId").String()
	payload.SessionID = inner.Get("sessionId").String()
	return payload, nil
}

// emptyValue mirrors the falsiness rules the service's other clients
// apply to the outer result: null, false, zero, empty string, empty
// object and empty array all count as "no result".
func emptyValue(v gjson.Result) bool {
	switch v.Type {
	case gjson.Null, gjson.False:
		return true
	case gjson.String:
		return v.String() == ""
	case gjson.Number:
		return v.Float() == 0
	case gjson.JSON:
		if v.IsObject() {
			return len(v.Map()) == 0
		}
		if v.IsArray() {
			return len(v.Array()) == 0
		}
	}
	return false
}
