package metrics

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/talonlabs/talonfire/internal/extract"
	"github.com/talonlabs/talonfire/internal/protocol"
	"github.com/talonlabs/talonfire/internal/transport"
)

// ErrScriptFailure marks a call whose reply decoded cleanly but whose
// script reported failure. It keeps the collector's success counting in
// step with the outcome-based run summary.
var ErrScriptFailure = errors.New("script reported failure")

// Label buckets an error under a stable human-friendly name. The
// harness's own error types carry their own labels; anything else is
// humanized from its Go type name.
func Label(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrScriptFailure) {
		return "Script reported failure"
	}

	var terr *transport.Error
	if errors.As(err, &terr) {
		switch terr.Kind {
		case transport.KindTimeout:
			return "Request timeout"
		case transport.KindConnectionFailed:
			return "Connection failed"
		case transport.KindHTTPStatus:
			return fmt.Sprintf("HTTP %d response", terr.StatusCode)
		case transport.KindMalformedResponse:
			return "Malformed response body"
		}
	}

	var formatErr *extract.FormatError
	if errors.As(err, &formatErr) {
		return "Unexpected response format"
	}

	var invalidErr *protocol.InvalidConfigError
	if errors.As(err, &invalidErr) {
		return "Invalid request configuration"
	}

	return FriendlyErrorName(fmt.Sprintf("%T", err))
}

var friendlyAliases = map[string]string{
	"*url.Error":                     "Request URL error",
	"url.Error":                      "Request URL error",
	"*context.deadlineExceededError": "Context deadline exceeded",
	"context.deadlineExceededError":  "Context deadline exceeded",
	"*context.cancelCtx":             "Context cancelled",
}

// FriendlyErrorName returns a human-friendly label for a Go error type.
func FriendlyErrorName(typeName string) string {
	cleaned := strings.TrimSpace(typeName)
	if cleaned == "" {
		return "Unknown error"
	}

	if alias, ok := friendlyAliases[cleaned]; ok {
		return alias
	}

	cleaned = strings.TrimPrefix(cleaned, "*")
	if alias, ok := friendlyAliases[cleaned]; ok {
		return alias
	}
	if idx := strings.LastIndex(cleaned, "/"); idx != -1 {
		cleaned = cleaned[idx+1:]
	}

	pkg := ""
	name := cleaned
	if idx := strings.Index(name, "."); idx != -1 {
		pkg = name[:idx]
		name = name[idx+1:]
	}

	pretty := humanizeTypeName(name)
	if pretty == "" {
		pretty = name
	}

	if strings.ToLower(pkg) == "context" && strings.Contains(strings.ToLower(pretty), "deadline") {
		return "Context deadline exceeded"
	}

	if pkg != "" && pkg != "main" {
		return fmt.Sprintf("%s (%s)", pretty, pkg)
	}
	return pretty
}

func humanizeTypeName(name string) string {
	if name == "" {
		return ""
	}

	var words []string
	var current []rune
	runes := []rune(name)

	appendWord := func() {
		if len(current) == 0 {
			return
		}
		word := string(current)
		if isAllUpper(word) {
			words = append(words, word)
		} else {
			words = append(words, capitalize(word))
		}
		current = current[:0]
	}

	for i, r := range runes {
		if i > 0 {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsUpper(r) && (unicode.IsLower(prev) || (unicode.IsUpper(prev) && nextLower)) {
				appendWord()
			} else if unicode.IsDigit(r) && !unicode.IsDigit(prev) {
				appendWord()
			}
		}
		current = append(current, r)
	}
	appendWord()

	return strings.Join(words, " ")
}

func isAllUpper(s string) bool {
	hasLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			hasLetter = true
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return hasLetter
}

func capitalize(s string) string {
	if s == "" {
		return ""
	}
	lower := strings.ToLower(s)
	runes := []rune(lower)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
