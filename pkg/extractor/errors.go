package extractor

import (
	"fmt"
	"strings"
)

// FieldError is one schema violation.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError reports a well-formed JSON response whose shape does not
// match the minimal question schema.
type ValidationError struct {
	Problems []FieldError
}

func (e *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString("minimal question batch invalid")
	for i, p := range e.Problems {
		if i == 0 {
			sb.WriteString(": ")
		} else {
			sb.WriteString("; ")
		}
		sb.WriteString(p.Field)
		sb.WriteString(" ")
		sb.WriteString(p.Message)
	}
	return sb.String()
}

// DecodeError reports a response that is not JSON at all.
type DecodeError struct {
	Content string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("response is not valid JSON: %s", e.Content)
}

// TransportError wraps a failed provider call: network, timeout, non-2xx
// status or an unrecognised response body.
type TransportError struct {
	Provider string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s provider: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// truncateForError truncates content for error messages.
func truncateForError(s string) string {
	if len(s) <= 200 {
		return s
	}
	return s[:200] + "..."
}
