package schema

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoPublisher means the gate has no transport to hand events to. This is a
// deployment configuration fault, not a business rejection, and callers must
// treat it as fatal.
var ErrNoPublisher = errors.New("no event publisher configured")

// MalformedEnvelopeError reports envelope fields that are absent or mistyped.
// Envelope structure is checked before any payload rule.
type MalformedEnvelopeError struct {
	Fields []string
}

func (e *MalformedEnvelopeError) Error() string {
	return fmt.Sprintf("Malformed envelope: missing or invalid fields: %s", strings.Join(e.Fields, ", "))
}

// UnregisteredEventTypeError means no schema is registered for the event's
// declared type and version.
type UnregisteredEventTypeError struct {
	EventType  string
	SchemaName string
}

func (e *UnregisteredEventTypeError) Error() string {
	return fmt.Sprintf("No schema registered for event type %q (schema %q)", e.EventType, e.SchemaName)
}

// SchemaViolationError wraps the field-level diagnostics produced by the
// compiled schema when a payload fails validation.
type SchemaViolationError struct {
	EventType  string
	SchemaName string
	Cause      error
}

func (e *SchemaViolationError) Error() string {
	return fmt.Sprintf("Schema violation: event %q failed %q: %v", e.EventType, e.SchemaName, e.Cause)
}

func (e *SchemaViolationError) Unwrap() error {
	return e.Cause
}
