// Package rejection turns every negative command outcome into a structured,
// schema-valid CommandRejected fact. Nothing here is thrown to the command's
// external caller; a rejection is an auditable event like any other.
package rejection

import "errors"

// Reason is the closed set of rejection reason codes. Classification is by
// explicit code on DomainError, never by matching error message text.
type Reason string

const (
	ReasonDuplicateCommand       Reason = "DUPLICATE_COMMAND"
	ReasonInvalidSchema          Reason = "INVALID_SCHEMA"
	ReasonBusinessRuleViolation  Reason = "BUSINESS_RULE_VIOLATION"
	ReasonInsufficientFunds      Reason = "INSUFFICIENT_FUNDS"
	ReasonInvalidStateTransition Reason = "INVALID_STATE_TRANSITION"
	ReasonAuthorizationFailed    Reason = "AUTHORIZATION_FAILED"
	ReasonRateLimitExceeded      Reason = "RATE_LIMIT_EXCEEDED"
)

// Reasons lists every registered reason code.
func Reasons() []Reason {
	return []Reason{
		ReasonDuplicateCommand,
		ReasonInvalidSchema,
		ReasonBusinessRuleViolation,
		ReasonInsufficientFunds,
		ReasonInvalidStateTransition,
		ReasonAuthorizationFailed,
		ReasonRateLimitExceeded,
	}
}

func (r Reason) Valid() bool {
	switch r {
	case ReasonDuplicateCommand, ReasonInvalidSchema, ReasonBusinessRuleViolation,
		ReasonInsufficientFunds, ReasonInvalidStateTransition,
		ReasonAuthorizationFailed, ReasonRateLimitExceeded:
		return true
	}
	return false
}

// DomainError is the discriminated error domain collaborators raise from
// validate/execute. The reason code makes handler classification exhaustive;
// Metadata carries reason-specific structured context (e.g. required and
// available amounts).
type DomainError struct {
	Reason   Reason
	Message  string
	Metadata map[string]any
}

func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError builds a DomainError with an explicit reason code. An
// unknown code degrades to BUSINESS_RULE_VIOLATION rather than leaving the
// taxonomy.
func NewDomainError(reason Reason, message string, metadata map[string]any) *DomainError {
	if !reason.Valid() {
		reason = ReasonBusinessRuleViolation
	}
	return &DomainError{Reason: reason, Message: message, Metadata: metadata}
}

func BusinessRule(message string) *DomainError {
	return &DomainError{Reason: ReasonBusinessRuleViolation, Message: message}
}

func InsufficientFunds(message string, required, available float64, currency string) *DomainError {
	return &DomainError{
		Reason:  ReasonInsufficientFunds,
		Message: message,
		Metadata: map[string]any{
			"required_amount":  required,
			"available_amount": available,
			"currency":         currency,
		},
	}
}

func InvalidStateTransition(message, fromState, toState string) *DomainError {
	return &DomainError{
		Reason:  ReasonInvalidStateTransition,
		Message: message,
		Metadata: map[string]any{
			"from_state": fromState,
			"to_state":   toState,
		},
	}
}

func AuthorizationFailed(message string) *DomainError {
	return &DomainError{Reason: ReasonAuthorizationFailed, Message: message}
}

func InvalidCommand(message string) *DomainError {
	return &DomainError{Reason: ReasonInvalidSchema, Message: message}
}

// Classify maps any error from validate/execute onto the taxonomy. A typed
// DomainError keeps its code; anything else is a business rule violation.
func Classify(err error) *DomainError {
	var derr *DomainError
	if errors.As(err, &derr) {
		return derr
	}
	return &DomainError{Reason: ReasonBusinessRuleViolation, Message: err.Error()}
}
