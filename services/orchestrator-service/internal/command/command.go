// Package command orchestrates the pipeline: reserve the command_id, run the
// domain collaborator's validate/execute, commit on success, and turn every
// failure into exactly one CommandRejected fact.
package command

import (
	"github.com/paystream-au/railcore/services/orchestrator-service/internal/rejection"
)

// Command is a caller's request to change state. It may be accepted or
// rejected; it never returns state directly. Attributes carries the
// command-specific fields the domain collaborator interprets.
type Command struct {
	ID            string         `json:"command_id"`
	Type          string         `json:"command_type"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	EntityType    string         `json:"entity_type"`
	EntityID      string         `json:"entity_id"`
	Attributes    map[string]any `json:"attributes"`
}

func (c *Command) info() rejection.CommandInfo {
	return rejection.CommandInfo{
		CommandID:     c.ID,
		CommandType:   c.Type,
		CorrelationID: c.CorrelationID,
		EntityType:    c.EntityType,
		EntityID:      c.EntityID,
	}
}

// Result is the structured outcome of Handle. Exactly one of EventID or
// RejectionEventID is set: success carries the domain event id and never a
// reason; failure carries the rejection event id and reason, never EventID.
type Result struct {
	Success          bool             `json:"success"`
	EventID          string           `json:"event_id,omitempty"`
	RejectionEventID string           `json:"rejection_event_id,omitempty"`
	Reason           string           `json:"reason,omitempty"`
	ReasonCode       rejection.Reason `json:"reason_code,omitempty"`
}

func successResult(eventID string) *Result {
	return &Result{Success: true, EventID: eventID}
}

func rejectedResult(rejectionEventID string, code rejection.Reason, reason string) *Result {
	return &Result{
		Success:          false,
		RejectionEventID: rejectionEventID,
		Reason:           reason,
		ReasonCode:       code,
	}
}
