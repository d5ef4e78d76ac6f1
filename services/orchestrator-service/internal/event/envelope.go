// Package event defines the envelope every emitted fact is wrapped in.
//
// Events are immutable once created: corrections are new events with their
// own event_id, linked through causation_id.
package event

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Producer identifies this system on every envelope it emits.
const Producer = "railcore-orchestrator"

// Envelope is the fixed metadata wrapper common to all events. The JSON field
// names are the wire contract consumed by the downstream ledger replayer.
type Envelope struct {
	EventID       string         `json:"event_id"`
	EventType     string         `json:"event_type"`
	EventVersion  int            `json:"event_version"`
	OccurredAt    time.Time      `json:"occurred_at"`
	Producer      string         `json:"producer"`
	CorrelationID string         `json:"correlation_id"`
	CausationID   string         `json:"causation_id,omitempty"`
	EntityType    string         `json:"entity_type"`
	EntityID      string         `json:"entity_id"`
	Payload       map[string]any `json:"payload"`
}

// New stamps a fresh envelope for a domain fact. CorrelationID defaults to the
// new event id when the caller has no causal chain to continue.
func New(eventType string, version int, entityType, entityID, correlationID string, payload map[string]any) *Envelope {
	id := uuid.NewString()
	if correlationID == "" {
		correlationID = id
	}
	return &Envelope{
		EventID:       id,
		EventType:     eventType,
		EventVersion:  version,
		OccurredAt:    time.Now().UTC(),
		Producer:      Producer,
		CorrelationID: correlationID,
		EntityType:    entityType,
		EntityID:      entityID,
		Payload:       payload,
	}
}

// CheckFields reports the envelope fields that are absent or mistyped.
// An empty slice means the envelope is structurally sound.
func (e *Envelope) CheckFields() []string {
	var missing []string
	if strings.TrimSpace(e.EventID) == "" {
		missing = append(missing, "event_id")
	}
	if strings.TrimSpace(e.EventType) == "" {
		missing = append(missing, "event_type")
	}
	if e.EventVersion < 1 {
		missing = append(missing, "event_version")
	}
	if e.OccurredAt.IsZero() {
		missing = append(missing, "occurred_at")
	}
	if strings.TrimSpace(e.Producer) == "" {
		missing = append(missing, "producer")
	}
	if strings.TrimSpace(e.CorrelationID) == "" {
		missing = append(missing, "correlation_id")
	}
	if strings.TrimSpace(e.EntityType) == "" {
		missing = append(missing, "entity_type")
	}
	if strings.TrimSpace(e.EntityID) == "" {
		missing = append(missing, "entity_id")
	}
	if e.Payload == nil {
		missing = append(missing, "payload")
	}
	return missing
}

// Validate checks the envelope structure only. Payload rules belong to the
// schema registry and are enforced by the emission gate.
func (e *Envelope) Validate() error {
	if missing := e.CheckFields(); len(missing) > 0 {
		return fmt.Errorf("malformed envelope: missing or invalid fields: %s", strings.Join(missing, ", "))
	}
	return nil
}
