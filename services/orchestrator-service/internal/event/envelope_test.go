package event

import (
	"strings"
	"testing"
	"time"
)

func validEnvelope() *Envelope {
	return New("PaymentInitiated", 1, "payment", "pay-1", "corr-1", map[string]any{"ok": true})
}

func TestNewStampsIdentity(t *testing.T) {
	env := validEnvelope()
	if env.EventID == "" {
		t.Fatal("expected a fresh event_id")
	}
	if env.Producer != Producer {
		t.Fatalf("expected producer %q, got %q", Producer, env.Producer)
	}
	if env.CorrelationID != "corr-1" {
		t.Fatalf("expected supplied correlation id, got %q", env.CorrelationID)
	}
	if env.OccurredAt.IsZero() {
		t.Fatal("expected occurred_at to be stamped")
	}
}

func TestNewDefaultsCorrelationToEventID(t *testing.T) {
	env := New("PaymentInitiated", 1, "payment", "pay-1", "", map[string]any{})
	if env.CorrelationID != env.EventID {
		t.Fatalf("expected correlation id to default to event id, got %q vs %q", env.CorrelationID, env.EventID)
	}
}

func TestValidateReportsMissingFields(t *testing.T) {
	env := &Envelope{
		EventType:    "PaymentInitiated",
		EventVersion: 0,
		OccurredAt:   time.Time{},
	}
	err := env.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, field := range []string{"event_id", "event_version", "occurred_at", "producer", "correlation_id", "entity_type", "entity_id", "payload"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("expected error to mention %q, got %q", field, err.Error())
		}
	}
}

func TestValidatePassesCompleteEnvelope(t *testing.T) {
	if err := validEnvelope().Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}
