package rejection

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/paystream-au/railcore/services/orchestrator-service/internal/publisher"
	"github.com/paystream-au/railcore/services/orchestrator-service/internal/schema"
)

func newTestEmitter(t *testing.T) (*Emitter, *publisher.Memory) {
	t.Helper()
	registry, err := schema.NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	pub := publisher.NewMemory()
	gate := schema.NewGate(registry, pub, slog.New(slog.NewTextHandler(io.Discard, nil)))
	emitter := NewEmitter(gate, slog.New(slog.NewTextHandler(io.Discard, nil))).WithClock(func() time.Time {
		return time.Date(2026, 8, 23, 9, 30, 0, 0, time.UTC)
	})
	return emitter, pub
}

func testCommand() CommandInfo {
	return CommandInfo{
		CommandID:     "cmd-100",
		CommandType:   "InitiatePayment",
		CorrelationID: "corr-100",
		EntityType:    "payment",
		EntityID:      "pay-100",
	}
}

func TestEveryReasonProducesSchemaValidFact(t *testing.T) {
	emitter, pub := newTestEmitter(t)
	ctx := context.Background()

	for _, reason := range Reasons() {
		eventID, err := emitter.Reject(ctx, testCommand(), reason, "rejected for "+string(reason), nil)
		if err != nil {
			t.Fatalf("Reject(%s) failed: %v", reason, err)
		}
		if eventID == "" {
			t.Fatalf("Reject(%s) returned empty event id", reason)
		}
	}

	events := pub.Events()
	if len(events) != len(Reasons()) {
		t.Fatalf("expected %d emitted facts, got %d", len(Reasons()), len(events))
	}
	for _, env := range events {
		if env.EventType != "CommandRejected" {
			t.Errorf("expected CommandRejected, got %q", env.EventType)
		}
		if env.Payload["command_id"] != "cmd-100" {
			t.Errorf("unexpected command_id %v", env.Payload["command_id"])
		}
	}
}

func TestRejectKeepsSuppliedCorrelationID(t *testing.T) {
	emitter, pub := newTestEmitter(t)

	if _, err := emitter.DuplicateCommand(context.Background(), testCommand()); err != nil {
		t.Fatalf("DuplicateCommand failed: %v", err)
	}
	env := pub.Last()
	if env.CorrelationID != "corr-100" {
		t.Fatalf("expected correlation id corr-100, got %q", env.CorrelationID)
	}
	if env.Payload["correlation_id"] != "corr-100" {
		t.Fatalf("expected payload correlation id corr-100, got %v", env.Payload["correlation_id"])
	}
}

func TestRejectDefaultsCorrelationToFreshEventID(t *testing.T) {
	emitter, pub := newTestEmitter(t)

	cmd := testCommand()
	cmd.CorrelationID = ""
	eventID, err := emitter.DuplicateCommand(context.Background(), cmd)
	if err != nil {
		t.Fatalf("DuplicateCommand failed: %v", err)
	}
	// Known caveat: with no supplied correlation id a new causal chain starts
	// at the rejection event itself.
	env := pub.Last()
	if env.CorrelationID != eventID {
		t.Fatalf("expected correlation id to default to event id %q, got %q", eventID, env.CorrelationID)
	}
}

func TestInsufficientFundsCarriesStructuredMetadata(t *testing.T) {
	emitter, pub := newTestEmitter(t)

	derr := InsufficientFunds("Insufficient funds for settlement", 500.00, 120.50, "AUD")
	if _, err := emitter.FromDomainError(context.Background(), testCommand(), derr); err != nil {
		t.Fatalf("FromDomainError failed: %v", err)
	}
	env := pub.Last()
	if env.Payload["reason_code"] != string(ReasonInsufficientFunds) {
		t.Fatalf("expected INSUFFICIENT_FUNDS, got %v", env.Payload["reason_code"])
	}
	metadata, ok := env.Payload["metadata"].(map[string]any)
	if !ok {
		t.Fatalf("expected structured metadata, got %T", env.Payload["metadata"])
	}
	if metadata["required_amount"] != 500.00 || metadata["available_amount"] != 120.50 {
		t.Fatalf("unexpected metadata %v", metadata)
	}
}

func TestRejectRefusesUnknownReason(t *testing.T) {
	emitter, _ := newTestEmitter(t)
	if _, err := emitter.Reject(context.Background(), testCommand(), Reason("SOLAR_FLARE"), "nope", nil); err == nil {
		t.Fatal("expected error for unknown reason code")
	}
}

func TestGateFailurePropagatesUnrecovered(t *testing.T) {
	emitter, pub := newTestEmitter(t)
	pub.FailWith(errors.New("broker unavailable"))

	if _, err := emitter.DuplicateCommand(context.Background(), testCommand()); err == nil {
		t.Fatal("expected gate failure to propagate")
	}
}

func TestClassify(t *testing.T) {
	derr := Classify(InvalidStateTransition("cannot settle a returned payment", "returned", "settled"))
	if derr.Reason != ReasonInvalidStateTransition {
		t.Fatalf("expected INVALID_STATE_TRANSITION, got %s", derr.Reason)
	}

	plain := Classify(errors.New("Business rule violation: limit exceeded"))
	if plain.Reason != ReasonBusinessRuleViolation {
		t.Fatalf("expected BUSINESS_RULE_VIOLATION fallback, got %s", plain.Reason)
	}
	if plain.Message != "Business rule violation: limit exceeded" {
		t.Fatalf("expected message preserved, got %q", plain.Message)
	}
}
