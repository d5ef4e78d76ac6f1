package schema

import (
	"errors"
	"testing"
)

func TestSchemaNameTransform(t *testing.T) {
	cases := []struct {
		eventType string
		version   int
		want      string
	}{
		{"PaymentSettled", 1, "payment_settled.v1"},
		{"PaymentInitiated", 1, "payment_initiated.v1"},
		{"CommandRejected", 1, "command_rejected.v1"},
		{"PaymentReturned", 2, "payment_returned.v2"},
	}
	for _, c := range cases {
		if got := SchemaName(c.eventType, c.version); got != c.want {
			t.Errorf("SchemaName(%q, %d) = %q, want %q", c.eventType, c.version, got, c.want)
		}
		back, version, err := EventType(c.want)
		if err != nil {
			t.Fatalf("EventType(%q) failed: %v", c.want, err)
		}
		if back != c.eventType || version != c.version {
			t.Errorf("EventType(%q) = %q, %d, want %q, %d", c.want, back, version, c.eventType, c.version)
		}
	}
}

func TestEventTypeRejectsMalformedNames(t *testing.T) {
	for _, name := range []string{"", "payment_settled", "payment_settled.vx", ".v1", "payment__settled.v1", "payment_settled.v0"} {
		if _, _, err := EventType(name); err == nil {
			t.Errorf("expected error for schema name %q", name)
		}
	}
}

func TestRegistryRoundTripsAllRegisteredSchemas(t *testing.T) {
	r, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	types := r.EventTypes()
	if len(types) == 0 {
		t.Fatal("expected registered event types")
	}
	// Reversing the registered schema set must recover every declared type.
	for _, eventType := range types {
		if !r.Has(eventType, 1) {
			t.Errorf("expected schema registered for %q v1", eventType)
		}
	}
}

func TestRegistryKnowsCoreEventTypes(t *testing.T) {
	r, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	for _, eventType := range []string{"PaymentInitiated", "PaymentSettled", "PaymentReturned", "CommandRejected"} {
		if !r.Has(eventType, 1) {
			t.Errorf("expected %q v1 to be registered", eventType)
		}
	}
	if r.Has("BalanceComputed", 1) {
		t.Error("did not expect BalanceComputed to be registered")
	}
}

func TestValidateUnregisteredType(t *testing.T) {
	r, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	err = r.Validate("BalanceComputed", 1, map[string]any{})
	var unreg *UnregisteredEventTypeError
	if !errors.As(err, &unreg) {
		t.Fatalf("expected UnregisteredEventTypeError, got %v", err)
	}
}
