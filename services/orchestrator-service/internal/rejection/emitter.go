package rejection

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/paystream-au/railcore/services/orchestrator-service/internal/event"
	"github.com/paystream-au/railcore/services/orchestrator-service/internal/schema"
)

// CommandInfo identifies the command a rejection refers to. EntityType and
// EntityID fall back to the command itself when the transport supplied none.
type CommandInfo struct {
	CommandID     string
	CommandType   string
	CorrelationID string
	EntityType    string
	EntityID      string
}

// Emitter renders rejection reasons into CommandRejected facts and routes
// them through the emission gate. If the gate refuses a fact built here, the
// rails themselves produced an invalid event: the error propagates
// unrecovered instead of being converted into another rejection.
type Emitter struct {
	gate   *schema.Gate
	logger *slog.Logger
	clock  func() time.Time
}

func NewEmitter(gate *schema.Gate, logger *slog.Logger) *Emitter {
	return &Emitter{gate: gate, logger: logger, clock: time.Now}
}

// WithClock overrides the clock for deterministic tests.
func (e *Emitter) WithClock(clock func() time.Time) *Emitter {
	e.clock = clock
	return e
}

// Reject builds and emits one CommandRejected fact, returning its event_id.
//
// When the caller supplies no correlation_id it defaults to the fresh
// event_id. Known caveat: this starts a new causal chain instead of
// continuing the command's, so correlation-by-chain breaks for callers that
// omit the id.
func (e *Emitter) Reject(ctx context.Context, cmd CommandInfo, reason Reason, message string, metadata map[string]any) (string, error) {
	if !reason.Valid() {
		return "", fmt.Errorf("unknown rejection reason %q", reason)
	}

	eventID := uuid.NewString()
	correlationID := cmd.CorrelationID
	if correlationID == "" {
		correlationID = eventID
	}
	entityType, entityID := cmd.EntityType, cmd.EntityID
	if entityType == "" || entityID == "" {
		entityType, entityID = "command", cmd.CommandID
	}
	if metadata == nil {
		metadata = map[string]any{}
	}

	env := &event.Envelope{
		EventID:       eventID,
		EventType:     "CommandRejected",
		EventVersion:  1,
		OccurredAt:    e.clock().UTC(),
		Producer:      event.Producer,
		CorrelationID: correlationID,
		EntityType:    entityType,
		EntityID:      entityID,
		Payload: map[string]any{
			"command_id":     cmd.CommandID,
			"command_type":   cmd.CommandType,
			"reason_code":    string(reason),
			"reason_message": message,
			"rejected_at":    e.clock().UTC().Format(time.RFC3339Nano),
			"correlation_id": correlationID,
			"metadata":       metadata,
		},
	}

	if err := e.gate.Emit(ctx, env); err != nil {
		return "", fmt.Errorf("emit rejection for command %s: %w", cmd.CommandID, err)
	}

	e.logger.Info("command rejected",
		"command_id", cmd.CommandID,
		"command_type", cmd.CommandType,
		"reason_code", string(reason),
		"rejection_event_id", eventID,
	)
	return eventID, nil
}

// DuplicateCommand emits the rejection for a re-submitted command_id.
func (e *Emitter) DuplicateCommand(ctx context.Context, cmd CommandInfo) (string, error) {
	return e.Reject(ctx, cmd, ReasonDuplicateCommand, "Duplicate command", map[string]any{
		"command_id": cmd.CommandID,
	})
}

// InvalidSchema emits the rejection for a command whose shape or type the
// pipeline cannot process.
func (e *Emitter) InvalidSchema(ctx context.Context, cmd CommandInfo, detail string) (string, error) {
	return e.Reject(ctx, cmd, ReasonInvalidSchema, detail, nil)
}

// BusinessRule emits the rejection for a domain rule failure.
func (e *Emitter) BusinessRule(ctx context.Context, cmd CommandInfo, message string, metadata map[string]any) (string, error) {
	return e.Reject(ctx, cmd, ReasonBusinessRuleViolation, message, metadata)
}

// RateLimitExceeded emits the rejection for a command refused by the
// submission rate limiter.
func (e *Emitter) RateLimitExceeded(ctx context.Context, cmd CommandInfo, limit int, window time.Duration) (string, error) {
	return e.Reject(ctx, cmd, ReasonRateLimitExceeded, "Rate limit exceeded", map[string]any{
		"limit":         limit,
		"window_millis": window.Milliseconds(),
	})
}

// FromDomainError emits the rejection carried by a classified domain error.
func (e *Emitter) FromDomainError(ctx context.Context, cmd CommandInfo, derr *DomainError) (string, error) {
	return e.Reject(ctx, cmd, derr.Reason, derr.Message, derr.Metadata)
}
