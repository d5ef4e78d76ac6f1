package schema

import (
	"context"
	"log/slog"

	"github.com/paystream-au/railcore/services/orchestrator-service/internal/event"
)

// Publisher is the single capability the gate needs from the transport:
// publish one event, report success or failure.
type Publisher interface {
	Publish(ctx context.Context, env *event.Envelope) error
}

// Gate is the sole legal exit point for events. Every emission validates the
// envelope structure first, then the payload against its registered schema;
// an invalid fact never reaches the publisher.
type Gate struct {
	registry  *Registry
	publisher Publisher
	logger    *slog.Logger
}

func NewGate(registry *Registry, publisher Publisher, logger *slog.Logger) *Gate {
	return &Gate{registry: registry, publisher: publisher, logger: logger}
}

// Registry exposes the gate's schema registry for enumeration.
func (g *Gate) Registry() *Registry {
	return g.registry
}

// Validate checks envelope structure before payload rules.
func (g *Gate) Validate(env *event.Envelope) error {
	if env == nil {
		return &MalformedEnvelopeError{Fields: []string{"envelope"}}
	}
	if missing := env.CheckFields(); len(missing) > 0 {
		return &MalformedEnvelopeError{Fields: missing}
	}
	return g.registry.Validate(env.EventType, env.EventVersion, env.Payload)
}

// Emit validates and hands the event to the publisher. On any validation
// failure no transport call occurs. A nil publisher is a fatal configuration
// fault (ErrNoPublisher), not a business rejection.
func (g *Gate) Emit(ctx context.Context, env *event.Envelope) error {
	if err := g.Validate(env); err != nil {
		g.logger.Warn("event blocked at emission gate",
			"event_type", envType(env), "err", err)
		return err
	}
	if g.publisher == nil {
		return ErrNoPublisher
	}
	if err := g.publisher.Publish(ctx, env); err != nil {
		return err
	}
	g.logger.Info("event emitted",
		"event_id", env.EventID,
		"event_type", env.EventType,
		"entity_id", env.EntityID,
		"correlation_id", env.CorrelationID,
	)
	return nil
}

// EmitMany validates and emits in declared order, stopping at the first
// failure. Batch emission is not transactional: events emitted before the
// failure are not rolled back. It returns how many events were published.
func (g *Gate) EmitMany(ctx context.Context, envs []*event.Envelope) (int, error) {
	for i, env := range envs {
		if err := g.Emit(ctx, env); err != nil {
			return i, err
		}
	}
	return len(envs), nil
}

func envType(env *event.Envelope) string {
	if env == nil {
		return ""
	}
	return env.EventType
}
