// Package publisher provides the transports the emission gate hands
// validated events to.
package publisher

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/paystream-au/railcore/libs/kafkax"
	"github.com/paystream-au/railcore/services/orchestrator-service/internal/event"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Kafka publishes one event per message. The topic equals the event type and
// the message key is the entity id, so all events for one entity stay
// ordered on one partition.
type Kafka struct {
	writer *kafka.Writer
	logger *slog.Logger
}

func NewKafka(brokers string, logger *slog.Logger) *Kafka {
	return &Kafka{
		writer: kafka.NewWriter(kafka.WriterConfig{
			Brokers:  kafkax.SplitBrokers(brokers),
			Balancer: &kafka.Hash{},
		}),
		logger: logger,
	}
}

func (p *Kafka) Publish(ctx context.Context, env *event.Envelope) error {
	ctx, span := otel.Tracer("kafka").Start(ctx, "kafka.publish",
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", env.EventType),
		),
	)
	defer span.End()

	value, err := json.Marshal(env)
	if err != nil {
		span.RecordError(err)
		return err
	}

	msg := kafka.Message{
		Topic: env.EventType,
		Key:   []byte(env.EntityID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(env.EventID)},
			{Key: "event_type", Value: []byte(env.EventType)},
			{Key: "correlation_id", Value: []byte(env.CorrelationID)},
		},
	}
	msg.Headers = kafkax.InjectTraceHeaders(ctx, msg.Headers)

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

func (p *Kafka) Close() error {
	return p.writer.Close()
}
