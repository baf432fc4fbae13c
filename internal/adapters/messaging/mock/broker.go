package mock

import (
	"context"
	"log/slog"

	"payment-lifecycle-engine/internal/core/domain"
	"payment-lifecycle-engine/internal/core/ports"
)

// Broker is a stub EventPublisher for running without Kafka. It logs events
// instead of sending them.
type Broker struct {
	logger *slog.Logger
}

var _ ports.EventPublisher = (*Broker)(nil)

func NewBroker(logger *slog.Logger) *Broker {
	return &Broker{logger: logger}
}

func (b *Broker) Publish(_ context.Context, ev domain.Event) error {
	b.logger.Info("[MOCK] event published", "event_type", ev.Type, "aggregate_id", ev.AggregateID)
	return nil
}

func (b *Broker) Close() {}
