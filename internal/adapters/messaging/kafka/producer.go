package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"payment-lifecycle-engine/internal/core/domain"
	"payment-lifecycle-engine/internal/core/ports"
)

// HeaderEventType carries domain.Event.Type on every record.
const HeaderEventType = "event_type"

// Broker is the Kafka implementation of the EventPublisher port.
type Broker struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
	wg     sync.WaitGroup
}

var _ ports.EventPublisher = (*Broker)(nil)

// NewBroker connects to the seed brokers and checks the connection.
func NewBroker(ctx context.Context, bootstrapServers []string, topic string, logger *slog.Logger) (*Broker, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(bootstrapServers...),
		kgo.DefaultProduceTopic(topic),
		kgo.AllowAutoTopicCreation(),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.RecordDeliveryTimeout(10 * time.Second),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}
	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", domain.ErrBrokerUnavailable, err)
	}

	return &Broker{client: client, topic: topic, logger: logger}, nil
}

// Record encodes ev as a JSON record keyed by its aggregate, so every event of
// one transaction, refund or payout lands on the same partition in order.
func Record(ev domain.Event) (*kgo.Record, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event %s: %w", ev.Type, err)
	}
	return &kgo.Record{
		Key:   []byte(ev.AggregateID.String()),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: HeaderEventType, Value: []byte(ev.Type)},
		},
		Timestamp: ev.OccurredAt,
	}, nil
}

// Publish sends the event asynchronously. Delivery failures are logged from
// the produce callback.
func (b *Broker) Publish(ctx context.Context, ev domain.Event) error {
	record, err := Record(ev)
	if err != nil {
		return err
	}

	b.wg.Add(1)
	b.client.Produce(context.WithoutCancel(ctx), record, func(r *kgo.Record, err error) {
		defer b.wg.Done()
		if err != nil {
			b.logger.Error("failed to deliver event to kafka",
				"topic", r.Topic, "event_type", ev.Type, "aggregate_id", ev.AggregateID, "error", err)
			return
		}
		b.logger.Debug("event delivered to kafka", "topic", r.Topic, "partition", r.Partition, "offset", r.Offset)
	})
	return nil
}

// Close waits for in-flight deliveries and stops the client.
func (b *Broker) Close() {
	b.logger.Info("waiting for kafka deliveries to finish...")
	b.wg.Wait()
	b.client.Close()
	b.logger.Info("kafka client stopped")
}
