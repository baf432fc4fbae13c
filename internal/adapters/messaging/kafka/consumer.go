package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"
	"payment-lifecycle-engine/internal/core/domain"
)

// Envelope is a lifecycle event read back from Kafka with its payload left raw.
type Envelope struct {
	ID          uuid.UUID        `json:"id"`
	Type        domain.EventType `json:"type"`
	AggregateID uuid.UUID        `json:"aggregateId"`
	OccurredAt  time.Time        `json:"occurredAt"`
	Payload     json.RawMessage  `json:"payload"`
}

// Decode parses a record written by Broker.Publish.
func Decode(r *kgo.Record) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(r.Value, &env); err != nil {
		return Envelope{}, fmt.Errorf("failed to decode event: %w", err)
	}
	if env.Type == "" || env.AggregateID == uuid.Nil {
		return Envelope{}, fmt.Errorf("failed to decode event: missing type or aggregate id")
	}
	return env, nil
}

// DLQRecord copies a record that could not be processed onto the dead-letter
// topic with the failure attached as headers.
func DLQRecord(dlqTopic string, original *kgo.Record, errorType, errorString string) *kgo.Record {
	return &kgo.Record{
		Topic: dlqTopic,
		Key:   original.Key,
		Value: original.Value,
		Headers: []kgo.RecordHeader{
			{Key: "error_type", Value: []byte(errorType)},
			{Key: "error_string", Value: []byte(errorString)},
			{Key: "original_topic", Value: []byte(original.Topic)},
		},
	}
}

// Header returns the value of key, or "" when absent.
func Header(r *kgo.Record, key string) string {
	for _, h := range r.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// NewConsumer joins group on topics with manual offset commits.
func NewConsumer(bootstrapServers []string, group string, topics ...string) (*kgo.Client, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(bootstrapServers...),
		kgo.ConsumerGroup(group),
		kgo.ConsumeTopics(topics...),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}
	return client, nil
}

// NewProducer returns a plain client for DLQ and tooling writes.
func NewProducer(ctx context.Context, bootstrapServers []string) (*kgo.Client, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(bootstrapServers...),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", domain.ErrBrokerUnavailable, err)
	}
	return client, nil
}
