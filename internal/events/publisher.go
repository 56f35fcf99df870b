package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaPublisher publishes core events to the bus. One instance is shared
// by all services; the underlying client is safe for concurrent use.
type KafkaPublisher struct {
	client *kgo.Client
}

// NewKafkaPublisher creates a producer-only client against the given seed
// brokers.
func NewKafkaPublisher(brokers []string) (*KafkaPublisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.ProduceRequestTimeout(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("events: create producer: %w", err)
	}
	return &KafkaPublisher{client: client}, nil
}

// Publish sends one JSON record to topic, keyed by key, with the logical
// event name in the "type" header. It blocks until the broker acknowledges
// the record or ctx is done. Failures are the caller's to classify: the
// core treats them as transient and never retries inside a request.
func (p *KafkaPublisher) Publish(ctx context.Context, topic, key, eventType string, payload any) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("events: marshal %s: %w", eventType, err)
	}
	record := &kgo.Record{
		Topic:   topic,
		Key:     []byte(key),
		Value:   value,
		Headers: []kgo.RecordHeader{{Key: "type", Value: []byte(eventType)}},
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("events: publish %s to %s: %w", eventType, topic, err)
	}
	return nil
}

// Ping verifies broker connectivity for the health endpoint.
func (p *KafkaPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}

// Close flushes and releases the producer.
func (p *KafkaPublisher) Close() {
	p.client.Close()
}
