package events

import (
	"context"
	"fmt"
	"log"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Handler processes one record: the logical event name from the "type"
// header plus the raw JSON value. Handlers must swallow their own errors —
// a bad message is logged and skipped, never allowed to halt the
// subscription.
type Handler func(ctx context.Context, eventType string, value []byte)

// GroupConsumer subscribes one consumer group to one topic. Each event
// kind gets its own GroupConsumer so the kinds fail independently.
type GroupConsumer struct {
	client  *kgo.Client
	topic   string
	group   string
	handler Handler
}

// NewGroupConsumer creates a consumer group member for topic. Offsets
// reset to earliest on first start, so responses produced before the core
// booted are still drained (and then discarded as unknown correlations).
func NewGroupConsumer(brokers []string, topic, group string, handler Handler) (*GroupConsumer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(group),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	if err != nil {
		return nil, fmt.Errorf("events: create consumer for %s: %w", topic, err)
	}
	return &GroupConsumer{client: client, topic: topic, group: group, handler: handler}, nil
}

// Run polls until ctx is cancelled. Per-partition fetch errors are logged
// and polling continues; a record that cannot be handled is the handler's
// problem and never stops the loop.
func (c *GroupConsumer) Run(ctx context.Context) {
	log.Printf("[events] consuming %s as %s", c.topic, c.group)
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			log.Printf("[events] consumer for %s stopped", c.topic)
			return
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			log.Printf("[events] fetch error on %s/%d: %v", topic, partition, err)
		})
		fetches.EachRecord(func(record *kgo.Record) {
			c.handler(ctx, headerType(record), record.Value)
		})
	}
}

// Close leaves the group and releases the client.
func (c *GroupConsumer) Close() {
	c.client.Close()
}

func headerType(record *kgo.Record) string {
	for _, h := range record.Headers {
		if h.Key == "type" {
			return string(h.Value)
		}
	}
	return ""
}
