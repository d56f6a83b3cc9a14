package kafka

import (
	"context"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Message is the transport-agnostic view handed to topic handlers.
type Message struct {
	Topic string
	Key   []byte
	Value []byte
}

// Consumer reads from a consumer group. Offsets commit automatically after a
// successful poll loop iteration; handlers must be idempotent.
type Consumer struct {
	client *kgo.Client
}

// NewConsumer joins the given group subscribed to topic.
func NewConsumer(brokers []string, group, topic string) (*Consumer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(group),
		kgo.ConsumeTopics(topic),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	return &Consumer{client: client}, nil
}

// Poll blocks until records arrive or ctx is cancelled.
func (c *Consumer) Poll(ctx context.Context) ([]Message, error) {
	fetches := c.client.PollFetches(ctx)
	if err := fetches.Err0(); err != nil {
		return nil, err
	}
	var msgs []Message
	fetches.EachRecord(func(r *kgo.Record) {
		msgs = append(msgs, Message{Topic: r.Topic, Key: r.Key, Value: r.Value})
	})
	return msgs, nil
}

// Close leaves the group and closes the client.
func (c *Consumer) Close() {
	c.client.Close()
}
