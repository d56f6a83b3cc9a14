package outbox

import (
	"context"
	"errors"
	"log/slog"

	"custodia/internal/audit"
	"custodia/internal/platform/kafka"
)

// Materializer is the store side that turns published payloads back into
// queryable audit events. Must be idempotent: the pipeline redelivers.
type Materializer interface {
	Materialize(ctx context.Context, entry audit.Entry) error
}

// Source abstracts the Kafka consumer for tests.
type Source interface {
	Poll(ctx context.Context) ([]kafka.Message, error)
}

// Consumer reads published audit payloads and materialises them into the
// audit_events table. Undecodable payloads are logged and skipped so one
// poison message cannot wedge the pipeline; store failures stop the run so
// the group rewinds and redelivers.
type Consumer struct {
	source Source
	store  Materializer
	logger *slog.Logger
}

func NewConsumer(source Source, store Materializer, logger *slog.Logger) *Consumer {
	return &Consumer{source: source, store: store, logger: logger}
}

func (c *Consumer) Run(ctx context.Context) error {
	for {
		msgs, err := c.source.Poll(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return ctx.Err()
			}
			return err
		}
		for _, msg := range msgs {
			entry, err := audit.EntryFromPayload(msg.Value)
			if err != nil {
				c.logger.ErrorContext(ctx, "skipping undecodable audit payload",
					"key", string(msg.Key),
					"error", err,
				)
				continue
			}
			if err := c.store.Materialize(ctx, entry); err != nil {
				return err
			}
		}
	}
}
