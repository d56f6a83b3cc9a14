// Package outbox moves audit entries from the transactional outbox to Kafka
// and materialises them back into the query table. Delivery is at-least-once;
// the entry id is the dedup key end to end.
package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"custodia/internal/platform/metrics"
)

// Publisher is the producing side of the pipeline.
type Publisher interface {
	Produce(ctx context.Context, topic string, key, value []byte) error
}

// Worker polls the audit_outbox table and publishes unpublished rows.
// Rows are only marked published after the broker acks, so a crash between
// publish and mark causes redelivery, not loss.
type Worker struct {
	db        *sql.DB
	producer  Publisher
	topic     string
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

func NewWorker(db *sql.DB, producer Publisher, topic string, logger *slog.Logger, m *metrics.Metrics) *Worker {
	return &Worker{
		db:        db,
		producer:  producer,
		topic:     topic,
		interval:  time.Second,
		batchSize: 100,
		logger:    logger,
		metrics:   m,
	}
}

// Run polls until ctx is cancelled. Publish errors are logged and retried on
// the next tick rather than crashing the process.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.publishPending(ctx); err != nil {
				if w.metrics != nil {
					w.metrics.OutboxPublishErrors.Inc()
				}
				w.logger.ErrorContext(ctx, "outbox publish pass failed", "error", err)
			}
		}
	}
}

func (w *Worker) publishPending(ctx context.Context) error {
	rows, err := w.db.QueryContext(ctx, `
		SELECT id, payload
		FROM audit_outbox
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1
	`, w.batchSize)
	if err != nil {
		return fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	type pending struct {
		id      uuid.UUID
		payload []byte
	}
	var batch []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.id, &p.payload); err != nil {
			return fmt.Errorf("scan outbox row: %w", err)
		}
		batch = append(batch, p)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate outbox: %w", err)
	}

	var published []uuid.UUID
	for _, p := range batch {
		if err := w.producer.Produce(ctx, w.topic, []byte(p.id.String()), p.payload); err != nil {
			// Mark what succeeded so far; the rest retries next tick.
			if markErr := w.markPublished(ctx, published); markErr != nil {
				return fmt.Errorf("%w (mark published: %v)", err, markErr)
			}
			return err
		}
		published = append(published, p.id)
		if w.metrics != nil {
			w.metrics.OutboxPublished.Inc()
		}
	}

	return w.markPublished(ctx, published)
}

func (w *Worker) markPublished(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	raw := make([]string, len(ids))
	for i, entryID := range ids {
		raw[i] = entryID.String()
	}
	if _, err := w.db.ExecContext(ctx, `
		UPDATE audit_outbox
		SET published_at = NOW()
		WHERE id = ANY($1)
	`, pq.Array(raw)); err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return nil
}
