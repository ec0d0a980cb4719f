package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"stockledger/internal/core/id"
	"stockledger/internal/domain/events"
	"stockledger/pkg/logger"
)

// OutboxStatus represents the state of an outbox message.
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusPublished OutboxStatus = "published"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// MaxOutboxRetries is the number of failed deliveries after which a message is
// parked as failed and later moved to the dead letter table.
const MaxOutboxRetries = 5

// OutboxMessage is one domain event waiting for delivery.
type OutboxMessage struct {
	ID           id.ID        `db:"id"`
	AggregateKey string       `db:"aggregate_key"`
	EventType    string       `db:"event_type"`
	Payload      []byte       `db:"payload"`
	Status       OutboxStatus `db:"status"`
	RetryCount   int          `db:"retry_count"`
	LastError    *string      `db:"last_error"`
	NextRetryAt  *time.Time   `db:"next_retry_at"`
	OccurredAt   time.Time    `db:"occurred_at"`
	CreatedAt    time.Time    `db:"created_at"`
	PublishedAt  *time.Time   `db:"published_at"`
}

const insertOutboxSQL = `
	INSERT INTO stock_outbox (id, aggregate_key, event_type, payload, status, occurred_at, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

// OutboxPublisher writes events to stock_outbox in the posting transaction,
// so an event exists exactly when the change it describes committed.
type OutboxPublisher struct {
	txManager *TxManager
	now       func() time.Time
}

var _ events.Publisher = (*OutboxPublisher)(nil)

// NewOutboxPublisher creates a new outbox publisher.
func NewOutboxPublisher(txManager *TxManager) *OutboxPublisher {
	return &OutboxPublisher{txManager: txManager, now: func() time.Time { return time.Now().UTC() }}
}

// Publish queues all events in one round trip. It must run inside a transaction.
func (p *OutboxPublisher) Publish(ctx context.Context, evts []events.Event) error {
	if len(evts) == 0 {
		return nil
	}
	tx := p.txManager.GetTx(ctx)
	if tx == nil {
		return fmt.Errorf("outbox publish requires transaction context")
	}

	batch := &pgx.Batch{}
	now := p.now()
	for _, evt := range evts {
		payload, err := json.Marshal(evt)
		if err != nil {
			return fmt.Errorf("marshal %s payload: %w", evt.EventType(), err)
		}
		batch.Queue(insertOutboxSQL,
			id.New(), evt.AggregateKey(), evt.EventType(), payload, OutboxStatusPending, evt.OccurredAt(), now)
	}

	results := tx.SendBatch(ctx, batch)
	defer results.Close()

	for range evts {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert outbox message: %w", err)
		}
	}
	return nil
}

// OutboxHandler delivers one message to the outside world.
type OutboxHandler interface {
	Handle(ctx context.Context, msg *OutboxMessage) error
}

// OutboxRelay moves pending messages to an OutboxHandler. Several relays may
// run at once; SKIP LOCKED hands every message to exactly one of them.
type OutboxRelay struct {
	txManager *TxManager
	batchSize int
	handler   OutboxHandler
}

// NewOutboxRelay creates a new outbox relay.
func NewOutboxRelay(txManager *TxManager, batchSize int, handler OutboxHandler) *OutboxRelay {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &OutboxRelay{txManager: txManager, batchSize: batchSize, handler: handler}
}

// ProcessBatch delivers up to batchSize pending messages in creation order and
// returns how many were delivered. A failed delivery is retried with a
// linear backoff and parked after MaxOutboxRetries attempts.
func (r *OutboxRelay) ProcessBatch(ctx context.Context) (int, error) {
	processed := 0
	err := r.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		q := r.txManager.GetQuerier(ctx)

		var messages []*OutboxMessage
		err := pgxscan.Select(ctx, q, &messages, `
			SELECT id, aggregate_key, event_type, payload, status,
			       retry_count, last_error, next_retry_at, occurred_at, created_at, published_at
			FROM stock_outbox
			WHERE status = $1
			  AND (next_retry_at IS NULL OR next_retry_at <= NOW())
			ORDER BY created_at, id
			LIMIT $2
			FOR UPDATE SKIP LOCKED`, OutboxStatusPending, r.batchSize)
		if err != nil {
			return fmt.Errorf("fetch outbox messages: %w", err)
		}

		for _, msg := range messages {
			if err := r.processMessage(ctx, q, msg); err != nil {
				logger.Warn(ctx, "outbox delivery failed",
					"message_id", msg.ID,
					"event_type", msg.EventType,
					"retry", msg.RetryCount+1,
					"error", err,
				)
				continue
			}
			processed++
		}
		return nil
	})
	return processed, err
}

func (r *OutboxRelay) processMessage(ctx context.Context, q Querier, msg *OutboxMessage) error {
	if err := r.handler.Handle(ctx, msg); err != nil {
		nextRetry := time.Now().UTC().Add(time.Duration(msg.RetryCount+1) * time.Minute)
		_, updateErr := q.Exec(ctx, `
			UPDATE stock_outbox
			SET retry_count = retry_count + 1,
			    last_error = $1,
			    next_retry_at = $2,
			    status = CASE WHEN retry_count + 1 >= $3 THEN $4 ELSE status END
			WHERE id = $5`,
			err.Error(), nextRetry, MaxOutboxRetries, OutboxStatusFailed, msg.ID)
		if updateErr != nil {
			return fmt.Errorf("update failed message: %w", updateErr)
		}
		return err
	}

	_, err := q.Exec(ctx, `
		UPDATE stock_outbox
		SET status = $1, published_at = $2
		WHERE id = $3`, OutboxStatusPublished, time.Now().UTC(), msg.ID)
	return err
}

// MoveToDLQ moves parked messages to the dead letter table.
func (r *OutboxRelay) MoveToDLQ(ctx context.Context) (int64, error) {
	result, err := r.txManager.GetQuerier(ctx).Exec(ctx, `
		WITH moved AS (
			DELETE FROM stock_outbox
			WHERE status = $1
			RETURNING id, aggregate_key, event_type, payload, retry_count, last_error, occurred_at, created_at
		)
		INSERT INTO stock_outbox_dlq (id, aggregate_key, event_type, payload, retry_count, last_error, occurred_at, created_at, failed_at)
		SELECT id, aggregate_key, event_type, payload, retry_count, last_error, occurred_at, created_at, NOW() FROM moved`,
		OutboxStatusFailed)
	if err != nil {
		return 0, fmt.Errorf("move to DLQ: %w", err)
	}
	return result.RowsAffected(), nil
}

// PurgePublished deletes delivered messages older than the retention.
func (r *OutboxRelay) PurgePublished(ctx context.Context, olderThan time.Duration) (int64, error) {
	result, err := r.txManager.GetQuerier(ctx).Exec(ctx,
		`DELETE FROM stock_outbox WHERE status = $1 AND published_at < $2`,
		OutboxStatusPublished, time.Now().UTC().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("purge outbox: %w", err)
	}
	return result.RowsAffected(), nil
}
