// Package stream delivers outbox messages to a Redis stream, where accounting
// and compliance consumers read them with consumer groups.
package stream

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"stockledger/internal/infrastructure/storage/postgres"
)

const (
	DefaultStream = "stock:events"
	DefaultMaxLen = 100_000
)

// RedisSink implements postgres.OutboxHandler with XADD.
type RedisSink struct {
	rdb    redis.UniversalClient
	stream string
	maxLen int64
}

var _ postgres.OutboxHandler = (*RedisSink)(nil)

// NewRedisSink creates a sink. An empty stream name selects DefaultStream,
// and maxLen ≤ 0 selects DefaultMaxLen.
func NewRedisSink(rdb redis.UniversalClient, stream string, maxLen int64) *RedisSink {
	if stream == "" {
		stream = DefaultStream
	}
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	return &RedisSink{rdb: rdb, stream: stream, maxLen: maxLen}
}

// Handle appends the message to the stream. The outbox ID travels along so
// consumers can drop the duplicates a retried delivery may produce.
func (s *RedisSink) Handle(ctx context.Context, msg *postgres.OutboxMessage) error {
	err := s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]any{
			"id":          msg.ID.String(),
			"type":        msg.EventType,
			"aggregate":   msg.AggregateKey,
			"occurred_at": msg.OccurredAt.UTC().Format(time.RFC3339Nano),
			"payload":     string(msg.Payload),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	return nil
}
