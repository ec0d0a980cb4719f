package stream

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/id"
	"stockledger/internal/domain/events"
	"stockledger/internal/infrastructure/storage/postgres"
)

func TestRedisSink_Handle(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	sink := NewRedisSink(client, "", 0)
	at := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	msg := &postgres.OutboxMessage{
		ID:           id.New(),
		AggregateKey: "NUT/MAIN/",
		EventType:    events.TypeStockLevelIssued,
		Payload:      []byte(`{"kind":"StockLevelIssued","delta":-5.0000}`),
		OccurredAt:   at,
	}

	require.NoError(t, sink.Handle(context.Background(), msg))

	got, err := client.XRange(context.Background(), DefaultStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, msg.ID.String(), got[0].Values["id"])
	assert.Equal(t, events.TypeStockLevelIssued, got[0].Values["type"])
	assert.Equal(t, "NUT/MAIN/", got[0].Values["aggregate"])
	assert.Equal(t, "2026-03-10T09:30:00Z", got[0].Values["occurred_at"])
	assert.JSONEq(t, string(msg.Payload), got[0].Values["payload"].(string))
}

func TestRedisSink_FailsWhenRedisIsDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	err := NewRedisSink(client, "s", 10).Handle(context.Background(), &postgres.OutboxMessage{ID: id.New()})
	assert.Error(t, err)
}
