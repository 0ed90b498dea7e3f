package feed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// OutboxKey is the Redis list holding committed events in order.
	// External delivery collaborators consume it with BLPOP, so each
	// event is handed to exactly one consumer.
	OutboxKey = "feed:events"

	channelPrefix = "feed:geofence:"
)

// RedisOutbox appends events to a Redis list and mirrors them on a
// per-geofence pub/sub channel. The list is the ordering contract for
// external delivery collaborators: drain it with BLPOP, so each event
// reaches exactly one consumer, in the order the broker appended it
// (which PublishTx pins to commit order). The mirror on
// feed:geofence:<id> carries the same JSON encoding and is best-effort
// wakeup only; a consumer that needs every event reads the list.
type RedisOutbox struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisOutbox creates a Redis-backed outbox.
func NewRedisOutbox(client *redis.Client, logger *zap.Logger) *RedisOutbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisOutbox{client: client, logger: logger}
}

// Append pushes the event onto the outbox list, then publishes it on
// the geofence channel when the event is geofence-scoped.
func (o *RedisOutbox) Append(ctx context.Context, e Event) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := o.client.RPush(ctx, OutboxKey, raw).Err(); err != nil {
		return fmt.Errorf("rpush: %w", err)
	}
	if e.GeofenceID != uuid.Nil {
		if err := o.client.Publish(ctx, channelPrefix+e.GeofenceID.String(), raw).Err(); err != nil {
			o.logger.Warn("feed pubsub publish failed", zap.Error(err), zap.Uint64("seq", e.Seq))
		}
	}
	return nil
}
