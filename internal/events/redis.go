package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"equipment-scheduler/internal/domain"
	"equipment-scheduler/internal/logger"
)

// StreamAdder is the slice of the redis client the publisher needs.
type StreamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisPublisher appends events to a redis stream the notification
// subsystem consumes.
type RedisPublisher struct {
	client StreamAdder
	stream string
	maxLen int64
}

// NewRedisPublisher trims the stream to roughly maxLen entries; zero keeps
// it unbounded.
func NewRedisPublisher(client StreamAdder, stream string, maxLen int64) *RedisPublisher {
	return &RedisPublisher{client: client, stream: stream, maxLen: maxLen}
}

func (p *RedisPublisher) Publish(ctx context.Context, event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", event.ID, err)
	}

	logger.ExternalServiceCall("redis", "XADD", "stream", p.stream, "event_id", event.ID, "type", event.Type)
	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"id":      event.ID,
			"type":    string(event.Type),
			"payload": string(payload),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	entryID, err := p.client.XAdd(ctx, args).Result()
	logger.ExternalServiceResult("redis", "XADD", err, "stream", p.stream, "entry_id", entryID)
	if err != nil {
		return fmt.Errorf("failed to publish event %s to stream %s: %w", event.ID, p.stream, err)
	}
	return nil
}
