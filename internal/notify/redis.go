package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type streamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisStream appends redacted events to a Redis stream for in-cluster
// consumers.
type RedisStream struct {
	client streamAdder
	stream string
}

func NewRedisStream(client *redis.Client, stream string) *RedisStream {
	return &RedisStream{client: client, stream: stream}
}

func (s *RedisStream) Name() string { return "redis_stream" }

func (s *RedisStream) Send(ctx context.Context, e Event) error {
	e = e.Redacted()
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("RedisStream.Send: marshal: %w", err)
	}

	err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"event_id":       e.ID.String(),
			"event_type":     string(e.Type),
			"account_id":     e.AccountID.String(),
			"correlation_id": e.CorrelationID,
			"payload":        payload,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("RedisStream.Send: xadd: %w", err)
	}
	return nil
}
