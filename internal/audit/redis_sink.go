package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStreamSink appends events to a Redis stream so downstream consumers
// (SIEM forwarders, alerting) can tail them. The stream is capped
// approximately to bound memory.
type RedisStreamSink struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisStreamSink constructs a sink writing to the given stream,
// keeping roughly maxLen entries.
func NewRedisStreamSink(client *redis.Client, stream string, maxLen int64) *RedisStreamSink {
	if stream == "" {
		stream = "audit:events"
	}
	if maxLen <= 0 {
		maxLen = 100_000
	}
	return &RedisStreamSink{client: client, stream: stream, maxLen: maxLen}
}

// Write implements Sink.
func (s *RedisStreamSink) Write(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("audit: encode event: %w", err)
	}
	err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]any{
			"event_type": string(event.Type),
			"payload":    payload,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("audit: xadd: %w", err)
	}
	return nil
}
