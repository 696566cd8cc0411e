package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// LogSink writes audit events to the structured logger.
func LogSink(logger *zap.Logger) EventHandler {
	return func(_ context.Context, event Event) error {
		fields := []zap.Field{
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.String("subject_id", event.SubjectID),
			zap.Time("timestamp", event.Timestamp),
		}
		for k, v := range event.Payload {
			fields = append(fields, zap.String(k, v))
		}
		logger.Info("audit", fields...)
		return nil
	}
}

// RedisStreamSink appends audit events to a Redis stream capped at maxLen entries.
func RedisStreamSink(client redis.Cmdable, stream string, maxLen int64) EventHandler {
	return func(ctx context.Context, event Event) error {
		payload, err := json.Marshal(event.Payload)
		if err != nil {
			return fmt.Errorf("encode audit payload: %w", err)
		}
		args := &redis.XAddArgs{
			Stream: stream,
			Approx: true,
			Values: map[string]any{
				"id":         event.ID,
				"type":       string(event.Type),
				"subject_id": event.SubjectID,
				"timestamp":  event.Timestamp.UnixMilli(),
				"payload":    string(payload),
			},
		}
		if maxLen > 0 {
			args.MaxLen = maxLen
		}
		if err := client.XAdd(ctx, args).Err(); err != nil {
			return fmt.Errorf("xadd %s: %w", stream, err)
		}
		return nil
	}
}
