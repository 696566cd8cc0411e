package worker

import (
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/recipe-service/internal/events"
)

// AuditSinks selects where audit events are delivered.
type AuditSinks struct {
	Logger       *zap.Logger
	Redis        redis.Cmdable
	Stream       string
	StreamMaxLen int64
}

// StartAuditWorker subscribes the configured sinks to every audit event type.
func StartAuditWorker(dispatcher events.Dispatcher, sinks AuditSinks) {
	if dispatcher == nil {
		return
	}
	for _, eventType := range events.AllEventTypes() {
		if sinks.Logger != nil {
			dispatcher.Subscribe(eventType, events.LogSink(sinks.Logger))
		}
		if sinks.Redis != nil && sinks.Stream != "" {
			dispatcher.Subscribe(eventType, events.RedisStreamSink(sinks.Redis, sinks.Stream, sinks.StreamMaxLen))
		}
	}
}
