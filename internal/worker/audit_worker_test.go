package worker

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/recipe-service/internal/events"
)

func TestStartAuditWorker_DeliversToEverySink(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	core, logs := observer.New(zap.InfoLevel)

	dispatcher := events.NewInMemoryDispatcher()
	StartAuditWorker(dispatcher, AuditSinks{
		Logger:       zap.New(core),
		Redis:        client,
		Stream:       "auth:audit",
		StreamMaxLen: 100,
	})

	ctx := context.Background()
	for _, eventType := range events.AllEventTypes() {
		require.NoError(t, dispatcher.Publish(ctx, events.NewEvent(eventType, "subject-1", nil)))
	}

	length, err := client.XLen(ctx, "auth:audit").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(len(events.AllEventTypes())), length)
	assert.Equal(t, len(events.AllEventTypes()), logs.FilterMessage("audit").Len())
}

func TestStartAuditWorker_LogOnly(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	dispatcher := events.NewInMemoryDispatcher()
	StartAuditWorker(dispatcher, AuditSinks{Logger: zap.New(core)})

	require.NoError(t, dispatcher.Publish(context.Background(), events.NewEvent(events.EventAccessDenied, "s1", map[string]string{"reason": "missing role admin"})))
	assert.Equal(t, 1, logs.Len())

	StartAuditWorker(nil, AuditSinks{Logger: zap.New(core)})
}
