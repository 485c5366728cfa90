package queue

import (
	"testing"
	"time"

	"grading-assistant-core/internal/config"
	"grading-assistant-core/internal/model"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTriggerRoundTrip(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)

	data, err := encodeTrigger(model.SyncTrigger{DeviceID: "dev1", ActivationID: "act"}, now)
	require.NoError(t, err)

	trigger, err := DecodeTrigger(data)
	require.NoError(t, err)
	assert.Equal(t, "dev1", trigger.DeviceID)
	assert.Equal(t, "act", trigger.ActivationID)
	assert.Equal(t, "manual", trigger.Reason)
	assert.Equal(t, now.UnixMilli(), trigger.RequestedAt)
}

func TestTriggerRequiresDevice(t *testing.T) {
	_, err := encodeTrigger(model.SyncTrigger{}, time.Now())
	assert.Error(t, err)

	_, err = DecodeTrigger([]byte(`{"reason":"manual"}`))
	assert.Error(t, err)

	_, err = DecodeTrigger([]byte(`not json`))
	assert.Error(t, err)
}

func TestSyncQueueNames(t *testing.T) {
	var cfg config.Config
	cfg.ApplyDefaults()
	cfg.Redis.Host = "localhost"
	cfg.Redis.Port = 6379

	// NewSyncQueue does not dial, so no server is needed.
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr()})
	q := NewSyncQueue(client, &cfg)
	defer q.Close()

	assert.Equal(t, "grading:sync_triggers", q.Name())
	assert.Equal(t, "grading:sync_triggers:dlq", q.DeadLetterName())

	p := NewProducer(q)
	assert.Same(t, q, p.queue)
	c := NewConsumer(q)
	assert.Same(t, q, c.queue)
}
