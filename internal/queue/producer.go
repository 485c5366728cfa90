package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"grading-assistant-core/internal/model"

	"github.com/go-redis/redis/v8"
)

type Producer struct {
	client redis.Cmdable
	queue  *SyncQueue
	now    func() time.Time
}

func NewProducer(q *SyncQueue) *Producer {
	return &Producer{
		client: q.client,
		queue:  q,
		now:    time.Now,
	}
}

// EnqueueSyncTrigger queues a sync request. Triggers for one identity may
// pile up; the engine collapses concurrent runs.
func (p *Producer) EnqueueSyncTrigger(ctx context.Context, trigger model.SyncTrigger) error {
	data, err := encodeTrigger(trigger, p.now())
	if err != nil {
		return err
	}
	return p.client.LPush(ctx, p.queue.Name(), data).Err()
}

func encodeTrigger(trigger model.SyncTrigger, now time.Time) ([]byte, error) {
	if trigger.DeviceID == "" {
		return nil, fmt.Errorf("sync trigger without device id")
	}
	if trigger.Reason == "" {
		trigger.Reason = "manual"
	}
	if trigger.RequestedAt == 0 {
		trigger.RequestedAt = now.UnixMilli()
	}
	return json.Marshal(trigger)
}

// DecodeTrigger parses a queued trigger.
func DecodeTrigger(data []byte) (model.SyncTrigger, error) {
	var trigger model.SyncTrigger
	if err := json.Unmarshal(data, &trigger); err != nil {
		return trigger, fmt.Errorf("failed to decode sync trigger: %w", err)
	}
	if trigger.DeviceID == "" {
		return trigger, fmt.Errorf("sync trigger without device id")
	}
	return trigger, nil
}
