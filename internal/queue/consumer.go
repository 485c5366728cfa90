package queue

import (
	"context"
	"time"

	"grading-assistant-core/internal/logger"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

const (
	pollTimeout  = 5 * time.Second
	errorBackoff = time.Second
)

type Consumer struct {
	client redis.Cmdable
	queue  *SyncQueue
	log    zerolog.Logger
}

type MessageHandler func(ctx context.Context, data []byte) error

func NewConsumer(q *SyncQueue) *Consumer {
	return &Consumer{
		client: q.client,
		queue:  q,
		log:    logger.Component("queue_consumer"),
	}
}

func (c *Consumer) ConsumeSyncQueue(ctx context.Context, handler MessageHandler) error {
	return c.consume(ctx, c.queue.Name(), handler)
}

func (c *Consumer) consume(ctx context.Context, queueName string, handler MessageHandler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		result, err := c.client.BRPop(ctx, pollTimeout, queueName).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Error().Err(err).Str("queue", queueName).Msg("Failed to consume message")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(errorBackoff):
			}
			continue
		}

		if len(result) < 2 {
			continue
		}
		c.process(ctx, queueName, result[1], handler)
	}
}

// process runs handler and parks the message on the DLQ when it fails.
func (c *Consumer) process(ctx context.Context, queueName, message string, handler MessageHandler) {
	if err := handler(ctx, []byte(message)); err != nil {
		c.log.Error().Err(err).Str("queue", queueName).Msg("Failed to process message")
		dlqName := c.queue.DeadLetterName()
		if dlqErr := c.client.LPush(ctx, dlqName, message).Err(); dlqErr != nil {
			c.log.Error().Err(dlqErr).Str("dlq", dlqName).Msg("Failed to move message to DLQ")
		}
	}
}
