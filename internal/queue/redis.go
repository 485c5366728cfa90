// Package queue carries sync triggers on a Redis list.
package queue

import (
	"context"
	"fmt"
	"time"

	"grading-assistant-core/internal/config"
	"grading-assistant-core/internal/logger"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

const dialTimeout = 5 * time.Second

// SyncQueue is the trigger list and its dead-letter list on one Redis
// connection. Producers LPUSH onto the trigger list and the sync worker
// BRPOPs from it; triggers the worker rejects land on the dead-letter list.
type SyncQueue struct {
	client *redis.Client
	name   string
	dlq    string
	log    zerolog.Logger
}

// Stats is the depth of both lists.
type Stats struct {
	Queue       string `json:"queue"`
	Pending     int64  `json:"pending"`
	DeadLetters int64  `json:"deadLetters"`
}

// OpenSyncQueue connects to Redis and checks the connection.
func OpenSyncQueue(cfg *config.Config) (*SyncQueue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.RedisAddr(),
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		PoolSize:    cfg.Redis.PoolSize,
		DialTimeout: dialTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis at %s: %w", cfg.RedisAddr(), err)
	}

	q := NewSyncQueue(client, cfg)
	q.log.Debug().Str("addr", cfg.RedisAddr()).Msg("Connected to sync queue")
	return q, nil
}

// NewSyncQueue wraps an existing client without checking it.
func NewSyncQueue(client *redis.Client, cfg *config.Config) *SyncQueue {
	return &SyncQueue{
		client: client,
		name:   cfg.Redis.SyncQueue,
		dlq:    cfg.Redis.SyncQueue + cfg.Redis.DLQSuffix,
		log:    logger.Component("sync_queue").With().Str("queue", cfg.Redis.SyncQueue).Logger(),
	}
}

func (q *SyncQueue) Name() string {
	return q.name
}

func (q *SyncQueue) DeadLetterName() string {
	return q.dlq
}

func (q *SyncQueue) Close() error {
	return q.client.Close()
}

func (q *SyncQueue) Stats(ctx context.Context) (*Stats, error) {
	pipe := q.client.Pipeline()
	pending := pipe.LLen(ctx, q.name)
	dead := pipe.LLen(ctx, q.dlq)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to read queue depth: %w", err)
	}
	return &Stats{Queue: q.name, Pending: pending.Val(), DeadLetters: dead.Val()}, nil
}

// Requeue moves up to max dead letters, oldest first, back onto the trigger
// list. A non-positive max moves all of them.
func (q *SyncQueue) Requeue(ctx context.Context, max int) (int, error) {
	moved := 0
	for max <= 0 || moved < max {
		err := q.client.RPopLPush(ctx, q.dlq, q.name).Err()
		if err == redis.Nil {
			break
		}
		if err != nil {
			return moved, fmt.Errorf("failed to requeue dead letter: %w", err)
		}
		moved++
	}
	if moved > 0 {
		q.log.Info().Int("moved", moved).Msg("Requeued dead-lettered sync triggers")
	}
	return moved, nil
}
