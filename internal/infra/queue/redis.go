package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"tip-dispatcher/internal/domain"
	"tip-dispatcher/internal/infra/metrics"
)

// RedisDistributeQueue реализует очередь задач на базе Redis lists.
//
// Полученная задача перекладывается в список <key>:processing и удаляется
// оттуда при подтверждении. Неподтверждённая задача возвращается в очередь.
type RedisDistributeQueue struct {
	client     redis.UniversalClient
	key        string
	processing string
	wait       time.Duration
}

// NewRedisDistributeQueue создаёт очередь по указанному ключу.
func NewRedisDistributeQueue(client redis.UniversalClient, key string) *RedisDistributeQueue {
	return &RedisDistributeQueue{client: client, key: key, processing: key + ":processing", wait: time.Second}
}

// Enqueue публикует задачу в очередь.
func (q *RedisDistributeQueue) Enqueue(ctx context.Context, job domain.DistributeJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	start := time.Now()
	err = q.client.LPush(ctx, q.key, payload).Err()
	metrics.ObserveNetworkRequest("redis", "lpush", q.key, start, err)
	if err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

// Receive блокирующе читает задачу из очереди.
func (q *RedisDistributeQueue) Receive(ctx context.Context) (domain.DistributeJob, domain.AckFunc, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.DistributeJob{}, nil, err
		}

		raw, err := q.client.BLMove(ctx, q.key, q.processing, "RIGHT", "LEFT", q.wait).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.DistributeJob{}, nil, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.DistributeJob{}, nil, err
		}

		ack := q.ackFunc(raw)
		var job domain.DistributeJob
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			// битое сообщение в очередь не возвращаем
			_ = ack(true)
			return domain.DistributeJob{}, nil, fmt.Errorf("decode job: %w", err)
		}
		return job, ack, nil
	}
}

func (q *RedisDistributeQueue) ackFunc(raw string) domain.AckFunc {
	return func(success bool) error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.LRem(ctx, q.processing, 1, raw)
			if !success {
				pipe.RPush(ctx, q.key, raw)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("ack job: %w", err)
		}
		return nil
	}
}

var _ domain.DistributeQueue = (*RedisDistributeQueue)(nil)
