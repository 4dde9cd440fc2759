package queue

import (
	"context"

	"github.com/google/uuid"

	"tip-dispatcher/internal/domain"
)

// MemoryDistributeQueue очередь в памяти процесса для inline-режима и тестов.
type MemoryDistributeQueue struct {
	jobs chan domain.DistributeJob
}

// NewMemoryDistributeQueue создаёт очередь заданной ёмкости.
func NewMemoryDistributeQueue(size int) *MemoryDistributeQueue {
	if size <= 0 {
		size = 64
	}
	return &MemoryDistributeQueue{jobs: make(chan domain.DistributeJob, size)}
}

// Enqueue кладёт задачу в очередь, блокируясь при переполнении.
func (q *MemoryDistributeQueue) Enqueue(ctx context.Context, job domain.DistributeJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case q.jobs <- job:
		return nil
	}
}

// Receive ждёт следующую задачу. Отказ возвращает задачу в конец очереди.
func (q *MemoryDistributeQueue) Receive(ctx context.Context) (domain.DistributeJob, domain.AckFunc, error) {
	select {
	case <-ctx.Done():
		return domain.DistributeJob{}, nil, ctx.Err()
	case job := <-q.jobs:
		ack := func(success bool) error {
			if success {
				return nil
			}
			return q.Enqueue(context.Background(), job)
		}
		return job, ack, nil
	}
}

var _ domain.DistributeQueue = (*MemoryDistributeQueue)(nil)
