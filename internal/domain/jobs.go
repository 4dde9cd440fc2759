package domain

import (
	"context"
	"time"
)

// JobCause описывает источник запуска рассылки.
type JobCause string

const (
	// JobCauseManual: рассылку запустили вручную (API, CLI).
	JobCauseManual JobCause = "manual"
	// JobCauseScheduled: рассылка запущена по расписанию.
	JobCauseScheduled JobCause = "scheduled"
)

// DistributeJob задача на запуск распространителя.
type DistributeJob struct {
	ID            string    `json:"job_id,omitempty"`
	DistributorID int64     `json:"distributor_id"`
	ScheduledFor  time.Time `json:"scheduled_for"`
	RequestedAt   time.Time `json:"requested_at"`
	Cause         JobCause  `json:"cause"`
}

// DistributeQueue описывает очередь задач рассылки.
type DistributeQueue interface {
	Enqueue(ctx context.Context, job DistributeJob) error
	Receive(ctx context.Context) (DistributeJob, AckFunc, error)
}

// AckFunc подтверждает обработку задачи или возвращает её в очередь.
type AckFunc func(success bool) error
