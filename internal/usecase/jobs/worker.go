package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"tip-dispatcher/internal/domain"
)

// Worker разбирает очередь задач рассылки.
type Worker struct {
	queue  domain.DistributeQueue
	runner *Runner
	log    zerolog.Logger
	// pause между повторами при ошибках очереди или аренды.
	pause time.Duration
}

// NewWorker создаёт воркера.
func NewWorker(queue domain.DistributeQueue, runner *Runner, logger zerolog.Logger) *Worker {
	return &Worker{queue: queue, runner: runner, log: logger, pause: time.Second}
}

// Run обрабатывает задачи до отмены контекста.
func (w *Worker) Run(ctx context.Context) {
	for {
		job, ack, err := w.queue.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			w.log.Error().Err(err).Msg("worker: ошибка чтения очереди")
			w.sleep(ctx)
			continue
		}
		if retry := w.Handle(ctx, job); retry {
			if err := ack(false); err != nil {
				w.log.Error().Err(err).Str("job_id", job.ID).Msg("worker: не удалось вернуть задачу в очередь")
			}
			w.sleep(ctx)
			continue
		}
		if err := ack(true); err != nil {
			w.log.Error().Err(err).Str("job_id", job.ID).Msg("worker: не удалось подтвердить задачу")
		}
	}
}

// Handle выполняет задачу и сообщает, нужно ли вернуть её в очередь.
//
// Повтор только при недоступной аренде. Ошибки доставки не повторяются.
func (w *Worker) Handle(ctx context.Context, job domain.DistributeJob) (retry bool) {
	jobLog := w.log.With().
		Str("job_id", job.ID).
		Int64("distributor", job.DistributorID).
		Str("cause", string(job.Cause)).
		Time("scheduled_for", job.ScheduledFor).
		Logger()

	if job.DistributorID <= 0 {
		jobLog.Error().Msg("worker: задача без распространителя, подтверждаем и пропускаем")
		return false
	}
	_, err := w.runner.Run(ctx, job.DistributorID, job.Cause)
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrBusy):
		jobLog.Info().Msg("worker: распространитель занят другой задачей, пропускаем")
		return false
	case errors.Is(err, domain.ErrNotFound):
		jobLog.Warn().Msg("worker: распространитель удалён, пропускаем задачу")
		return false
	case errors.Is(err, ErrLease):
		jobLog.Error().Err(err).Msg("worker: аренда недоступна, вернём задачу в очередь")
		return ctx.Err() == nil
	default:
		return false
	}
}

func (w *Worker) sleep(ctx context.Context) {
	t := time.NewTimer(w.pause)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
