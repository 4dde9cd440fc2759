package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"tip-dispatcher/internal/domain"
	applog "tip-dispatcher/internal/infra/log"
	"tip-dispatcher/internal/infra/metrics"
)

// ErrBusy возвращается, если распространитель уже запущен в другом процессе.
var ErrBusy = errors.New("distributor is busy")

// ErrLease возвращается, если хранилище аренды недоступно.
var ErrLease = errors.New("lease unavailable")

// Distributor запускает распространителя по id.
type Distributor interface {
	DistributeByID(ctx context.Context, id int64) (domain.Outcome, error)
}

// Runner запускает распространителя под арендой, логирует и учитывает результат.
type Runner struct {
	svc      Distributor
	cache    domain.Cache
	leaseTTL time.Duration
	log      zerolog.Logger
	prefix   string
}

// NewRunner создаёт Runner. Без cache аренда не берётся.
func NewRunner(svc Distributor, cache domain.Cache, leaseTTL time.Duration, logger zerolog.Logger, prefix string) *Runner {
	if leaseTTL <= 0 {
		leaseTTL = 5 * time.Minute
	}
	return &Runner{svc: svc, cache: cache, leaseTTL: leaseTTL, log: logger, prefix: prefix}
}

// LeaseKey ключ аренды распространителя.
func LeaseKey(distributorID int64) string {
	return fmt.Sprintf("lease:distributor:%d", distributorID)
}

// Run выполняет один запуск распространителя.
func (r *Runner) Run(ctx context.Context, id int64, cause domain.JobCause) (domain.Outcome, error) {
	if r.cache != nil {
		release, ok, err := r.cache.Lock(ctx, LeaseKey(id), r.leaseTTL)
		if err != nil {
			return domain.Outcome{DistributorID: id, State: domain.StateFailed}, fmt.Errorf("%w: %w: распространитель %d: %w", ErrLease, domain.ErrStorage, id, err)
		}
		if !ok {
			r.log.Warn().Int64("distributor", id).Str("cause", string(cause)).Msg(r.prefix + ": распространитель уже выполняется")
			return domain.Outcome{DistributorID: id, State: domain.StateIdle}, ErrBusy
		}
		defer release()
	}

	out, err := r.svc.DistributeByID(ctx, id)
	metrics.ObserveOutcome(out)
	applog.Outcome(r.log.With().Str("cause", string(cause)).Logger(), r.prefix, out, err)
	return out, err
}

// Trigger запускает распространителя сразу, без очереди.
// Сигнатура совпадает с schedule.Trigger.
func (r *Runner) Trigger(ctx context.Context, d domain.Distributor, _ time.Time) error {
	_, err := r.Run(ctx, d.ID, domain.JobCauseScheduled)
	return err
}
