package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"tip-dispatcher/internal/domain"
	"tip-dispatcher/internal/infra/metrics"
)

// Результаты срабатывания для метрик.
const (
	ResultFired     = "fired"
	ResultDuplicate = "duplicate"
	ResultFailed    = "failed"
	ResultInvalid   = "invalid"
)

// ErrInvalidSchedule возвращается для расписания, которое нельзя зарегистрировать.
var ErrInvalidSchedule = errors.New("invalid schedule")

// Trigger запускает распространителя для конкретной минуты срабатывания.
type Trigger func(ctx context.Context, d domain.Distributor, firedAt time.Time) error

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseSpec проверяет расписание и разбирает его стандартным cron-парсером.
func ParseSpec(s domain.Schedule) (cron.Schedule, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSchedule, err)
	}
	sched, err := parser.Parse(s.CronSpec())
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidSchedule, s.CronSpec(), err)
	}
	return sched, nil
}

// DedupKey ключ, по которому срабатывание одной минуты выполняется один раз на все реплики.
func DedupKey(distributorID int64, firedAt time.Time) string {
	return fmt.Sprintf("distribute:%d:%s", distributorID, firedAt.UTC().Format("200601021504"))
}

type entry struct {
	spec string
	id   cron.EntryID
}

// Service держит по одной cron-записи на распространителя и периодически
// сверяет их с хранилищем.
type Service struct {
	repo     domain.DistributorRepo
	cache    domain.Cache
	trigger  Trigger
	log      zerolog.Logger
	loc      *time.Location
	dedupTTL time.Duration

	mu      sync.Mutex
	c       *cron.Cron
	entries map[int64]entry
}

// Option настраивает Service.
type Option func(*Service)

// WithLocation задаёт часовой пояс расписаний.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithDedupTTL задаёт время жизни ключа дедупликации.
func WithDedupTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.dedupTTL = ttl
		}
	}
}

// NewService создаёт планировщик.
func NewService(repo domain.DistributorRepo, cache domain.Cache, trigger Trigger, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		cache:    cache,
		trigger:  trigger,
		log:      logger,
		loc:      time.UTC,
		dedupTTL: 2 * time.Minute,
		entries:  make(map[int64]entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.c = cron.New(cron.WithParser(parser), cron.WithLocation(s.loc))
	return s
}

// Run синхронизирует расписания каждые resync до отмены контекста.
func (s *Service) Run(ctx context.Context, resync time.Duration) error {
	if resync <= 0 {
		resync = time.Minute
	}
	if _, err := s.Sync(ctx); err != nil {
		s.log.Error().Err(err).Msg("scheduler: не удалось загрузить расписания")
	}
	s.c.Start()
	defer func() { <-s.c.Stop().Done() }()

	ticker := time.NewTicker(resync)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Sync(ctx); err != nil {
				s.log.Error().Err(err).Msg("scheduler: ошибка синхронизации расписаний")
			}
		}
	}
}

// Sync приводит cron-записи к списку распространителей в хранилище.
// Возвращает число активных записей.
func (s *Service) Sync(ctx context.Context) (int, error) {
	items, err := s.repo.ListDistributors(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: список распространителей: %w", domain.ErrStorage, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[int64]struct{}, len(items))
	for _, d := range items {
		seen[d.ID] = struct{}{}
		if d.ScheduleErr != nil {
			s.removeLocked(d.ID)
			metrics.ObserveTrigger(ResultInvalid)
			s.log.Warn().Err(d.ScheduleErr).Int64("distributor", d.ID).Msg("scheduler: расписание не читается, пропущено")
			continue
		}
		spec := d.Schedule.CronSpec()
		if cur, ok := s.entries[d.ID]; ok && cur.spec == spec {
			continue
		}
		s.removeLocked(d.ID)
		sched, err := ParseSpec(d.Schedule)
		if err != nil {
			metrics.ObserveTrigger(ResultInvalid)
			s.log.Warn().Err(err).Int64("distributor", d.ID).Msg("scheduler: расписание пропущено")
			continue
		}
		id := s.c.Schedule(sched, s.job(ctx, d.ID))
		s.entries[d.ID] = entry{spec: spec, id: id}
		s.log.Debug().Int64("distributor", d.ID).Str("spec", spec).Msg("scheduler: расписание зарегистрировано")
	}
	for id := range s.entries {
		if _, ok := seen[id]; !ok {
			s.removeLocked(id)
		}
	}
	metrics.ScheduledDistributors.Set(float64(len(s.entries)))
	return len(s.entries), nil
}

// Specs возвращает зарегистрированные cron-строки по id распространителя.
func (s *Service) Specs() map[int64]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64]string, len(s.entries))
	for id, e := range s.entries {
		out[id] = e.spec
	}
	return out
}

func (s *Service) removeLocked(id int64) {
	if cur, ok := s.entries[id]; ok {
		s.c.Remove(cur.id)
		delete(s.entries, id)
	}
}

// job перечитывает распространителя при срабатывании, чтобы использовать
// актуальные настройки.
func (s *Service) job(ctx context.Context, id int64) cron.FuncJob {
	return func() {
		firedAt := time.Now().In(s.loc).Truncate(time.Minute)
		d, err := s.repo.GetDistributor(ctx, id)
		if err != nil {
			metrics.ObserveTrigger(ResultFailed)
			s.log.Error().Err(err).Int64("distributor", id).Msg("scheduler: распространитель недоступен")
			return
		}
		if _, err := s.Fire(ctx, d, firedAt); err != nil {
			s.log.Error().Err(err).Int64("distributor", id).Time("fired_at", firedAt).Msg("scheduler: срабатывание завершилось ошибкой")
		}
	}
}

// Fire выполняет срабатывание не больше одного раза на минуту для всех реплик.
// Возвращает false, если срабатывание уже выполнено другой репликой.
func (s *Service) Fire(ctx context.Context, d domain.Distributor, firedAt time.Time) (bool, error) {
	minute := firedAt.Truncate(time.Minute)
	fired := false
	err := s.cache.Once(ctx, DedupKey(d.ID, minute), s.dedupTTL, func() error {
		fired = true
		return s.trigger(ctx, d, minute)
	})
	switch {
	case err != nil:
		metrics.ObserveTrigger(ResultFailed)
		return fired, err
	case !fired:
		metrics.ObserveTrigger(ResultDuplicate)
		s.log.Debug().Int64("distributor", d.ID).Time("fired_at", minute).Msg("scheduler: срабатывание уже выполнено")
		return false, nil
	default:
		metrics.ObserveTrigger(ResultFired)
		return true, nil
	}
}

// EnqueueTrigger передаёт срабатывание в очередь воркеров.
func EnqueueTrigger(q domain.DistributeQueue) Trigger {
	return func(ctx context.Context, d domain.Distributor, firedAt time.Time) error {
		return q.Enqueue(ctx, domain.DistributeJob{
			DistributorID: d.ID,
			ScheduledFor:  firedAt.UTC(),
			RequestedAt:   time.Now().UTC(),
			Cause:         domain.JobCauseScheduled,
		})
	}
}
