package distribution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tip-dispatcher/internal/domain"
)

// Selector выбирает советы для канала.
type Selector interface {
	TakeTips(ctx context.Context, channelID int64, count int) ([]domain.Tip, []domain.Assignment, error)
}

// Service запускает распространителей: выбор, доставка, запись в журнал.
type Service struct {
	selector     Selector
	history      domain.HistoryRepo
	distributors domain.DistributorRepo
	dispatchers  Registry
	now          func() time.Time
}

// NewService создаёт сервис рассылки.
func NewService(selector Selector, history domain.HistoryRepo, distributors domain.DistributorRepo, dispatchers Registry) *Service {
	return &Service{
		selector:     selector,
		history:      history,
		distributors: distributors,
		dispatchers:  dispatchers,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// DistributeByID загружает распространителя и запускает его.
func (s *Service) DistributeByID(ctx context.Context, id int64) (domain.Outcome, error) {
	d, err := s.distributors.GetDistributor(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Outcome{DistributorID: id, State: domain.StateFailed}, err
		}
		return domain.Outcome{DistributorID: id, State: domain.StateFailed}, fmt.Errorf("%w: распространитель %d: %w", domain.ErrStorage, id, err)
	}
	return s.Distribute(ctx, d)
}

// Distribute выполняет один запуск распространителя.
//
// Настройки бэкенда проверяются до выбора советов. Пустая выборка не ошибка.
// Журнал пишется только после успешной доставки.
func (s *Service) Distribute(ctx context.Context, d domain.Distributor) (out domain.Outcome, err error) {
	out = domain.Outcome{
		DistributorID: d.ID,
		ChannelID:     d.ChannelID,
		Type:          d.Type,
		State:         domain.StateIdle,
		Started:       s.now(),
	}
	defer func() {
		out.Duration = s.now().Sub(out.Started)
	}()

	if d.TipsCount < 1 {
		out.State = domain.StateFailed
		return out, fmt.Errorf("%w: tips_count должен быть не меньше 1, получено %d", domain.ErrConfiguration, d.TipsCount)
	}
	target, err := d.Target()
	if err != nil {
		out.State = domain.StateFailed
		return out, err
	}
	dispatcher, err := s.dispatchers.lookup(d.Type)
	if err != nil {
		out.State = domain.StateFailed
		return out, err
	}

	out.State = domain.StateSelecting
	tips, assigns, err := s.selector.TakeTips(ctx, d.ChannelID, d.TipsCount)
	if err != nil {
		out.State = domain.StateFailed
		return out, err
	}
	if len(tips) == 0 {
		out.State = domain.StateEmpty
		return out, nil
	}
	out.Tips = tips
	out.Assignments = assigns

	out.State = domain.StateDispatching
	if err := dispatcher.Dispatch(ctx, target, tips); err != nil {
		out.State = domain.StateFailed
		if errors.Is(err, domain.ErrConfiguration) {
			return out, err
		}
		return out, fmt.Errorf("%w: %s: %w", domain.ErrDispatch, d.Type, err)
	}
	out.Dispatched = true

	if err := s.history.RecordLogs(ctx, assigns, s.now()); err != nil {
		out.State = domain.StateFailed
		return out, fmt.Errorf("%w: журнал отправок: %w", domain.ErrStorage, err)
	}
	out.State = domain.StateLogged
	return out, nil
}
