package log

import (
	"errors"

	"github.com/rs/zerolog"

	"tip-dispatcher/internal/domain"
)

// Outcome пишет результат запуска распространителя.
//
// Ошибки настройки и доставки идут уровнем error, пустая выборка уровнем warn.
func Outcome(logger zerolog.Logger, prefix string, out domain.Outcome, err error) {
	var ev *zerolog.Event
	switch {
	case err != nil:
		ev = logger.Error().Err(err)
	case out.State == domain.StateEmpty:
		ev = logger.Warn()
	default:
		ev = logger.Info()
	}
	ev = ev.
		Int64("distributor", out.DistributorID).
		Int64("channel", out.ChannelID).
		Str("type", string(out.Type)).
		Str("state", string(out.State)).
		Bool("dispatched", out.Dispatched).
		Ints64("assignments", out.AssignmentIDs()).
		Ints64("tips", out.TipIDs()).
		Dur("duration", out.Duration)

	switch {
	case errors.Is(err, domain.ErrConfiguration):
		ev.Msg(prefix + ": распространитель настроен неверно")
	case errors.Is(err, domain.ErrDispatch):
		ev.Msg(prefix + ": бэкенд не принял рассылку")
	case err != nil && out.Dispatched:
		ev.Msg(prefix + ": рассылка отправлена, но журнал не записан")
	case err != nil:
		ev.Msg(prefix + ": рассылка не выполнена")
	case out.State == domain.StateEmpty:
		ev.Msg(prefix + ": у канала нет доступных советов")
	default:
		ev.Msg(prefix + ": рассылка выполнена")
	}
}
