package distribution

import (
	"context"
	"fmt"

	"tip-dispatcher/internal/domain"
)

// Dispatcher доставляет пачку советов через один тип бэкенда.
type Dispatcher interface {
	Type() domain.DistributorType
	Dispatch(ctx context.Context, target domain.Target, tips []domain.Tip) error
}

// EmailDispatcher отправляет советы письмом.
type EmailDispatcher struct {
	Sender domain.EmailSender
}

// Type реализует Dispatcher.
func (EmailDispatcher) Type() domain.DistributorType { return domain.DistributorEmail }

// Dispatch реализует Dispatcher.
func (d EmailDispatcher) Dispatch(ctx context.Context, target domain.Target, tips []domain.Tip) error {
	t, ok := target.(domain.EmailTarget)
	if !ok {
		return targetMismatch(d.Type(), target)
	}
	return d.Sender.SendEmail(ctx, t.Destination, t.Subject, tips)
}

// ChatDispatcher отправляет советы в чат.
type ChatDispatcher struct {
	Sender domain.ChatSender
}

// Type реализует Dispatcher.
func (ChatDispatcher) Type() domain.DistributorType { return domain.DistributorChat }

// Dispatch реализует Dispatcher.
func (d ChatDispatcher) Dispatch(ctx context.Context, target domain.Target, tips []domain.Tip) error {
	t, ok := target.(domain.ChatTarget)
	if !ok {
		return targetMismatch(d.Type(), target)
	}
	return d.Sender.SendChat(ctx, t.Destination, t.Username, t.Icon, tips)
}

// WebhookDispatcher отправляет советы на вебхук.
type WebhookDispatcher struct {
	Sender domain.WebhookSender
}

// Type реализует Dispatcher.
func (WebhookDispatcher) Type() domain.DistributorType { return domain.DistributorWebhook }

// Dispatch реализует Dispatcher.
func (d WebhookDispatcher) Dispatch(ctx context.Context, target domain.Target, tips []domain.Tip) error {
	t, ok := target.(domain.WebhookTarget)
	if !ok {
		return targetMismatch(d.Type(), target)
	}
	return d.Sender.SendWebhook(ctx, t.URL, tips)
}

func targetMismatch(typ domain.DistributorType, target domain.Target) error {
	return fmt.Errorf("%w: бэкенд %s не принимает настройки %T", domain.ErrConfiguration, typ, target)
}

// Registry сопоставляет тип распространителя с его бэкендом.
type Registry map[domain.DistributorType]Dispatcher

// NewRegistry собирает реестр. Пустые значения пропускаются.
func NewRegistry(dispatchers ...Dispatcher) Registry {
	r := make(Registry, len(dispatchers))
	for _, d := range dispatchers {
		if d == nil {
			continue
		}
		r[d.Type()] = d
	}
	return r
}

func (r Registry) lookup(typ domain.DistributorType) (Dispatcher, error) {
	d, ok := r[typ]
	if !ok {
		return nil, fmt.Errorf("%w: бэкенд для типа %s не настроен", domain.ErrConfiguration, typ)
	}
	return d, nil
}
