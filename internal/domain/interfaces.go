package domain

import (
	"context"
	"time"
)

// TipRepo управляет советами.
type TipRepo interface {
	CreateTip(ctx context.Context, tip Tip) (Tip, error)
	GetTip(ctx context.Context, id int64) (Tip, error)
	SetTipEnabled(ctx context.Context, id int64, enabled bool) error
	DeleteTip(ctx context.Context, id int64) error
}

// ChannelRepo управляет каналами.
type ChannelRepo interface {
	// UpsertChannel создаёт канал или обновляет описание канала с тем же именем.
	UpsertChannel(ctx context.Context, ch Channel) (Channel, error)
	GetChannel(ctx context.Context, id int64) (Channel, error)
	GetChannelByName(ctx context.Context, name string) (Channel, error)
	DeleteChannel(ctx context.Context, id int64) error
}

// AssignmentRepo управляет связями совет-канал.
type AssignmentRepo interface {
	// Assign связывает совет с каналом. Повторный вызов для той же пары
	// обновляет вес и возвращает существующее назначение.
	Assign(ctx context.Context, channelID, tipID int64, power int) (Assignment, error)
	DeleteAssignment(ctx context.Context, id int64) error
	// ListEligible возвращает назначения канала с включёнными советами по возрастанию id.
	ListEligible(ctx context.Context, channelID int64) ([]Assignment, error)
}

// HistoryRepo журнал отправок.
type HistoryRepo interface {
	// RecentLogs возвращает limit последних отправок канала, новые первыми.
	RecentLogs(ctx context.Context, channelID int64, limit int) ([]DistributedLog, error)
	// RecordLogs добавляет по записи на каждое назначение одним пакетом.
	RecordLogs(ctx context.Context, assignments []Assignment, at time.Time) error
	// CountLogs возвращает число записей журнала по назначению.
	CountLogs(ctx context.Context, assignmentID int64) (int, error)
}

// DistributorRepo управляет распространителями.
type DistributorRepo interface {
	CreateDistributor(ctx context.Context, d Distributor) (Distributor, error)
	GetDistributor(ctx context.Context, id int64) (Distributor, error)
	ListDistributors(ctx context.Context) ([]Distributor, error)
	DeleteDistributor(ctx context.Context, id int64) error
}

// Store объединяет все репозитории одного хранилища.
type Store interface {
	TipRepo
	ChannelRepo
	AssignmentRepo
	HistoryRepo
	DistributorRepo
	Close() error
}

// EmailSender отправляет советы письмом.
type EmailSender interface {
	SendEmail(ctx context.Context, destination, subject string, tips []Tip) error
}

// ChatSender отправляет советы в чат.
type ChatSender interface {
	SendChat(ctx context.Context, destination, username, icon string, tips []Tip) error
}

// WebhookSender отправляет советы на HTTP-вебхук.
type WebhookSender interface {
	SendWebhook(ctx context.Context, url string, tips []Tip) error
}

// Cache используется для простых TTL-блокировок.
type Cache interface {
	// Once выполняет fn, только если ключ ещё не задан. При ошибке fn ключ снимается.
	Once(ctx context.Context, key string, ttl time.Duration, fn func() error) error
	// Lock захватывает аренду ключа. ok=false, если аренда занята.
	Lock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}
