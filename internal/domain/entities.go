package domain

import "time"

// DefaultPower вес назначения по умолчанию.
const DefaultPower = 100

// Tip описывает короткий совет, который рассылается в каналы.
type Tip struct {
	ID        int64
	Title     string
	Text      string
	Enabled   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Channel описывает именованную цель доставки со своим пулом советов.
type Channel struct {
	ID          int64
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Assignment связывает совет с каналом. Пара (TipID, ChannelID) уникальна.
type Assignment struct {
	ID        int64
	ChannelID int64
	TipID     int64
	Power     int
	CreatedAt time.Time
	UpdatedAt time.Time
	Tip       Tip
}

// DistributedLog фиксирует факт отправки назначения.
type DistributedLog struct {
	ID            int64
	AssignmentID  int64
	DistributedAt time.Time
}

// Distributor описывает регулярную рассылку советов одного канала.
type Distributor struct {
	ID        int64
	ChannelID int64
	Type      DistributorType
	// Attribute хранит настройки бэкенда в исходном виде (JSON).
	Attribute []byte
	TipsCount int
	Schedule  Schedule
	CreatedAt time.Time
	UpdatedAt time.Time

	// ScheduleErr заполняется в списке, если сохранённое расписание не разбирается.
	// Остальные поля при этом валидны.
	ScheduleErr error
}
