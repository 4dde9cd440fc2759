package domain

import "time"

// DistributionState состояние запуска распространителя.
type DistributionState string

const (
	StateIdle        DistributionState = "idle"
	StateSelecting   DistributionState = "selecting"
	StateEmpty       DistributionState = "empty"
	StateDispatching DistributionState = "dispatching"
	StateLogged      DistributionState = "logged"
	StateFailed      DistributionState = "failed"
)

// Outcome результат одного запуска распространителя.
//
// Ядро не пишет логи само, вызывающий слой логирует Outcome.
type Outcome struct {
	DistributorID int64
	ChannelID     int64
	Type          DistributorType
	State         DistributionState
	Tips          []Tip
	Assignments   []Assignment
	// Dispatched true, если бэкенд принял рассылку (даже если журнал не записался).
	Dispatched bool
	Started    time.Time
	Duration   time.Duration
}

// AssignmentIDs возвращает id выбранных назначений по порядку.
func (o Outcome) AssignmentIDs() []int64 {
	ids := make([]int64, 0, len(o.Assignments))
	for _, a := range o.Assignments {
		ids = append(ids, a.ID)
	}
	return ids
}

// TipIDs возвращает id выбранных советов по порядку.
func (o Outcome) TipIDs() []int64 {
	ids := make([]int64, 0, len(o.Tips))
	for _, t := range o.Tips {
		ids = append(ids, t.ID)
	}
	return ids
}
