package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ScheduleAny значение поля расписания "любое".
const ScheduleAny = "*"

// ScheduleField поле расписания: "*" или конкретное число.
//
// Поле помнит, в каком виде пришло из JSON (число или строка),
// чтобы расписание сохранялось в хранилище без изменений.
type ScheduleField struct {
	value   string
	numeric bool
}

// AnyField возвращает поле "*".
func AnyField() ScheduleField { return ScheduleField{value: ScheduleAny} }

// ExactField возвращает поле с конкретным числом.
func ExactField(v int) ScheduleField {
	return ScheduleField{value: strconv.Itoa(v), numeric: true}
}

// IsAny сообщает, что поле совпадает с любым значением.
func (f ScheduleField) IsAny() bool { return f.value == "" || f.value == ScheduleAny }

// Value возвращает конкретное значение поля. Для "*" ok=false.
func (f ScheduleField) Value() (int, bool) {
	if f.IsAny() {
		return 0, false
	}
	v, err := strconv.Atoi(f.value)
	if err != nil {
		return 0, false
	}
	return v, true
}

// String возвращает поле в записи cron.
func (f ScheduleField) String() string {
	if f.IsAny() {
		return ScheduleAny
	}
	return f.value
}

// MarshalJSON сохраняет исходный вид поля.
func (f ScheduleField) MarshalJSON() ([]byte, error) {
	if f.numeric && !f.IsAny() {
		return []byte(f.value), nil
	}
	return json.Marshal(f.String())
}

// UnmarshalJSON принимает число или строку.
func (f *ScheduleField) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*f = AnyField()
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			s = ScheduleAny
		}
		*f = ScheduleField{value: s}
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return fmt.Errorf("поле расписания должно быть числом или строкой: %w", err)
	}
	v, err := n.Int64()
	if err != nil {
		return fmt.Errorf("поле расписания должно быть целым: %w", err)
	}
	*f = ScheduleField{value: strconv.FormatInt(v, 10), numeric: true}
	return nil
}

// Schedule расписание в стиле cron: каждое поле "*" или точное значение.
type Schedule struct {
	Month     ScheduleField `json:"month"`
	Day       ScheduleField `json:"day"`
	DayOfWeek ScheduleField `json:"day_of_week"`
	Hour      ScheduleField `json:"hour"`
	Minute    ScheduleField `json:"minute"`
}

// DefaultSchedule расписание по умолчанию: первого числа каждого месяца, каждую минуту.
func DefaultSchedule() Schedule {
	return Schedule{
		Month:     AnyField(),
		Day:       ExactField(1),
		DayOfWeek: AnyField(),
		Hour:      AnyField(),
		Minute:    AnyField(),
	}
}

// ParseSchedule разбирает расписание из JSON. Пустое значение даёт DefaultSchedule.
func ParseSchedule(raw []byte) (Schedule, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return DefaultSchedule(), nil
	}
	var s Schedule
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return Schedule{}, fmt.Errorf("%w: расписание: %v", ErrConfiguration, err)
	}
	return s, nil
}

type scheduleBound struct {
	name     string
	field    ScheduleField
	min, max int
}

func (s Schedule) bounds() []scheduleBound {
	return []scheduleBound{
		{"minute", s.Minute, 0, 59},
		{"hour", s.Hour, 0, 23},
		{"day", s.Day, 1, 31},
		{"month", s.Month, 1, 12},
		{"day_of_week", s.DayOfWeek, 0, 6},
	}
}

// Validate проверяет, что каждое поле "*" или число в допустимом диапазоне.
func (s Schedule) Validate() error {
	for _, b := range s.bounds() {
		if b.field.IsAny() {
			continue
		}
		v, ok := b.field.Value()
		if !ok {
			return fmt.Errorf("%w: поле расписания %s: ожидалось \"*\" или число, получено %q", ErrConfiguration, b.name, b.field.value)
		}
		if v < b.min || v > b.max {
			return fmt.Errorf("%w: поле расписания %s=%d вне диапазона %d..%d", ErrConfiguration, b.name, v, b.min, b.max)
		}
	}
	return nil
}

// CronSpec возвращает стандартную cron-строку "минута час день месяц день_недели".
// День недели считается по cron: 0 это воскресенье.
func (s Schedule) CronSpec() string {
	return strings.Join([]string{
		s.Minute.String(),
		s.Hour.String(),
		s.Day.String(),
		s.Month.String(),
		s.DayOfWeek.String(),
	}, " ")
}
