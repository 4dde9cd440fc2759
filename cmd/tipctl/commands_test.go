package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"tip-dispatcher/internal/domain"
)

type stubChannels struct {
	domain.ChannelRepo
}

func (stubChannels) GetChannel(_ context.Context, id int64) (domain.Channel, error) {
	return domain.Channel{ID: id, Name: "by-id"}, nil
}

func (stubChannels) GetChannelByName(_ context.Context, name string) (domain.Channel, error) {
	if name != "dev" {
		return domain.Channel{}, domain.ErrNotFound
	}
	return domain.Channel{ID: 1, Name: name}, nil
}

func TestResolveChannel(t *testing.T) {
	ch, err := resolveChannel(context.Background(), stubChannels{}, "42")
	if err != nil || ch.ID != 42 {
		t.Fatalf("ожидали канал по id, получили %+v, %v", ch, err)
	}
	ch, err = resolveChannel(context.Background(), stubChannels{}, "dev")
	if err != nil || ch.ID != 1 {
		t.Fatalf("ожидали канал по имени, получили %+v, %v", ch, err)
	}
	if _, err := resolveChannel(context.Background(), stubChannels{}, "ops"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("ожидали ErrNotFound, получили %v", err)
	}
}

func TestScheduleRows(t *testing.T) {
	now := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	good := domain.Distributor{
		ID:        1,
		Type:      domain.DistributorWebhook,
		Attribute: []byte(`{"webhook_url":"https://example.com/hook"}`),
		TipsCount: 1,
		Schedule:  domain.DefaultSchedule(),
	}
	badSchedule := good
	badSchedule.ID = 2
	badSchedule.Schedule.Hour = domain.ExactField(24)
	badTarget := good
	badTarget.ID = 3
	badTarget.Attribute = []byte(`{}`)

	unreadable := good
	unreadable.ID = 4
	unreadable.ScheduleErr = domain.ErrConfiguration

	rows := scheduleRows([]domain.Distributor{good, badSchedule, badTarget, unreadable}, now)
	if rows[0].Error != "" || rows[0].Next != "2024-04-01T00:00:00Z" {
		t.Fatalf("неожиданная строка: %+v", rows[0])
	}
	if rows[1].Error == "" || rows[2].Error == "" {
		t.Fatalf("ожидали ошибки для некорректных распространителей: %+v", rows[1:])
	}
	if rows[3].Error == "" || rows[3].Spec != "" {
		t.Fatalf("нечитаемое расписание должно попасть в ошибку: %+v", rows[3])
	}
}
