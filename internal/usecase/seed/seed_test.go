package seed

import (
	"context"
	"errors"
	"strings"
	"testing"

	"tip-dispatcher/internal/adapters/repo"
	"tip-dispatcher/internal/domain"
	"tip-dispatcher/internal/infra/db"
)

const sample = `
channels:
  - name: dev
    description: Команда разработки
  - name: ops
tips:
  - title: Тесты
    text: Пишите тесты до исправления бага
    channels: [dev]
  - title: Бэкапы
    text: Проверяйте восстановление из бэкапа
    channels: [dev, ops]
    power: 50
  - title: Черновик
    enabled: false
    channels: [ops]
distributors:
  - channel: dev
    type: Slack
    tips_count: 2
    attribute:
      - {key: channel, value: "#dev"}
      - {key: username, value: tipbot}
      - {key: icon, value: ":bulb:"}
    schedule: {minute: 0, hour: 9, day: "*", month: "*", day_of_week: 1}
  - channel: ops
    type: Webhook
    attribute:
      webhook_url: https://ops.example.com/tips
`

func newStore(t *testing.T) domain.Store {
	t.Helper()
	conn, err := db.OpenSQLite(context.Background(), db.MemoryDSN)
	if err != nil {
		t.Fatalf("открытие sqlite: %v", err)
	}
	if err := repo.MigrateSQLite(conn); err != nil {
		t.Fatalf("миграции: %v", err)
	}
	s := repo.NewSQLite(conn)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestApply(t *testing.T) {
	f, err := Parse(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("не ожидали ошибку разбора: %v", err)
	}
	store := newStore(t)
	rep, err := Apply(context.Background(), store, f)
	if err != nil {
		t.Fatalf("не ожидали ошибку импорта: %v", err)
	}
	if rep != (Report{Channels: 2, Tips: 3, Assignments: 4, Distributors: 2}) {
		t.Fatalf("неожиданный отчёт: %+v", rep)
	}

	ops, err := store.GetChannelByName(context.Background(), "ops")
	if err != nil {
		t.Fatalf("канал ops: %v", err)
	}
	eligible, err := store.ListEligible(context.Background(), ops.ID)
	if err != nil {
		t.Fatalf("назначения ops: %v", err)
	}
	if len(eligible) != 1 || eligible[0].Tip.Title != "Бэкапы" || eligible[0].Power != 50 {
		t.Fatalf("ожидали только включённый совет с весом 50, получили %+v", eligible)
	}

	dists, err := store.ListDistributors(context.Background())
	if err != nil {
		t.Fatalf("распространители: %v", err)
	}
	if len(dists) != 2 {
		t.Fatalf("ожидали 2 распространителя, получили %d", len(dists))
	}
	if dists[0].Type != domain.DistributorChat || dists[0].TipsCount != 2 || dists[0].Schedule.CronSpec() != "0 9 * * 1" {
		t.Fatalf("неожиданный чат-распространитель: %+v", dists[0])
	}
	if dists[1].TipsCount != 1 || dists[1].Schedule.CronSpec() != domain.DefaultSchedule().CronSpec() {
		t.Fatalf("ожидали значения по умолчанию, получили %+v", dists[1])
	}
	target, err := dists[1].Target()
	if err != nil || target.(domain.WebhookTarget).URL != "https://ops.example.com/tips" {
		t.Fatalf("неожиданные настройки вебхука: %v, %v", target, err)
	}
}

func TestApplyRejectsBeforeWriting(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "unknown channel", doc: "channels: [{name: dev}]\ntips: [{title: A, channels: [ops]}]"},
		{name: "missing attribute", doc: "channels: [{name: dev}]\ndistributors: [{channel: dev, type: Email, attribute: {email: a@example.com}}]"},
		{name: "bad schedule", doc: "channels: [{name: dev}]\ndistributors: [{channel: dev, type: Webhook, attribute: {webhook_url: 'https://x.io'}, schedule: {hour: 30}}]"},
		{name: "unknown type", doc: "channels: [{name: dev}]\ndistributors: [{channel: dev, type: Pager}]"},
		{name: "empty title", doc: "channels: [{name: dev}]\ntips: [{text: no title}]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Parse(strings.NewReader(tt.doc))
			if err != nil {
				t.Fatalf("не ожидали ошибку разбора: %v", err)
			}
			store := newStore(t)
			if _, err := Apply(context.Background(), store, f); !errors.Is(err, domain.ErrConfiguration) {
				t.Fatalf("ожидали ErrConfiguration, получили %v", err)
			}
			if _, err := store.GetChannelByName(context.Background(), "dev"); !errors.Is(err, domain.ErrNotFound) {
				t.Fatalf("ничего не должно записываться, получили %v", err)
			}
		})
	}
}

func TestParseUnknownField(t *testing.T) {
	if _, err := ParseBytes([]byte("channels: [{name: dev, colour: red}]")); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("ожидали ErrConfiguration, получили %v", err)
	}
	f, err := ParseBytes(nil)
	if err != nil || len(f.Channels) != 0 {
		t.Fatalf("пустой файл допустим, получили %+v, %v", f, err)
	}
}
