package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tip-dispatcher/internal/domain"
	"tip-dispatcher/internal/infra/cache"
	"tip-dispatcher/internal/infra/db"
	"tip-dispatcher/internal/usecase/schedule"
	"tip-dispatcher/internal/usecase/selection"
)

func newTestStore(t *testing.T) *SQLite {
	t.Helper()
	conn, err := db.OpenSQLite(context.Background(), db.MemoryDSN)
	if err != nil {
		t.Fatalf("открытие sqlite: %v", err)
	}
	if err := MigrateSQLite(conn); err != nil {
		t.Fatalf("миграции: %v", err)
	}
	store := NewSQLite(conn)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedChannel(t *testing.T, s *SQLite, name string, tips ...string) (domain.Channel, []domain.Assignment) {
	t.Helper()
	ctx := context.Background()
	ch, err := s.UpsertChannel(ctx, domain.Channel{Name: name})
	if err != nil {
		t.Fatalf("сохранение канала: %v", err)
	}
	var assigns []domain.Assignment
	for _, title := range tips {
		tip, err := s.CreateTip(ctx, domain.Tip{Title: title, Text: title + " text", Enabled: true})
		if err != nil {
			t.Fatalf("создание совета: %v", err)
		}
		a, err := s.Assign(ctx, ch.ID, tip.ID, domain.DefaultPower)
		if err != nil {
			t.Fatalf("назначение: %v", err)
		}
		assigns = append(assigns, a)
	}
	return ch, assigns
}

func TestSQLiteTipLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tip, err := s.CreateTip(ctx, domain.Tip{Title: "Коммиты", Text: "мелкие", Enabled: true})
	if err != nil {
		t.Fatalf("создание: %v", err)
	}
	got, err := s.GetTip(ctx, tip.ID)
	if err != nil {
		t.Fatalf("чтение: %v", err)
	}
	if got.Title != "Коммиты" || !got.Enabled || got.CreatedAt.IsZero() {
		t.Fatalf("неожиданный совет: %+v", got)
	}
	if err := s.SetTipEnabled(ctx, tip.ID, false); err != nil {
		t.Fatalf("выключение: %v", err)
	}
	if got, _ := s.GetTip(ctx, tip.ID); got.Enabled {
		t.Fatal("совет должен быть выключен")
	}
	if _, err := s.GetTip(ctx, 999); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("ожидали ErrNotFound, получили %v", err)
	}
	if err := s.DeleteTip(ctx, 999); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("ожидали ErrNotFound при удалении, получили %v", err)
	}
}

func TestSQLiteChannelUpsertKeepsID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	first, err := s.UpsertChannel(ctx, domain.Channel{Name: "dev", Description: "a"})
	if err != nil {
		t.Fatalf("сохранение: %v", err)
	}
	second, err := s.UpsertChannel(ctx, domain.Channel{Name: "dev", Description: "b"})
	if err != nil {
		t.Fatalf("сохранение: %v", err)
	}
	if first.ID != second.ID || second.Description != "b" {
		t.Fatalf("ожидали тот же канал с новым описанием, получили %+v / %+v", first, second)
	}
	byName, err := s.GetChannelByName(ctx, "dev")
	if err != nil || byName.ID != first.ID {
		t.Fatalf("поиск по имени: %+v %v", byName, err)
	}
}

func TestSQLiteAssignIsUniquePerPair(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ch, assigns := seedChannel(t, s, "dev", "a")
	again, err := s.Assign(ctx, ch.ID, assigns[0].TipID, 5)
	if err != nil {
		t.Fatalf("повторное назначение: %v", err)
	}
	if again.ID != assigns[0].ID || again.Power != 5 {
		t.Fatalf("ожидали обновление power у того же назначения, получили %+v", again)
	}
	eligible, err := s.ListEligible(ctx, ch.ID)
	if err != nil || len(eligible) != 1 {
		t.Fatalf("ожидали одно назначение, получили %d (%v)", len(eligible), err)
	}
}

func TestSQLiteListEligibleSkipsDisabled(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ch, assigns := seedChannel(t, s, "dev", "a", "b", "c")
	if err := s.SetTipEnabled(ctx, assigns[1].TipID, false); err != nil {
		t.Fatalf("выключение: %v", err)
	}
	other, _ := seedChannel(t, s, "ops", "x")
	_ = other

	eligible, err := s.ListEligible(ctx, ch.ID)
	if err != nil {
		t.Fatalf("список: %v", err)
	}
	if len(eligible) != 2 || eligible[0].ID != assigns[0].ID || eligible[1].ID != assigns[2].ID {
		t.Fatalf("неожиданный пул: %+v", eligible)
	}
	if eligible[0].Tip.Title != "a" || !eligible[0].Tip.Enabled {
		t.Fatalf("совет должен быть заполнен: %+v", eligible[0].Tip)
	}
}

func TestSQLiteRecentLogsNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ch, assigns := seedChannel(t, s, "dev", "a", "b", "c")
	other, otherAssigns := seedChannel(t, s, "ops", "x")
	_ = other

	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	if err := s.RecordLogs(ctx, assigns[:2], base); err != nil {
		t.Fatalf("запись журнала: %v", err)
	}
	if err := s.RecordLogs(ctx, assigns[2:], base.Add(500*time.Millisecond)); err != nil {
		t.Fatalf("запись журнала: %v", err)
	}
	if err := s.RecordLogs(ctx, otherAssigns, base.Add(time.Hour)); err != nil {
		t.Fatalf("запись журнала: %v", err)
	}

	logs, err := s.RecentLogs(ctx, ch.ID, 2)
	if err != nil {
		t.Fatalf("последние отправки: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("ожидали 2 записи, получили %d", len(logs))
	}
	if logs[0].AssignmentID != assigns[2].ID || logs[1].AssignmentID != assigns[1].ID {
		t.Fatalf("неожиданный порядок: %+v", logs)
	}
	if !logs[0].DistributedAt.Equal(base.Add(500 * time.Millisecond)) {
		t.Fatalf("время должно сохраняться без искажений, получили %v", logs[0].DistributedAt)
	}
	if n, _ := s.CountLogs(ctx, assigns[0].ID); n != 1 {
		t.Fatalf("ожидали одну запись для первого назначения, получили %d", n)
	}
}

func TestSQLiteCascadeDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ch, assigns := seedChannel(t, s, "dev", "a", "b")
	if err := s.RecordLogs(ctx, assigns, time.Now()); err != nil {
		t.Fatalf("запись журнала: %v", err)
	}

	if err := s.DeleteTip(ctx, assigns[0].TipID); err != nil {
		t.Fatalf("удаление совета: %v", err)
	}
	if n, _ := s.CountLogs(ctx, assigns[0].ID); n != 0 {
		t.Fatalf("записи удалённого совета должны удаляться, осталось %d", n)
	}
	if n, _ := s.CountLogs(ctx, assigns[1].ID); n != 1 {
		t.Fatalf("остальные записи должны остаться, получили %d", n)
	}

	d, err := s.CreateDistributor(ctx, domain.Distributor{
		ChannelID: ch.ID,
		Type:      domain.DistributorWebhook,
		Attribute: []byte(`{"webhook_url":"https://example.com"}`),
		TipsCount: 1,
		Schedule:  domain.DefaultSchedule(),
	})
	if err != nil {
		t.Fatalf("создание распространителя: %v", err)
	}
	if err := s.DeleteChannel(ctx, ch.ID); err != nil {
		t.Fatalf("удаление канала: %v", err)
	}
	if n, _ := s.CountLogs(ctx, assigns[1].ID); n != 0 {
		t.Fatalf("записи удалённого канала должны удаляться, осталось %d", n)
	}
	if _, err := s.GetDistributor(ctx, d.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("распространитель должен удаляться вместе с каналом, получили %v", err)
	}
}

func TestSQLiteDistributorRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ch, _ := seedChannel(t, s, "dev")

	sched := domain.Schedule{
		Month:     domain.AnyField(),
		Day:       domain.AnyField(),
		DayOfWeek: domain.ExactField(1),
		Hour:      domain.ExactField(9),
		Minute:    domain.ExactField(30),
	}
	created, err := s.CreateDistributor(ctx, domain.Distributor{
		ChannelID: ch.ID,
		Type:      domain.DistributorEmail,
		Attribute: []byte(`[{"key":"email","value":"team@example.com"}]`),
		TipsCount: 3,
		Schedule:  sched,
	})
	if err != nil {
		t.Fatalf("создание: %v", err)
	}
	got, err := s.GetDistributor(ctx, created.ID)
	if err != nil {
		t.Fatalf("чтение: %v", err)
	}
	if got.Schedule.CronSpec() != "30 9 * * 1" {
		t.Fatalf("неожиданное расписание: %s", got.Schedule.CronSpec())
	}
	if string(got.Attribute) != `[{"key":"email","value":"team@example.com"}]` {
		t.Fatalf("атрибуты должны сохраняться как есть, получили %s", got.Attribute)
	}
	if _, err := got.Target(); err != nil {
		t.Fatalf("настройки бэкенда: %v", err)
	}

	list, err := s.ListDistributors(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("список: %d %v", len(list), err)
	}
}

func TestSQLiteCorruptScheduleDoesNotBlockSync(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ch, _ := seedChannel(t, s, "dev")

	good, err := s.CreateDistributor(ctx, domain.Distributor{
		ChannelID: ch.ID,
		Type:      domain.DistributorWebhook,
		Attribute: []byte(`{"webhook_url":"https://example.com/hook"}`),
		TipsCount: 1,
		Schedule:  domain.DefaultSchedule(),
	})
	if err != nil {
		t.Fatalf("создание: %v", err)
	}
	now := sqliteTime(time.Now())
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO distributors (channel_id, type, attribute, tips_count, schedule, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ch.ID, "Webhook", `{"webhook_url":"https://example.com/other"}`, 1, `{"hour":9.5}`, now, now); err != nil {
		t.Fatalf("вставка битой строки: %v", err)
	}

	svc := schedule.NewService(s, cache.NewMemory(), func(context.Context, domain.Distributor, time.Time) error { return nil }, zerolog.Nop())
	n, err := svc.Sync(ctx)
	if err != nil {
		t.Fatalf("синхронизация не должна падать из-за одной строки: %v", err)
	}
	if _, ok := svc.Specs()[good.ID]; n != 1 || !ok {
		t.Fatalf("ожидали расписание только у распространителя %d, получили %v", good.ID, svc.Specs())
	}
}

func TestSQLiteRejectsZeroTipsCount(t *testing.T) {
	s := newTestStore(t)
	ch, _ := seedChannel(t, s, "dev")
	_, err := s.CreateDistributor(context.Background(), domain.Distributor{
		ChannelID: ch.ID,
		Type:      domain.DistributorWebhook,
		TipsCount: 0,
		Schedule:  domain.DefaultSchedule(),
	})
	if err == nil {
		t.Fatal("ожидали нарушение CHECK")
	}
}

func TestSQLiteSelectionRotation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ch, assigns := seedChannel(t, s, "dev", "a", "b", "c")
	svc := selection.NewService(s, s)

	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var got []int64
	for i := 0; i < 3; i++ {
		_, chosen, err := svc.TakeTips(ctx, ch.ID, 1)
		if err != nil {
			t.Fatalf("выбор: %v", err)
		}
		if len(chosen) != 1 {
			t.Fatalf("ожидали одно назначение, получили %d", len(chosen))
		}
		got = append(got, chosen[0].ID)
		at = at.Add(time.Minute)
		if err := s.RecordLogs(ctx, chosen, at); err != nil {
			t.Fatalf("запись журнала: %v", err)
		}
	}
	for i, a := range assigns {
		if got[i] != a.ID {
			t.Fatalf("ожидали обход всего пула, получили %v", got)
		}
	}
}
