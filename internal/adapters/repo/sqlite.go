package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"tip-dispatcher/internal/domain"
	"tip-dispatcher/internal/infra/metrics"
)

// Время хранится текстом фиксированной ширины в UTC, чтобы сортировка
// строк совпадала с хронологической.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLite реализует репозитории поверх database/sql и modernc.org/sqlite.
type SQLite struct {
	db *sql.DB
	q  queries
}

var _ domain.Store = (*SQLite)(nil)

// NewSQLite создаёт адаптер. db должен быть открыт через db.OpenSQLite.
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db, q: newQueries(sq.Question)}
}

// Close закрывает подключение.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func sqliteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseSQLiteTime(raw string) (time.Time, error) {
	for _, layout := range []string{sqliteTimeLayout, time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("sqlite: неизвестный формат времени %q", raw)
}

// sqliteTimeScanner читает время, сохранённое текстом.
type sqliteTimeScanner struct {
	dst *time.Time
}

func (t sqliteTimeScanner) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*t.dst = time.Time{}
		return nil
	case time.Time:
		*t.dst = v.UTC()
		return nil
	case string:
		parsed, err := parseSQLiteTime(v)
		if err != nil {
			return err
		}
		*t.dst = parsed
		return nil
	case []byte:
		parsed, err := parseSQLiteTime(string(v))
		if err != nil {
			return err
		}
		*t.dst = parsed
		return nil
	default:
		return fmt.Errorf("sqlite: не удалось прочитать время из %T", src)
	}
}

func ts(dst *time.Time) sqliteTimeScanner { return sqliteTimeScanner{dst: dst} }

func (s *SQLite) queryRow(ctx context.Context, op, table string, b sq.Sqlizer, dest ...any) error {
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("build %s: %w", op, err)
	}
	start := time.Now()
	err = s.db.QueryRowContext(ctx, query, args...).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		metrics.ObserveNetworkRequest("sqlite", op, table, start, nil)
		return domain.ErrNotFound
	}
	metrics.ObserveNetworkRequest("sqlite", op, table, start, err)
	return err
}

func (s *SQLite) exec(ctx context.Context, op, table string, b sq.Sqlizer, mustAffect bool) error {
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("build %s: %w", op, err)
	}
	start := time.Now()
	res, err := s.db.ExecContext(ctx, query, args...)
	metrics.ObserveNetworkRequest("sqlite", op, table, start, err)
	if err != nil {
		return err
	}
	if !mustAffect {
		return nil
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// CreateTip реализует domain.TipRepo.
func (s *SQLite) CreateTip(ctx context.Context, tip domain.Tip) (domain.Tip, error) {
	now := utcNow()
	if err := s.queryRow(ctx, "tips_insert", "tips", s.q.insertTip(tip, sqliteTime(now)), &tip.ID); err != nil {
		return domain.Tip{}, err
	}
	tip.CreatedAt, tip.UpdatedAt = now, now
	return tip, nil
}

// GetTip реализует domain.TipRepo.
func (s *SQLite) GetTip(ctx context.Context, id int64) (domain.Tip, error) {
	var t domain.Tip
	err := s.queryRow(ctx, "tips_get", "tips", s.q.getTip(id), &t.ID, &t.Title, &t.Text, &t.Enabled, ts(&t.CreatedAt), ts(&t.UpdatedAt))
	return t, err
}

// SetTipEnabled реализует domain.TipRepo.
func (s *SQLite) SetTipEnabled(ctx context.Context, id int64, enabled bool) error {
	return s.exec(ctx, "tips_set_enabled", "tips", s.q.setTipEnabled(id, enabled, sqliteTime(utcNow())), true)
}

// DeleteTip реализует domain.TipRepo.
func (s *SQLite) DeleteTip(ctx context.Context, id int64) error {
	return s.exec(ctx, "tips_delete", "tips", s.q.deleteByID("tips", id), true)
}

// UpsertChannel реализует domain.ChannelRepo.
func (s *SQLite) UpsertChannel(ctx context.Context, ch domain.Channel) (domain.Channel, error) {
	var out domain.Channel
	err := s.queryRow(ctx, "channels_upsert", "channels", s.q.upsertChannel(ch, sqliteTime(utcNow())),
		&out.ID, &out.Name, &out.Description, ts(&out.CreatedAt), ts(&out.UpdatedAt))
	return out, err
}

// GetChannel реализует domain.ChannelRepo.
func (s *SQLite) GetChannel(ctx context.Context, id int64) (domain.Channel, error) {
	return s.getChannel(ctx, sq.Eq{"id": id})
}

// GetChannelByName реализует domain.ChannelRepo.
func (s *SQLite) GetChannelByName(ctx context.Context, name string) (domain.Channel, error) {
	return s.getChannel(ctx, sq.Eq{"name": name})
}

func (s *SQLite) getChannel(ctx context.Context, where sq.Eq) (domain.Channel, error) {
	var ch domain.Channel
	err := s.queryRow(ctx, "channels_get", "channels", s.q.getChannel(where),
		&ch.ID, &ch.Name, &ch.Description, ts(&ch.CreatedAt), ts(&ch.UpdatedAt))
	return ch, err
}

// DeleteChannel реализует domain.ChannelRepo.
func (s *SQLite) DeleteChannel(ctx context.Context, id int64) error {
	return s.exec(ctx, "channels_delete", "channels", s.q.deleteByID("channels", id), true)
}

// Assign реализует domain.AssignmentRepo.
func (s *SQLite) Assign(ctx context.Context, channelID, tipID int64, power int) (domain.Assignment, error) {
	var a domain.Assignment
	err := s.queryRow(ctx, "assignments_upsert", "assignments", s.q.assign(channelID, tipID, power, sqliteTime(utcNow())),
		&a.ID, &a.ChannelID, &a.TipID, &a.Power, ts(&a.CreatedAt), ts(&a.UpdatedAt))
	return a, err
}

// DeleteAssignment реализует domain.AssignmentRepo.
func (s *SQLite) DeleteAssignment(ctx context.Context, id int64) error {
	return s.exec(ctx, "assignments_delete", "assignments", s.q.deleteByID("assignments", id), true)
}

// ListEligible реализует domain.AssignmentRepo.
func (s *SQLite) ListEligible(ctx context.Context, channelID int64) ([]domain.Assignment, error) {
	query, args, err := s.q.listEligible(channelID, 1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build assignments_eligible: %w", err)
	}
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query, args...)
	metrics.ObserveNetworkRequest("sqlite", "assignments_eligible", "assignments", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Assignment
	for rows.Next() {
		var a domain.Assignment
		if err := rows.Scan(&a.ID, &a.ChannelID, &a.TipID, &a.Power, ts(&a.CreatedAt), ts(&a.UpdatedAt),
			&a.Tip.ID, &a.Tip.Title, &a.Tip.Text, &a.Tip.Enabled, ts(&a.Tip.CreatedAt), ts(&a.Tip.UpdatedAt)); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// RecentLogs реализует domain.HistoryRepo.
func (s *SQLite) RecentLogs(ctx context.Context, channelID int64, limit int) ([]domain.DistributedLog, error) {
	if limit <= 0 {
		return nil, nil
	}
	query, args, err := s.q.recentLogs(channelID, limit).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build logs_recent: %w", err)
	}
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query, args...)
	metrics.ObserveNetworkRequest("sqlite", "logs_recent", "distributed_logs", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]domain.DistributedLog, 0, limit)
	for rows.Next() {
		var l domain.DistributedLog
		if err := rows.Scan(&l.ID, &l.AssignmentID, ts(&l.DistributedAt)); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// RecordLogs реализует domain.HistoryRepo одним INSERT в транзакции.
func (s *SQLite) RecordLogs(ctx context.Context, assignments []domain.Assignment, at time.Time) error {
	if len(assignments) == 0 {
		return nil
	}
	query, args, err := s.q.insertLogs(assignments, sqliteTime(at)).ToSql()
	if err != nil {
		return fmt.Errorf("build logs_insert: %w", err)
	}
	start := time.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		metrics.ObserveNetworkRequest("sqlite", "logs_insert", "distributed_logs", start, err)
		return err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		_ = tx.Rollback()
		metrics.ObserveNetworkRequest("sqlite", "logs_insert", "distributed_logs", start, err)
		return err
	}
	err = tx.Commit()
	metrics.ObserveNetworkRequest("sqlite", "logs_insert", "distributed_logs", start, err)
	return err
}

// CountLogs реализует domain.HistoryRepo.
func (s *SQLite) CountLogs(ctx context.Context, assignmentID int64) (int, error) {
	var n int
	err := s.queryRow(ctx, "logs_count", "distributed_logs", s.q.countLogs(assignmentID), &n)
	return n, err
}

// CreateDistributor реализует domain.DistributorRepo.
func (s *SQLite) CreateDistributor(ctx context.Context, d domain.Distributor) (domain.Distributor, error) {
	schedule, err := encodeSchedule(d.Schedule)
	if err != nil {
		return domain.Distributor{}, err
	}
	now := utcNow()
	if err := s.queryRow(ctx, "distributors_insert", "distributors", s.q.insertDistributor(d, schedule, sqliteTime(now)), &d.ID); err != nil {
		return domain.Distributor{}, err
	}
	d.Attribute = normalizeAttribute(d.Attribute)
	d.CreatedAt, d.UpdatedAt = now, now
	return d, nil
}

// GetDistributor реализует domain.DistributorRepo.
func (s *SQLite) GetDistributor(ctx context.Context, id int64) (domain.Distributor, error) {
	var (
		d        domain.Distributor
		typ      string
		attr     string
		schedule string
	)
	err := s.queryRow(ctx, "distributors_get", "distributors", s.q.getDistributors().Where(sq.Eq{"id": id}),
		&d.ID, &d.ChannelID, &typ, &attr, &d.TipsCount, &schedule, ts(&d.CreatedAt), ts(&d.UpdatedAt))
	if err != nil {
		return domain.Distributor{}, err
	}
	return finishDistributor(d, typ, attr, []byte(schedule))
}

// ListDistributors реализует domain.DistributorRepo.
func (s *SQLite) ListDistributors(ctx context.Context) ([]domain.Distributor, error) {
	query, args, err := s.q.getDistributors().ToSql()
	if err != nil {
		return nil, fmt.Errorf("build distributors_list: %w", err)
	}
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query, args...)
	metrics.ObserveNetworkRequest("sqlite", "distributors_list", "distributors", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Distributor
	for rows.Next() {
		var (
			d        domain.Distributor
			typ      string
			attr     string
			schedule string
		)
		if err := rows.Scan(&d.ID, &d.ChannelID, &typ, &attr, &d.TipsCount, &schedule, ts(&d.CreatedAt), ts(&d.UpdatedAt)); err != nil {
			return nil, err
		}
		out = append(out, listedDistributor(d, typ, attr, []byte(schedule)))
	}
	return out, rows.Err()
}

// DeleteDistributor реализует domain.DistributorRepo.
func (s *SQLite) DeleteDistributor(ctx context.Context, id int64) error {
	return s.exec(ctx, "distributors_delete", "distributors", s.q.deleteByID("distributors", id), true)
}
