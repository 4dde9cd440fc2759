package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tip-dispatcher/internal/domain"
	"tip-dispatcher/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
	q    queries
}

var _ domain.Store = (*Postgres)(nil)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool, q: newQueries(sq.Dollar)}
}

// Close закрывает пул.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

func (p *Postgres) queryRow(ctx context.Context, op, table string, b sq.Sqlizer, dest ...any) error {
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("build %s: %w", op, err)
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	err = p.pool.QueryRow(ctx, query, args...).Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		metrics.ObserveNetworkRequest("postgres", op, table, start, nil)
		return domain.ErrNotFound
	}
	metrics.ObserveNetworkRequest("postgres", op, table, start, err)
	return err
}

func (p *Postgres) exec(ctx context.Context, op, table string, b sq.Sqlizer, mustAffect bool) error {
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("build %s: %w", op, err)
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	tag, err := p.pool.Exec(ctx, query, args...)
	metrics.ObserveNetworkRequest("postgres", op, table, start, err)
	if err != nil {
		return err
	}
	if mustAffect && tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// CreateTip реализует domain.TipRepo.
func (p *Postgres) CreateTip(ctx context.Context, tip domain.Tip) (domain.Tip, error) {
	now := utcNow()
	if err := p.queryRow(ctx, "tips_insert", "tips", p.q.insertTip(tip, now), &tip.ID); err != nil {
		return domain.Tip{}, err
	}
	tip.CreatedAt, tip.UpdatedAt = now, now
	return tip, nil
}

// GetTip реализует domain.TipRepo.
func (p *Postgres) GetTip(ctx context.Context, id int64) (domain.Tip, error) {
	var t domain.Tip
	err := p.queryRow(ctx, "tips_get", "tips", p.q.getTip(id), &t.ID, &t.Title, &t.Text, &t.Enabled, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

// SetTipEnabled реализует domain.TipRepo.
func (p *Postgres) SetTipEnabled(ctx context.Context, id int64, enabled bool) error {
	return p.exec(ctx, "tips_set_enabled", "tips", p.q.setTipEnabled(id, enabled, utcNow()), true)
}

// DeleteTip реализует domain.TipRepo. Назначения и журнал удаляются каскадно.
func (p *Postgres) DeleteTip(ctx context.Context, id int64) error {
	return p.exec(ctx, "tips_delete", "tips", p.q.deleteByID("tips", id), true)
}

// UpsertChannel реализует domain.ChannelRepo.
func (p *Postgres) UpsertChannel(ctx context.Context, ch domain.Channel) (domain.Channel, error) {
	var out domain.Channel
	err := p.queryRow(ctx, "channels_upsert", "channels", p.q.upsertChannel(ch, utcNow()),
		&out.ID, &out.Name, &out.Description, &out.CreatedAt, &out.UpdatedAt)
	return out, err
}

// GetChannel реализует domain.ChannelRepo.
func (p *Postgres) GetChannel(ctx context.Context, id int64) (domain.Channel, error) {
	return p.getChannel(ctx, sq.Eq{"id": id})
}

// GetChannelByName реализует domain.ChannelRepo.
func (p *Postgres) GetChannelByName(ctx context.Context, name string) (domain.Channel, error) {
	return p.getChannel(ctx, sq.Eq{"name": name})
}

func (p *Postgres) getChannel(ctx context.Context, where sq.Eq) (domain.Channel, error) {
	var ch domain.Channel
	err := p.queryRow(ctx, "channels_get", "channels", p.q.getChannel(where),
		&ch.ID, &ch.Name, &ch.Description, &ch.CreatedAt, &ch.UpdatedAt)
	return ch, err
}

// DeleteChannel реализует domain.ChannelRepo.
func (p *Postgres) DeleteChannel(ctx context.Context, id int64) error {
	return p.exec(ctx, "channels_delete", "channels", p.q.deleteByID("channels", id), true)
}

// Assign реализует domain.AssignmentRepo.
func (p *Postgres) Assign(ctx context.Context, channelID, tipID int64, power int) (domain.Assignment, error) {
	var a domain.Assignment
	err := p.queryRow(ctx, "assignments_upsert", "assignments", p.q.assign(channelID, tipID, power, utcNow()),
		&a.ID, &a.ChannelID, &a.TipID, &a.Power, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

// DeleteAssignment реализует domain.AssignmentRepo.
func (p *Postgres) DeleteAssignment(ctx context.Context, id int64) error {
	return p.exec(ctx, "assignments_delete", "assignments", p.q.deleteByID("assignments", id), true)
}

// ListEligible реализует domain.AssignmentRepo.
func (p *Postgres) ListEligible(ctx context.Context, channelID int64) ([]domain.Assignment, error) {
	query, args, err := p.q.listEligible(channelID, true).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build assignments_eligible: %w", err)
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	rows, err := p.pool.Query(ctx, query, args...)
	metrics.ObserveNetworkRequest("postgres", "assignments_eligible", "assignments", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Assignment
	for rows.Next() {
		var a domain.Assignment
		if err := rows.Scan(&a.ID, &a.ChannelID, &a.TipID, &a.Power, &a.CreatedAt, &a.UpdatedAt,
			&a.Tip.ID, &a.Tip.Title, &a.Tip.Text, &a.Tip.Enabled, &a.Tip.CreatedAt, &a.Tip.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// RecentLogs реализует domain.HistoryRepo.
func (p *Postgres) RecentLogs(ctx context.Context, channelID int64, limit int) ([]domain.DistributedLog, error) {
	if limit <= 0 {
		return nil, nil
	}
	query, args, err := p.q.recentLogs(channelID, limit).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build logs_recent: %w", err)
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	rows, err := p.pool.Query(ctx, query, args...)
	metrics.ObserveNetworkRequest("postgres", "logs_recent", "distributed_logs", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]domain.DistributedLog, 0, limit)
	for rows.Next() {
		var l domain.DistributedLog
		if err := rows.Scan(&l.ID, &l.AssignmentID, &l.DistributedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// RecordLogs реализует domain.HistoryRepo одним пакетом в транзакции.
func (p *Postgres) RecordLogs(ctx context.Context, assignments []domain.Assignment, at time.Time) error {
	if len(assignments) == 0 {
		return nil
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", "distributed_logs", start, err)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, a := range assignments {
		batch.Queue(`INSERT INTO distributed_logs (assignment_id, distributed_at) VALUES ($1, $2)`, a.ID, at.UTC())
	}
	start = time.Now()
	br := tx.SendBatch(ctx, batch)
	for range assignments {
		if _, err := br.Exec(); err != nil {
			br.Close()
			metrics.ObserveNetworkRequest("postgres", "logs_batch_exec", "distributed_logs", start, err)
			return err
		}
	}
	err = br.Close()
	metrics.ObserveNetworkRequest("postgres", "logs_batch_exec", "distributed_logs", start, err)
	if err != nil {
		return err
	}

	start = time.Now()
	err = tx.Commit(ctx)
	metrics.ObserveNetworkRequest("postgres", "commit", "distributed_logs", start, err)
	return err
}

// CountLogs реализует domain.HistoryRepo.
func (p *Postgres) CountLogs(ctx context.Context, assignmentID int64) (int, error) {
	var n int
	err := p.queryRow(ctx, "logs_count", "distributed_logs", p.q.countLogs(assignmentID), &n)
	return n, err
}

// CreateDistributor реализует domain.DistributorRepo.
func (p *Postgres) CreateDistributor(ctx context.Context, d domain.Distributor) (domain.Distributor, error) {
	schedule, err := encodeSchedule(d.Schedule)
	if err != nil {
		return domain.Distributor{}, err
	}
	now := utcNow()
	if err := p.queryRow(ctx, "distributors_insert", "distributors", p.q.insertDistributor(d, schedule, now), &d.ID); err != nil {
		return domain.Distributor{}, err
	}
	d.Attribute = normalizeAttribute(d.Attribute)
	d.CreatedAt, d.UpdatedAt = now, now
	return d, nil
}

// GetDistributor реализует domain.DistributorRepo.
func (p *Postgres) GetDistributor(ctx context.Context, id int64) (domain.Distributor, error) {
	var (
		d        domain.Distributor
		typ      string
		attr     string
		schedule []byte
	)
	err := p.queryRow(ctx, "distributors_get", "distributors", p.q.getDistributors().Where(sq.Eq{"id": id}),
		&d.ID, &d.ChannelID, &typ, &attr, &d.TipsCount, &schedule, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return domain.Distributor{}, err
	}
	return finishDistributor(d, typ, attr, schedule)
}

// ListDistributors реализует domain.DistributorRepo.
func (p *Postgres) ListDistributors(ctx context.Context) ([]domain.Distributor, error) {
	query, args, err := p.q.getDistributors().ToSql()
	if err != nil {
		return nil, fmt.Errorf("build distributors_list: %w", err)
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	rows, err := p.pool.Query(ctx, query, args...)
	metrics.ObserveNetworkRequest("postgres", "distributors_list", "distributors", start, err)
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
			schedule []byte
		)
		if err := rows.Scan(&d.ID, &d.ChannelID, &typ, &attr, &d.TipsCount, &schedule, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, listedDistributor(d, typ, attr, schedule))
	}
	return out, rows.Err()
}

// DeleteDistributor реализует domain.DistributorRepo.
func (p *Postgres) DeleteDistributor(ctx context.Context, id int64) error {
	return p.exec(ctx, "distributors_delete", "distributors", p.q.deleteByID("distributors", id), true)
}

func finishDistributor(d domain.Distributor, typ, attr string, schedule []byte) (domain.Distributor, error) {
	d.Type = domain.DistributorType(typ)
	d.Attribute = []byte(attr)
	s, err := domain.ParseSchedule(schedule)
	if err != nil {
		return domain.Distributor{}, fmt.Errorf("distributor %d: %w", d.ID, err)
	}
	d.Schedule = s
	return d, nil
}

// listedDistributor не прерывает список из-за одной битой строки: ошибка
// расписания остаётся в ScheduleErr.
func listedDistributor(d domain.Distributor, typ, attr string, schedule []byte) domain.Distributor {
	out, err := finishDistributor(d, typ, attr, schedule)
	if err != nil {
		d.Type = domain.DistributorType(typ)
		d.Attribute = []byte(attr)
		d.ScheduleErr = err
		return d
	}
	return out
}
