package repo

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"tip-dispatcher/internal/domain"
)

// queries строит SQL для обоих диалектов. Отличается только формат плейсхолдеров.
type queries struct {
	sb sq.StatementBuilderType
}

func newQueries(format sq.PlaceholderFormat) queries {
	return queries{sb: sq.StatementBuilder.PlaceholderFormat(format)}
}

var (
	tipColumns         = []string{"id", "title", "text", "enabled", "created_at", "updated_at"}
	channelColumns     = []string{"id", "name", "description", "created_at", "updated_at"}
	distributorColumns = []string{"id", "channel_id", "type", "attribute", "tips_count", "schedule", "created_at", "updated_at"}
	eligibleColumns    = []string{
		"a.id", "a.channel_id", "a.tip_id", "a.power", "a.created_at", "a.updated_at",
		"t.id", "t.title", "t.text", "t.enabled", "t.created_at", "t.updated_at",
	}
)

func (q queries) insertTip(tip domain.Tip, created any) sq.InsertBuilder {
	return q.sb.Insert("tips").
		Columns("title", "text", "enabled", "created_at", "updated_at").
		Values(tip.Title, tip.Text, tip.Enabled, created, created).
		Suffix("RETURNING id")
}

func (q queries) getTip(id int64) sq.SelectBuilder {
	return q.sb.Select(tipColumns...).From("tips").Where(sq.Eq{"id": id})
}

func (q queries) setTipEnabled(id int64, enabled bool, now any) sq.UpdateBuilder {
	return q.sb.Update("tips").
		Set("enabled", enabled).
		Set("updated_at", now).
		Where(sq.Eq{"id": id})
}

func (q queries) deleteByID(table string, id int64) sq.DeleteBuilder {
	return q.sb.Delete(table).Where(sq.Eq{"id": id})
}

func (q queries) upsertChannel(ch domain.Channel, now any) sq.InsertBuilder {
	return q.sb.Insert("channels").
		Columns("name", "description", "created_at", "updated_at").
		Values(ch.Name, ch.Description, now, now).
		Suffix(`ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description, updated_at = EXCLUDED.updated_at
RETURNING ` + joinColumns(channelColumns))
}

func (q queries) getChannel(where sq.Eq) sq.SelectBuilder {
	return q.sb.Select(channelColumns...).From("channels").Where(where)
}

func (q queries) assign(channelID, tipID int64, power int, now any) sq.InsertBuilder {
	return q.sb.Insert("assignments").
		Columns("channel_id", "tip_id", "power", "created_at", "updated_at").
		Values(channelID, tipID, power, now, now).
		Suffix(`ON CONFLICT (tip_id, channel_id) DO UPDATE SET power = EXCLUDED.power, updated_at = EXCLUDED.updated_at
RETURNING id, channel_id, tip_id, power, created_at, updated_at`)
}

func (q queries) listEligible(channelID int64, enabled any) sq.SelectBuilder {
	return q.sb.Select(eligibleColumns...).
		From("assignments a").
		Join("tips t ON t.id = a.tip_id").
		Where(sq.Eq{"a.channel_id": channelID, "t.enabled": enabled}).
		OrderBy("a.id ASC")
}

func (q queries) recentLogs(channelID int64, limit int) sq.SelectBuilder {
	return q.sb.Select("l.id", "l.assignment_id", "l.distributed_at").
		From("distributed_logs l").
		Join("assignments a ON a.id = l.assignment_id").
		Where(sq.Eq{"a.channel_id": channelID}).
		OrderBy("l.distributed_at DESC", "l.id DESC").
		Limit(uint64(limit))
}

func (q queries) insertLogs(assignments []domain.Assignment, at any) sq.InsertBuilder {
	b := q.sb.Insert("distributed_logs").Columns("assignment_id", "distributed_at")
	for _, a := range assignments {
		b = b.Values(a.ID, at)
	}
	return b
}

func (q queries) countLogs(assignmentID int64) sq.SelectBuilder {
	return q.sb.Select("COUNT(*)").From("distributed_logs").Where(sq.Eq{"assignment_id": assignmentID})
}

func (q queries) insertDistributor(d domain.Distributor, schedule []byte, now any) sq.InsertBuilder {
	return q.sb.Insert("distributors").
		Columns("channel_id", "type", "attribute", "tips_count", "schedule", "created_at", "updated_at").
		Values(d.ChannelID, string(d.Type), string(normalizeAttribute(d.Attribute)), d.TipsCount, string(schedule), now, now).
		Suffix("RETURNING id")
}

func (q queries) getDistributors() sq.SelectBuilder {
	return q.sb.Select(distributorColumns...).From("distributors").OrderBy("id ASC")
}

func joinColumns(cols []string) string {
	return strings.Join(cols, ", ")
}

func encodeSchedule(s domain.Schedule) ([]byte, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode schedule: %w", err)
	}
	return raw, nil
}

func normalizeAttribute(raw []byte) []byte {
	if len(raw) == 0 {
		return []byte("{}")
	}
	return raw
}

func utcNow() time.Time {
	return time.Now().UTC()
}
