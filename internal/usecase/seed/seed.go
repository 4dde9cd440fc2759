// Package seed загружает советы, каналы, назначения и распространителей из YAML.
package seed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.yaml.in/yaml/v3"

	"tip-dispatcher/internal/domain"
)

// File содержимое файла начальных данных.
type File struct {
	Channels     []Channel     `yaml:"channels"`
	Tips         []Tip         `yaml:"tips"`
	Distributors []Distributor `yaml:"distributors"`
}

// Channel канал в файле.
type Channel struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// Tip совет и каналы, к которым он привязан.
type Tip struct {
	Title    string   `yaml:"title"`
	Text     string   `yaml:"text"`
	Enabled  *bool    `yaml:"enabled"`
	Channels []string `yaml:"channels"`
	Power    int      `yaml:"power"`
}

// Distributor распространитель. Attribute и Schedule пишутся в YAML
// и сохраняются как JSON.
type Distributor struct {
	Channel   string         `yaml:"channel"`
	Type      string         `yaml:"type"`
	Attribute any            `yaml:"attribute"`
	TipsCount int            `yaml:"tips_count"`
	Schedule  map[string]any `yaml:"schedule"`
}

// Report итог импорта.
type Report struct {
	Channels     int
	Tips         int
	Assignments  int
	Distributors int
}

// Parse читает YAML. Неизвестные поля считаются ошибкой.
func Parse(r io.Reader) (File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return File{}, nil
		}
		return File{}, fmt.Errorf("%w: seed: %v", domain.ErrConfiguration, err)
	}
	return f, nil
}

// Validate проверяет файл целиком до записи в хранилище.
func (f File) Validate() error {
	names := make(map[string]struct{}, len(f.Channels))
	for i, ch := range f.Channels {
		name := strings.TrimSpace(ch.Name)
		if name == "" {
			return fmt.Errorf("%w: channels[%d]: пустое имя", domain.ErrConfiguration, i)
		}
		names[name] = struct{}{}
	}
	for i, t := range f.Tips {
		if strings.TrimSpace(t.Title) == "" {
			return fmt.Errorf("%w: tips[%d]: пустой заголовок", domain.ErrConfiguration, i)
		}
		for _, ch := range t.Channels {
			if _, ok := names[strings.TrimSpace(ch)]; !ok {
				return fmt.Errorf("%w: tips[%d]: неизвестный канал %q", domain.ErrConfiguration, i, ch)
			}
		}
		if t.Power < 0 {
			return fmt.Errorf("%w: tips[%d]: отрицательный power", domain.ErrConfiguration, i)
		}
	}
	for i, d := range f.Distributors {
		if _, ok := names[strings.TrimSpace(d.Channel)]; !ok {
			return fmt.Errorf("%w: distributors[%d]: неизвестный канал %q", domain.ErrConfiguration, i, d.Channel)
		}
		if _, err := d.toDomain(0); err != nil {
			return fmt.Errorf("distributors[%d]: %w", i, err)
		}
	}
	return nil
}

func (d Distributor) toDomain(channelID int64) (domain.Distributor, error) {
	typ, err := domain.ParseDistributorType(d.Type)
	if err != nil {
		return domain.Distributor{}, err
	}
	out := domain.Distributor{
		ChannelID: channelID,
		Type:      typ,
		TipsCount: d.TipsCount,
		Schedule:  domain.DefaultSchedule(),
	}
	if out.TipsCount == 0 {
		out.TipsCount = 1
	}
	if d.Attribute != nil {
		raw, err := json.Marshal(d.Attribute)
		if err != nil {
			return domain.Distributor{}, fmt.Errorf("%w: attribute: %v", domain.ErrConfiguration, err)
		}
		out.Attribute = raw
	}
	if d.Schedule != nil {
		raw, err := json.Marshal(d.Schedule)
		if err != nil {
			return domain.Distributor{}, fmt.Errorf("%w: schedule: %v", domain.ErrConfiguration, err)
		}
		s, err := domain.ParseSchedule(raw)
		if err != nil {
			return domain.Distributor{}, err
		}
		out.Schedule = s
	}
	if err := out.Validate(); err != nil {
		return domain.Distributor{}, err
	}
	return out, nil
}

// Apply записывает файл в хранилище. Каналы и назначения обновляются
// по имени и паре (совет, канал), советы и распространители добавляются.
func Apply(ctx context.Context, store domain.Store, f File) (Report, error) {
	var rep Report
	if err := f.Validate(); err != nil {
		return rep, err
	}
	channels := make(map[string]int64, len(f.Channels))
	for _, ch := range f.Channels {
		name := strings.TrimSpace(ch.Name)
		saved, err := store.UpsertChannel(ctx, domain.Channel{Name: name, Description: ch.Description})
		if err != nil {
			return rep, fmt.Errorf("%w: канал %q: %w", domain.ErrStorage, name, err)
		}
		channels[name] = saved.ID
		rep.Channels++
	}
	for _, t := range f.Tips {
		enabled := true
		if t.Enabled != nil {
			enabled = *t.Enabled
		}
		saved, err := store.CreateTip(ctx, domain.Tip{Title: t.Title, Text: t.Text, Enabled: enabled})
		if err != nil {
			return rep, fmt.Errorf("%w: совет %q: %w", domain.ErrStorage, t.Title, err)
		}
		rep.Tips++
		power := t.Power
		if power == 0 {
			power = domain.DefaultPower
		}
		for _, ch := range t.Channels {
			if _, err := store.Assign(ctx, channels[strings.TrimSpace(ch)], saved.ID, power); err != nil {
				return rep, fmt.Errorf("%w: назначение %q -> %q: %w", domain.ErrStorage, t.Title, ch, err)
			}
			rep.Assignments++
		}
	}
	for _, d := range f.Distributors {
		dist, err := d.toDomain(channels[strings.TrimSpace(d.Channel)])
		if err != nil {
			return rep, err
		}
		if _, err := store.CreateDistributor(ctx, dist); err != nil {
			return rep, fmt.Errorf("%w: распространитель канала %q: %w", domain.ErrStorage, d.Channel, err)
		}
		rep.Distributors++
	}
	return rep, nil
}

// ParseBytes удобная обёртка над Parse.
func ParseBytes(data []byte) (File, error) {
	return Parse(bytes.NewReader(data))
}
