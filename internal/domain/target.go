package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// DistributorType определяет бэкенд доставки распространителя.
type DistributorType string

const (
	// DistributorEmail рассылка по электронной почте.
	DistributorEmail DistributorType = "Email"
	// DistributorChat рассылка в чат (Slack, Telegram).
	DistributorChat DistributorType = "Chat"
	// DistributorWebhook рассылка HTTP-вебхуком.
	DistributorWebhook DistributorType = "Webhook"
)

// Ключи атрибутов распространителя в том виде, в каком их сохраняет админка.
const (
	AttrEmail      = "email"
	AttrSubject    = "subject"
	AttrChannel    = "channel"
	AttrUsername   = "username"
	AttrIcon       = "icon"
	AttrWebhookURL = "webhook_url"
)

// ParseDistributorType нормализует название типа. "Slack" принимается как синоним Chat.
func ParseDistributorType(raw string) (DistributorType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "email":
		return DistributorEmail, nil
	case "chat", "slack":
		return DistributorChat, nil
	case "webhook":
		return DistributorWebhook, nil
	}
	return "", fmt.Errorf("%w: неизвестный тип распространителя %q", ErrConfiguration, raw)
}

// Target типизированные настройки доставки конкретного бэкенда.
type Target interface {
	Type() DistributorType
}

// EmailTarget настройки почтовой рассылки.
type EmailTarget struct {
	Destination string
	Subject     string
}

// Type реализует Target.
func (EmailTarget) Type() DistributorType { return DistributorEmail }

// ChatTarget настройки рассылки в чат.
type ChatTarget struct {
	Destination string
	Username    string
	Icon        string
}

// Type реализует Target.
func (ChatTarget) Type() DistributorType { return DistributorChat }

// WebhookTarget настройки рассылки вебхуком.
type WebhookTarget struct {
	URL string
}

// Type реализует Target.
func (WebhookTarget) Type() DistributorType { return DistributorWebhook }

// Target разбирает атрибуты распространителя в настройки его бэкенда.
func (d Distributor) Target() (Target, error) {
	return ParseTarget(d.Type, d.Attribute)
}

// Validate проверяет настройки распространителя целиком.
func (d Distributor) Validate() error {
	if d.TipsCount < 1 {
		return fmt.Errorf("%w: tips_count должен быть не меньше 1, получено %d", ErrConfiguration, d.TipsCount)
	}
	if err := d.Schedule.Validate(); err != nil {
		return err
	}
	_, err := d.Target()
	return err
}

// ParseTarget проверяет обязательные ключи атрибутов для указанного типа.
func ParseTarget(typ DistributorType, raw []byte) (Target, error) {
	attrs, err := DecodeAttribute(raw)
	if err != nil {
		return nil, err
	}
	switch typ {
	case DistributorEmail:
		vals, err := requireKeys(typ, attrs, AttrEmail, AttrSubject)
		if err != nil {
			return nil, err
		}
		return EmailTarget{Destination: vals[0], Subject: vals[1]}, nil
	case DistributorChat:
		vals, err := requireKeys(typ, attrs, AttrChannel, AttrUsername, AttrIcon)
		if err != nil {
			return nil, err
		}
		return ChatTarget{Destination: vals[0], Username: vals[1], Icon: vals[2]}, nil
	case DistributorWebhook:
		vals, err := requireKeys(typ, attrs, AttrWebhookURL)
		if err != nil {
			return nil, err
		}
		u, err := url.Parse(vals[0])
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("%w: некорректный webhook_url %q", ErrConfiguration, vals[0])
		}
		return WebhookTarget{URL: vals[0]}, nil
	}
	return nil, fmt.Errorf("%w: неизвестный тип распространителя %q", ErrConfiguration, typ)
}

func requireKeys(typ DistributorType, attrs map[string]string, keys ...string) ([]string, error) {
	vals := make([]string, 0, len(keys))
	var missing []string
	for _, key := range keys {
		v := strings.TrimSpace(attrs[key])
		if v == "" {
			missing = append(missing, key)
			continue
		}
		vals = append(vals, v)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: для типа %s не заданы атрибуты %s", ErrConfiguration, typ, strings.Join(missing, ", "))
	}
	return vals, nil
}

type attributePair struct {
	Key   string           `json:"key"`
	Value *json.RawMessage `json:"value"`
}

// DecodeAttribute разбирает атрибуты в плоскую карту строк.
//
// Поддерживаются JSON-объект, список пар {"key","value"} и JSON-строка,
// внутри которой лежит один из этих форматов. Пустое значение даёт пустую карту.
func DecodeAttribute(raw []byte) (map[string]string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return map[string]string{}, nil
	}
	switch trimmed[0] {
	case '"':
		var inner string
		if err := json.Unmarshal(trimmed, &inner); err != nil {
			return nil, fmt.Errorf("%w: атрибуты не являются JSON: %v", ErrConfiguration, err)
		}
		if strings.TrimSpace(inner) == "" {
			return map[string]string{}, nil
		}
		if s := strings.TrimSpace(inner); s[0] != '{' && s[0] != '[' {
			return nil, fmt.Errorf("%w: атрибуты должны быть объектом или списком пар", ErrConfiguration)
		}
		return DecodeAttribute([]byte(inner))
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return nil, fmt.Errorf("%w: атрибуты не являются JSON-объектом: %v", ErrConfiguration, err)
		}
		out := make(map[string]string, len(obj))
		for k, v := range obj {
			s, err := scalarString(v)
			if err != nil {
				return nil, fmt.Errorf("%w: атрибут %q: %v", ErrConfiguration, k, err)
			}
			out[k] = s
		}
		return out, nil
	case '[':
		var pairs []attributePair
		if err := json.Unmarshal(trimmed, &pairs); err != nil {
			return nil, fmt.Errorf("%w: атрибуты не являются списком пар: %v", ErrConfiguration, err)
		}
		out := make(map[string]string, len(pairs))
		for _, p := range pairs {
			if strings.TrimSpace(p.Key) == "" {
				return nil, fmt.Errorf("%w: пара атрибутов без ключа", ErrConfiguration)
			}
			if p.Value == nil {
				out[p.Key] = ""
				continue
			}
			s, err := scalarString(*p.Value)
			if err != nil {
				return nil, fmt.Errorf("%w: атрибут %q: %v", ErrConfiguration, p.Key, err)
			}
			out[p.Key] = s
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: атрибуты должны быть объектом или списком пар", ErrConfiguration)
}

func scalarString(v json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(v)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", nil
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", err
		}
		return s, nil
	case '{', '[':
		return "", fmt.Errorf("ожидалось скалярное значение")
	}
	// числа и булевы значения сохраняем в исходной записи
	return string(trimmed), nil
}

// EncodeAttribute сериализует карту атрибутов в JSON-объект.
func EncodeAttribute(attrs map[string]string) ([]byte, error) {
	if attrs == nil {
		attrs = map[string]string{}
	}
	return json.Marshal(attrs)
}
