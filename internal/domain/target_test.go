package domain

import (
	"errors"
	"testing"
)

func TestParseTarget(t *testing.T) {
	tests := []struct {
		name    string
		typ     DistributorType
		raw     string
		want    Target
		wantErr bool
	}{
		{
			name: "email object",
			typ:  DistributorEmail,
			raw:  `{"email":"team@example.com","subject":"Совет дня"}`,
			want: EmailTarget{Destination: "team@example.com", Subject: "Совет дня"},
		},
		{
			name: "chat key value list",
			typ:  DistributorChat,
			raw:  `[{"key":"channel","value":"#general"},{"key":"username","value":"tips"},{"key":"icon","value":":bulb:"}]`,
			want: ChatTarget{Destination: "#general", Username: "tips", Icon: ":bulb:"},
		},
		{
			name: "webhook double encoded",
			typ:  DistributorWebhook,
			raw:  `"{\"webhook_url\":\"https://hooks.example.com/tips\"}"`,
			want: WebhookTarget{URL: "https://hooks.example.com/tips"},
		},
		{name: "webhook missing url", typ: DistributorWebhook, raw: `{"url":"https://x"}`, wantErr: true},
		{name: "webhook bad scheme", typ: DistributorWebhook, raw: `{"webhook_url":"ftp://x"}`, wantErr: true},
		{name: "email empty subject", typ: DistributorEmail, raw: `{"email":"a@b.c","subject":" "}`, wantErr: true},
		{name: "chat missing icon", typ: DistributorChat, raw: `{"channel":"#a","username":"u"}`, wantErr: true},
		{name: "malformed json", typ: DistributorEmail, raw: `{"email":`, wantErr: true},
		{name: "not a map", typ: DistributorEmail, raw: `42`, wantErr: true},
		{name: "empty attribute", typ: DistributorWebhook, raw: ``, wantErr: true},
		{name: "unknown type", typ: DistributorType("Pager"), raw: `{}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTarget(tt.typ, []byte(tt.raw))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ожидали ошибку, получили %#v", got)
				}
				if !errors.Is(err, ErrConfiguration) {
					t.Fatalf("ожидали ErrConfiguration, получили %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("не ожидали ошибку: %v", err)
			}
			if got != tt.want {
				t.Fatalf("ParseTarget() = %#v, ожидали %#v", got, tt.want)
			}
		})
	}
}

func TestDecodeAttributeKeepsScalars(t *testing.T) {
	attrs, err := DecodeAttribute([]byte(`{"subject":"hi","port":2525,"tls":true,"empty":null}`))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if attrs["port"] != "2525" || attrs["tls"] != "true" || attrs["empty"] != "" {
		t.Fatalf("неожиданные атрибуты: %#v", attrs)
	}
	if _, err := DecodeAttribute([]byte(`{"nested":{"a":1}}`)); err == nil {
		t.Fatal("ожидали ошибку для вложенного объекта")
	}
}

func TestParseDistributorType(t *testing.T) {
	cases := map[string]DistributorType{
		"Email":    DistributorEmail,
		" webhook": DistributorWebhook,
		"Slack":    DistributorChat,
		"CHAT":     DistributorChat,
	}
	for input, expected := range cases {
		got, err := ParseDistributorType(input)
		if err != nil {
			t.Fatalf("не ожидали ошибку для %q: %v", input, err)
		}
		if got != expected {
			t.Fatalf("ожидали %s, получили %s", expected, got)
		}
	}
	if _, err := ParseDistributorType("fax"); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("ожидали ErrConfiguration, получили %v", err)
	}
}

func TestDistributorValidate(t *testing.T) {
	d := Distributor{
		Type:      DistributorWebhook,
		Attribute: []byte(`{"webhook_url":"https://example.com/hook"}`),
		TipsCount: 0,
		Schedule:  DefaultSchedule(),
	}
	if err := d.Validate(); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("ожидали ошибку для tips_count=0, получили %v", err)
	}
	d.TipsCount = 3
	if err := d.Validate(); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
}
