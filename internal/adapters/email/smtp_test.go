package email

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/wneessen/go-mail"

	"tip-dispatcher/internal/domain"
)

type recordingTransport struct {
	msgs []*mail.Msg
	err  error
}

func (r *recordingTransport) DialAndSendWithContext(_ context.Context, messages ...*mail.Msg) error {
	r.msgs = append(r.msgs, messages...)
	return r.err
}

func TestSendEmailBuildsMessage(t *testing.T) {
	tr := &recordingTransport{}
	sender := NewSenderWithTransport(tr, "tips@example.com")

	tips := []domain.Tip{{ID: 1, Title: "Ревью", Text: "Смотрите дифф целиком"}}
	if err := sender.SendEmail(context.Background(), "a@example.com, b@example.com", "", tips); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(tr.msgs) != 1 {
		t.Fatalf("ожидали одно письмо, получили %d", len(tr.msgs))
	}
	msg := tr.msgs[0]
	to := msg.GetTo()
	if len(to) != 2 || to[0].Address != "a@example.com" || to[1].Address != "b@example.com" {
		t.Fatalf("неожиданные получатели: %v", to)
	}
	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		t.Fatalf("запись письма: %v", err)
	}
	raw := buf.String()
	if !strings.Contains(raw, "text/html") || !strings.Contains(raw, "text/plain") {
		t.Fatalf("ожидали multipart/alternative")
	}
}

func TestSendEmailEmptyDestination(t *testing.T) {
	tr := &recordingTransport{}
	sender := NewSenderWithTransport(tr, "tips@example.com")
	err := sender.SendEmail(context.Background(), " , ", "s", nil)
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("ожидали ErrConfiguration, получили %v", err)
	}
	if len(tr.msgs) != 0 {
		t.Fatal("ничего не должно отправляться")
	}
}

func TestSendEmailInvalidAddress(t *testing.T) {
	sender := NewSenderWithTransport(&recordingTransport{}, "tips@example.com")
	err := sender.SendEmail(context.Background(), "not an address", "s", nil)
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("ожидали ErrConfiguration, получили %v", err)
	}
}

func TestSendEmailTransportError(t *testing.T) {
	sender := NewSenderWithTransport(&recordingTransport{err: errors.New("dial tcp: connection refused")}, "tips@example.com")
	err := sender.SendEmail(context.Background(), "a@example.com", "s", nil)
	if err == nil || errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("ожидали ошибку транспорта, получили %v", err)
	}
}

func TestNewSenderValidatesConfig(t *testing.T) {
	if _, err := NewSender(Config{From: "x@example.com"}); err == nil {
		t.Fatal("ожидали ошибку для пустого хоста")
	}
	if _, err := NewSender(Config{Host: "smtp.example.com"}); err == nil {
		t.Fatal("ожидали ошибку для пустого отправителя")
	}
	if _, err := NewSender(Config{Host: "smtp.example.com", Port: 587, From: "x@example.com", Username: "u", Password: "p"}); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
}
