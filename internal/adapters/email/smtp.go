package email

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wneessen/go-mail"

	"tip-dispatcher/internal/adapters/render"
	"tip-dispatcher/internal/domain"
	"tip-dispatcher/internal/infra/metrics"
)

// Config параметры SMTP.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	TLS      bool
	Timeout  time.Duration
}

// Transport отправляет подготовленные письма.
type Transport interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// Sender отправляет советы письмом: текстовая часть и HTML-альтернатива.
type Sender struct {
	transport Transport
	from      string
}

// NewSender создаёт отправителя поверх SMTP-клиента go-mail.
func NewSender(cfg Config) (*Sender, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, fmt.Errorf("smtp: не задан хост")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, fmt.Errorf("smtp: не задан адрес отправителя")
	}
	opts := []mail.Option{mail.WithTLSPolicy(mail.TLSOpportunistic)}
	if cfg.Port > 0 {
		opts = append(opts, mail.WithPort(cfg.Port))
	}
	if cfg.TLS {
		opts = append(opts, mail.WithSSL())
	}
	if cfg.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(cfg.Timeout))
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return NewSenderWithTransport(client, cfg.From), nil
}

// NewSenderWithTransport создаёт отправителя с готовым транспортом.
func NewSenderWithTransport(transport Transport, from string) *Sender {
	return &Sender{transport: transport, from: from}
}

// SendEmail реализует domain.EmailSender. destination может содержать
// несколько адресов через запятую.
func (s *Sender) SendEmail(ctx context.Context, destination, subject string, tips []domain.Tip) (err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveNetworkRequest("email", "send", "smtp", start, err)
	}()

	msg, err := s.buildMessage(destination, subject, tips)
	if err != nil {
		return err
	}
	if err := s.transport.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func (s *Sender) buildMessage(destination, subject string, tips []domain.Tip) (*mail.Msg, error) {
	recipients := splitRecipients(destination)
	if len(recipients) == 0 {
		return nil, fmt.Errorf("%w: пустой адрес получателя", domain.ErrConfiguration)
	}
	msg := mail.NewMsg()
	if err := msg.From(s.from); err != nil {
		return nil, fmt.Errorf("smtp from %q: %w", s.from, err)
	}
	if err := msg.To(recipients...); err != nil {
		return nil, fmt.Errorf("%w: адрес получателя %q: %v", domain.ErrConfiguration, destination, err)
	}
	msg.Subject(render.Subject(subject))
	msg.SetBodyString(mail.TypeTextPlain, render.Plain(tips))
	msg.AddAlternativeString(mail.TypeTextHTML, render.HTML(tips))
	return msg, nil
}

func splitRecipients(destination string) []string {
	var out []string
	for _, part := range strings.Split(destination, ",") {
		if addr := strings.TrimSpace(part); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

var _ domain.EmailSender = (*Sender)(nil)
