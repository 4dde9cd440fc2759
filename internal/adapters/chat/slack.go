package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"tip-dispatcher/internal/adapters/render"
	"tip-dispatcher/internal/domain"
	"tip-dispatcher/internal/infra/metrics"
)

// Slack отправляет советы через входящий вебхук Slack.
//
// destination из настроек распространителя становится каналом сообщения,
// username и icon переопределяют отправителя.
type Slack struct {
	webhookURL string
	httpClient *http.Client
}

// NewSlack создаёт отправителя. webhookURL обязателен.
func NewSlack(webhookURL string, httpClient *http.Client) (*Slack, error) {
	if strings.TrimSpace(webhookURL) == "" {
		return nil, errors.New("slack: не задан адрес входящего вебхука")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Slack{webhookURL: webhookURL, httpClient: httpClient}, nil
}

// SendChat реализует domain.ChatSender.
func (s *Slack) SendChat(ctx context.Context, destination, username, icon string, tips []domain.Tip) (err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveNetworkRequest("chat", "send", "slack", start, err)
	}()

	msg := &slack.WebhookMessage{
		Channel:  destination,
		Username: username,
		Text:     render.Slack(tips),
	}
	switch icon = strings.TrimSpace(icon); {
	case strings.HasPrefix(icon, "http://"), strings.HasPrefix(icon, "https://"):
		msg.IconURL = icon
	case icon != "":
		msg.IconEmoji = icon
	}
	if err := slack.PostWebhookCustomHTTPContext(ctx, s.webhookURL, s.httpClient, msg); err != nil {
		return fmt.Errorf("slack webhook: %w", err)
	}
	return nil
}

var _ domain.ChatSender = (*Slack)(nil)
