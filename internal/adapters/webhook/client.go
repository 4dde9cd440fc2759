package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tip-dispatcher/internal/domain"
	"tip-dispatcher/internal/infra/metrics"
)

// Client публикует пачку советов на произвольный HTTP-адрес.
type Client struct {
	httpClient *http.Client
	userAgent  string
	now        func() time.Time
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout <= 0 {
			return
		}
		if c.httpClient == nil {
			c.httpClient = &http.Client{}
		}
		c.httpClient.Timeout = timeout
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// Payload тело запроса вебхука.
type Payload struct {
	Tips   []TipPayload `json:"tips"`
	SentAt time.Time    `json:"sent_at"`
}

// TipPayload один совет в теле вебхука.
type TipPayload struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

func New(opts ...Option) *Client {
	client := &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		userAgent:  "tip-dispatcher/1.0",
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// SendWebhook реализует domain.WebhookSender. Любой ответ вне 2xx считается ошибкой.
func (c *Client) SendWebhook(ctx context.Context, url string, tips []domain.Tip) (err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveNetworkRequest("webhook", "send", "webhook", start, err)
	}()

	payload := Payload{Tips: make([]TipPayload, 0, len(tips)), SentAt: c.now()}
	for _, tip := range tips {
		payload.Tips = append(payload.Tips, TipPayload{ID: tip.ID, Title: tip.Title, Text: tip.Text})
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("webhook error: status=%d message=%s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

var _ domain.WebhookSender = (*Client)(nil)
