package chat

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"tip-dispatcher/internal/adapters/render"
	"tip-dispatcher/internal/domain"
	"tip-dispatcher/internal/infra/metrics"
)

// BotAPI часть tgbotapi.BotAPI, нужная отправителю.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram отправляет советы сообщением бота.
//
// destination это числовой chat id или @username канала. username и icon
// игнорируются: у бота фиксированное имя и аватар.
type Telegram struct {
	bot     BotAPI
	limiter *rate.Limiter
}

// NewTelegram создаёт отправителя. ratePerSec ограничивает частоту сообщений.
func NewTelegram(bot BotAPI, ratePerSec int) *Telegram {
	if ratePerSec <= 0 {
		ratePerSec = 1
	}
	return &Telegram{bot: bot, limiter: rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec)}
}

// SendChat реализует domain.ChatSender.
func (t *Telegram) SendChat(ctx context.Context, destination, _, _ string, tips []domain.Tip) (err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveNetworkRequest("chat", "send", "telegram", start, err)
	}()

	parts := telegramParts(tips, telegramMessageLimit)
	for _, part := range parts {
		if err := t.limiter.Wait(ctx); err != nil {
			return err
		}
		msg, err := newTelegramMessage(destination, part)
		if err != nil {
			return err
		}
		msg.ParseMode = tgbotapi.ModeHTML
		msg.DisableWebPagePreview = true
		if _, err := t.bot.Send(msg); err != nil {
			return fmt.Errorf("telegram send: %w", err)
		}
	}
	return nil
}

// telegramParts собирает сообщения из советов. Лимит считается по видимому
// тексту, каждая часть экранируется отдельно: сущности и теги не разрываются.
func telegramParts(tips []domain.Tip, limit int) []string {
	if limit <= 0 {
		limit = telegramMessageLimit
	}
	titleOverhead := utf8.RuneCountInString(render.TitlePrefix)
	var (
		parts []string
		cur   strings.Builder
		size  int
	)
	add := func(markup string, visible int, sep string) {
		if size > 0 && size+len(sep)+visible > limit {
			parts = append(parts, cur.String())
			cur.Reset()
			size = 0
		}
		if size > 0 {
			cur.WriteString(sep)
			size += len(sep)
		}
		cur.WriteString(markup)
		size += visible
	}
	for _, tip := range tips {
		sep := "\n\n"
		for _, piece := range SplitMessage(tip.Title, max(limit-titleOverhead, 1)) {
			add(render.HTMLTitle(piece), utf8.RuneCountInString(piece)+titleOverhead, sep)
			sep = "\n"
		}
		for _, piece := range SplitMessage(tip.Text, limit) {
			add(html.EscapeString(piece), utf8.RuneCountInString(piece), sep)
			sep = "\n"
		}
	}
	if size > 0 {
		parts = append(parts, cur.String())
	}
	return parts
}

func newTelegramMessage(destination, text string) (tgbotapi.MessageConfig, error) {
	destination = strings.TrimSpace(destination)
	if strings.HasPrefix(destination, "@") {
		return tgbotapi.NewMessageToChannel(destination, text), nil
	}
	chatID, err := strconv.ParseInt(destination, 10, 64)
	if err != nil {
		return tgbotapi.MessageConfig{}, fmt.Errorf("%w: telegram chat %q: ожидается id или @username", domain.ErrConfiguration, destination)
	}
	return tgbotapi.NewMessage(chatID, text), nil
}

var _ domain.ChatSender = (*Telegram)(nil)
