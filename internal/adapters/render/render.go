// Package render превращает пачку советов в текст для конкретного бэкенда.
package render

import (
	"fmt"
	"html"
	"strings"

	"tip-dispatcher/internal/domain"
)

// DefaultSubject используется, если в настройках письма тема не задана.
const DefaultSubject = "Советы дня"

// Plain формирует текстовое представление пачки советов.
func Plain(tips []domain.Tip) string {
	var builder strings.Builder
	n := 0
	for _, tip := range tips {
		title, text := clean(tip)
		if title == "" && text == "" {
			continue
		}
		n++
		if n > 1 {
			builder.WriteString("\n\n")
		}
		builder.WriteString(fmt.Sprintf("%d. ", n))
		switch {
		case title != "" && text != "":
			builder.WriteString(title + "\n" + text)
		case title != "":
			builder.WriteString(title)
		default:
			builder.WriteString(text)
		}
	}
	return strings.TrimSpace(builder.String())
}

// TitlePrefix стоит перед заголовком совета в HTML.
const TitlePrefix = "💡 "

// HTMLTitle возвращает заголовок совета жирным, с экранированием.
func HTMLTitle(title string) string {
	return TitlePrefix + "<b>" + html.EscapeString(title) + "</b>"
}

// HTML формирует HTML-часть письма: по абзацу на совет, переводы строк
// внутри совета становятся <br>.
func HTML(tips []domain.Tip) string {
	var sections []string
	for _, tip := range tips {
		title, text := clean(tip)
		var parts []string
		if title != "" {
			parts = append(parts, HTMLTitle(title))
		}
		if text != "" {
			parts = append(parts, strings.ReplaceAll(html.EscapeString(text), "\n", "<br>\n"))
		}
		if len(parts) == 0 {
			continue
		}
		sections = append(sections, "<p>"+strings.Join(parts, "<br>\n")+"</p>")
	}
	return strings.Join(sections, "\n")
}

// Slack формирует mrkdwn для входящих вебхуков Slack.
func Slack(tips []domain.Tip) string {
	var sections []string
	for _, tip := range tips {
		title, text := clean(tip)
		var parts []string
		if title != "" {
			parts = append(parts, ":bulb: *"+escapeSlack(title)+"*")
		}
		if text != "" {
			parts = append(parts, escapeSlack(text))
		}
		if len(parts) == 0 {
			continue
		}
		sections = append(sections, strings.Join(parts, "\n"))
	}
	return strings.TrimSpace(strings.Join(sections, "\n\n"))
}

// Subject возвращает тему письма с подстановкой значения по умолчанию.
func Subject(subject string) string {
	if s := strings.TrimSpace(subject); s != "" {
		return s
	}
	return DefaultSubject
}

func clean(tip domain.Tip) (string, string) {
	return strings.TrimSpace(tip.Title), strings.TrimSpace(tip.Text)
}

// Slack требует экранировать только эти три символа.
var slackEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escapeSlack(s string) string {
	return slackEscaper.Replace(s)
}
