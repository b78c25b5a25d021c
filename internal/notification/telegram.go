package notification

import (
	"context"
	"fmt"
	"log"
	"strings"

	"marketlens/internal/model"
)

const telegramAPI = "https://api.telegram.org"

// TelegramNotifier delivers alerts to one chat through the Bot API using
// MarkdownV2 formatting.
type TelegramNotifier struct {
	apiURL string
	token  string
	chatID string
	p      poster
}

func NewTelegramNotifier(token, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		apiURL: telegramAPI,
		token:  token,
		chatID: chatID,
		p:      newPoster("telegram", token),
	}
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

func (t *TelegramNotifier) Send(ctx context.Context, alert Alert) error {
	msg := telegramMessage{ChatID: t.chatID, Text: telegramText(alert), ParseMode: "MarkdownV2"}
	endpoint := t.apiURL + "/bot" + t.token + "/sendMessage"
	if err := t.p.post(ctx, endpoint, msg); err != nil {
		return err
	}
	log.Printf("[telegram] chat %s: %s", t.chatID, alert.Title)
	return nil
}

func telegramText(alert Alert) string {
	return fmt.Sprintf("%s *%s*\n\n%s", badge(alert), escapeMarkdown(alert.Title), escapeMarkdown(alert.Message))
}

func badge(alert Alert) string {
	if alert.Setup != nil {
		switch alert.Setup.Direction {
		case model.Buy:
			return "🟢"
		case model.Sell:
			return "🔴"
		}
	}
	switch alert.Level {
	case AlertCritical:
		return "🚨"
	case AlertWarning:
		return "⚠️"
	}
	return "ℹ️"
}

const markdownSpecials = "_*[]()~`>#+-=|{}.!"

// escapeMarkdown backslash-escapes every MarkdownV2 reserved character.
func escapeMarkdown(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(markdownSpecials, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
