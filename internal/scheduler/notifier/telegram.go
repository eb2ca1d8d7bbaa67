package notifier

import (
	"context"
	"fmt"

	tele "gopkg.in/telebot.v4"
)

type telegramSender interface {
	Send(to tele.Recipient, what any, opts ...any) (*tele.Message, error)
}

// Telegram sends reports to a single chat.
type Telegram struct {
	bot  telegramSender
	chat *tele.Chat
}

var _ Sink = (*Telegram)(nil)

// NewTelegram creates a send-only bot. No updates are polled.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	bot, err := tele.NewBot(tele.Settings{Token: token, Offline: true})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &Telegram{bot: bot, chat: &tele.Chat{ID: chatID}}, nil
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) ReportFailure(ctx context.Context, message string, fields map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := t.bot.Send(t.chat, formatText(message, fields), &tele.SendOptions{DisableWebPagePreview: true})
	return err
}
