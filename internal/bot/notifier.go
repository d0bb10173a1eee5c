// Package bot delivers operator alerts to Telegram admins.
package bot

import (
	"context"
	"errors"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/minasamir1401/werete/internal/logger"
)

// Sender is the part of *tgbotapi.BotAPI the notifier needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Notifier struct {
	sender Sender
	admins []int64
}

// New connects to the Bot API with token.
func New(token string, admins []int64, debug bool) (*Notifier, error) {
	if token == "" {
		return nil, errors.New("telegram bot token is empty")
	}
	b, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	b.Debug = debug
	return NewWithSender(b, admins), nil
}

func NewWithSender(s Sender, admins []int64) *Notifier {
	return &Notifier{sender: s, admins: admins}
}

// NotifyAdmins sends text to every admin chat. Delivery failures are logged
// and do not stop the remaining sends.
func (n *Notifier) NotifyAdmins(ctx context.Context, text string) {
	if n == nil || text == "" {
		return
	}
	for _, id := range n.admins {
		if ctx.Err() != nil {
			return
		}
		msg := tgbotapi.NewMessage(id, text)
		msg.DisableWebPagePreview = true
		if _, err := n.sender.Send(msg); err != nil {
			logger.Warn(ctx, "telegram send failed", "chat_id", id, "error", err)
		}
	}
}
