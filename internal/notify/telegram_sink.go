package notify

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-telegram/bot"
	"go.uber.org/zap"
)

// TelegramSink отправляет сообщение пользователям, вошедшим через Telegram:
// их user id - числовой id чата. Остальные пропускаются.
type TelegramSink struct {
	bot    *bot.Bot
	logger *zap.Logger
}

func NewTelegramSink(b *bot.Bot, logger *zap.Logger) *TelegramSink {
	return &TelegramSink{bot: b, logger: logger}
}

func (s *TelegramSink) Notify(ctx context.Context, ev Event) {
	chatID, err := strconv.ParseInt(ev.Audience, 10, 64)
	if err != nil {
		return
	}

	_, err = s.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   MessageText(ev),
	})
	if err != nil {
		s.logger.Warn("Failed to send telegram notification",
			zap.Int64("chat_id", chatID),
			zap.String("kind", string(ev.Kind)),
			zap.Error(err),
		)
	}
}

// MessageText - короткий текст сообщения для события
func MessageText(ev Event) string {
	switch ev.Kind {
	case KindRequestCreated:
		return fmt.Sprintf("🔄 New swap request from %v", ev.Payload["requester_id"])
	case KindRequestAccepted:
		return "✅ Your swap request was accepted!"
	case KindRequestRejected:
		if expired, _ := ev.Payload["expired"].(bool); expired {
			return "⌛ Your swap request expired without an answer."
		}
		return "❌ Your swap request was rejected."
	case KindExpiringSoon:
		return fmt.Sprintf("🗑 %v deleted slot(s) will be purged soon. Restore them before they expire.", ev.Payload["count"])
	default:
		return string(ev.Kind)
	}
}
