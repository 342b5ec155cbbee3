package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"github.com/Shivanand-hulikatti/ticket-marketplace/internal/model"
)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSink mirrors every notification into one ops chat.
type TelegramSink struct {
	bot    sender
	chatID int64
}

// NewTelegramSink authorises the bot token and targets chatID.
func NewTelegramSink(token string, chatID int64) (*TelegramSink, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to authorise telegram bot: %w", err)
	}
	log.WithField("bot", bot.Self.UserName).Info("Telegram bot authorised")
	return &TelegramSink{bot: bot, chatID: chatID}, nil
}

func (s *TelegramSink) Name() string { return "telegram" }

func (s *TelegramSink) Notify(_ context.Context, n model.Notification) error {
	msg := tgbotapi.NewMessage(s.chatID, FormatMessage(n))
	if _, err := s.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

// FormatMessage renders a notification as plain chat text.
func FormatMessage(n model.Notification) string {
	return fmt.Sprintf("[%s] %s\n%s\nuser: %s", n.Type, n.Title, n.Message, n.UserID)
}
