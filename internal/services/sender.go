package services

import (
	"context"
	"fmt"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"shoprelay/internal/config"
)

// Sender delivers one message to one chat and reports the platform message
// id of the delivered message. No retries; a non-ok platform response is
// surfaced to the caller.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) (int, error)
}

// TelegramSender wraps the Telegram bot API send-message call.
type TelegramSender struct {
	api    *tgbotapi.BotAPI
	logger *logrus.Logger
}

func NewTelegramSender(cfg *config.Config, logger *logrus.Logger) (*TelegramSender, error) {
	if logger == nil {
		logger = logrus.New()
	}

	client := &http.Client{
		Timeout:   cfg.Telegram.Timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	api, err := tgbotapi.NewBotAPIWithClient(cfg.Telegram.BotToken, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram client: %w", err)
	}

	logger.Infof("Telegram sender ready as @%s", api.Self.UserName)
	return &TelegramSender{api: api, logger: logger}, nil
}

func (s *TelegramSender) Send(ctx context.Context, chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if keyboard != nil {
		msg.ReplyMarkup = *keyboard
	}

	sent, err := s.api.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("failed to send to chat %d: %w", chatID, err)
	}
	return sent.MessageID, nil
}
