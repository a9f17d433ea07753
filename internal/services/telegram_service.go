package services

import (
	"context"
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"biodata/internal/events"
)

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier tells the moderators' chat about new and resubmitted applications.
type TelegramNotifier struct {
	bot    TelegramSender
	chatID int64
}

func NewTelegramNotifier(token string, chatID int64, timeout time.Duration) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &TelegramNotifier{bot: bot, chatID: chatID}, nil
}

func (t *TelegramNotifier) Publish(_ context.Context, e events.Event) error {
	var text string
	switch e.Type {
	case events.TypeSubmitted:
		text = fmt.Sprintf("New application %s from %s (%s) is waiting for review.", e.UniqueID, e.Name, e.MainContactNumber)
	case events.TypeResubmitted:
		text = fmt.Sprintf("Application %s from %s was resubmitted after rejection.", e.UniqueID, e.Name)
	default:
		return nil
	}
	if t.chatID == 0 {
		logrus.Debug("[tg][skip] chat id not configured")
		return nil
	}
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}
