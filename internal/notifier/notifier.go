// Package notifier delivers operator alerts.
package notifier

import (
	"context"
	"fmt"
	"time"

	"binance-dip-bot-go/internal/config"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const telegramBaseURL = "https://api.telegram.org"

// Notifier sends a single alert message.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// New returns a Telegram notifier when a bot token and chat are configured,
// and a log-only notifier otherwise.
func New(cfg *config.Telegram, logger *zap.Logger) Notifier {
	if cfg.BotToken == "" || cfg.ChatID == "" {
		logger.Warn("Telegram is not configured, alerts will only be logged")
		return &LogNotifier{logger: logger}
	}
	return NewTelegram(telegramBaseURL, cfg.BotToken, cfg.ChatID)
}

// Telegram sends messages through the Telegram Bot API.
type Telegram struct {
	client *resty.Client
	token  string
	chatID string
}

// NewTelegram creates a Telegram notifier against baseURL.
func NewTelegram(baseURL, token, chatID string) *Telegram {
	return &Telegram{
		client: resty.New().SetBaseURL(baseURL).SetTimeout(30 * time.Second),
		token:  token,
		chatID: chatID,
	}
}

// Notify posts text to the configured chat.
func (t *Telegram) Notify(ctx context.Context, text string) error {
	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}

	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"chat_id": t.chatID,
			"text":    text,
		}).
		SetResult(&result).
		SetError(&result).
		Post("/bot" + t.token + "/sendMessage")
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	if resp.IsError() || !result.OK {
		return fmt.Errorf("telegram API error: status %d: %s", resp.StatusCode(), result.Description)
	}
	return nil
}

// LogNotifier writes alerts to the log.
type LogNotifier struct {
	logger *zap.Logger
}

// Notify logs text at error level.
func (n *LogNotifier) Notify(_ context.Context, text string) error {
	n.logger.Error("ALERT", zap.String("message", text))
	return nil
}
