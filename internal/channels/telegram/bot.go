package telegram

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/gmsas95/dosetrack/internal/errors"
)

// Bot delivers reminders to a single Telegram chat
type Bot struct {
	api     *tgbotapi.BotAPI
	chatID  int64
	logger  *zap.Logger
	enabled bool
}

// Config holds Telegram bot configuration
type Config struct {
	Token   string
	ChatID  int64
	Enabled bool
}

// NewBot creates a new Telegram delivery bot. When the channel is not
// configured the bot is returned disabled rather than failing startup.
func NewBot(cfg Config, logger *zap.Logger) (*Bot, error) {
	if !cfg.Enabled || cfg.Token == "" {
		return &Bot{enabled: false, logger: logger}, nil
	}

	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	api.Debug = false

	logger.Info("Telegram delivery channel ready",
		zap.String("account", api.Self.UserName),
		zap.Int64("chat_id", cfg.ChatID),
	)

	return &Bot{
		api:     api,
		chatID:  cfg.ChatID,
		logger:  logger,
		enabled: true,
	}, nil
}

// Enabled reports whether the channel can deliver
func (b *Bot) Enabled() bool {
	return b.enabled
}

// Send delivers one message to the configured chat
func (b *Bot) Send(text string) error {
	if !b.enabled {
		return errors.ErrChannelNotConfigured
	}

	msg := tgbotapi.NewMessage(b.chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		return errors.Wrap(err, errors.ErrChannelUnavailable.Code, "telegram send failed")
	}
	return nil
}
