package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	tele "gopkg.in/telebot.v3"

	"github.com/EscobozaEstrada/mrwhite-sub001/internal/core"
)

// Telegram delivers push notifications through a Telegram bot. Owners link
// their chat by messaging the bot /start and registering the chat id.
type Telegram struct {
	bot    *tele.Bot
	send   func(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	logger *slog.Logger
}

// NewTelegram creates a Telegram deliverer
func NewTelegram(token string, logger *slog.Logger) (*Telegram, error) {
	bot, err := tele.NewBot(tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	t := &Telegram{bot: bot, send: bot.Send, logger: logger}
	t.registerHandlers()
	return t, nil
}

func (t *Telegram) registerHandlers() {
	t.bot.Handle("/start", func(c tele.Context) error {
		return c.Send(fmt.Sprintf(
			"Hi! Your chat id is %d. Add it to your profile to receive reminders here.",
			c.Chat().ID))
	})
}

// Start begins polling for bot commands. Blocks until Stop.
func (t *Telegram) Start() {
	t.logger.Info("telegram bot started")
	t.bot.Start()
}

// Stop stops the bot poller
func (t *Telegram) Stop() {
	t.bot.Stop()
	t.logger.Info("telegram bot stopped")
}

// Deliver sends the payload to the owner's linked chat
func (t *Telegram) Deliver(ctx context.Context, owner *core.Owner, p Payload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if owner.TelegramChatID == nil {
		return fmt.Errorf("owner %d has no linked telegram chat", owner.ID)
	}
	msg := fmt.Sprintf("*%s*\n%s", p.Title, p.Body)
	_, err := t.send(tele.ChatID(*owner.TelegramChatID), msg, tele.ModeMarkdown)
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}
