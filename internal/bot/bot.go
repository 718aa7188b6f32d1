// Package bot runs the Telegram subscription bot: /start subscribes a chat
// to availability announcements, /quit unsubscribes it.
package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/finnappt/seatwatch/internal/subscribers"
)

const helpText = "Commands:\n" +
	"/start - subscribe to seat availability announcements\n" +
	"/quit - unsubscribe"

// sender is the slice of the Telegram API the bot needs.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Bot serves subscription commands over Telegram long polling.
type Bot struct {
	api    sender
	store  subscribers.Store
	logger *zap.Logger
}

// New connects to the Telegram API with the given token.
func New(token string, store subscribers.Store, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect to telegram: %w", err)
	}
	return newBot(api, store, logger), nil
}

func newBot(api sender, store subscribers.Store, logger *zap.Logger) *Bot {
	return &Bot{api: api, store: store, logger: logger.Named("bot")}
}

// Run polls for updates until ctx ends.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			b.handle(update.Message)
		}
	}
}

func (b *Bot) handle(msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	reply, err := Reply(b.store, chatID, msg.Text)
	if err != nil {
		b.logger.Error("handling command failed",
			zap.Int64("chat_id", chatID), zap.String("text", msg.Text), zap.Error(err))
		reply = "Something went wrong, try again later."
	}
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, reply)); err != nil {
		b.logger.Error("sending reply failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// Reply resolves one incoming command against the subscriber store and
// returns the response text. Unknown input gets the help text.
func Reply(store subscribers.Store, chatID int64, text string) (string, error) {
	id := strconv.FormatInt(chatID, 10)
	switch command(text) {
	case "/start":
		if err := store.Add(id); err != nil {
			return "", fmt.Errorf("subscribe %s: %w", id, err)
		}
		return "Subscribed. You will hear about open appointment dates as soon as they appear.", nil
	case "/quit":
		if err := store.Remove(id); err != nil {
			return "", fmt.Errorf("unsubscribe %s: %w", id, err)
		}
		return "Unsubscribed. Send /start to subscribe again.", nil
	default:
		return helpText, nil
	}
}

// command strips bot-name suffixes like "/start@seatwatch_bot" down to the
// bare command.
func command(text string) string {
	cmd := strings.TrimSpace(text)
	if i := strings.IndexAny(cmd, "@ "); i > 0 {
		cmd = cmd[:i]
	}
	return cmd
}
