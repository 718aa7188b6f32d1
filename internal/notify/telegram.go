package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/finnappt/seatwatch/internal/subscribers"
)

// Telegram's hard limit is 30 messages/second; stay one under it.
const globalTokensPerSecond = 29

// sender abstracts the bot API so tests run without Telegram.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramConfig identifies the chats the notifier writes to.
type TelegramConfig struct {
	Token          string
	OperatorChatID int64
	ChatID         int64
	LogChatID      int64
	// Disabled silences chat/broadcast/log sends while keeping operator
	// messages flowing, for dry runs.
	Disabled bool
}

// Telegram sends notifications through a Telegram bot, throttled by a global
// token bucket plus a stricter union limit on the log channel.
type Telegram struct {
	cfg    TelegramConfig
	bot    sender
	store  subscribers.Store
	logger *zap.Logger

	global *rate.Limiter
	// The log channel additionally must satisfy every limiter in this set.
	logUnion []*rate.Limiter
}

// NewTelegram connects the bot and builds the rate limiters.
func NewTelegram(cfg TelegramConfig, store subscribers.Store, logger *zap.Logger) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	return newTelegram(cfg, bot, store, logger), nil
}

func newTelegram(cfg TelegramConfig, bot sender, store subscribers.Store, logger *zap.Logger) *Telegram {
	return &Telegram{
		cfg:    cfg,
		bot:    bot,
		store:  store,
		logger: logger.Named("telegram"),
		global: rate.NewLimiter(globalTokensPerSecond, globalTokensPerSecond),
		logUnion: []*rate.Limiter{
			// 15 messages per minute to the same group.
			rate.NewLimiter(rate.Limit(15.0/60.0), 1),
			// At most one message every two seconds.
			rate.NewLimiter(rate.Limit(0.5), 1),
		},
	}
}

// SendOperator delivers a message to the operator chat. Not gated by the
// Disabled toggle so dry runs still surface diagnostics.
func (t *Telegram) SendOperator(ctx context.Context, msg string) error {
	return t.send(ctx, tgbotapi.NewMessage(t.cfg.OperatorChatID, msg))
}

// SendChat posts to the shared announcement channel.
func (t *Telegram) SendChat(ctx context.Context, msg string) error {
	if t.cfg.Disabled {
		return nil
	}
	return t.send(ctx, tgbotapi.NewMessage(t.cfg.ChatID, msg))
}

// SendBroadcast sends msg to every subscriber. Subscribers who blocked the
// bot are pruned from the store; any other delivery failure is reported to
// the operator and never raised to the caller.
func (t *Telegram) SendBroadcast(ctx context.Context, msg string) error {
	if t.cfg.Disabled {
		return nil
	}
	ids, err := t.store.Ids()
	if err != nil {
		return fmt.Errorf("read subscriber list: %w", err)
	}
	for _, id := range ids {
		chatID, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			t.logger.Warn("skipping malformed subscriber id", zap.String("id", id))
			continue
		}
		if err := t.send(ctx, tgbotapi.NewMessage(chatID, msg)); err != nil {
			if ctx.Err() != nil {
				return err
			}
			if isBlockedErr(err) {
				t.logger.Info("subscriber blocked the bot, removing", zap.String("id", id))
				if rmErr := t.store.Remove(id); rmErr != nil {
					t.logger.Error("failed to remove blocked subscriber",
						zap.String("id", id), zap.Error(rmErr))
				}
				continue
			}
			report := fmt.Sprintf("broadcast to %s failed: %v", id, err)
			if opErr := t.SendOperator(ctx, report); opErr != nil {
				t.logger.Error("operator report failed", zap.Error(opErr))
			}
		}
	}
	return nil
}

// SendLog posts to the log channel under the union limit.
func (t *Telegram) SendLog(ctx context.Context, msg string) error {
	if t.cfg.Disabled {
		return nil
	}
	for _, l := range t.logUnion {
		if err := l.Wait(ctx); err != nil {
			return fmt.Errorf("log rate limit: %w", err)
		}
	}
	return t.send(ctx, tgbotapi.NewMessage(t.cfg.LogChatID, msg))
}

// SendImageOperator sends a screenshot file to the operator chat.
func (t *Telegram) SendImageOperator(ctx context.Context, path string) error {
	return t.send(ctx, tgbotapi.NewPhoto(t.cfg.OperatorChatID, tgbotapi.FilePath(path)))
}

// SendImageChat posts a screenshot file to the announcement channel.
func (t *Telegram) SendImageChat(ctx context.Context, path string) error {
	if t.cfg.Disabled {
		return nil
	}
	return t.send(ctx, tgbotapi.NewPhoto(t.cfg.ChatID, tgbotapi.FilePath(path)))
}

func (t *Telegram) send(ctx context.Context, c tgbotapi.Chattable) error {
	if err := t.global.Wait(ctx); err != nil {
		return fmt.Errorf("send rate limit: %w", err)
	}
	if _, err := t.bot.Send(c); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

func isBlockedErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "blocked by the user")
}
