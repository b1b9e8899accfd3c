// Package chat is the Telegram front end: free text is saved as records, one
// per line, and a handful of commands report on the user's account.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"snipper/internal/cache"
	"snipper/internal/types"
)

// Source tags records saved through chat.
const Source = "telegram"

const confirmCounterTTL = 30 * 24 * time.Hour

// Sender is the part of *tgbotapi.BotAPI the bot uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// RecordService saves and reads records.
type RecordService interface {
	EnsureUser(ctx context.Context, userID, email string) (*types.UserSchedule, error)
	SaveLines(ctx context.Context, userID, source, text string) (int, error)
	Last(ctx context.Context, userID string) (string, error)
}

// Counter is an expiring atomic counter; cache.RedisStore implements it.
type Counter interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Bot answers chat messages.
type Bot struct {
	sender  Sender
	records RecordService
	counter Counter
	// status probes the record store for the status command. Optional.
	status func(ctx context.Context) error
	clock  types.Clock
	logger *slog.Logger
}

func NewBot(sender Sender, records RecordService, counter Counter, status func(ctx context.Context) error, clock types.Clock, logger *slog.Logger) *Bot {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{
		sender:  sender,
		records: records,
		counter: counter,
		status:  status,
		clock:   clock,
		logger:  logger,
	}
}

// UserID maps a Telegram account to a snipper user ID.
func UserID(telegramID int64) string {
	return "tg_" + strconv.FormatInt(telegramID, 10)
}

// HandleUpdate replies to one incoming message. Non-text updates are ignored.
func (b *Bot) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	msg := upd.Message
	if msg == nil || msg.From == nil {
		return
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	reply := b.Respond(ctx, UserID(msg.From.ID), msg.From.UserName, text)
	if reply == "" {
		return
	}
	if _, err := b.sender.Send(tgbotapi.NewMessage(msg.Chat.ID, reply)); err != nil {
		b.logger.WarnContext(ctx, "chat reply failed", "chat_id", msg.Chat.ID, "error", err)
	}
}

// Respond computes the reply to text from userID. An empty reply means
// nothing should be sent.
func (b *Bot) Respond(ctx context.Context, userID, name, text string) string {
	sched, err := b.records.EnsureUser(ctx, userID, "")
	if err != nil {
		b.logger.ErrorContext(ctx, "chat user lookup failed", "user_id", userID, "error", err)
		return ":( " + replyError(err)
	}
	if name == "" {
		name = sched.DisplayName()
	}

	switch strings.ToLower(text) {
	case "help", "/help", "/start":
		return fmt.Sprintf(helpTemplate, name)
	case "last", "/last":
		return b.last(ctx, userID)
	case "status", "/status":
		return b.statusText(ctx)
	case "whoami", "/whoami":
		return fmt.Sprintf("%s , %s", sched.DisplayName(), sched.Timezone)
	}

	if _, err := b.records.SaveLines(ctx, userID, Source, text); err != nil {
		b.logger.InfoContext(ctx, "chat record rejected", "user_id", userID, "error", err)
		return ":( " + replyError(err)
	}
	if !sched.ConfirmDelivery {
		return ""
	}
	return b.confirmation(ctx, sched)
}

func (b *Bot) last(ctx context.Context, userID string) string {
	body, err := b.records.Last(ctx, userID)
	if err != nil {
		if !types.HasCode(err, types.ErrCodeNotFoundRecord) {
			b.logger.WarnContext(ctx, "last record lookup failed", "user_id", userID, "error", err)
		}
		return noLastRecord
	}
	return body
}

func (b *Bot) statusText(ctx context.Context) string {
	if b.status != nil {
		if err := b.status(ctx); err != nil {
			b.logger.WarnContext(ctx, "status probe failed", "error", err)
			return fmt.Sprintf(statusTemplate, "Degraded", "Snippets may not be saved right now, please try again later.")
		}
	}
	return fmt.Sprintf(statusTemplate, "OK", "Snipper should be working properly.")
}

// confirmation picks the next message from the user's rotation. The cheeky
// list is used when the user opted in, or on April 1 in their timezone.
func (b *Bot) confirmation(ctx context.Context, sched *types.UserSchedule) string {
	messages := successMessages
	if sched.CheekyConfirm || isAprilFools(b.clock.Now(), sched) {
		messages = cheekyMessages
	}

	n, err := b.counter.Incr(ctx, cache.ConfirmKey(sched.UserID), confirmCounterTTL)
	if err != nil || n < 1 {
		b.logger.WarnContext(ctx, "confirmation counter unavailable", "user_id", sched.UserID, "error", err)
		return messages[0]
	}
	return messages[(n-1)%int64(len(messages))]
}

func isAprilFools(now time.Time, sched *types.UserSchedule) bool {
	if loc, err := sched.Location(); err == nil {
		now = now.In(loc)
	}
	return now.Month() == time.April && now.Day() == 1
}

func replyError(err error) string {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "something went wrong"
}

// Run handles updates until ctx is cancelled or the channel closes.
func (b *Bot) Run(ctx context.Context, updates <-chan tgbotapi.Update) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			b.HandleUpdate(ctx, upd)
		}
	}
}
