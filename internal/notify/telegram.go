package notify

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"lessonbook/internal/models"
)

// ChatDirectory resolves a platform user id to a Telegram chat.
type ChatDirectory interface {
	ChatID(ctx context.Context, userID string) (int64, error)
}

// TelegramNotifier sends booking messages over Telegram. Sends go through a
// shared token bucket so bursts of bookings stay under the Bot API limits.
type TelegramNotifier struct {
	bot     *tgbotapi.BotAPI
	chats   ChatDirectory
	limiter *rate.Limiter
	logger  *zerolog.Logger
}

// NewTelegramNotifier creates a notifier from a bot token.
func NewTelegramNotifier(token string, chats ChatDirectory, logger *zerolog.Logger) (*TelegramNotifier, error) {
	const op = "notify.NewTelegramNotifier"

	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &TelegramNotifier{
		bot:     bot,
		chats:   chats,
		limiter: rate.NewLimiter(rate.Limit(20), 30),
		logger:  logger,
	}, nil
}

// BookingConfirmed tells both participants the lesson is on the calendar.
func (n *TelegramNotifier) BookingConfirmed(ctx context.Context, b models.Booking) error {
	text := fmt.Sprintf("Your lesson on %s is confirmed.", formatWhen(b))
	return n.sendBoth(ctx, b, text)
}

// BookingRescheduled tells both participants about the new time.
func (n *TelegramNotifier) BookingRescheduled(ctx context.Context, b models.Booking, previous models.Interval) error {
	text := fmt.Sprintf("Your lesson has been moved from %s to %s.",
		formatInZone(previous.Start, b.Timezone), formatWhen(b))
	return n.sendBoth(ctx, b, text)
}

// BookingCancelled tells both participants the lesson is off.
func (n *TelegramNotifier) BookingCancelled(ctx context.Context, b models.Booking) error {
	text := fmt.Sprintf("Your lesson on %s has been cancelled.", formatWhen(b))
	return n.sendBoth(ctx, b, text)
}

// PaymentRequested sends the student a checkout link for a pending booking.
func (n *TelegramNotifier) PaymentRequested(ctx context.Context, b models.Booking, checkoutURL string) error {
	text := fmt.Sprintf("Please complete payment for your lesson on %s: %s",
		formatWhen(b), checkoutURL)
	return n.send(ctx, b.StudentID, text)
}

func (n *TelegramNotifier) sendBoth(ctx context.Context, b models.Booking, text string) error {
	if err := n.send(ctx, b.StudentID, text); err != nil {
		return err
	}
	return n.send(ctx, b.TutorID, text)
}

func (n *TelegramNotifier) send(ctx context.Context, userID, text string) error {
	const op = "notify.TelegramNotifier.send"

	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	chatID, err := n.chats.ChatID(ctx, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if _, err := n.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n.logger.Debug().Str("user_id", userID).Msg("telegram notification sent")
	return nil
}

func formatWhen(b models.Booking) string {
	return formatInZone(b.ScheduledAt, b.Timezone)
}

func formatInZone(t time.Time, tz string) string {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}
	return t.In(loc).Format("Mon, 2 Jan 2006 at 15:04 (MST)")
}
