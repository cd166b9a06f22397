// Package notify messages the owner on Telegram about booking changes and
// sends the daily agenda digest.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// TelegramSender is the subset of *tgbotapi.BotAPI used here.
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// RetryConfig holds configuration for retry logic.
type RetryConfig struct {
	MaxRetries  int
	RetryDelays []time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		RetryDelays: []time.Duration{
			1 * time.Second,
			5 * time.Second,
			30 * time.Second,
		},
	}
}

func (c RetryConfig) delay(attempt int) time.Duration {
	if len(c.RetryDelays) == 0 {
		return time.Second
	}
	if attempt >= len(c.RetryDelays) {
		return c.RetryDelays[len(c.RetryDelays)-1]
	}
	return c.RetryDelays[attempt]
}

// Config tunes the notifier.
type Config struct {
	ChatIDs       []int64
	RatePerSecond float64
	QueueSize     int
	Retry         RetryConfig
	Location      *time.Location
}

type message struct {
	kind string
	text string
}

// Notifier delivers messages to the owner chats from a single worker.
type Notifier struct {
	api     TelegramSender
	chatIDs []int64
	limiter *rate.Limiter
	retry   RetryConfig
	loc     *time.Location
	queue   chan message
	logger  zerolog.Logger
}

// NewNotifier builds a notifier. Call Run to start delivering.
func NewNotifier(api TelegramSender, cfg Config, logger zerolog.Logger) *Notifier {
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 20
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.Retry.MaxRetries == 0 && len(cfg.Retry.RetryDelays) == 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Notifier{
		api:     api,
		chatIDs: cfg.ChatIDs,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1),
		retry:   cfg.Retry,
		loc:     cfg.Location,
		queue:   make(chan message, cfg.QueueSize),
		logger:  logger.With().Str("component", "notify").Logger(),
	}
}

// Enqueue schedules text for every owner chat. It never blocks; when the
// queue is full the message is dropped.
func (n *Notifier) Enqueue(kind, text string) {
	select {
	case n.queue <- message{kind: kind, text: text}:
	default:
		queueDropped.Inc()
		n.logger.Warn().Str("kind", kind).Msg("notification queue full, message dropped")
	}
}

// Run delivers queued messages until ctx is done.
func (n *Notifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-n.queue:
			n.broadcast(ctx, msg)
		}
	}
}

func (n *Notifier) broadcast(ctx context.Context, msg message) {
	for _, chatID := range n.chatIDs {
		if err := n.SendWithRetry(ctx, chatID, msg.text); err != nil {
			if ctx.Err() != nil {
				return
			}
			n.logger.Error().Err(err).Int64("chat_id", chatID).Str("kind", msg.kind).Msg("notification not delivered")
			continue
		}
		messagesSent.WithLabelValues(msg.kind).Inc()
	}
}

// SendWithRetry sends text to chatID with rate limiting and retries. A 429
// from Telegram waits for retry_after; 400 and 403 are not retried.
func (n *Notifier) SendWithRetry(ctx context.Context, chatID int64, text string) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= n.retry.MaxRetries; attempt++ {
		_, err := n.api.Send(tgbotapi.NewMessage(chatID, text))
		if err == nil {
			return nil
		}
		lastErr = err

		wait := n.retry.delay(attempt)
		var tgErr *tgbotapi.Error
		if errors.As(err, &tgErr) {
			switch tgErr.Code {
			case 429:
				if tgErr.RetryAfter > 0 {
					wait = time.Duration(tgErr.RetryAfter) * time.Second
				}
				n.logger.Info().Dur("retry_after", wait).Int("attempt", attempt).Msg("rate limited by Telegram, waiting")
			case 403:
				messagesFailed.WithLabelValues("bot_blocked").Inc()
				return fmt.Errorf("chat %d blocked the bot: %w", chatID, err)
			case 400:
				messagesFailed.WithLabelValues("bad_request").Inc()
				return fmt.Errorf("bad request to Telegram: %w", err)
			}
		}

		if attempt == n.retry.MaxRetries {
			break
		}
		sendRetries.Inc()
		n.logger.Debug().Err(err).Int("attempt", attempt+1).Dur("delay", wait).Msg("retrying send")

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	messagesFailed.WithLabelValues("max_retries_exceeded").Inc()
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}
