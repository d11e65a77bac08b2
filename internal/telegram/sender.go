package telegram

import (
	"context"
	"errors"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Sender is the subset of *tgbotapi.BotAPI used for outbound calls.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// ErrUnavailable is returned while the circuit breaker is open.
var ErrUnavailable = errors.New("telegram api unavailable")

// GuardedSender throttles outbound calls to stay under the Bot API limits
// and stops calling Telegram for a while once it keeps failing.
type GuardedSender struct {
	next    Sender
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewGuardedSender wraps next. ratePerSecond <= 0 disables throttling.
func NewGuardedSender(next Sender, ratePerSecond float64, burst int, logger *zap.Logger) *GuardedSender {
	limit := rate.Inf
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
	}
	if burst < 1 {
		burst = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "telegram",
		MaxRequests: 3,
		Interval:    15 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || isClientError(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &GuardedSender{
		next:    next,
		limiter: rate.NewLimiter(limit, burst),
		breaker: breaker,
	}
}

// isClientError reports per-chat failures (bot blocked, chat not found)
// that say nothing about the health of the API itself.
func isClientError(err error) bool {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code >= 400 && apiErr.Code < 500 && apiErr.Code != 429
}

func (g *GuardedSender) SendContext(ctx context.Context, c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return tgbotapi.Message{}, err
	}
	res, err := g.breaker.Execute(func() (interface{}, error) {
		return g.next.Send(c)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return tgbotapi.Message{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	msg, _ := res.(tgbotapi.Message)
	return msg, err
}

func (g *GuardedSender) RequestContext(ctx context.Context, c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	res, err := g.breaker.Execute(func() (interface{}, error) {
		return g.next.Request(c)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	resp, _ := res.(*tgbotapi.APIResponse)
	return resp, err
}

func (g *GuardedSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	return g.SendContext(context.Background(), c)
}

func (g *GuardedSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return g.RequestContext(context.Background(), c)
}
