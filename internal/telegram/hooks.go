package telegram

import (
	"chatroulette/backend/internal/matchmaking"
	"context"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// PreMatch shows the user that a partner is on the way, then waits
// PrimingDelay so the notice lands before the chat opens.
func (s *BotService) PreMatch(ctx context.Context, userID int64) error {
	if _, err := s.request(ctx, tgbotapi.NewChatAction(userID, tgbotapi.ChatTyping)); err != nil {
		return err
	}
	text := s.Localizer.GetString(s.lang(userID), "match_pending")
	if _, err := s.sendErr(ctx, tgbotapi.NewMessage(userID, text)); err != nil {
		return err
	}

	if s.PrimingDelay <= 0 {
		return nil
	}
	t := time.NewTimer(s.PrimingDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// PostMatch tells the user the chat is open.
func (s *BotService) PostMatch(ctx context.Context, userID int64) error {
	text := s.Localizer.GetString(s.lang(userID), "partner_found")
	_, err := s.sendErr(ctx, tgbotapi.NewMessage(userID, text))
	return err
}

// Notify delivers a matchmaking notice in the user's language.
func (s *BotService) Notify(ctx context.Context, userID int64, notice matchmaking.Notice) error {
	text := s.Localizer.GetString(s.lang(userID), string(notice))
	_, err := s.sendErr(ctx, tgbotapi.NewMessage(userID, text))
	return err
}

var (
	_ matchmaking.Hooks    = (*BotService)(nil)
	_ matchmaking.Notifier = (*BotService)(nil)
)
