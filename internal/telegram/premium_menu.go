package telegram

import (
	"chatroulette/backend/internal/premium"
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

var menuFeatures = []struct {
	feature string
	label   string
}{
	{premium.FeatureRegionFilter, "btn_region_filter"},
	{premium.FeaturePriority, "btn_priority"},
	{premium.FeatureInstantRematch, "btn_rematch"},
	{premium.FeatureVIPWeek, "btn_vip_week"},
}

func (s *BotService) handlePremium(ctx context.Context, userID int64) {
	if s.Premium == nil {
		s.reply(ctx, userID, "premium_disabled")
		return
	}
	if err := s.Matchmaking.Touch(ctx, userID); err != nil {
		s.fail(ctx, userID, "premium", err)
		return
	}
	acc, err := s.Premium.Account(ctx, userID)
	if err != nil {
		s.fail(ctx, userID, "premium", err)
		return
	}

	lang := s.lang(userID)
	status := s.Localizer.GetString(lang, "vip_off")
	if acc.IsVIP(s.Premium.Now()) {
		status = s.Localizer.GetString(lang, "vip_on")
	}

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(menuFeatures))
	for _, f := range menuFeatures {
		label := s.Localizer.Format(lang, f.label, premium.Prices[f.feature])
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, "buy_"+f.feature),
		))
	}

	msg := tgbotapi.NewMessage(userID, s.Localizer.Format(lang, "premium_menu", status, acc.Stars))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	s.send(ctx, msg)
}

func (s *BotService) handleBuy(ctx context.Context, userID int64, feature string) {
	if s.Premium == nil {
		s.reply(ctx, userID, "premium_disabled")
		return
	}

	switch feature {
	case premium.FeaturePriority:
		// Charged by the priority lookup itself.
		s.handleSearch(ctx, userID, true)
		return
	case premium.FeatureInstantRematch:
		if !s.purchase(ctx, userID, feature) {
			return
		}
		priority, ok := s.priority(ctx, userID, false)
		if !ok {
			return
		}
		if priority < premium.PriorityPaid {
			priority = premium.PriorityPaid
		}
		if err := s.Matchmaking.Next(ctx, userID, priority); err != nil {
			s.fail(ctx, userID, "rematch", err)
			return
		}
		s.reply(ctx, userID, "next_searching")
		return
	}

	if !s.purchase(ctx, userID, feature) {
		return
	}
	if feature == premium.FeatureVIPWeek {
		s.reply(ctx, userID, "vip_activated")
		return
	}
	s.reply(ctx, userID, "feature_unlocked")
}

func (s *BotService) purchase(ctx context.Context, userID int64, feature string) bool {
	err := s.Premium.Purchase(ctx, userID, feature)
	switch {
	case err == nil:
		return true
	case errors.Is(err, premium.ErrNotEnoughStars):
		s.reply(ctx, userID, "not_enough_stars")
	default:
		s.fail(ctx, userID, fmt.Sprintf("buy %s", feature), err)
	}
	return false
}
