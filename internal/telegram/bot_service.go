// Package telegram handles the integration with the Telegram Bot API.
// It turns bot commands into matchmaking actions, relays chat messages
// between partners and delivers matchmaking notices.
package telegram

import (
	"chatroulette/backend/internal/localization"
	"chatroulette/backend/internal/matchmaking"
	"chatroulette/backend/internal/models"
	"chatroulette/backend/internal/premium"
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// BotService receives Telegram updates and routes them to matchmaking.
type BotService struct {
	Sender      Sender
	Matchmaking *matchmaking.Service
	Premium     *premium.Service // nil disables paid features
	Localizer   *localization.Localizer
	Logger      *zap.Logger

	// PrimingDelay is how long the pre-match hook keeps the "typing" status
	// up before the match is committed.
	PrimingDelay time.Duration
	// RegionFilter enables the /region filter option.
	RegionFilter bool

	langs sync.Map // chat ID -> language code
}

// NewBotService creates a new BotService instance.
func NewBotService(sender Sender, mm *matchmaking.Service, loc *localization.Localizer, logger *zap.Logger) *BotService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BotService{
		Sender:       sender,
		Matchmaking:  mm,
		Localizer:    loc,
		Logger:       logger,
		PrimingDelay: 50 * time.Millisecond,
		RegionFilter: true,
	}
}

// NewBotAPI authorizes against Telegram.
func NewBotAPI(token string, debug bool) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	bot.Debug = debug
	return bot, nil
}

// Run handles updates until ctx is cancelled or the channel closes.
func (s *BotService) Run(ctx context.Context, updates <-chan tgbotapi.Update) {
	s.Logger.Info("Telegram bot service started")
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			s.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate processes a single update.
func (s *BotService) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.Message != nil:
		s.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		s.handleCallbackQuery(ctx, update.CallbackQuery)
	}
}

func (s *BotService) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	userID := msg.From.ID
	s.rememberLang(userID, msg.From.LanguageCode)

	if !msg.IsCommand() {
		s.relay(ctx, userID, msg)
		return
	}

	switch msg.Command() {
	case "start":
		s.handleStart(ctx, userID)
	case "gender":
		s.handleGender(ctx, userID)
	case "region":
		s.handleRegion(ctx, userID, msg.CommandArguments())
	case "search":
		s.handleSearch(ctx, userID, false)
	case "priority":
		s.handleSearch(ctx, userID, true)
	case "next":
		s.handleNext(ctx, userID, false)
	case "stop":
		s.handleStop(ctx, userID)
	case "premium":
		s.handlePremium(ctx, userID)
	default:
		s.relay(ctx, userID, msg)
	}
}

func (s *BotService) handleStart(ctx context.Context, userID int64) {
	if _, err := s.Matchmaking.Start(ctx, userID); err != nil {
		s.fail(ctx, userID, "start", err)
		return
	}
	s.reply(ctx, userID, "welcome")
}

func (s *BotService) handleGender(ctx context.Context, userID int64) {
	if err := s.Matchmaking.Touch(ctx, userID); err != nil {
		s.fail(ctx, userID, "gender", err)
		return
	}
	lang := s.lang(userID)
	msg := tgbotapi.NewMessage(userID, s.Localizer.GetString(lang, "gender_prompt"))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(s.Localizer.GetString(lang, "gender_male"), "set_gender_male"),
			tgbotapi.NewInlineKeyboardButtonData(s.Localizer.GetString(lang, "gender_female"), "set_gender_female"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(s.Localizer.GetString(lang, "gender_skip"), "set_gender_unset"),
		),
	)
	s.send(ctx, msg)
}

// handleRegion parses "/region <code> [filter]".
func (s *BotService) handleRegion(ctx context.Context, userID int64, args string) {
	fields := strings.Fields(args)
	if len(fields) == 0 || len(fields) > 2 {
		s.reply(ctx, userID, "region_usage")
		return
	}
	region := strings.ToUpper(fields[0])
	filter := len(fields) == 2 && strings.EqualFold(fields[1], "filter")

	if filter && !s.RegionFilter {
		filter = false
	}
	if filter {
		ok, err := s.hasFeature(ctx, userID, premium.FeatureRegionFilter)
		if err != nil {
			s.fail(ctx, userID, "region", err)
			return
		}
		if !ok {
			s.reply(ctx, userID, "region_filter_locked")
			filter = false
		}
	}

	if err := s.Matchmaking.SetRegion(ctx, userID, region, filter); err != nil {
		s.fail(ctx, userID, "region", err)
		return
	}
	if filter {
		s.reply(ctx, userID, "region_filter_on", region)
		return
	}
	s.reply(ctx, userID, "region_saved", region)
}

func (s *BotService) handleSearch(ctx context.Context, userID int64, paid bool) {
	priority, ok := s.priority(ctx, userID, paid)
	if !ok {
		return
	}
	if err := s.Matchmaking.Search(ctx, userID, priority); err != nil {
		s.fail(ctx, userID, "search", err)
		return
	}
	if priority > premium.PriorityNormal {
		s.reply(ctx, userID, "searching_priority")
		return
	}
	s.reply(ctx, userID, "searching")
}

func (s *BotService) handleNext(ctx context.Context, userID int64, paid bool) {
	priority, ok := s.priority(ctx, userID, paid)
	if !ok {
		return
	}
	if err := s.Matchmaking.Next(ctx, userID, priority); err != nil {
		s.fail(ctx, userID, "next", err)
		return
	}
	s.reply(ctx, userID, "next_searching")
}

func (s *BotService) handleStop(ctx context.Context, userID int64) {
	if _, err := s.Matchmaking.Stop(ctx, userID); err != nil {
		s.fail(ctx, userID, "stop", err)
	}
}

// priority resolves the queue priority. ok is false when the user was
// already told why the search cannot start.
func (s *BotService) priority(ctx context.Context, userID int64, paid bool) (int, bool) {
	if s.Premium == nil {
		return premium.PriorityNormal, true
	}
	p, err := s.Premium.SearchPriority(ctx, userID, paid)
	if errors.Is(err, premium.ErrNotEnoughStars) {
		s.reply(ctx, userID, "not_enough_stars")
		return 0, false
	}
	if err != nil {
		// Accounts are optional for matching; fall back to the normal tier.
		s.Logger.Warn("Priority lookup failed", zap.Int64("user", userID), zap.Error(err))
		return premium.PriorityNormal, true
	}
	return p, true
}

func (s *BotService) hasFeature(ctx context.Context, userID int64, feature string) (bool, error) {
	if s.Premium == nil {
		return false, nil
	}
	return s.Premium.HasFeature(ctx, userID, feature)
}

// relay forwards a chat message to the partner.
func (s *BotService) relay(ctx context.Context, userID int64, msg *tgbotapi.Message) {
	if err := s.Matchmaking.Touch(ctx, userID); err != nil {
		s.Logger.Warn("Touch failed", zap.Int64("user", userID), zap.Error(err))
		return
	}
	partner, err := s.Matchmaking.Partner(ctx, userID)
	if err != nil {
		s.Logger.Warn("Partner lookup failed", zap.Int64("user", userID), zap.Error(err))
		return
	}
	if partner == 0 {
		s.reply(ctx, userID, "not_chatting")
		return
	}

	text := extractMessageContent(msg)
	if text == "" {
		return
	}
	s.send(ctx, tgbotapi.NewMessage(partner, text))
}

// extractMessageContent uniformly extracts text or a caption from a message.
func extractMessageContent(msg *tgbotapi.Message) string {
	if msg == nil {
		return ""
	}
	if msg.Text != "" {
		return msg.Text
	}
	return msg.Caption
}

func (s *BotService) handleCallbackQuery(ctx context.Context, q *tgbotapi.CallbackQuery) {
	if q.From == nil {
		return
	}
	// Respond to the callback query to remove the "loading" state.
	if _, err := s.request(ctx, tgbotapi.NewCallback(q.ID, "")); err != nil {
		s.Logger.Debug("Callback answer failed", zap.Error(err))
	}

	userID := q.From.ID
	s.rememberLang(userID, q.From.LanguageCode)

	switch data := q.Data; {
	case strings.HasPrefix(data, "set_gender_"):
		s.handleSetGender(ctx, userID, strings.TrimPrefix(data, "set_gender_"))
	case strings.HasPrefix(data, "buy_"):
		s.handleBuy(ctx, userID, strings.TrimPrefix(data, "buy_"))
	}
}

func (s *BotService) handleSetGender(ctx context.Context, userID int64, value string) {
	gender := models.ParseGender(value)
	if err := s.Matchmaking.SetGender(ctx, userID, gender); err != nil {
		s.fail(ctx, userID, "set gender", err)
		return
	}
	switch gender {
	case models.GenderMale:
		s.reply(ctx, userID, "gender_saved_male")
	case models.GenderFemale:
		s.reply(ctx, userID, "gender_saved_female")
	default:
		s.reply(ctx, userID, "gender_saved_unset")
	}
}

func (s *BotService) send(ctx context.Context, c tgbotapi.Chattable) {
	if _, err := s.sendErr(ctx, c); err != nil {
		s.Logger.Warn("Telegram send failed", zap.Error(err))
	}
}

func (s *BotService) sendErr(ctx context.Context, c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if g, ok := s.Sender.(*GuardedSender); ok {
		return g.SendContext(ctx, c)
	}
	return s.Sender.Send(c)
}

func (s *BotService) request(ctx context.Context, c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	if g, ok := s.Sender.(*GuardedSender); ok {
		return g.RequestContext(ctx, c)
	}
	return s.Sender.Request(c)
}

// reply sends a localized message to the user.
func (s *BotService) reply(ctx context.Context, userID int64, key string, args ...any) {
	text := s.Localizer.Format(s.lang(userID), key, args...)
	s.send(ctx, tgbotapi.NewMessage(userID, text))
}

func (s *BotService) fail(ctx context.Context, userID int64, action string, err error) {
	s.Logger.Error("Bot action failed", zap.String("action", action), zap.Int64("user", userID), zap.Error(err))
	s.reply(ctx, userID, "error_generic")
}

func (s *BotService) rememberLang(userID int64, code string) {
	if code == "" {
		return
	}
	s.langs.Store(userID, s.Localizer.Lang(code))
}

func (s *BotService) lang(userID int64) string {
	if v, ok := s.langs.Load(userID); ok {
		return v.(string)
	}
	return localization.DefaultLanguage
}
