package main

import (
	"chatroulette/backend/internal/api/handler"
	"chatroulette/backend/internal/config"
	"chatroulette/backend/internal/localization"
	"chatroulette/backend/internal/logger"
	"chatroulette/backend/internal/matchmaking"
	"chatroulette/backend/internal/premium"
	"chatroulette/backend/internal/storage"
	"chatroulette/backend/internal/telegram"
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load(os.Getenv("CHATROULETTE_CONFIG"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	lg, err := logger.Build(cfg.Log)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer lg.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, lg); err != nil {
		lg.Fatal("ChatRoulette backend stopped", zap.Error(err))
	}
	lg.Info("ChatRoulette backend stopped")
}

func run(ctx context.Context, cfg *config.Config, lg *zap.Logger) error {
	lg.Info("Starting ChatRoulette backend...", zap.String("store", cfg.Matchmaking.Store))

	// 1. Participant store
	var (
		store storage.Storage
		ping  func(context.Context) error
	)
	switch cfg.Matchmaking.Store {
	case "memory":
		store = storage.NewMemoryStore()
	default:
		rdb, err := storage.OpenRedis(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer rdb.Close()
		rs := storage.NewRedisStore(rdb, cfg.Redis.Prefix)
		store, ping = rs, rs.Ping
	}

	// 2. Accounts and session history
	var repo *storage.Repository
	if cfg.Database.DSN != "" {
		r, err := storage.OpenPostgres(cfg.Database.DSN)
		if err != nil {
			return err
		}
		defer r.Close()
		repo = r
	} else {
		lg.Warn("database.dsn is empty: premium features and session history are disabled")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := matchmaking.NewMetrics(reg)

	loc, err := localization.Default()
	if err != nil {
		return fmt.Errorf("load locales: %w", err)
	}

	// 3. Telegram
	api, err := telegram.NewBotAPI(cfg.Telegram.Token, cfg.Telegram.Debug)
	if err != nil {
		return fmt.Errorf("telegram auth: %w", err)
	}
	lg.Info("Authorized on Telegram", zap.String("account", api.Self.UserName))
	sender := telegram.NewGuardedSender(api, cfg.Telegram.RatePerSecond, cfg.Telegram.Burst, lg.Named("telegram"))

	svc := matchmaking.NewService(store, nil, lg.Named("matchmaking"))
	bot := telegram.NewBotService(sender, svc, loc, lg.Named("bot"))
	bot.PrimingDelay = cfg.Telegram.PrimingDelay
	bot.RegionFilter = cfg.Matchmaking.RegionFilter
	svc.Notifier = bot

	// 4. Matchmaking loops
	engine := matchmaking.NewEngine(store, bot, lg.Named("engine"))
	engine.Metrics = metrics
	engine.PostMatchTimeout = cfg.Matchmaking.PostMatchTimeout
	if cfg.Matchmaking.RegionFilter {
		engine.Evaluator = matchmaking.NewEvaluator(matchmaking.GenderRule, matchmaking.RegionRule)
	}

	if repo != nil {
		svc.Sessions = repo
		engine.Sessions = repo
		bot.Premium = premium.NewService(repo, lg.Named("premium"))
	}

	sweeper := matchmaking.NewSweeper(store, bot, lg.Named("sweeper"))
	sweeper.Metrics = metrics
	sweeper.InactiveTimeout = cfg.Matchmaking.InactiveTimeout

	scheduler := matchmaking.NewScheduler(engine, sweeper, lg.Named("scheduler"))
	scheduler.MatchInterval = cfg.Matchmaking.MatchInterval
	scheduler.CleanupInterval = cfg.Matchmaking.CleanupInterval

	// 5. HTTP
	h := handler.NewHandler(store, svc, lg.Named("http"))
	h.Ping = ping
	server := &http.Server{
		Addr:           cfg.HTTP.Addr,
		Handler:        handler.NewRouter(h, []byte(cfg.Admin.JWTSecret), reg),
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return scheduler.Run(gctx)
	})
	g.Go(func() error {
		u := tgbotapi.NewUpdate(0)
		u.Timeout = cfg.Telegram.UpdateTimeout
		updates := api.GetUpdatesChan(u)
		go func() {
			<-gctx.Done()
			api.StopReceivingUpdates()
		}()
		bot.Run(gctx, updates)
		return nil
	})
	g.Go(func() error {
		lg.Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
