package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	_ "github.com/lib/pq"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Proton-105/craft-bot/internal/achievement"
	"github.com/Proton-105/craft-bot/internal/admin"
	"github.com/Proton-105/craft-bot/internal/ai"
	"github.com/Proton-105/craft-bot/internal/bot"
	"github.com/Proton-105/craft-bot/internal/database"
	apperrors "github.com/Proton-105/craft-bot/internal/errors"
	"github.com/Proton-105/craft-bot/internal/forms"
	"github.com/Proton-105/craft-bot/internal/health"
	"github.com/Proton-105/craft-bot/internal/httpapi"
	"github.com/Proton-105/craft-bot/internal/i18n"
	"github.com/Proton-105/craft-bot/internal/idempotency"
	"github.com/Proton-105/craft-bot/internal/ledger"
	"github.com/Proton-105/craft-bot/internal/lifecycle"
	"github.com/Proton-105/craft-bot/internal/news"
	"github.com/Proton-105/craft-bot/internal/ratelimit"
	"github.com/Proton-105/craft-bot/internal/referral"
	"github.com/Proton-105/craft-bot/internal/settings"
	"github.com/Proton-105/craft-bot/internal/shop"
	"github.com/Proton-105/craft-bot/internal/telegram"
	"github.com/Proton-105/craft-bot/internal/university"
	"github.com/Proton-105/craft-bot/internal/user"
	"github.com/Proton-105/craft-bot/pkg/config"
	"github.com/Proton-105/craft-bot/pkg/graceful"
	"github.com/Proton-105/craft-bot/pkg/logger"
	"github.com/Proton-105/craft-bot/pkg/redis"
)

const (
	settingsCacheTTL    = 5 * time.Minute
	cleanupInterval     = 10 * time.Minute
	limiterMaxAge       = time.Hour
	idempotencyMaxTTL   = 24 * time.Hour
	bootstrapTimeout    = 15 * time.Second
	shutdownHookTimeout = 10 * time.Second
)

func main() {
	hashSecret := flag.String("hash-secret", "", "print the argon2id hash of the given admin secret and exit")
	flag.Parse()

	if *hashSecret != "" {
		hash, err := httpapi.HashAdminSecret(*hashSecret)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	if err := run(); err != nil {
		slog.Error("craft bot stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, v, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cfg.Sentry.Enabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.Sentry.Environment,
			SampleRate:  cfg.Sentry.SampleRate,
		}); err != nil {
			return fmt.Errorf("init sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	log := logger.New(*cfg)
	slog.SetDefault(log)
	config.Watch(v, log, logger.SetLevel)

	log.Info("starting craft bot",
		slog.String("env", cfg.AppEnv),
		slog.String("http_port", cfg.Server.Port),
		slog.String("log_level", cfg.Logger.Level),
	)

	shutdown := lifecycle.NewShutdown(log)
	errHandler := apperrors.NewHandler(log, cfg.Sentry.Enabled)
	tr := i18n.Default()

	bootCtx, cancelBoot := context.WithTimeout(ctx, bootstrapTimeout)
	defer cancelBoot()

	db, err := database.Open(bootCtx, cfg.Database, log)
	if err != nil {
		return err
	}
	shutdown.Register("database", func(context.Context) error { return db.Close() })

	migrator := database.NewMigrator(db, log)
	if cfg.Database.MigrateOnStart {
		version, err := migrator.Up(bootCtx)
		if err != nil {
			return runShutdown(shutdown, fmt.Errorf("apply migrations: %w", err))
		}
		log.Info("database migrations applied", slog.Int64("version", version))
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb, err = redis.New(bootCtx, cfg.Redis)
		if err != nil {
			return runShutdown(shutdown, err)
		}
		shutdown.Register("redis", func(context.Context) error { return rdb.Close() })
	}

	tg, err := telegram.NewClient(cfg.Bot, log)
	if err != nil {
		return runShutdown(shutdown, err)
	}

	rules, err := ratelimit.NewRules(cfg.RateLimit)
	if err != nil {
		return runShutdown(shutdown, err)
	}

	memory := ratelimit.NewMemoryLimiter(log)
	var limiter ratelimit.Limiter = memory
	if cfg.RateLimit.UseRedis && rdb != nil {
		limiter = ratelimit.NewAdaptiveLimiter(ratelimit.NewRedisLimiter(rdb.Client, log), memory, log)
	}

	var settingsCache *settings.Cache
	if rdb != nil {
		settingsCache = settings.NewCache(rdb.Client, settingsCacheTTL)
	}

	l := ledger.New(log)
	referrals, err := referral.NewService(cfg.Referral, l, tg, tr, log)
	if err != nil {
		return runShutdown(shutdown, err)
	}
	evaluator := achievement.NewEvaluator(db, l, log)
	settingsSvc := settings.NewService(db, settings.Defaults{
		AIMessageCost: cfg.AI.CapsPerRequest,
		NewsDailyCost: cfg.News.DailyCost,
	}, settingsCache, log)

	users := user.NewService(db, cfg.Referral, l, referrals, evaluator, tg, tr, log)

	chat, err := ai.NewService(db, cfg.AI, cfg.Spam, l,
		ai.NewOpenAIProvider(cfg.AI, apperrors.NewCircuitBreaker("openai")),
		settingsSvc, evaluator, tg, tr, log,
		ai.WithBlockVideo(cfg.Bot.BlockVideoFileID),
	)
	if err != nil {
		return runShutdown(shutdown, err)
	}

	shopSvc := shop.NewService(db, l, referrals, evaluator, tg, tr, log)
	lessons := university.NewService(db, l, evaluator, tr, log)
	formsSvc := forms.NewService(db, cfg.Bot, ratelimit.NewPolicy(limiter, "form:", rules.Forms), evaluator, tg, tg, tr, log)
	newsSvc := news.NewService(db, l, settingsSvc, tg, cfg.Bot.BroadcastPacing, tr, log)
	adminSvc := admin.NewService(db, migrator, evaluator, tg, tr, log)

	var idem idempotency.Manager
	if rdb != nil {
		idem = idempotency.NewManager(idempotency.NewRedisStore(rdb.Client, log), log)
	}
	commands := bot.New(tg.Bot(), cfg.Bot, cfg.Referral, bot.Deps{
		Users:       users,
		Inbox:       adminSvc,
		Idempotency: idem,
		ErrHandler:  errHandler,
	}, tr, log)

	checker := health.NewChecker(log)
	checker.AddCheck("database", health.NewDBChecker(db), true)
	if rdb != nil {
		checker.AddCheck("redis", health.NewRedisChecker(rdb), true)
	}
	checker.AddCheck("telegram", health.NewTelegramChecker(tg), false)
	probes := lifecycle.NewProbes(checker, log)

	api := httpapi.New(httpapi.Deps{
		Users:        users,
		AI:           chat,
		Shop:         shopSvc,
		University:   lessons,
		Achievements: evaluator,
		Forms:        formsSvc,
		News:         newsSvc,
		Admin:        adminSvc,
		Settings:     settingsSvc,
		Bot:          commands,
		Webhooks:     tg,
		Health:       checker,
		Probes:       probes,
		GlobalLimit:  ratelimit.NewPolicy(limiter, "ip:", rules.Global),
		AILimit:      ratelimit.NewPolicy(limiter, "ai:", rules.AI),
		Rules:        rules,
		ErrHandler:   errHandler,
	}, cfg.Bot, cfg.Admin, log)

	if cfg.Bot.WebhookURL != "" {
		if err := tg.SetWebhook(cfg.Bot.WebhookURL); err != nil && !errors.Is(err, telegram.ErrNotConfigured) {
			log.Warn("webhook registration failed", slog.Any("error", err))
		}
	}

	bgCtx, cancelBg := context.WithCancel(context.Background())
	var bg sync.WaitGroup
	startBackground(&bg, func() {
		ratelimit.NewCleaner(memory, log, cleanupInterval, limiterMaxAge).Run(bgCtx)
	})
	startBackground(&bg, func() {
		idempotency.NewCleaner(redisOrNil(rdb), log, cleanupInterval, idempotencyMaxTTL).Run(bgCtx)
	})
	shutdown.Register("background", func(context.Context) error {
		cancelBg()
		bg.Wait()
		return nil
	})

	go func() {
		<-ctx.Done()
		probes.Drain()
	}()

	server := graceful.NewServer(log, api.Handler(), cfg.Server)
	serveErr := server.ListenAndServe(ctx)

	return runShutdown(shutdown, serveErr)
}

func startBackground(wg *sync.WaitGroup, fn func()) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		fn()
	}()
}

func redisOrNil(c *redis.Client) *goredis.Client {
	if c == nil {
		return nil
	}
	return c.Client
}

// runShutdown releases everything registered so far and joins cause with hook errors.
func runShutdown(s *lifecycle.Shutdown, cause error) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownHookTimeout)
	defer cancel()
	return errors.Join(cause, s.Execute(ctx))
}
