package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lifeguard_alerts/internal/app"
	"lifeguard_alerts/internal/domain/notify"
	"lifeguard_alerts/internal/infra/config"
	"lifeguard_alerts/internal/infra/cooldown"
	idb "lifeguard_alerts/internal/infra/database"
	"lifeguard_alerts/internal/infra/gateway"
	"lifeguard_alerts/internal/infra/httpapi"
	"lifeguard_alerts/internal/infra/logger"
	"lifeguard_alerts/internal/infra/metrics"
	"lifeguard_alerts/internal/infra/scheduler"
	"lifeguard_alerts/internal/infra/telegram"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

func main() {
	fmt.Println("LifeGuard emergency alert service starting...")

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Could not load application configuration: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg)
	mainLogger := logger.Component("main")
	mainLogger.WithFields(logrus.Fields{
		"environment":      cfg.Environment,
		"cooldown_backend": cfg.CooldownBackend,
		"workers":          cfg.DispatchWorkers,
	}).Info("Configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	db, err := idb.NewPostgresConnection(ctx, cfg.DatabaseURL)
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not connect to database")
	}
	mainLogger.Info("Database connection established")

	contactRepo := idb.NewPostgresContactRepository(db)
	preferenceRepo := idb.NewPostgresPreferenceRepository(db)
	alertRepo := idb.NewPostgresAlertRepository(db)
	auditRepo := idb.NewPostgresTestAuditRepository(db)

	health := map[string]httpapi.HealthCheck{
		"database": db.PingContext,
	}

	// Cooldown state
	var (
		cooldownStore app.CooldownStore
		pruner        scheduler.CooldownPruner
		redisClient   *redis.Client
	)
	switch cfg.CooldownBackend {
	case "redis":
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		redisStore := cooldown.NewRedisStore(redisClient)
		if err := redisStore.Ping(ctx); err != nil {
			// Admission fails open, so a missing Redis degrades throttling only.
			mainLogger.WithError(err).Error("Redis is not reachable at startup")
		}
		cooldownStore = redisStore
		health["redis"] = redisStore.Ping
		mainLogger.WithField("addr", cfg.RedisAddr).Info("Using Redis cooldown store")
	default:
		memoryStore := app.NewMemoryCooldownStore()
		cooldownStore = memoryStore
		pruner = memoryStore
		mainLogger.Info("Using in-process cooldown store")
	}

	// Notification gateway
	gw := gateway.NewRouter(emailSender(cfg), smsSender(cfg))

	promMetrics := metrics.NewMetrics()

	// Application services
	guard := app.NewCooldownGuard(cooldownStore, cfg.CooldownWindow)
	resolver := app.NewRecipientResolver(contactRepo, preferenceRepo, cfg.AmbulanceContactID, logger.Component("recipient_resolver"))
	tracker := app.NewDeliveryTracker(alertRepo, cfg.ResponseTimeoutWindow, logger.Component("delivery_tracker"))
	dispatcher := app.NewAlertDispatcher(guard, resolver, alertRepo, tracker, gw, app.DispatcherConfig{
		Workers:        cfg.DispatchWorkers,
		Timeout:        cfg.DispatchTimeout,
		MaxRetries:     cfg.SendMaxRetries,
		BackoffBase:    cfg.SendBackoffBase,
		BackoffFactor:  cfg.SendBackoffFactor,
		AttemptTimeout: cfg.SendAttemptTimeout,
	}, logger.Component("alert_dispatcher"))
	dispatcher.SetMetrics(promMetrics)

	testAlerts := app.NewTestAlertService(contactRepo, auditRepo, gw, cfg.SendAttemptTimeout, logger.Component("test_alerts"))
	testAlerts.SetMetrics(promMetrics)
	preferences := app.NewPreferenceService(preferenceRepo, logger.Component("preferences"))

	// Operator console
	var bot *telebot.Bot
	if cfg.OperatorConsoleEnabled() {
		bot, err = newBot(cfg)
		if err != nil {
			mainLogger.WithError(err).Fatal("Could not create Telegram bot")
		}
		dispatcher.SetObserver(telegram.NewOperatorNotifier(telegram.NewTelebotAdapter(bot), cfg.OperatorTelegramID, logger.Component("operator_notifier")))
		telegram.NewOperatorConsole(dispatcher, cfg.OperatorTelegramID, logger.Component("operator_console")).Register(ctx, bot)
		mainLogger.WithField("operator_id", cfg.OperatorTelegramID).Info("Operator console handlers registered")
	} else {
		mainLogger.Info("Operator console disabled; TELEGRAM_TOKEN or OPERATOR_TELEGRAM_ID not set")
	}

	// Scheduler
	alertScheduler := scheduler.NewAlertScheduler(
		tracker,
		pruner,
		promMetrics,
		cfg.CooldownWindow,
		logger.Component("scheduler"),
		cfg.CronSpecResponseSweep,
		cfg.CronSpecCooldownPrune,
	)
	if err := alertScheduler.Start(); err != nil {
		mainLogger.WithError(err).Fatal("Could not start scheduler")
	}

	// REST API
	router, err := httpapi.NewRouter(httpapi.Deps{
		Alerts:         dispatcher,
		Tests:          testAlerts,
		Preferences:    preferences,
		Verifier:       httpapi.NewTokenVerifier(cfg.JWTSecret),
		InternalAPIKey: cfg.InternalAPIKey,
		TestAlertRate:  cfg.TestAlertRate,
		Limits:         promMetrics,
		Metrics:        promMetrics.Handler(),
		Health:         health,
		Log:            logger.Component("http"),
	})
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not build HTTP router")
	}
	server := httpapi.NewServer(cfg.HTTPAddr, router, logger.Component("http"))
	serverErr := make(chan error, 1)
	server.Start(serverErr)

	if bot != nil {
		go bot.Start()
	}
	mainLogger.WithField("addr", cfg.HTTPAddr).Info("Application setup complete")

	select {
	case <-ctx.Done():
		mainLogger.Info("Shutdown signal received")
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			mainLogger.WithError(err).Error("HTTP server stopped unexpectedly")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.DispatchTimeout+10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		mainLogger.WithError(err).Warn("HTTP server shutdown incomplete")
	}
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		mainLogger.WithError(err).Warn("Some emergency sends were still in flight at shutdown")
	}
	alertScheduler.Stop()
	if bot != nil {
		bot.Stop()
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			mainLogger.WithError(err).Warn("Failed to close Redis client")
		}
	}
	closeDB(db, mainLogger)
	mainLogger.Info("Application shut down gracefully")
}

func emailSender(cfg *config.AppConfig) gateway.Sender {
	if cfg.SMTPHost == "" {
		logger.Component("main").Warn("SMTP_HOST not set; emails are logged instead of sent")
		return gateway.NewLogSender(notify.ChannelEmail, logger.Component("email_log"))
	}
	return gateway.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom)
}

func smsSender(cfg *config.AppConfig) gateway.Sender {
	if cfg.SMSAPIURL == "" {
		logger.Component("main").Warn("SMS_API_URL not set; SMS are logged instead of sent")
		return gateway.NewLogSender(notify.ChannelSMS, logger.Component("sms_log"))
	}
	return gateway.NewSMSClient(cfg.SMSAPIURL, cfg.SMSAPIKey, cfg.SMSSender, logger.Component("sms"))
}

func newBot(cfg *config.AppConfig) (*telebot.Bot, error) {
	botLogger := logger.Component("telebot")
	return telebot.NewBot(telebot.Settings{
		Token:  cfg.TelegramToken,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c telebot.Context) {
			entry := botLogger.WithError(err)
			if c != nil && c.Sender() != nil && c.Chat() != nil {
				entry = entry.WithFields(logrus.Fields{"sender_id": c.Sender().ID, "chat_id": c.Chat().ID})
			}
			entry.Error("Telegram handler error")
		},
	})
}

func closeDB(db *sql.DB, log *logrus.Entry) {
	if err := db.Close(); err != nil {
		log.WithError(err).Warn("Failed to close database")
	}
}
