package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"ib_reminder_service/internal/app"
	"ib_reminder_service/internal/domain/notify"
	"ib_reminder_service/internal/infra/config"
	idb "ib_reminder_service/internal/infra/database"
	"ib_reminder_service/internal/infra/email"
	"ib_reminder_service/internal/infra/httpapi"
	"ib_reminder_service/internal/infra/logger"
	"ib_reminder_service/internal/infra/scheduler"
	"ib_reminder_service/internal/infra/telegram"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Log.WithError(err).Fatal("Could not load application configuration")
	}
	logger.Init(cfg.LogLevel, cfg.Environment)
	mainLogger := logger.Component("main")
	mainLogger.WithFields(logrus.Fields{
		"environment": cfg.Environment,
		"db_driver":   cfg.DatabaseDriver,
		"location":    cfg.SchedulerLocation.String(),
	}).Info("IB reminder service starting...")

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize Database Connection
	conn, err := idb.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not connect to database")
	}
	defer conn.Close()
	mainLogger.Info("Database connection established and schema applied")

	// Initialize Repositories
	reminderRepo := idb.NewReminderRepository(conn)
	userRepo := idb.NewUserRepository(conn)
	runRepo := idb.NewRunRepository(conn)
	campaignRepo := idb.NewCampaignRepository(conn)

	// Email
	renderer, err := email.NewRenderer(cfg.EmailTemplatePath)
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not load email template")
	}
	var dialer email.Dialer
	if cfg.EmailEnabled() {
		client, err := email.NewSMTPClient(email.SMTPConfig{
			Host:     cfg.SMTPServer,
			Port:     cfg.SMTPPort,
			Username: cfg.SenderEmail,
			Password: cfg.SenderPassword,
			Timeout:  cfg.SMTPTimeout,
		})
		if err != nil {
			mainLogger.WithError(err).Fatal("Could not configure SMTP client")
		}
		dialer = client
	} else {
		mainLogger.Warn("SENDER_EMAIL or SENDER_PASSWORD not set, email delivery disabled")
	}
	emailSender := email.NewSender(cfg.SenderEmail, dialer, renderer, logger.Component("email"))

	// Telegram
	var chatSender notify.ChatSender = telegram.DisabledSender{}
	var bot *telebot.Bot
	if cfg.TelegramEnabled() {
		bot, err = telegram.NewBot(telegram.BotConfig{
			Token:   cfg.TelegramToken,
			APIURL:  cfg.TelegramAPIURL,
			Timeout: cfg.TelegramTimeout,
			Polling: cfg.TelegramPolling,
		})
		if err != nil {
			mainLogger.WithError(err).Fatal("Could not create Telegram bot")
		}
		chatSender = telegram.NewTelebotAdapter(bot, logger.Component("telegram"))
	} else {
		mainLogger.Warn("TELEGRAM_BOT_TOKEN not set, chat delivery disabled")
	}

	// Services
	notificationService := app.NewNotificationServiceImpl(
		reminderRepo, userRepo, runRepo, emailSender, chatSender,
		cfg.SchedulerLocation, logger.Component("scheduler"),
	)
	adminService := app.NewAdminService(userRepo)
	reminderService := app.NewReminderService(
		reminderRepo, userRepo, emailSender, chatSender, renderer,
		cfg.SchedulerLocation, logger.Component("reminders"),
	)
	campaignService := app.NewCampaignService(campaignRepo, cfg.SchedulerLocation)

	if bot != nil && cfg.TelegramPolling {
		botLogger := logger.Component("telegram_bot")
		telegram.RegisterBotCommands(ctx, bot, userRepo, botLogger)
		telegram.RegisterOperatorHandlers(ctx, bot, userRepo, reminderService, botLogger)
		go bot.Start()
		mainLogger.Info("Telegram bot command polling started")
	}

	// Scheduler
	notifScheduler := scheduler.NewNotificationScheduler(
		notificationService,
		cfg.SchedulerLocation,
		cfg.SchedulerCatchUp,
		logger.Component("cron"),
	)
	if err := notifScheduler.Start(); err != nil {
		mainLogger.WithError(err).Fatal("Could not start scheduler")
	}

	// HTTP API
	handler := httpapi.NewHandler(adminService, reminderService, campaignService, conn.DB, logger.Component("http"))
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		mainLogger.WithField("addr", cfg.HTTPAddr).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			mainLogger.WithError(err).Error("HTTP server failed")
			stop()
		}
	}()

	mainLogger.Info("Application setup complete")
	<-ctx.Done() // Block until a signal is received

	mainLogger.Info("Shutting down application...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		mainLogger.WithError(err).Error("HTTP server shutdown failed")
	}
	if bot != nil && cfg.TelegramPolling {
		bot.Stop()
	}
	if err := notifScheduler.Stop(shutdownCtx); err != nil {
		mainLogger.WithError(err).Error("Scheduler shutdown failed")
	}
	mainLogger.Info("Application shut down gracefully")
}
