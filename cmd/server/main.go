package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/EscobozaEstrada/mrwhite-sub001/internal/config"
	"github.com/EscobozaEstrada/mrwhite-sub001/internal/core"
	"github.com/EscobozaEstrada/mrwhite-sub001/internal/metrics"
	"github.com/EscobozaEstrada/mrwhite-sub001/internal/notify"
	"github.com/EscobozaEstrada/mrwhite-sub001/internal/schedule"
	"github.com/EscobozaEstrada/mrwhite-sub001/internal/store"
	"github.com/EscobozaEstrada/mrwhite-sub001/internal/templates"
	"github.com/EscobozaEstrada/mrwhite-sub001/internal/web"
)

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("REMINDER_CONFIG")
	if cfgPath == "" {
		cfgPath = "config.yml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log.Level)
	slog.SetDefault(logger)

	db, err := store.NewStore(cfg.Database.Path)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	collector := metrics.NewPrometheus(prometheus.DefaultRegisterer)

	renderer, err := templates.Load(cfg.Templates.Dir, cfg.Templates.DefaultLocale)
	if err != nil {
		logger.Error("failed to load templates", "error", err)
		os.Exit(1)
	}

	dispatcher := notify.NewDispatcher(db, renderer, cfg.Server.PublicURL,
		notify.WithLogger(logger),
		notify.WithMetrics(collector),
	)

	var telegram *notify.Telegram
	if cfg.Channels.TelegramToken != "" {
		telegram, err = notify.NewTelegram(cfg.Channels.TelegramToken, logger)
		if err != nil {
			logger.Error("failed to start telegram bot", "error", err)
			os.Exit(1)
		}
		dispatcher.Register(core.ChannelPush, telegram)
	}
	if cfg.Channels.EmailWebhookURL != "" {
		dispatcher.Register(core.ChannelEmail, notify.EmailWebhook(cfg.Channels.EmailWebhookURL))
	}
	if cfg.Channels.SMSWebhookURL != "" {
		dispatcher.Register(core.ChannelSMS, notify.SMSWebhook(cfg.Channels.SMSWebhookURL))
	}

	svc := core.NewService(db, dispatcher,
		core.WithLogger(logger),
		core.WithMetrics(collector),
		core.WithTriggerPolicy(cfg.TriggerPolicy()),
		core.WithCooldown(time.Duration(cfg.Maintenance.CooldownMinutes)*time.Minute),
		core.WithTokenTTL(time.Duration(cfg.Maintenance.TokenTTLDays)*24*time.Hour),
		core.WithRetention(time.Duration(cfg.Maintenance.RetentionDays)*24*time.Hour),
		core.WithFollowupPolicy(
			time.Duration(cfg.Followup.BaseMinutes)*time.Minute,
			time.Duration(cfg.Followup.MaxMinutes)*time.Minute,
			cfg.Followup.MaxCount,
		),
	)

	scheduler := schedule.NewScheduler(svc.ComputeTrigger, svc.HandleFire,
		schedule.WithWorkers(cfg.Scheduler.Workers),
		schedule.WithMisfireGrace(time.Duration(cfg.Scheduler.MisfireGraceSecs)*time.Second),
		schedule.WithLogger(logger),
		schedule.WithMetrics(collector),
	)
	svc.SetJobs(scheduler)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler.Start(ctx)
	if _, err := svc.RestoreJobs(ctx); err != nil {
		logger.Error("failed to restore jobs", "error", err)
		os.Exit(1)
	}

	maintenance := schedule.NewMaintenance(svc, cfg.Maintenance.DailySpec, cfg.Maintenance.FollowupSpec, logger)
	if err := maintenance.Start(ctx); err != nil {
		logger.Error("failed to start maintenance loop", "error", err)
		os.Exit(1)
	}

	if telegram != nil {
		go telegram.Start()
	}

	server := web.NewServer(cfg.Server.Addr, svc, db, cfg.Server.SessionSecret, logger)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	maintenance.Stop()
	if telegram != nil {
		telegram.Stop()
	}
	if err := scheduler.Stop(shutdownCtx); err != nil {
		logger.Error("scheduler shutdown failed", "error", err)
	}
	logger.Info("shutdown complete")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
