package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"gangkeeper-backend/internal/app"
	"gangkeeper-backend/internal/bot"
	"gangkeeper-backend/internal/config"
	"gangkeeper-backend/internal/logger"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting Gangkeeper bot...", "log_level", cfg.Log.Level)

	if cfg.Telegram.Token == "" {
		log.Fatalf("telegram.token (or TELEGRAM_TOKEN) is required for the bot")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize Store
	store, closeStore, err := app.OpenStore(ctx, cfg)
	if err != nil {
		logger.Error("Failed to open store", "error", err)
		log.Fatalf("Failed to open store: %v", err)
	}
	defer closeStore()

	api, err := app.NewBotAPI(cfg)
	if err != nil {
		logger.Error("Failed to connect to Telegram", "error", err)
		log.Fatalf("Failed to connect to Telegram: %v", err)
	}

	handler := bot.New(api, app.Services(cfg, store, api), cfg.TransferWindow())

	u := tgbotapi.NewUpdate(0)
	u.Timeout = cfg.Telegram.PollTimeout
	updates := api.GetUpdatesChan(u)

	logger.Info("Bot is polling for updates. Press Ctrl+C to stop.")
	handler.Run(ctx, updates)

	api.StopReceivingUpdates()
	logger.Info("Bot stopped. Goodbye!")
}
