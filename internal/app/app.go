// Package app turns a loaded config into the store, collaborators and
// services the binaries share.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"gangkeeper-backend/internal/config"
	"gangkeeper-backend/internal/logger"
	"gangkeeper-backend/internal/notify"
	"gangkeeper-backend/internal/platform"
	"gangkeeper-backend/internal/repository"
	"gangkeeper-backend/internal/repository/memory"
	"gangkeeper-backend/internal/repository/postgres"
	"gangkeeper-backend/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	_ "github.com/lib/pq"
)

// OpenStore connects the configured store. The returned close func is never nil.
func OpenStore(ctx context.Context, cfg *config.Config) (repository.Store, func() error, error) {
	if cfg.Database.Driver == "memory" {
		logger.Warn("Using in-memory store; data is lost on exit and not shared between processes")
		return memory.NewStore(), func() error { return nil }, nil
	}

	logger.Info("Connecting to database...", "host", cfg.Database.Host, "port", cfg.Database.Port, "database", cfg.Database.Database, "user", cfg.Database.User)
	db, err := sql.Open("postgres", cfg.GetDatabaseConnectionString())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}
	logger.Info("Database connection established")

	if cfg.Database.Migrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, nil, err
		}
		logger.Info("Database schema applied")
	}
	return postgres.NewStore(db), db.Close, nil
}

// NewBotAPI logs in to Telegram. It returns nil without error when no token
// is configured.
func NewBotAPI(cfg *config.Config) (*tgbotapi.BotAPI, error) {
	if cfg.Telegram.Token == "" {
		return nil, nil
	}
	bot, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to log in to telegram: %w", err)
	}
	bot.Debug = cfg.Telegram.Debug
	logger.Info("Authorized on Telegram", "account", bot.Self.UserName)
	return bot, nil
}

// Notifier fans out to every configured channel, or returns nil when there
// is none.
func Notifier(cfg *config.Config, store repository.Store, bot *tgbotapi.BotAPI) service.Notifier {
	gangs := store.Repos().Gangs
	var channels notify.Multi
	if bot != nil {
		channels = append(channels, notify.NewTelegramNotifier(bot, gangs))
	}
	if cfg.Email.Enabled {
		channels = append(channels, notify.NewSendGridNotifier(cfg.Email.SendGridAPIKey, cfg.Email.FromAddress, cfg.Email.FromName, gangs))
	}
	if len(channels) == 0 {
		return nil
	}
	return channels
}

// Services wires the core services against store.
func Services(cfg *config.Config, store repository.Store, bot *tgbotapi.BotAPI) *service.Services {
	var provisioner service.RoleProvisioner
	if bot != nil {
		provisioner = platform.NewTelegramProvisioner(bot, cfg.Telegram.TreasurerTitle)
	}
	return service.New(store, service.Options{
		MaxAmount:         cfg.Ledger.MaxAmount,
		SuperUsers:        cfg.Permissions.SuperUsers,
		StaleClosingAfter: cfg.StaleClosingAfter(),
	}, Notifier(cfg, store, bot), provisioner)
}
