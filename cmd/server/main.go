package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "gangkeeper-backend/internal/api/http"
	"gangkeeper-backend/internal/app"
	"gangkeeper-backend/internal/config"
	"gangkeeper-backend/internal/jobs"
	"gangkeeper-backend/internal/logger"
	"gangkeeper-backend/internal/security"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	issueToken := flag.String("issue-token", "", "Print an access token for this platform account id and exit")
	issueServiceToken := flag.String("issue-service-token", "", "Print a service token for this job client name and exit")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)

	// Initialize Security
	tokenManager := security.NewTokenManager(cfg.JWT.Secret, cfg.AccessTokenTTL())
	if *issueToken != "" || *issueServiceToken != "" {
		var token string
		if *issueToken != "" {
			token, err = tokenManager.GenerateAccessToken(*issueToken)
		} else {
			token, err = tokenManager.GenerateServiceToken(*issueServiceToken)
		}
		if err != nil {
			log.Fatalf("Failed to issue token: %v", err)
		}
		fmt.Println(token)
		return
	}

	logger.Info("Starting Gangkeeper API server...", "log_level", cfg.Log.Level, "log_format", cfg.Log.Format)
	logger.Info("Server configuration", "address", cfg.GetServerAddress(), "database_driver", cfg.Database.Driver)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize Store
	store, closeStore, err := app.OpenStore(ctx, cfg)
	if err != nil {
		logger.Error("Failed to open store", "error", err)
		log.Fatalf("Failed to open store: %v", err)
	}
	defer closeStore()

	// Collaborators
	bot, err := app.NewBotAPI(cfg)
	if err != nil {
		logger.Error("Telegram unavailable, notices and role sync disabled", "error", err)
	}

	// Initialize Services
	services := app.Services(cfg, store, bot)
	jobRunner := jobs.NewJobRunner(services, store.Repos().Gangs, cfg)
	handler := httpapi.NewHandler(services, tokenManager, jobRunner, cfg.TransferWindow())

	srv := &http.Server{
		Addr:              cfg.GetServerAddress(),
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", "error", err)
	}
	logger.Info("HTTP server stopped")
}
