package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"gangkeeper-backend/internal/app"
	"gangkeeper-backend/internal/config"
	"gangkeeper-backend/internal/jobs"
	"gangkeeper-backend/internal/logger"
	"gangkeeper-backend/internal/scheduler"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	runOnce := flag.String("run-once", "", "Run a specific job once and exit (e.g., 'close_due_sessions', 'all-pollers', 'all-nightly')")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting Gangkeeper Cronjob Runner...", "log_level", cfg.Log.Level)

	ctx := context.Background()

	// Initialize Store
	store, closeStore, err := app.OpenStore(ctx, cfg)
	if err != nil {
		logger.Error("Failed to open store", "error", err)
		log.Fatalf("Failed to open store: %v", err)
	}
	defer closeStore()

	// Role sync and notices need the bot account; the pollers run without it
	bot, err := app.NewBotAPI(cfg)
	if err != nil {
		logger.Error("Telegram unavailable, notices and role sync disabled", "error", err)
	}

	// Initialize Job Runner
	jobRunner := jobs.NewJobRunner(app.Services(cfg, store, bot), store.Repos().Gangs, cfg)

	// Check if running a single job
	if *runOnce != "" {
		logger.Info("Running job once", "job", *runOnce)
		runJobOnce(ctx, jobRunner, *runOnce)
		logger.Info("Job execution completed", "job", *runOnce)
		return
	}

	// Initialize Scheduler
	cronScheduler := scheduler.NewScheduler(jobRunner)

	// Start scheduler
	cronScheduler.Start()
	logger.Info("Cronjob scheduler is running. Press Ctrl+C to stop.")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	// Graceful shutdown
	logger.Info("Shutting down cronjob scheduler...")
	cronScheduler.Stop()
	logger.Info("Cronjob scheduler stopped. Goodbye!")
}

// runJobOnce runs a specific job once and exits
func runJobOnce(ctx context.Context, jobRunner *jobs.JobRunner, jobName string) {
	switch jobName {
	case "all-pollers":
		jobRunner.RunAllPollers()
		return
	case "all-nightly":
		jobRunner.RunAllNightlyJobs()
		return
	}

	err := jobRunner.Run(ctx, jobName)
	if err == nil {
		return
	}
	logger.Error("Job failed", "job", jobName, "error", err)
	fmt.Printf("Available jobs:\n")
	for _, name := range jobRunner.Names() {
		fmt.Printf("  - %s\n", name)
	}
	fmt.Printf("  - all-pollers\n")
	fmt.Printf("  - all-nightly\n")
	os.Exit(1)
}
