package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"policy_renewal_tracker/internal/app"
	"policy_renewal_tracker/internal/domain/renewal"
	"policy_renewal_tracker/internal/infra/config"
	idb "policy_renewal_tracker/internal/infra/database"
	"policy_renewal_tracker/internal/infra/httpapi"
	"policy_renewal_tracker/internal/infra/lock"
	"policy_renewal_tracker/internal/infra/logger"
	inotify "policy_renewal_tracker/internal/infra/notify"
	"policy_renewal_tracker/internal/infra/scheduler"
)

func main() {
	fmt.Println("Policy Renewal Tracker starting...")

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Could not load application configuration: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg)
	log := logger.Log

	// Initialize Database Connection
	db, err := idb.NewPostgresConnection(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("FATAL: Could not connect to database: %v", err)
	}
	defer db.Close()
	log.Info("Database connection established successfully.")

	repo := idb.NewPostgresPolicyRepository(db)
	log.Info("Policy repository initialized.")

	gateway := inotify.NewProviderGateway(cfg.NotifyAPIBaseURL, cfg.NotifyAPIKey, logger.Component("notify"))
	log.Info("Notification gateway initialized.")

	// Distributed sweep lock, only when redis is configured. A single
	// instance runs safely on the in-process guard alone.
	var sweepLock app.SweepLocker
	if cfg.RedisURL != "" {
		redisLock, err := lock.NewRedisLocker(cfg.RedisURL)
		if err != nil {
			log.Fatalf("FATAL: Could not connect to redis: %v", err)
		}
		defer redisLock.Close()
		sweepLock = redisLock
		log.Info("Distributed sweep lock initialized.")
	}

	locks := app.NewPolicyLocks()
	windows := app.Windows{
		DueDefaultDays:       cfg.DueDefaultDays,
		OverdueTrailingDays:  cfg.OverdueWindowDays,
		CategorizedPastDays:  cfg.CategorizedPastDays,
		CategorizedAheadDays: cfg.CategorizedAheadDays,
		RecontactSuppression: app.DefaultWindows.RecontactSuppression,
	}
	ladder := renewal.Ladder{LongDays: cfg.ReminderLongDays, ShortDays: cfg.ReminderShortDays}

	renewalService := app.NewRenewalService(repo, gateway, logger.Component("renewal"), windows, cfg.AdminEmail, locks)
	log.Info("Renewal service initialized.")

	sweepService := app.NewSweepService(repo, gateway, logger.Component("sweep"), ladder, cfg.SweepSendDelay, sweepLock, locks)
	log.Info("Sweep service initialized.")

	renewalScheduler := scheduler.NewRenewalScheduler(sweepService, logger.Component("scheduler"), scheduler.Config{
		Enabled:   cfg.SchedulerEnabled,
		RunHour:   cfg.SchedulerHour,
		RunMinute: cfg.SchedulerMinute,
	})
	if err := renewalScheduler.Start(); err != nil {
		log.Fatalf("FATAL: Could not start renewal scheduler: %v", err)
	}

	handler := httpapi.NewHandler(renewalService, renewalScheduler, logger.Component("http"))
	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: handler.Router(),
	}

	go func() {
		log.Infof("HTTP server listening on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("FATAL: HTTP server error: %v", err)
		}
	}()

	log.Info("Application setup complete.")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down application...")
	renewalScheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("HTTP server shutdown error: %v", err)
	}
	log.Info("Application shut down gracefully.")
}
