package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application.
type AppConfig struct {
	DatabaseURL string
	RedisURL    string // optional; enables the distributed sweep lock
	HTTPAddr    string

	LogLevel    string
	Environment string

	AdminEmail string

	NotifyAPIBaseURL string
	NotifyAPIKey     string

	SchedulerEnabled bool
	SchedulerHour    int
	SchedulerMinute  int
	SweepSendDelay   time.Duration

	// Query windows. Fixed by default; configurable, never silently widened.
	DueDefaultDays       int
	OverdueWindowDays    int
	CategorizedPastDays  int
	CategorizedAheadDays int

	// Reminder ladder rungs.
	ReminderLongDays  int
	ReminderShortDays int
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// Attempt to load .env file. Errors are ignored if the file doesn't exist.
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	cfg.RedisURL = os.Getenv("REDIS_URL")

	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	cfg.LogLevel = strings.ToLower(os.Getenv("LOG_LEVEL"))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	cfg.Environment = strings.ToLower(os.Getenv("ENVIRONMENT"))
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	cfg.AdminEmail = os.Getenv("ADMIN_EMAIL")

	cfg.NotifyAPIBaseURL = os.Getenv("NOTIFY_API_URL")
	if cfg.NotifyAPIBaseURL == "" {
		return nil, fmt.Errorf("NOTIFY_API_URL is not set")
	}
	cfg.NotifyAPIKey = os.Getenv("NOTIFY_API_KEY")

	cfg.SchedulerEnabled = os.Getenv("ENABLE_RENEWAL_SCHEDULER") == "true"

	var err error
	cfg.SchedulerHour, err = intEnv("RENEWAL_SCHEDULER_HOUR", 9)
	if err != nil {
		return nil, err
	}
	if cfg.SchedulerHour < 0 || cfg.SchedulerHour > 23 {
		return nil, fmt.Errorf("RENEWAL_SCHEDULER_HOUR must be 0..23, got %d", cfg.SchedulerHour)
	}
	cfg.SchedulerMinute, err = intEnv("RENEWAL_SCHEDULER_MINUTE", 0)
	if err != nil {
		return nil, err
	}
	if cfg.SchedulerMinute < 0 || cfg.SchedulerMinute > 59 {
		return nil, fmt.Errorf("RENEWAL_SCHEDULER_MINUTE must be 0..59, got %d", cfg.SchedulerMinute)
	}

	delayMS, err := intEnv("SWEEP_SEND_DELAY_MS", 500)
	if err != nil {
		return nil, err
	}
	cfg.SweepSendDelay = time.Duration(delayMS) * time.Millisecond

	if cfg.DueDefaultDays, err = intEnv("RENEWAL_DUE_DEFAULT_DAYS", 30); err != nil {
		return nil, err
	}
	if cfg.OverdueWindowDays, err = intEnv("RENEWAL_OVERDUE_WINDOW_DAYS", 30); err != nil {
		return nil, err
	}
	if cfg.CategorizedPastDays, err = intEnv("RENEWAL_CATEGORIZED_PAST_DAYS", 30); err != nil {
		return nil, err
	}
	if cfg.CategorizedAheadDays, err = intEnv("RENEWAL_CATEGORIZED_AHEAD_DAYS", 90); err != nil {
		return nil, err
	}
	if cfg.ReminderLongDays, err = intEnv("REMINDER_LONG_DAYS", 30); err != nil {
		return nil, err
	}
	if cfg.ReminderShortDays, err = intEnv("REMINDER_SHORT_DAYS", 7); err != nil {
		return nil, err
	}

	return cfg, nil
}

func intEnv(name string, fallback int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return v, nil
}
