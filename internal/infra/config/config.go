package config

import (
	"fmt"
	"os"
	"strconv"
	"strings" // For LogLevel normalization
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	DatabaseDriver string
	DatabaseURL    string
	HTTPAddr       string

	SMTPServer        string
	SMTPPort          int
	SenderEmail       string
	SenderPassword    string
	SMTPTimeout       time.Duration
	EmailTemplatePath string

	TelegramToken   string
	TelegramAPIURL  string
	TelegramTimeout time.Duration
	TelegramPolling bool

	SchedulerLocation *time.Location
	SchedulerCatchUp  bool

	LogLevel    string
	Environment string
}

// EmailEnabled reports whether SMTP credentials were provided.
func (c *AppConfig) EmailEnabled() bool {
	return c.SenderEmail != "" && c.SenderPassword != ""
}

// TelegramEnabled reports whether a bot token was provided.
func (c *AppConfig) TelegramEnabled() bool {
	return c.TelegramToken != ""
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds the configuration from a lookup function.
func FromEnv(getenv func(string) string) (*AppConfig, error) {
	cfg := &AppConfig{}
	var err error

	cfg.DatabaseDriver = strings.ToLower(strings.TrimSpace(getenv("DATABASE_DRIVER")))
	if cfg.DatabaseDriver == "" {
		cfg.DatabaseDriver = "postgres"
	}
	if cfg.DatabaseDriver != "postgres" && cfg.DatabaseDriver != "sqlite" {
		return nil, fmt.Errorf("invalid DATABASE_DRIVER %q: want postgres or sqlite", cfg.DatabaseDriver)
	}

	cfg.DatabaseURL = getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	cfg.HTTPAddr = getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		port := getenv("PORT")
		if port == "" {
			port = "5000"
		}
		cfg.HTTPAddr = ":" + port
	}

	cfg.SMTPServer = getenv("SMTP_SERVER")
	if cfg.SMTPServer == "" {
		cfg.SMTPServer = "smtp.gmail.com"
	}
	if cfg.SMTPPort, err = intOr(getenv("SMTP_PORT"), 465); err != nil {
		return nil, fmt.Errorf("invalid SMTP_PORT: %w", err)
	}
	cfg.SenderEmail = strings.TrimSpace(getenv("SENDER_EMAIL"))
	cfg.SenderPassword = getenv("SENDER_PASSWORD")
	if cfg.SMTPTimeout, err = durationOr(getenv("SMTP_TIMEOUT"), 15*time.Second); err != nil {
		return nil, fmt.Errorf("invalid SMTP_TIMEOUT: %w", err)
	}
	cfg.EmailTemplatePath = getenv("EMAIL_TEMPLATE_PATH")

	cfg.TelegramToken = getenv("TELEGRAM_BOT_TOKEN")
	cfg.TelegramAPIURL = strings.TrimRight(getenv("TELEGRAM_API_URL"), "/")
	if cfg.TelegramAPIURL == "" {
		cfg.TelegramAPIURL = "https://api.telegram.org"
	}
	if cfg.TelegramTimeout, err = durationOr(getenv("TELEGRAM_TIMEOUT"), 10*time.Second); err != nil {
		return nil, fmt.Errorf("invalid TELEGRAM_TIMEOUT: %w", err)
	}
	if cfg.TelegramPolling, err = boolOr(getenv("TELEGRAM_POLLING"), false); err != nil {
		return nil, fmt.Errorf("invalid TELEGRAM_POLLING: %w", err)
	}

	cfg.SchedulerLocation = time.Local
	if tz := strings.TrimSpace(getenv("SCHEDULER_TIMEZONE")); tz != "" {
		if cfg.SchedulerLocation, err = time.LoadLocation(tz); err != nil {
			return nil, fmt.Errorf("invalid SCHEDULER_TIMEZONE: %w", err)
		}
	}
	if cfg.SchedulerCatchUp, err = boolOr(getenv("SCHEDULER_CATCH_UP"), true); err != nil {
		return nil, fmt.Errorf("invalid SCHEDULER_CATCH_UP: %w", err)
	}

	cfg.LogLevel = strings.ToLower(getenv("LOG_LEVEL"))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info" // Default log level
	}

	cfg.Environment = strings.ToLower(getenv("ENVIRONMENT"))
	if cfg.Environment == "" {
		cfg.Environment = "development" // Default environment
	}

	return cfg, nil
}

func intOr(s string, def int) (int, error) {
	if s = strings.TrimSpace(s); s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}

func durationOr(s string, def time.Duration) (time.Duration, error) {
	if s = strings.TrimSpace(s); s == "" {
		return def, nil
	}
	return time.ParseDuration(s)
}

func boolOr(s string, def bool) (bool, error) {
	if s = strings.TrimSpace(s); s == "" {
		return def, nil
	}
	return strconv.ParseBool(s)
}
