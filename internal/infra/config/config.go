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
	DatabaseURL    string
	HTTPAddr       string
	JWTSecret      string
	InternalAPIKey string // Shared secret for the acknowledgment webhook
	LogLevel       string
	Environment    string

	CooldownWindow  time.Duration
	CooldownBackend string // "memory" or "redis"
	RedisAddr       string
	RedisPassword   string
	RedisDB         int

	DispatchTimeout    time.Duration
	DispatchWorkers    int
	SendMaxRetries     int
	SendBackoffBase    time.Duration
	SendBackoffFactor  int
	SendAttemptTimeout time.Duration

	ResponseTimeoutWindow time.Duration
	CronSpecResponseSweep string
	CronSpecCooldownPrune string

	AmbulanceContactID int64

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	SMSAPIURL string
	SMSAPIKey string
	SMSSender string

	TelegramToken      string
	OperatorTelegramID int64

	TestAlertRate string // ulule/limiter format, e.g. "5-H"
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	var err error

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is not set")
	}

	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":8080")
	cfg.InternalAPIKey = os.Getenv("INTERNAL_API_KEY")

	cfg.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", "info"))
	cfg.Environment = strings.ToLower(getEnv("ENVIRONMENT", "development"))

	if cfg.CooldownWindow, err = getDuration("COOLDOWN_WINDOW", 5*time.Minute); err != nil {
		return nil, err
	}
	cfg.CooldownBackend = strings.ToLower(getEnv("COOLDOWN_BACKEND", "memory"))
	if cfg.CooldownBackend != "memory" && cfg.CooldownBackend != "redis" {
		return nil, fmt.Errorf("invalid COOLDOWN_BACKEND %q: expected memory or redis", cfg.CooldownBackend)
	}
	cfg.RedisAddr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	if cfg.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}

	if cfg.DispatchTimeout, err = getDuration("DISPATCH_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.DispatchTimeout <= 0 {
		return nil, fmt.Errorf("DISPATCH_TIMEOUT must be positive")
	}
	if cfg.DispatchWorkers, err = getInt("DISPATCH_WORKERS", 10); err != nil {
		return nil, err
	}
	if cfg.DispatchWorkers < 1 {
		return nil, fmt.Errorf("DISPATCH_WORKERS must be at least 1")
	}
	if cfg.SendMaxRetries, err = getInt("SEND_MAX_RETRIES", 3); err != nil {
		return nil, err
	}
	if cfg.SendMaxRetries < 0 {
		return nil, fmt.Errorf("SEND_MAX_RETRIES must not be negative")
	}
	if cfg.SendBackoffBase, err = getDuration("SEND_BACKOFF_BASE", 200*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.SendBackoffFactor, err = getInt("SEND_BACKOFF_FACTOR", 4); err != nil {
		return nil, err
	}
	if cfg.SendBackoffFactor < 1 {
		return nil, fmt.Errorf("SEND_BACKOFF_FACTOR must be at least 1")
	}
	if cfg.SendAttemptTimeout, err = getDuration("SEND_ATTEMPT_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	if cfg.ResponseTimeoutWindow, err = getDuration("RESPONSE_TIMEOUT_WINDOW", 30*time.Minute); err != nil {
		return nil, err
	}
	cfg.CronSpecResponseSweep = getEnv("CRON_SPEC_RESPONSE_SWEEP", "* * * * *") // Default: every minute
	cfg.CronSpecCooldownPrune = getEnv("CRON_SPEC_COOLDOWN_PRUNE", "0 * * * *") // Default: hourly

	ambulanceIDStr := getEnv("AMBULANCE_CONTACT_ID", "1") // Seeded "Ambulance Service" row
	cfg.AmbulanceContactID, err = strconv.ParseInt(ambulanceIDStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid AMBULANCE_CONTACT_ID: %w", err)
	}

	cfg.SMTPHost = os.Getenv("SMTP_HOST")
	if cfg.SMTPPort, err = getInt("SMTP_PORT", 587); err != nil {
		return nil, err
	}
	cfg.SMTPUsername = os.Getenv("SMTP_USERNAME")
	cfg.SMTPPassword = os.Getenv("SMTP_PASSWORD")
	cfg.SMTPFrom = getEnv("SMTP_FROM", cfg.SMTPUsername)

	cfg.SMSAPIURL = os.Getenv("SMS_API_URL")
	cfg.SMSAPIKey = os.Getenv("SMS_API_KEY")
	cfg.SMSSender = getEnv("SMS_SENDER", "LifeGuard")

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	if operatorIDStr := os.Getenv("OPERATOR_TELEGRAM_ID"); operatorIDStr != "" {
		cfg.OperatorTelegramID, err = strconv.ParseInt(operatorIDStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid OPERATOR_TELEGRAM_ID: %w", err)
		}
	}

	cfg.TestAlertRate = getEnv("TEST_ALERT_RATE", "5-H")

	return cfg, nil
}

// OperatorConsoleEnabled reports whether the Telegram operator console should start.
func (c *AppConfig) OperatorConsoleEnabled() bool {
	return c.TelegramToken != "" && c.OperatorTelegramID != 0
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
