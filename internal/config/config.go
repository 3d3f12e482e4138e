package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Email provider names
const (
	EmailSES  = "ses"
	EmailSMTP = "smtp"
	EmailLog  = "log"
)

// Push provider names
const (
	PushSNS   = "sns"
	PushRelay = "relay"
	PushLog   = "log"
)

type Config struct {
	Port     int
	LogLevel string
	Env      string

	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis config
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int

	// AWS Services
	AWSRegion    string
	SESFromEmail string
	SESFromName  string
	SNSRegion    string // AWS region for SNS (SMS and mobile push)

	// Email
	EmailProvider string
	SMTPHost      string
	SMTPPort      int
	SMTPUsername  string
	SMTPPassword  string
	SMTPFrom      string

	// SMS
	SMSEnabled bool

	// Push
	PushProvider string
	PushRelayURL string
	PushTimeout  time.Duration

	// SQS fan-out queue; empty URL keeps fan-out in process
	SQSRegion   string
	SQSQueueURL string

	FrontendURL string

	// Reminders
	ReminderEnabled       bool
	ReminderThresholdDays int
	ReminderCronSchedule  string

	// API
	JWTSecret          string
	RateLimitPerMinute int
	FanoutConcurrency  int
}

// Load reads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	cfg := &Config{
		Port:     8080,
		LogLevel: "info",
		Env:      "development",

		// Local postgres defaults
		DBHost:    "localhost",
		DBPort:    5432,
		DBUser:    "postgres",
		DBName:    "quorum",
		DBSSLMode: "disable",

		// Redis defaults
		RedisHost: "localhost",
		RedisPort: 6379,

		AWSRegion:    "us-east-1",
		SESFromEmail: "noreply@quorum.local",
		SESFromName:  "Quorum",

		EmailProvider: EmailSES,
		SMTPPort:      587,
		SMTPFrom:      "noreply@quorum.local",

		SMSEnabled: true,

		PushProvider: PushSNS,
		PushTimeout:  10 * time.Second,

		FrontendURL: "http://localhost:3000",

		ReminderEnabled:       true,
		ReminderThresholdDays: 7,
		ReminderCronSchedule:  "0 9 * * *",

		RateLimitPerMinute: 100,
		FanoutConcurrency:  8,
	}

	var err error

	if cfg.Port, err = intEnv("PORT", cfg.Port); err != nil {
		return nil, err
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if env := os.Getenv("ENV"); env != "" {
		cfg.Env = env
	}

	// Database config
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.DBHost = host
	}

	if cfg.DBPort, err = intEnv("DB_PORT", cfg.DBPort); err != nil {
		return nil, err
	}

	if user := os.Getenv("DB_USER"); user != "" {
		cfg.DBUser = user
	}

	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.DBPassword = password
	}

	if dbname := os.Getenv("DB_NAME"); dbname != "" {
		cfg.DBName = dbname
	}

	if sslmode := os.Getenv("DB_SSLMODE"); sslmode != "" {
		cfg.DBSSLMode = sslmode
	}

	// Redis config
	if host := os.Getenv("REDIS_HOST"); host != "" {
		cfg.RedisHost = host
	}

	if cfg.RedisPort, err = intEnv("REDIS_PORT", cfg.RedisPort); err != nil {
		return nil, err
	}

	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.RedisPassword = password
	}

	if cfg.RedisDB, err = intEnv("REDIS_DB", cfg.RedisDB); err != nil {
		return nil, err
	}

	if region := os.Getenv("AWS_REGION"); region != "" {
		cfg.AWSRegion = region
	}

	if from := os.Getenv("SES_FROM_EMAIL"); from != "" {
		cfg.SESFromEmail = from
	}

	if name := os.Getenv("SES_FROM_NAME"); name != "" {
		cfg.SESFromName = name
	}

	// Email provider
	if provider := os.Getenv("EMAIL_PROVIDER"); provider != "" {
		switch provider {
		case EmailSES, EmailSMTP, EmailLog:
			cfg.EmailProvider = provider
		default:
			return nil, fmt.Errorf("invalid EMAIL_PROVIDER %q: want ses, smtp or log", provider)
		}
	}

	if host := os.Getenv("SMTP_HOST"); host != "" {
		cfg.SMTPHost = host
	}

	if cfg.SMTPPort, err = intEnv("SMTP_PORT", cfg.SMTPPort); err != nil {
		return nil, err
	}

	if user := os.Getenv("SMTP_USERNAME"); user != "" {
		cfg.SMTPUsername = user
	}

	if pass := os.Getenv("SMTP_PASSWORD"); pass != "" {
		cfg.SMTPPassword = pass
	}

	if from := os.Getenv("SMTP_FROM"); from != "" {
		cfg.SMTPFrom = from
	}

	if cfg.EmailProvider == EmailSMTP && cfg.SMTPHost == "" {
		return nil, fmt.Errorf("EMAIL_PROVIDER=smtp requires SMTP_HOST")
	}

	// SNS config for SMS and push
	if region := os.Getenv("SNS_REGION"); region != "" {
		cfg.SNSRegion = region
	} else {
		cfg.SNSRegion = cfg.AWSRegion
	}

	if cfg.SMSEnabled, err = boolEnv("SMS_ENABLED", cfg.SMSEnabled); err != nil {
		return nil, err
	}

	// Push provider
	if provider := os.Getenv("PUSH_PROVIDER"); provider != "" {
		switch provider {
		case PushSNS, PushRelay, PushLog:
			cfg.PushProvider = provider
		default:
			return nil, fmt.Errorf("invalid PUSH_PROVIDER %q: want sns, relay or log", provider)
		}
	}

	if url := os.Getenv("PUSH_RELAY_URL"); url != "" {
		cfg.PushRelayURL = url
	}

	if cfg.PushProvider == PushRelay && cfg.PushRelayURL == "" {
		return nil, fmt.Errorf("PUSH_PROVIDER=relay requires PUSH_RELAY_URL")
	}

	if timeout := os.Getenv("PUSH_TIMEOUT"); timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid PUSH_TIMEOUT: %w", err)
		}
		cfg.PushTimeout = d
	}

	// SQS config
	if region := os.Getenv("SQS_REGION"); region != "" {
		cfg.SQSRegion = region
	} else {
		cfg.SQSRegion = cfg.AWSRegion
	}

	if url := os.Getenv("SQS_QUEUE_URL"); url != "" {
		cfg.SQSQueueURL = url
	}

	if url := os.Getenv("FRONTEND_URL"); url != "" {
		cfg.FrontendURL = url
	}

	// Reminders
	if cfg.ReminderEnabled, err = boolEnv("REMINDER_ENABLED", cfg.ReminderEnabled); err != nil {
		return nil, err
	}

	if cfg.ReminderThresholdDays, err = intEnv("REMINDER_THRESHOLD_DAYS", cfg.ReminderThresholdDays); err != nil {
		return nil, err
	}
	if cfg.ReminderThresholdDays < 1 {
		return nil, fmt.Errorf("invalid REMINDER_THRESHOLD_DAYS: must be at least 1")
	}

	if schedule := os.Getenv("REMINDER_CRON_SCHEDULE"); schedule != "" {
		cfg.ReminderCronSchedule = schedule
	}

	// API
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.JWTSecret = secret
	}

	if cfg.RateLimitPerMinute, err = intEnv("RATE_LIMIT_PER_MINUTE", cfg.RateLimitPerMinute); err != nil {
		return nil, err
	}

	if cfg.FanoutConcurrency, err = intEnv("FANOUT_CONCURRENCY", cfg.FanoutConcurrency); err != nil {
		return nil, err
	}
	if cfg.FanoutConcurrency < 1 {
		cfg.FanoutConcurrency = 1
	}

	return cfg, nil
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func boolEnv(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
