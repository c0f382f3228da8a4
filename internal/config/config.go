package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// JWT
	JWTSecret        string
	JWTAccessExpiry  time.Duration
	JWTRefreshExpiry time.Duration

	// Admin
	AdminEmails string
	AdminToken  string

	// Server
	Port        string
	AppEnv      string
	CORSOrigins string
	SentryDSN   string

	// Market registry
	MarketsConfigPath string
	DefaultCurrency   string

	// Paystack
	PaystackSecretKey string
	PaystackPublicKey string
	PaystackBaseURL   string
	PaystackScriptURL string
	PaystackTimeout   time.Duration

	// Listing rules
	FreeAdWindowDays int
	AdLifetimeDays   int

	// Events
	AMQPURL          string
	AMQPExchange     string
	ChatTransport    string
	ChatPollInterval time.Duration

	// Object storage (KYC documents)
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	// Mail
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string
	SupportEmail string

	// Scheduled jobs
	SubscriptionExpirySchedule string
	SubmissionExpirySchedule   string
	LogCleanupSchedule         string
	LogRetentionDays           int
}

// Load reads configuration from the environment. A .env file in the
// working directory is applied first when present.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load .env file", "error", err)
	}

	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "marketplace_db"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		JWTSecret:        getEnv("JWT_SECRET", ""),
		JWTAccessExpiry:  parseDuration(getEnv("JWT_ACCESS_EXPIRY", "15m"), 15*time.Minute),
		JWTRefreshExpiry: parseDuration(getEnv("JWT_REFRESH_EXPIRY", "168h"), 168*time.Hour),

		AdminEmails: getEnv("ADMIN_EMAILS", ""),
		AdminToken:  getEnv("ADMIN_TOKEN", ""),

		Port:        getEnv("PORT", "8080"),
		AppEnv:      getEnv("APP_ENV", "development"),
		CORSOrigins: getEnv("CORS_ORIGINS", "*"),
		SentryDSN:   getEnv("SENTRY_DSN", ""),

		MarketsConfigPath: getEnv("MARKETS_CONFIG_PATH", "markets.json"),
		DefaultCurrency:   getEnv("DEFAULT_CURRENCY", "NGN"),

		PaystackSecretKey: getEnv("PAYSTACK_SECRET_KEY", ""),
		PaystackPublicKey: getEnv("PAYSTACK_PUBLIC_KEY", ""),
		PaystackBaseURL:   getEnv("PAYSTACK_BASE_URL", "https://api.paystack.co"),
		PaystackScriptURL: getEnv("PAYSTACK_SCRIPT_URL", "https://js.paystack.co/v1/inline.js"),
		PaystackTimeout:   parseDuration(getEnv("PAYSTACK_TIMEOUT", "15s"), 15*time.Second),

		FreeAdWindowDays: parseInt(getEnv("FREE_AD_WINDOW_DAYS", "30"), 30),
		AdLifetimeDays:   parseInt(getEnv("AD_LIFETIME_DAYS", "30"), 30),

		AMQPURL:          getEnv("AMQP_URL", ""),
		AMQPExchange:     getEnv("AMQP_EXCHANGE", "marketplace_events"),
		ChatTransport:    getEnv("CHAT_TRANSPORT", "push"),
		ChatPollInterval: parseDuration(getEnv("CHAT_POLL_INTERVAL", "3s"), 3*time.Second),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", ""),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getEnv("MINIO_BUCKET", "kyc-documents"),
		MinioUseSSL:    getEnv("MINIO_USE_SSL", "false") == "true",

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     parseInt(getEnv("SMTP_PORT", "587"), 587),
		SMTPUser:     getEnv("SMTP_USER", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:     getEnv("SMTP_FROM", "no-reply@marketplace.local"),
		SupportEmail: getEnv("SUPPORT_EMAIL", ""),

		SubscriptionExpirySchedule: getEnv("SUBSCRIPTION_EXPIRY_SCHEDULE", "@every 15m"),
		SubmissionExpirySchedule:   getEnv("SUBMISSION_EXPIRY_SCHEDULE", "@hourly"),
		LogCleanupSchedule:         getEnv("LOG_CLEANUP_SCHEDULE", "@daily"),
		LogRetentionDays:           parseInt(getEnv("LOG_RETENTION_DAYS", "30"), 30),
	}
}

func (c *Config) DSN() string {
	return "host=" + c.DBHost +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" port=" + c.DBPort +
		" sslmode=" + c.DBSSLMode +
		" TimeZone=UTC"
}

func (c *Config) PaystackEnabled() bool {
	return c.PaystackSecretKey != "" && c.PaystackPublicKey != ""
}

func (c *Config) MinioEnabled() bool {
	return c.MinioEndpoint != "" && c.MinioAccessKey != ""
}

func (c *Config) SMTPEnabled() bool {
	return c.SMTPHost != ""
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func parseInt(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
