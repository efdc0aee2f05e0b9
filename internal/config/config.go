package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	Ingestion    IngestionConfig
	SLA          SLAConfig
	Kafka        KafkaConfig
	MinIO        MinIOConfig
	SeedFile     string
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
	// Format is "json" or "console".
	Format  string
	Service string
	Version string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	Issuer                string
	AccessTokenTTLMinutes int
}

// NotificationConfig holds notification endpoints.
type NotificationConfig struct {
	EmailFrom             string
	EmailTo               string
	WebhookURL            string
	WebhookTimeoutSeconds int
	SMTPHost              string
	SMTPPort              int
	SMTPUsername          string
	SMTPPassword          string
}

// IngestionConfig controls the mail ingestion worker.
type IngestionConfig struct {
	PollIntervalSeconds int
	TenantConcurrency   int
	BatchSize           int
	IgnoredSenders      []string
	SendAcknowledgement bool
	ConflictRetries     int
	LookbackHours       int
}

// SLAConfig controls the SLA monitor and rule evaluation guards.
type SLAConfig struct {
	MonitorIntervalSeconds int
	RegexTimeoutMillis     int
	RegexMaxPatternLength  int
	OpenTicketPageSize     int
}

// KafkaConfig configures the audit event producer. No brokers disables it.
type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
	ClientID   string
}

// MinIOConfig configures the attachment blob store. No endpoint falls back to memory.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "supporthub"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level:   getEnv("LOG_LEVEL", "info"),
			Format:  getEnv("LOG_FORMAT", "json"),
			Service: getEnv("APP_NAME", "supporthub"),
			Version: getEnv("APP_VERSION", "dev"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			Issuer:                getEnv("AUTH_JWT_ISSUER", "supporthub"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Notification: NotificationConfig{
			EmailFrom:             getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			EmailTo:               os.Getenv("NOTIFY_EMAIL_TO"),
			WebhookURL:            getEnv("NOTIFY_WEBHOOK_URL", ""),
			WebhookTimeoutSeconds: getEnvAsInt("NOTIFY_WEBHOOK_TIMEOUT_SECONDS", 5),
			SMTPHost:              os.Getenv("SMTP_HOST"),
			SMTPPort:              getEnvAsInt("SMTP_PORT", 587),
			SMTPUsername:          os.Getenv("SMTP_USERNAME"),
			SMTPPassword:          os.Getenv("SMTP_PASSWORD"),
		},
		Ingestion: IngestionConfig{
			PollIntervalSeconds: getEnvAsInt("INGEST_POLL_INTERVAL_SECONDS", 60),
			TenantConcurrency:   getEnvAsInt("INGEST_TENANT_CONCURRENCY", 4),
			BatchSize:           getEnvAsInt("INGEST_BATCH_SIZE", 100),
			IgnoredSenders:      getEnvAsList("INGEST_IGNORED_SENDERS"),
			SendAcknowledgement: getEnvAsBool("INGEST_SEND_ACKNOWLEDGEMENT", false),
			ConflictRetries:     getEnvAsInt("STORE_CONFLICT_RETRIES", 3),
			LookbackHours:       getEnvAsInt("INGEST_LOOKBACK_HOURS", 72),
		},
		SLA: SLAConfig{
			MonitorIntervalSeconds: getEnvAsInt("SLA_MONITOR_INTERVAL_SECONDS", 300),
			RegexTimeoutMillis:     getEnvAsInt("ROUTING_REGEX_TIMEOUT_MS", 100),
			RegexMaxPatternLength:  getEnvAsInt("ROUTING_REGEX_MAX_PATTERN_LENGTH", 512),
			OpenTicketPageSize:     getEnvAsInt("SLA_OPEN_TICKET_PAGE_SIZE", 500),
		},
		Kafka: KafkaConfig{
			Brokers:    getEnvAsList("KAFKA_BROKERS"),
			AuditTopic: getEnv("KAFKA_AUDIT_TOPIC", "supporthub.audit"),
			ClientID:   getEnv("KAFKA_CLIENT_ID", "supporthub"),
		},
		MinIO: MinIOConfig{
			Endpoint:  os.Getenv("MINIO_ENDPOINT"),
			AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			Bucket:    getEnv("MINIO_BUCKET", "supporthub-attachments"),
			UseSSL:    getEnvAsBool("MINIO_USE_SSL", false),
		},
		SeedFile: getEnv("SEED_FILE", "seed.yaml"),
	}

	if cfg.Ingestion.TenantConcurrency <= 0 {
		return nil, fmt.Errorf("INGEST_TENANT_CONCURRENCY must be positive")
	}
	if cfg.Ingestion.ConflictRetries < 0 {
		return nil, fmt.Errorf("STORE_CONFLICT_RETRIES must not be negative")
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// PollInterval returns the ingestion schedule period.
func (i IngestionConfig) PollInterval() time.Duration {
	return secondsOr(i.PollIntervalSeconds, time.Minute)
}

// Lookback bounds how far back unseen messages are listed. Zero lists everything.
func (i IngestionConfig) Lookback() time.Duration {
	if i.LookbackHours <= 0 {
		return 0
	}
	return time.Duration(i.LookbackHours) * time.Hour
}

// MonitorInterval returns the SLA monitor schedule period.
func (s SLAConfig) MonitorInterval() time.Duration {
	return secondsOr(s.MonitorIntervalSeconds, 5*time.Minute)
}

// RegexTimeout returns the per-match regex budget.
func (s SLAConfig) RegexTimeout() time.Duration {
	if s.RegexTimeoutMillis <= 0 {
		return 100 * time.Millisecond
	}
	return time.Duration(s.RegexTimeoutMillis) * time.Millisecond
}

// WebhookTimeout returns the notifier HTTP timeout.
func (n NotificationConfig) WebhookTimeout() time.Duration {
	return secondsOr(n.WebhookTimeoutSeconds, 5*time.Second)
}

func secondsOr(seconds int, fallback time.Duration) time.Duration {
	if seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
