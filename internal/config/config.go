package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the full service configuration, loaded from the environment
type Config struct {
	Environment string

	Server     ServerConfig
	Logging    LoggingConfig
	Redis      RedisConfig
	Scylla     ScyllaConfig
	Kafka      KafkaConfig
	Clickhouse ClickhouseConfig
	OTP        OTPConfig
	Token      TokenConfig
	Providers  ProvidersConfig
	Bucketing  BucketingConfig

	AdminAPIKey string
}

type ServerConfig struct {
	Host         string
	Port         int
	TLSPort      int
	EnableTLS    bool
	AutoCert     bool
	Domain       string
	CertFile     string
	KeyFile      string
	AutoCertDir  string
	Email        string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

type BucketingConfig struct {
	UserBuckets int
}

type ScyllaConfig struct {
	Nodes    []string
	Keyspace string
	Username string
	Password string
}

type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

type ClickhouseConfig struct {
	Enabled  bool
	URL      string
	Database string
	Username string
	Password string
}

// OTPConfig carries every tunable of the OTP state machine. The cooldowns and
// ceilings are deliberately explicit configuration rather than constants.
type OTPConfig struct {
	CodeTTL            time.Duration
	AttemptCeiling     int
	ResendCeiling      int
	ResendWindow       time.Duration
	SendLimit          int
	SendWindow         time.Duration
	AttemptCooldown    time.Duration
	ResendCooldown     time.Duration
	DefaultCountryCode string
}

type TokenConfig struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type ProvidersConfig struct {
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

type HashingConfig struct {
	Argon2MemoryCost   int
	Argon2TimeCost     int
	Argon2Parallelism  int
	PepperRotationDays int
}

// LoadConfig reads configuration from environment variables (optionally seeded
// from a .env file) and applies defaults suitable for development.
func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),

		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			TLSPort:      getEnvInt("SERVER_TLS_PORT", 8443),
			EnableTLS:    getEnvBool("SERVER_ENABLE_TLS", false),
			AutoCert:     getEnvBool("SERVER_AUTO_CERT", false),
			Domain:       getEnv("SERVER_DOMAIN", "localhost"),
			CertFile:     getEnv("SERVER_CERT_FILE", ""),
			KeyFile:      getEnv("SERVER_KEY_FILE", ""),
			AutoCertDir:  getEnv("SERVER_AUTOCERT_DIR", "./certs"),
			Email:        getEnv("SERVER_ACME_EMAIL", ""),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},

		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
		},

		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 50),
		},

		Scylla: ScyllaConfig{
			Nodes:    getEnvSlice("SCYLLA_NODES", []string{"localhost:9042"}),
			Keyspace: getEnv("SCYLLA_KEYSPACE", "jobdesk_auth"),
			Username: getEnv("SCYLLA_USERNAME", ""),
			Password: getEnv("SCYLLA_PASSWORD", ""),
		},

		Bucketing: BucketingConfig{
			UserBuckets: getEnvInt("USER_BUCKETS", 100),
		},

		Kafka: KafkaConfig{
			Enabled: getEnvBool("KAFKA_ENABLED", false),
			Brokers: getEnvSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			Topic:   getEnv("KAFKA_AUTH_EVENTS_TOPIC", "auth-events"),
		},

		Clickhouse: ClickhouseConfig{
			Enabled:  getEnvBool("CLICKHOUSE_ENABLED", false),
			URL:      getEnv("CLICKHOUSE_URL", "http://localhost:9000"),
			Database: getEnv("CLICKHOUSE_DATABASE", "jobdesk_audit"),
			Username: getEnv("CLICKHOUSE_USERNAME", "default"),
			Password: getEnv("CLICKHOUSE_PASSWORD", ""),
		},

		OTP: OTPConfig{
			CodeTTL:            getEnvDuration("OTP_CODE_TTL", 10*time.Minute),
			AttemptCeiling:     getEnvInt("OTP_ATTEMPT_CEILING", 3),
			ResendCeiling:      getEnvInt("OTP_RESEND_CEILING", 5),
			ResendWindow:       getEnvDuration("OTP_RESEND_WINDOW", 30*time.Minute),
			SendLimit:          getEnvInt("OTP_SEND_LIMIT", 3),
			SendWindow:         getEnvDuration("OTP_SEND_WINDOW", 10*time.Minute),
			AttemptCooldown:    getEnvDuration("OTP_ATTEMPT_COOLDOWN", time.Minute),
			ResendCooldown:     getEnvDuration("OTP_RESEND_COOLDOWN", 5*time.Minute),
			DefaultCountryCode: getEnv("OTP_DEFAULT_COUNTRY_CODE", "1"),
		},

		Token: TokenConfig{
			Secret:     getEnv("TOKEN_SECRET", "dev-only-insecure-secret"),
			Issuer:     getEnv("TOKEN_ISSUER", "jobdesk-auth"),
			AccessTTL:  getEnvDuration("TOKEN_ACCESS_TTL", 15*time.Minute),
			RefreshTTL: getEnvDuration("TOKEN_REFRESH_TTL", 168*time.Hour),
		},

		Providers: ProvidersConfig{
			TwilioAccountSID: getEnv("TWILIO_ACCOUNT_SID", ""),
			TwilioAuthToken:  getEnv("TWILIO_AUTH_TOKEN", ""),
			TwilioFromNumber: getEnv("TWILIO_FROM_NUMBER", ""),
			SMTPHost:         getEnv("SMTP_HOST", "localhost"),
			SMTPPort:         getEnvInt("SMTP_PORT", 587),
			SMTPUsername:     getEnv("SMTP_USERNAME", ""),
			SMTPPassword:     getEnv("SMTP_PASSWORD", ""),
			SMTPFrom:         getEnv("SMTP_FROM", "no-reply@jobdesk.example"),
		},

		AdminAPIKey: getEnv("ADMIN_API_KEY", ""),
	}

	return cfg
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// GetServerAddress returns the plain HTTP listen address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Hashing returns argon2 parameters; kept behind a method so hot paths read a
// value copy rather than env variables.
func (c *Config) Hashing() HashingConfig {
	return HashingConfig{
		Argon2MemoryCost:   getEnvInt("ARGON2_MEMORY_COST", 64*1024),
		Argon2TimeCost:     getEnvInt("ARGON2_TIME_COST", 1),
		Argon2Parallelism:  getEnvInt("ARGON2_PARALLELISM", 4),
		PepperRotationDays: getEnvInt("PEPPER_ROTATION_DAYS", 30),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
