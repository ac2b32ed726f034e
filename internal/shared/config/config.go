package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Pluggy    PluggyConfig
	Sync      SyncConfig
	Webhook   WebhookConfig
	Scheduler SchedulerConfig
	Firebase  FirebaseConfig
	RabbitMQ  RabbitMQConfig
	Telemetry TelemetryConfig
	Messages  MessagesConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	AllowedOrigins  []string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	URL             string
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type JWTConfig struct {
	Secret string
}

type PluggyConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// SyncConfig bounds the manual sync poll loop.
type SyncConfig struct {
	PollAttempts        int
	PollInterval        time.Duration
	RefreshUpdatedItems bool
}

// PollBudget is the longest a manual sync may block on polling.
func (s SyncConfig) PollBudget() time.Duration {
	return time.Duration(s.PollAttempts) * s.PollInterval
}

// syncResponseMargin is kept free at the end of SERVER_WRITE_TIMEOUT to
// encode and write the manual sync response.
const syncResponseMargin = 2 * time.Second

// ManualSyncTimeout bounds a whole manual sync, aggregator calls included.
func (c *Config) ManualSyncTimeout() time.Duration {
	return c.Server.WriteTimeout - syncResponseMargin
}

type WebhookConfig struct {
	// SecretHash is a bcrypt hash of the shared secret sent in
	// X-Webhook-Secret. Empty disables the check.
	SecretHash string
}

type SchedulerConfig struct {
	Enabled       bool
	SweepSchedule string
	StaleAfter    time.Duration
	BatchSize     int
	WorkerCount   int
	QueueSize     int
	JobDelay      time.Duration
	RunOnStartup  bool
}

type FirebaseConfig struct {
	CredentialsFile string
}

type RabbitMQConfig struct {
	URL      string
	Exchange string
}

type TelemetryConfig struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string
}

type MessagesConfig struct {
	Path string
}

func setDefaults(v *viper.Viper) {
	defaults := map[string]any{
		"PORT":                       "8080",
		"HOST":                       "0.0.0.0",
		"CORS_ALLOWED_ORIGINS":       "",
		"SERVER_READ_TIMEOUT":        "15s",
		"SERVER_WRITE_TIMEOUT":       "30s",
		"SERVER_SHUTDOWN_TIMEOUT":    "30s",
		"DATABASE_URL":               "",
		"DB_HOST":                    "localhost",
		"DB_PORT":                    5432,
		"DB_USER":                    "postgres",
		"DB_PASSWORD":                "",
		"DB_NAME":                    "bankconn",
		"DB_SSLMODE":                 "disable",
		"DB_MAX_OPEN_CONNS":          25,
		"DB_MAX_IDLE_CONNS":          5,
		"DB_CONN_MAX_LIFETIME":       "5m",
		"JWT_SECRET":                 "",
		"PLUGGY_BASE_URL":            "https://api.pluggy.ai",
		"PLUGGY_CLIENT_ID":           "",
		"PLUGGY_CLIENT_SECRET":       "",
		"PLUGGY_TIMEOUT":             "20s",
		"SYNC_POLL_ATTEMPTS":         4,
		"SYNC_POLL_INTERVAL":         "1s",
		"SYNC_REFRESH_UPDATED_ITEMS": false,
		"WEBHOOK_SECRET_HASH":        "",
		"SCHEDULER_ENABLED":          true,
		"SCHEDULER_SWEEP_SCHEDULE":   "0 */6 * * *",
		"SCHEDULER_STALE_AFTER":      "12h",
		"SCHEDULER_BATCH_SIZE":       200,
		"SCHEDULER_WORKERS":          5,
		"SCHEDULER_QUEUE_SIZE":       100,
		"SCHEDULER_JOB_DELAY":        "1s",
		"SCHEDULER_RUN_ON_STARTUP":   false,
		"FIREBASE_CREDENTIALS_FILE":  "",
		"RABBITMQ_URL":               "",
		"RABBITMQ_EXCHANGE":          "bank_connection_events",
		"OTEL_ENABLED":               false,
		"OTEL_SERVICE_NAME":          "bankconn-api",
		"SERVICE_VERSION":            "dev",
		"APP_ENV":                    "development",
		"OTEL_EXPORTER_ENDPOINT":     "localhost:4317",
		"MESSAGES_PATH":              "",
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// Load reads configuration from the environment, falling back to a .env
// file in the working directory when present.
func Load() (*Config, error) {
	v := viper.New()
	v.AddConfigPath(".")
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		log.Printf("Loaded configuration file %s", v.ConfigFileUsed())
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	var errs []error
	duration := func(key string) time.Duration {
		d, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
		}
		return d
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            v.GetString("PORT"),
			Host:            v.GetString("HOST"),
			AllowedOrigins:  splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
			ReadTimeout:     duration("SERVER_READ_TIMEOUT"),
			WriteTimeout:    duration("SERVER_WRITE_TIMEOUT"),
			ShutdownTimeout: duration("SERVER_SHUTDOWN_TIMEOUT"),
		},
		Database: DatabaseConfig{
			URL:             v.GetString("DATABASE_URL"),
			Host:            v.GetString("DB_HOST"),
			Port:            v.GetInt("DB_PORT"),
			User:            v.GetString("DB_USER"),
			Password:        v.GetString("DB_PASSWORD"),
			DBName:          v.GetString("DB_NAME"),
			SSLMode:         v.GetString("DB_SSLMODE"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: duration("DB_CONN_MAX_LIFETIME"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("JWT_SECRET"),
		},
		Pluggy: PluggyConfig{
			BaseURL:      v.GetString("PLUGGY_BASE_URL"),
			ClientID:     v.GetString("PLUGGY_CLIENT_ID"),
			ClientSecret: v.GetString("PLUGGY_CLIENT_SECRET"),
			Timeout:      duration("PLUGGY_TIMEOUT"),
		},
		Sync: SyncConfig{
			PollAttempts:        v.GetInt("SYNC_POLL_ATTEMPTS"),
			PollInterval:        duration("SYNC_POLL_INTERVAL"),
			RefreshUpdatedItems: v.GetBool("SYNC_REFRESH_UPDATED_ITEMS"),
		},
		Webhook: WebhookConfig{
			SecretHash: v.GetString("WEBHOOK_SECRET_HASH"),
		},
		Scheduler: SchedulerConfig{
			Enabled:       v.GetBool("SCHEDULER_ENABLED"),
			SweepSchedule: v.GetString("SCHEDULER_SWEEP_SCHEDULE"),
			StaleAfter:    duration("SCHEDULER_STALE_AFTER"),
			BatchSize:     v.GetInt("SCHEDULER_BATCH_SIZE"),
			WorkerCount:   v.GetInt("SCHEDULER_WORKERS"),
			QueueSize:     v.GetInt("SCHEDULER_QUEUE_SIZE"),
			JobDelay:      duration("SCHEDULER_JOB_DELAY"),
			RunOnStartup:  v.GetBool("SCHEDULER_RUN_ON_STARTUP"),
		},
		Firebase: FirebaseConfig{
			CredentialsFile: v.GetString("FIREBASE_CREDENTIALS_FILE"),
		},
		RabbitMQ: RabbitMQConfig{
			URL:      v.GetString("RABBITMQ_URL"),
			Exchange: v.GetString("RABBITMQ_EXCHANGE"),
		},
		Telemetry: TelemetryConfig{
			Enabled:        v.GetBool("OTEL_ENABLED"),
			ServiceName:    v.GetString("OTEL_SERVICE_NAME"),
			ServiceVersion: v.GetString("SERVICE_VERSION"),
			Environment:    v.GetString("APP_ENV"),
			OTLPEndpoint:   v.GetString("OTEL_EXPORTER_ENDPOINT"),
		},
		Messages: MessagesConfig{
			Path: v.GetString("MESSAGES_PATH"),
		},
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required settings and cross-field constraints.
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Pluggy.ClientID == "" || c.Pluggy.ClientSecret == "" {
		return fmt.Errorf("PLUGGY_CLIENT_ID and PLUGGY_CLIENT_SECRET are required")
	}
	if c.Sync.PollAttempts < 1 {
		return fmt.Errorf("SYNC_POLL_ATTEMPTS must be at least 1")
	}
	if c.Sync.PollInterval <= 0 {
		return fmt.Errorf("SYNC_POLL_INTERVAL must be positive")
	}
	// A manual sync holds its request open while polling.
	if c.ManualSyncTimeout() <= c.Sync.PollBudget() {
		return fmt.Errorf("SERVER_WRITE_TIMEOUT (%s) must exceed the poll budget (%s) by more than %s",
			c.Server.WriteTimeout, c.Sync.PollBudget(), syncResponseMargin)
	}
	if c.Scheduler.Enabled {
		if _, err := cron.ParseStandard(c.Scheduler.SweepSchedule); err != nil {
			return fmt.Errorf("invalid SCHEDULER_SWEEP_SCHEDULE: %w", err)
		}
		if c.Scheduler.WorkerCount < 1 {
			return fmt.Errorf("SCHEDULER_WORKERS must be at least 1")
		}
		if c.Scheduler.StaleAfter <= 0 {
			return fmt.Errorf("SCHEDULER_STALE_AFTER must be positive")
		}
	}
	return nil
}

// ConnectionString prefers DATABASE_URL over the discrete DB_* settings.
func (c *DatabaseConfig) ConnectionString() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
