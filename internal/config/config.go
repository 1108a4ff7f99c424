package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	JWT       JWTConfig       `yaml:"jwt"`
	Log       LogConfig       `yaml:"log"`
	Booking   BookingConfig   `yaml:"booking"`
	Payouts   PayoutConfig    `yaml:"payouts"`
	Payments  PaymentConfig   `yaml:"payments"`
	SendGrid  SendGridConfig  `yaml:"sendgrid"`
	Firebase  FirebaseConfig  `yaml:"firebase"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Notifier  NotifierConfig  `yaml:"notifier"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// ServerConfig contains HTTP and gRPC listener settings
type ServerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	GRPCPort int    `yaml:"grpc_port"`
}

// DatabaseConfig contains PostgreSQL connection settings. Driver "memory"
// selects the in-process store for local runs.
type DatabaseConfig struct {
	Driver       string `yaml:"driver"`
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	Database     string `yaml:"database"`
	SSLMode      string `yaml:"ssl_mode"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// RedisConfig contains the lock store connection. An empty address disables
// distributed locking.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// JWTConfig contains JWT token settings
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "text"
}

// BookingConfig holds the booking policy knobs. LateCancelWindowMinutes and
// NoShowRefundPercent are pointers so that an explicit 0 survives defaulting.
type BookingConfig struct {
	Currency                string `yaml:"currency"`
	PaymentExpiryMinutes    int    `yaml:"payment_expiry_minutes"`
	MentorResponseHours     int    `yaml:"mentor_response_hours"`
	LateCancelWindowMinutes *int   `yaml:"late_cancel_window_minutes"`
	BlockLateCancel         bool   `yaml:"block_late_cancel"`
	RefundLateCancel        bool   `yaml:"refund_late_cancel"`
	AllowEarlyComplete      bool   `yaml:"allow_early_complete"`
	NoShowGraceMinutes      int    `yaml:"no_show_grace_minutes"`
	AutoCompleteMinutes     int    `yaml:"auto_complete_minutes"`
	NoShowRefundPercent     *int   `yaml:"no_show_refund_percent"`
	LockTTLSeconds          int    `yaml:"lock_ttl_seconds"`
	MaxTxRetries            int    `yaml:"max_tx_retries"`
	DefaultHorizonDays      int    `yaml:"default_horizon_days"`
}

func (b BookingConfig) PaymentExpiry() time.Duration {
	return time.Duration(b.PaymentExpiryMinutes) * time.Minute
}

func (b BookingConfig) MentorResponseWindow() time.Duration {
	return time.Duration(b.MentorResponseHours) * time.Hour
}

// LateCancelWindow is zero when unset, which disables late-cancel handling.
func (b BookingConfig) LateCancelWindow() time.Duration {
	if b.LateCancelWindowMinutes == nil {
		return 0
	}
	return time.Duration(*b.LateCancelWindowMinutes) * time.Minute
}

// NoShowRefund is the percent of the price refunded when nobody joined.
func (b BookingConfig) NoShowRefund() int {
	if b.NoShowRefundPercent == nil {
		return 0
	}
	return *b.NoShowRefundPercent
}

func (b BookingConfig) NoShowGrace() time.Duration {
	return time.Duration(b.NoShowGraceMinutes) * time.Minute
}

func (b BookingConfig) AutoCompleteAfter() time.Duration {
	return time.Duration(b.AutoCompleteMinutes) * time.Minute
}

func (b BookingConfig) LockTTL() time.Duration {
	return time.Duration(b.LockTTLSeconds) * time.Second
}

// PayoutConfig contains payout provider settings
type PayoutConfig struct {
	ProviderURL        string `yaml:"provider_url"`
	ProviderAPIKey     string `yaml:"provider_api_key"`
	WebhookSecret      string `yaml:"webhook_secret"`
	StuckAfterMinutes  int    `yaml:"stuck_after_minutes"`
	MinimumAmountCents int64  `yaml:"minimum_amount_cents"`
}

func (p PayoutConfig) StuckAfter() time.Duration {
	return time.Duration(p.StuckAfterMinutes) * time.Minute
}

// PaymentConfig contains payment gateway webhook settings
type PaymentConfig struct {
	WebhookSecret string `yaml:"webhook_secret"`
}

// SendGridConfig contains the email channel settings. An empty API key
// disables email.
type SendGridConfig struct {
	APIKey    string `yaml:"api_key"`
	FromEmail string `yaml:"from_email"`
	FromName  string `yaml:"from_name"`
}

// FirebaseConfig contains the push channel settings. An empty credentials
// file disables push.
type FirebaseConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	ProjectID       string `yaml:"project_id"`
}

// KafkaConfig contains the domain event channel settings
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// NotifierConfig sizes the post-commit dispatch queue
type NotifierConfig struct {
	Workers    int `yaml:"workers"`
	QueueSize  int `yaml:"queue_size"`
	MaxRetries int `yaml:"max_retries"`
}

// SchedulerConfig contains cron schedule settings
type SchedulerConfig struct {
	ExpireUnpaidBookings   string `yaml:"expire_unpaid_bookings"`
	ExpireMentorDeadlines  string `yaml:"expire_mentor_deadlines"`
	ResolveNoShows         string `yaml:"resolve_no_shows"`
	AutoCompleteBookings   string `yaml:"auto_complete_bookings"`
	RetryStuckPayouts      string `yaml:"retry_stuck_payouts"`
	ExtendOccurrenceWindow string `yaml:"extend_occurrence_window"`
}

// Load reads configuration from a YAML file
func Load(configPath string) (*Config, error) {
	// A .env next to the binary is optional
	_ = godotenv.Load()

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override with environment variables if present
	cfg.overrideWithEnv()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func envInt(key string, dst *int) {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			*dst = n
		}
	}
}

func envString(key string, dst *string) {
	if val := os.Getenv(key); val != "" {
		*dst = val
	}
}

// overrideWithEnv overrides config values with environment variables
func (c *Config) overrideWithEnv() {
	// Database
	envString("DB_DRIVER", &c.Database.Driver)
	envString("DB_HOST", &c.Database.Host)
	envInt("DB_PORT", &c.Database.Port)
	envString("DB_USER", &c.Database.User)
	envString("DB_PASSWORD", &c.Database.Password)
	envString("DB_NAME", &c.Database.Database)
	envString("DB_SSL_MODE", &c.Database.SSLMode)

	// Redis
	envString("REDIS_ADDR", &c.Redis.Addr)
	envString("REDIS_PASSWORD", &c.Redis.Password)

	// JWT
	envString("JWT_SECRET", &c.JWT.Secret)

	// Server
	envString("SERVER_HOST", &c.Server.Host)
	envInt("SERVER_PORT", &c.Server.Port)
	envInt("GRPC_PORT", &c.Server.GRPCPort)

	// Webhooks
	envString("PAYMENT_WEBHOOK_SECRET", &c.Payments.WebhookSecret)
	envString("PAYOUT_WEBHOOK_SECRET", &c.Payouts.WebhookSecret)
	envString("PAYOUT_PROVIDER_API_KEY", &c.Payouts.ProviderAPIKey)

	// Notification channels
	envString("SENDGRID_API_KEY", &c.SendGrid.APIKey)
	envString("FIREBASE_CREDENTIALS_FILE", &c.Firebase.CredentialsFile)

	// Log
	envString("LOG_LEVEL", &c.Log.Level)
	envString("LOG_FORMAT", &c.Log.Format)

	// Set defaults for log if not configured
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.GRPCPort == 0 {
		c.Server.GRPCPort = c.Server.Port + 1
	}

	if err := c.Database.validate(); err != nil {
		return err
	}

	// JWT validation
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 characters")
	}

	c.Booking.applyDefaults()
	if pct := c.Booking.NoShowRefund(); pct < 0 || pct > 100 {
		return fmt.Errorf("no-show refund percent must be within 0..100: %d", pct)
	}
	if c.Booking.LateCancelWindow() < 0 {
		return fmt.Errorf("late cancel window must not be negative")
	}

	// Payout defaults
	if c.Payouts.StuckAfterMinutes == 0 {
		c.Payouts.StuckAfterMinutes = 60
	}
	if c.Payouts.MinimumAmountCents == 0 {
		c.Payouts.MinimumAmountCents = 100
	}

	// Notifier defaults
	if c.Notifier.Workers == 0 {
		c.Notifier.Workers = 4
	}
	if c.Notifier.QueueSize == 0 {
		c.Notifier.QueueSize = 256
	}
	if c.Notifier.MaxRetries == 0 {
		c.Notifier.MaxRetries = 3
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "mentorbook.events"
	}

	c.Scheduler.applyDefaults()
	return nil
}

func (d *DatabaseConfig) validate() error {
	switch d.Driver {
	case "":
		d.Driver = "postgres"
	case "postgres":
	case "memory":
		return nil
	default:
		return fmt.Errorf("unknown database driver: %s", d.Driver)
	}
	if d.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if d.User == "" {
		return fmt.Errorf("database user is required")
	}
	if d.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if d.SSLMode == "" {
		d.SSLMode = "disable"
	}
	return nil
}

func (b *BookingConfig) applyDefaults() {
	if b.Currency == "" {
		b.Currency = "USD"
	}
	if b.PaymentExpiryMinutes == 0 {
		b.PaymentExpiryMinutes = 15
	}
	if b.MentorResponseHours == 0 {
		b.MentorResponseHours = 24
	}
	if b.LateCancelWindowMinutes == nil {
		b.LateCancelWindowMinutes = intPtr(24 * 60)
	}
	if b.NoShowGraceMinutes == 0 {
		b.NoShowGraceMinutes = 15
	}
	if b.AutoCompleteMinutes == 0 {
		b.AutoCompleteMinutes = 60
	}
	if b.NoShowRefundPercent == nil {
		b.NoShowRefundPercent = intPtr(80)
	}
	if b.LockTTLSeconds == 0 {
		b.LockTTLSeconds = 30
	}
	if b.MaxTxRetries == 0 {
		b.MaxTxRetries = 3
	}
	if b.DefaultHorizonDays == 0 {
		b.DefaultHorizonDays = 90
	}
}

func intPtr(v int) *int {
	return &v
}

func (s *SchedulerConfig) applyDefaults() {
	if s.ExpireUnpaidBookings == "" {
		s.ExpireUnpaidBookings = "0 * * * * *" // every minute
	}
	if s.ExpireMentorDeadlines == "" {
		s.ExpireMentorDeadlines = "0 */5 * * * *"
	}
	if s.ResolveNoShows == "" {
		s.ResolveNoShows = "30 */5 * * * *"
	}
	if s.AutoCompleteBookings == "" {
		s.AutoCompleteBookings = "0 */10 * * * *"
	}
	if s.RetryStuckPayouts == "" {
		s.RetryStuckPayouts = "0 */15 * * * *"
	}
	if s.ExtendOccurrenceWindow == "" {
		s.ExtendOccurrenceWindow = "0 0 3 * * *" // 3 AM UTC
	}
}

// DefaultBookingConfig returns the booking policy with every default applied.
func DefaultBookingConfig() BookingConfig {
	var b BookingConfig
	b.applyDefaults()
	return b
}

// DefaultSchedulerConfig returns the cron specs with every default applied.
func DefaultSchedulerConfig() SchedulerConfig {
	var s SchedulerConfig
	s.applyDefaults()
	return s
}

// GetDatabaseConnectionString returns a PostgreSQL connection string
func (c *Config) GetDatabaseConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// GetServerAddress returns the HTTP server address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// GetGRPCAddress returns the gRPC health server address
func (c *Config) GetGRPCAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.GRPCPort)
}
