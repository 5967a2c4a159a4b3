package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Provider  ProviderConfig  `yaml:"provider"`
	Queue     QueueConfig     `yaml:"queue"`
	Breaker   BreakerConfig   `yaml:"breaker"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Notify    NotifyConfig    `yaml:"notify"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with ECS detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	// Allow override via environment
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifeMins int    `yaml:"conn_max_life_mins"`
}

// ConnMaxLifetime returns the connection lifetime as a duration
func (c DatabaseConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(c.ConnMaxLifeMins) * time.Minute
}

// RedisConfig holds Redis settings for distributed locks.
// Optional; when Addr is empty the schedulers fall back to PG advisory locks.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ProviderConfig selects and configures the email provider adapter
type ProviderConfig struct {
	// Kind is "resend" or "ses"
	Kind   string       `yaml:"kind"`
	Resend ResendConfig `yaml:"resend"`
	SES    SESConfig    `yaml:"ses"`
}

// ResendConfig holds Resend API configuration
type ResendConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	WebhookSecret  string `yaml:"webhook_secret"`
}

// Timeout returns the configured timeout as a duration
func (c ResendConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SESConfig holds AWS SES API configuration
type SESConfig struct {
	Region         string `yaml:"region"`
	AccessKey      string `yaml:"access_key"`
	SecretKey      string `yaml:"secret_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	ConfigSet      string `yaml:"config_set"`
	WebhookSecret  string `yaml:"webhook_secret"`
}

// Timeout returns the configured timeout as a duration
func (c SESConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// QueueConfig holds send queue retry and retention settings
type QueueConfig struct {
	MaxRetries            int     `yaml:"max_retries"`
	BaseDelaySeconds      int     `yaml:"base_delay_seconds"`
	MaxDelaySeconds       int     `yaml:"max_delay_seconds"`
	BackoffMultiplier     float64 `yaml:"backoff_multiplier"`
	BatchSize             int     `yaml:"batch_size"`
	BounceRetryMaxAgeDays int     `yaml:"bounce_retry_max_age_days"`
	RetentionDays         int     `yaml:"retention_days"`

	// ResetBounceRetryCount controls whether the daily bounce retry grants
	// re-pended entries a fresh retry budget. Pointer so an omitted key
	// defaults to true.
	ResetBounceRetryCount *bool `yaml:"reset_bounce_retry_count"`
}

// BaseDelay returns the first retry delay as a duration
func (c QueueConfig) BaseDelay() time.Duration {
	return time.Duration(c.BaseDelaySeconds) * time.Second
}

// MaxDelay returns the retry delay cap as a duration
func (c QueueConfig) MaxDelay() time.Duration {
	return time.Duration(c.MaxDelaySeconds) * time.Second
}

// ResetBounceRetries reports whether bounce-retried entries start with a
// zeroed retry count.
func (c QueueConfig) ResetBounceRetries() bool {
	if c.ResetBounceRetryCount == nil {
		return true
	}
	return *c.ResetBounceRetryCount
}

// BreakerConfig holds circuit breaker thresholds for the provider client
type BreakerConfig struct {
	FailureThreshold    int `yaml:"failure_threshold"`
	SuccessThreshold    int `yaml:"success_threshold"`
	ResetTimeoutSeconds int `yaml:"reset_timeout_seconds"`
}

// ResetTimeout returns the open-state timeout as a duration
func (c BreakerConfig) ResetTimeout() time.Duration {
	return time.Duration(c.ResetTimeoutSeconds) * time.Second
}

// PipelineConfig holds webhook pipeline routing settings
type PipelineConfig struct {
	// BounceStatus is the lead status applied on a permanent bounce.
	BounceStatus string `yaml:"bounce_status"`
	// ComplaintStatus is the lead status applied on a spam complaint.
	ComplaintStatus string `yaml:"complaint_status"`
	// ReplyStatus is the lead status applied when a reply arrives.
	ReplyStatus string `yaml:"reply_status"`
	// BookingKeywords overrides the built-in booking intent keyword list.
	BookingKeywords []string `yaml:"booking_keywords"`
}

// NotifyConfig holds the outbound status-change webhook settings
type NotifyConfig struct {
	Enabled        bool   `yaml:"enabled"`
	WebhookURL     string `yaml:"webhook_url"`
	Secret         string `yaml:"secret"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
}

// Timeout returns the configured timeout as a duration
func (c NotifyConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ArchiveConfig holds raw webhook payload archival settings
type ArchiveConfig struct {
	Enabled    bool   `yaml:"enabled"`
	S3Bucket   string `yaml:"s3_bucket"`
	S3Prefix   string `yaml:"s3_prefix"`
	AWSRegion  string `yaml:"aws_region"`
	AWSProfile string `yaml:"aws_profile"` // Empty string uses default credential chain (IAM role on ECS)
}

// GetAWSProfile returns the AWS profile, with environment variable override
func (c ArchiveConfig) GetAWSProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return "" // Use default credential chain (IAM role)
		}
		return envProfile
	}
	// On ECS/Lambda, don't use a profile - use IAM role
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "" // Running on ECS or Lambda, use IAM role
	}
	return c.AWSProfile
}

// SchedulerConfig holds sweep intervals for the worker binary
type SchedulerConfig struct {
	PendingIntervalSeconds int `yaml:"pending_interval_seconds"`
	RetryIntervalSeconds   int `yaml:"retry_interval_seconds"`
	BounceRetryHourUTC     int `yaml:"bounce_retry_hour_utc"`
	CleanupHourUTC         int `yaml:"cleanup_hour_utc"`
	LockTTLSeconds         int `yaml:"lock_ttl_seconds"`
}

// PendingInterval returns the pending sweep interval as a duration
func (c SchedulerConfig) PendingInterval() time.Duration {
	return time.Duration(c.PendingIntervalSeconds) * time.Second
}

// RetryInterval returns the retry sweep interval as a duration
func (c SchedulerConfig) RetryInterval() time.Duration {
	return time.Duration(c.RetryIntervalSeconds) * time.Second
}

// LockTTL returns the scheduler lock TTL as a duration
func (c SchedulerConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifeMins == 0 {
		cfg.Database.ConnMaxLifeMins = 5
	}
	if cfg.Provider.Kind == "" {
		cfg.Provider.Kind = "resend"
	}
	if cfg.Provider.Resend.BaseURL == "" {
		cfg.Provider.Resend.BaseURL = "https://api.resend.com"
	}
	if cfg.Provider.Resend.TimeoutSeconds == 0 {
		cfg.Provider.Resend.TimeoutSeconds = 30
	}
	if cfg.Provider.SES.Region == "" {
		cfg.Provider.SES.Region = "us-west-2"
	}
	if cfg.Provider.SES.TimeoutSeconds == 0 {
		cfg.Provider.SES.TimeoutSeconds = 30
	}
	if cfg.Queue.MaxRetries == 0 {
		cfg.Queue.MaxRetries = 3
	}
	if cfg.Queue.BaseDelaySeconds == 0 {
		cfg.Queue.BaseDelaySeconds = 60
	}
	if cfg.Queue.MaxDelaySeconds == 0 {
		cfg.Queue.MaxDelaySeconds = 3600
	}
	if cfg.Queue.BackoffMultiplier == 0 {
		cfg.Queue.BackoffMultiplier = 2.0
	}
	if cfg.Queue.BatchSize == 0 {
		cfg.Queue.BatchSize = 50
	}
	if cfg.Queue.BounceRetryMaxAgeDays == 0 {
		cfg.Queue.BounceRetryMaxAgeDays = 7
	}
	if cfg.Queue.RetentionDays == 0 {
		cfg.Queue.RetentionDays = 90
	}
	if cfg.Breaker.FailureThreshold == 0 {
		cfg.Breaker.FailureThreshold = 5
	}
	if cfg.Breaker.SuccessThreshold == 0 {
		cfg.Breaker.SuccessThreshold = 2
	}
	if cfg.Breaker.ResetTimeoutSeconds == 0 {
		cfg.Breaker.ResetTimeoutSeconds = 60
	}
	if cfg.Pipeline.BounceStatus == "" {
		cfg.Pipeline.BounceStatus = "declined"
	}
	if cfg.Pipeline.ComplaintStatus == "" {
		cfg.Pipeline.ComplaintStatus = "declined"
	}
	if cfg.Pipeline.ReplyStatus == "" {
		cfg.Pipeline.ReplyStatus = "called"
	}
	if cfg.Notify.TimeoutSeconds == 0 {
		cfg.Notify.TimeoutSeconds = 10
	}
	if cfg.Notify.MaxRetries == 0 {
		cfg.Notify.MaxRetries = 3
	}
	if cfg.Archive.AWSRegion == "" {
		cfg.Archive.AWSRegion = "us-west-2"
	}
	if cfg.Scheduler.PendingIntervalSeconds == 0 {
		cfg.Scheduler.PendingIntervalSeconds = 30
	}
	if cfg.Scheduler.RetryIntervalSeconds == 0 {
		cfg.Scheduler.RetryIntervalSeconds = 60
	}
	if cfg.Scheduler.BounceRetryHourUTC == 0 {
		cfg.Scheduler.BounceRetryHourUTC = 8
	}
	if cfg.Scheduler.CleanupHourUTC == 0 {
		cfg.Scheduler.CleanupHourUTC = 3
	}
	if cfg.Scheduler.LockTTLSeconds == 0 {
		cfg.Scheduler.LockTTLSeconds = 300
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	// Override with environment variables if present
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		cfg.Redis.Password = pw
	}
	if kind := os.Getenv("EMAIL_PROVIDER"); kind != "" {
		cfg.Provider.Kind = kind
	}
	if apiKey := os.Getenv("RESEND_API_KEY"); apiKey != "" {
		cfg.Provider.Resend.APIKey = apiKey
	}
	if baseURL := os.Getenv("RESEND_BASE_URL"); baseURL != "" {
		cfg.Provider.Resend.BaseURL = baseURL
	}
	if secret := os.Getenv("RESEND_WEBHOOK_SECRET"); secret != "" {
		cfg.Provider.Resend.WebhookSecret = secret
	}
	if accessKey := os.Getenv("AWS_SES_ACCESS_KEY"); accessKey != "" {
		cfg.Provider.SES.AccessKey = accessKey
	}
	if secretKey := os.Getenv("AWS_SES_SECRET_KEY"); secretKey != "" {
		cfg.Provider.SES.SecretKey = secretKey
	}
	if region := os.Getenv("AWS_SES_REGION"); region != "" {
		cfg.Provider.SES.Region = region
	}
	if v := os.Getenv("QUEUE_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Queue.MaxRetries = n
		}
	}
	if url := os.Getenv("NOTIFY_WEBHOOK_URL"); url != "" {
		cfg.Notify.WebhookURL = url
		cfg.Notify.Enabled = true
	}
	if secret := os.Getenv("NOTIFY_WEBHOOK_SECRET"); secret != "" {
		cfg.Notify.Secret = secret
	}
	if bucket := os.Getenv("ARCHIVE_S3_BUCKET"); bucket != "" {
		cfg.Archive.S3Bucket = bucket
		cfg.Archive.Enabled = true
	}

	return cfg, nil
}
