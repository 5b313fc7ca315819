package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Gray Logic telemetry core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site          SiteConfig         `yaml:"site"`
	Database      DatabaseConfig     `yaml:"database"`
	MQTT          MQTTConfig         `yaml:"mqtt"`
	API           APIConfig          `yaml:"api"`
	Hub           HubConfig          `yaml:"hub"`
	InfluxDB      InfluxDBConfig     `yaml:"influxdb"`
	AWS           AWSConfig          `yaml:"aws"`
	Logging       LoggingConfig      `yaml:"logging"`
	Security      SecurityConfig     `yaml:"security"`
	Ingestion     IngestionConfig    `yaml:"ingestion"`
	Pipeline      PipelineConfig     `yaml:"pipeline"`
	Notifications NotificationConfig `yaml:"notifications"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// HubConfig contains channel hub and WebSocket transport settings.
type HubConfig struct {
	Path                   string `yaml:"path"`
	MaxMessageSize         int    `yaml:"max_message_size"`
	HeartbeatInterval      int    `yaml:"heartbeat_interval"` // seconds
	MaxMessagesPerMinute   int    `yaml:"max_messages_per_minute"`
	AuthenticationRequired bool   `yaml:"authentication_required"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// AWSConfig contains settings for the AWS-backed adapters.
// Credentials are resolved by the SDK's default chain (environment, shared
// config, instance role) and are never read from this file.
type AWSConfig struct {
	Region   string         `yaml:"region"`
	Endpoint string         `yaml:"endpoint"`
	DynamoDB DynamoDBConfig `yaml:"dynamodb"`
	SNS      SNSConfig      `yaml:"sns"`
	SES      SESConfig      `yaml:"ses"`
}

// DynamoDBConfig controls the DynamoDB telemetry persister.
type DynamoDBConfig struct {
	Enabled bool   `yaml:"enabled"`
	Table   string `yaml:"table"`
}

// SNSConfig controls SMS delivery through Amazon SNS.
type SNSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	SenderID string `yaml:"sender_id"`
	SMSType  string `yaml:"sms_type"` // Transactional or Promotional
}

// SESConfig controls email delivery through Amazon SES.
type SESConfig struct {
	Enabled bool   `yaml:"enabled"`
	Sender  string `yaml:"sender"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT       JWTConfig       `yaml:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// JWTConfig contains JWT verification settings.
// Tokens are issued elsewhere; this service only verifies them.
type JWTConfig struct {
	Secret string `yaml:"secret"`
	Issuer string `yaml:"issuer"`
}

// RateLimitConfig contains HTTP rate limiting settings.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	Burst             int  `yaml:"burst"`
}

// IngestionConfig controls the telemetry ingestion buffer.
type IngestionConfig struct {
	BatchSize     int `yaml:"batch_size"`
	BatchTimeout  int `yaml:"batch_timeout"` // milliseconds
	RetryAttempts int `yaml:"retry_attempts"`
	RetryDelay    int `yaml:"retry_delay"` // milliseconds
}

// PipelineConfig controls the stream processing pipeline.
type PipelineConfig struct {
	BatchSize      int    `yaml:"batch_size"`
	BatchTimeout   int    `yaml:"batch_timeout"` // milliseconds
	ErrorHandling  string `yaml:"error_handling"`
	RetryAttempts  int    `yaml:"retry_attempts"`
	RetryDelay     int    `yaml:"retry_delay"` // milliseconds
	QueueHighWater int    `yaml:"queue_high_water"`
	ProcessorsFile string `yaml:"processors_file"`
	WebhookTimeout int    `yaml:"webhook_timeout"` // seconds
}

// NotificationConfig controls the notification orchestrator.
type NotificationConfig struct {
	// DeliveryTimeout bounds each channel attempt in seconds. 0 disables the deadline.
	DeliveryTimeout int `yaml:"delivery_timeout"`

	// AlertRecipients receive a system_alert notification for every
	// telemetry alert at or above AlertMinSeverity.
	AlertRecipients  []string `yaml:"alert_recipients"`
	AlertMinSeverity string   `yaml:"alert_min_severity"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
// For example: GRAYLOGIC_DATABASE_PATH, GRAYLOGIC_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "site-001",
			Name:     "Gray Logic",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "./data/telemetry.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Enabled: true,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-telemetry",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Hub: HubConfig{
			Path:                   "/api/v1/ws",
			MaxMessageSize:         8192,
			HeartbeatInterval:      30,
			MaxMessagesPerMinute:   60,
			AuthenticationRequired: true,
		},
		AWS: AWSConfig{
			Region: "eu-west-1",
			SNS:    SNSConfig{SMSType: "Transactional"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 600,
				Burst:             50,
			},
		},
		Ingestion: IngestionConfig{
			BatchSize:     100,
			BatchTimeout:  5000,
			RetryAttempts: 3,
			RetryDelay:    1000,
		},
		Pipeline: PipelineConfig{
			BatchSize:      50,
			BatchTimeout:   1000,
			ErrorHandling:  "continue",
			RetryAttempts:  3,
			RetryDelay:     500,
			QueueHighWater: 10000,
			WebhookTimeout: 10,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("GRAYLOGIC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("GRAYLOGIC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("GRAYLOGIC_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// InfluxDB
	if v := os.Getenv("GRAYLOGIC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// AWS
	if v := os.Getenv("GRAYLOGIC_AWS_REGION"); v != "" {
		cfg.AWS.Region = v
	}
	if v := os.Getenv("GRAYLOGIC_DYNAMODB_TABLE"); v != "" {
		cfg.AWS.DynamoDB.Table = v
	}

	// Security - JWT secret (always override in production)
	if v := os.Getenv("GRAYLOGIC_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Hub.HeartbeatInterval < 1 {
		errs = append(errs, "hub.heartbeat_interval must be at least 1 second")
	}
	if c.Hub.MaxMessagesPerMinute < 1 {
		errs = append(errs, "hub.max_messages_per_minute must be positive")
	}

	if c.Ingestion.BatchSize < 1 {
		errs = append(errs, "ingestion.batch_size must be positive")
	}
	if c.Ingestion.BatchTimeout < 1 {
		errs = append(errs, "ingestion.batch_timeout must be positive")
	}
	if c.Ingestion.RetryAttempts < 0 {
		errs = append(errs, "ingestion.retry_attempts cannot be negative")
	}

	if c.Pipeline.BatchSize < 1 {
		errs = append(errs, "pipeline.batch_size must be positive")
	}
	switch c.Pipeline.ErrorHandling {
	case "stop", "continue", "retry":
	default:
		errs = append(errs, "pipeline.error_handling must be stop, continue, or retry")
	}

	if c.Notifications.DeliveryTimeout < 0 {
		errs = append(errs, "notifications.delivery_timeout cannot be negative")
	}
	switch c.Notifications.AlertMinSeverity {
	case "", "low", "medium", "high", "critical":
	default:
		errs = append(errs, "notifications.alert_min_severity must be low, medium, high, or critical")
	}

	if c.AWS.DynamoDB.Enabled && c.AWS.DynamoDB.Table == "" {
		errs = append(errs, "aws.dynamodb.table is required when dynamodb is enabled")
	}
	if c.AWS.SES.Enabled && c.AWS.SES.Sender == "" {
		errs = append(errs, "aws.ses.sender is required when ses is enabled")
	}

	// Empty or weak secrets would let anyone forge an admin identity.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set GRAYLOGIC_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// HeartbeatIntervalDuration returns the hub heartbeat interval as a Duration.
func (h HubConfig) HeartbeatIntervalDuration() time.Duration {
	return time.Duration(h.HeartbeatInterval) * time.Second
}

// BatchTimeoutDuration returns the ingestion flush interval.
func (i IngestionConfig) BatchTimeoutDuration() time.Duration {
	return time.Duration(i.BatchTimeout) * time.Millisecond
}

// RetryDelayDuration returns the delay between ingestion persist retries.
func (i IngestionConfig) RetryDelayDuration() time.Duration {
	return time.Duration(i.RetryDelay) * time.Millisecond
}

// DeliveryTimeoutDuration returns the per-channel delivery deadline, or 0 for none.
func (n NotificationConfig) DeliveryTimeoutDuration() time.Duration {
	return time.Duration(n.DeliveryTimeout) * time.Second
}
