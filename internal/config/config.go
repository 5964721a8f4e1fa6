// Package config provides centralized configuration management for replay runs.
// It loads configuration from defaults, an optional YAML file and environment
// variables, and validates all settings before any record is processed.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// Every setting can be configured via environment variables; the YAML file
// uses the yaml tag names.
type Config struct {
	// Channel selects the outbound channel: webhook or capi
	Channel string `env:"REPLAY_CHANNEL" yaml:"channel"`

	Webhook    WebhookConfig   `yaml:"webhook"`
	CAPI       CAPIConfig      `yaml:"capi"`
	Timestamps TimestampConfig `yaml:"timestamps"`
	HTTP       HTTPConfig      `yaml:"http"`
	Output     OutputConfig    `yaml:"output"`
	Receiver   ReceiverConfig  `yaml:"receiver"`
	Logging    LoggingConfig   `yaml:"logging"`
}

// WebhookConfig holds the generic webhook channel settings.
type WebhookConfig struct {
	// URL is the endpoint every record is posted to
	URL string `env:"WEBHOOK_URL" yaml:"url"`

	// RequestsPerMinute is the call rate; one call carries one record (default: 60)
	RequestsPerMinute int `env:"WEBHOOK_REQUESTS_PER_MINUTE" default:"60" yaml:"requests_per_minute"`
}

// CAPIConfig holds the Conversions API channel settings.
type CAPIConfig struct {
	URL string `env:"CAPI_URL" default:"https://api.linkedin.com/rest/conversionEvents" yaml:"url"`

	// AccessToken is sent as a bearer token.
	// Supports both CAPI_ACCESS_TOKEN and LINKEDIN_ACCESS_TOKEN env vars
	AccessToken string `env:"CAPI_ACCESS_TOKEN" envAlt:"LINKEDIN_ACCESS_TOKEN" yaml:"access_token"`

	// ConversionID is the numeric id in urn:lla:llaPartnerConversion:<id>
	ConversionID string `env:"CAPI_CONVERSION_ID" yaml:"conversion_id"`

	// APIVersion is sent as the LinkedIn-Version header (default: 202409)
	APIVersion string `env:"CAPI_API_VERSION" default:"202409" yaml:"api_version"`

	// RequestsPerMinute is the call rate; one call carries a whole batch (default: 60)
	RequestsPerMinute int `env:"CAPI_REQUESTS_PER_MINUTE" default:"60" yaml:"requests_per_minute"`

	// BatchSize is the maximum number of events per call (default: 500)
	BatchSize int `env:"CAPI_BATCH_SIZE" default:"500" yaml:"batch_size"`
}

// TimestampConfig holds the conversionTime policy.
type TimestampConfig struct {
	// UseConversionTime sends the record's conversionTime instead of now (default: true)
	UseConversionTime bool `env:"USE_CONVERSION_TIME" default:"true" yaml:"use_conversion_time"`

	// ResetOldTimestamps replaces times older than 90 days with now instead of
	// rejecting the record (default: false)
	ResetOldTimestamps bool `env:"RESET_OLD_TIMESTAMPS" default:"false" yaml:"reset_old_timestamps"`
}

// HTTPConfig holds outbound HTTP settings.
type HTTPConfig struct {
	// Timeout bounds each call (default: 30s)
	Timeout time.Duration `env:"HTTP_TIMEOUT" default:"30s" yaml:"timeout"`
}

// OutputConfig holds where run artifacts are written.
type OutputConfig struct {
	// Dir receives the sent/failed dumps and the summary (default: output)
	Dir string `env:"OUTPUT_DIR" default:"output" yaml:"dir"`

	// S3Bucket enables upload of the artifacts when set
	S3Bucket string `env:"OUTPUT_S3_BUCKET" yaml:"s3_bucket"`

	S3Region string `env:"OUTPUT_S3_REGION" default:"us-east-1" yaml:"s3_region"`

	S3Prefix string `env:"OUTPUT_S3_PREFIX" yaml:"s3_prefix"`
}

// ReceiverConfig holds the stub receiver settings.
type ReceiverConfig struct {
	Host string `env:"RECEIVER_HOST" yaml:"host"`

	// Port is the port to listen on (default: 8089)
	Port int `env:"RECEIVER_PORT" default:"8089" yaml:"port"`

	// FailEvery rejects every Nth element when > 0 (default: 0)
	FailEvery int `env:"RECEIVER_FAIL_EVERY" default:"0" yaml:"fail_every"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 10s)
	ShutdownTimeout time.Duration `env:"RECEIVER_SHUTDOWN_TIMEOUT" default:"10s" yaml:"shutdown_timeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info" yaml:"level"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text" yaml:"format"`
}

// Addr returns the receiver listen address in host:port format.
func (c *ReceiverConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// S3Enabled reports whether artifacts should be uploaded.
func (c *OutputConfig) S3Enabled() bool {
	return c.S3Bucket != ""
}
