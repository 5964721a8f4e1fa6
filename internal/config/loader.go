package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/conversion-replay/internal/core"
)

// FileEnv names the environment variable holding the optional YAML file path.
const FileEnv = "REPLAY_CONFIG_FILE"

// MaxBatchSize is the largest CAPI batch accepted.
const MaxBatchSize = 5000

// ConfigurationError lists every problem found while validating.
// It is fatal and always reported before a run starts.
type ConfigurationError struct {
	Problems []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(e.Problems, "\n  - "))
}

// Load reads configuration with precedence defaults < YAML file < environment.
// The YAML file is read from REPLAY_CONFIG_FILE when set.
func Load() (*Config, error) {
	return LoadFile(os.Getenv(FileEnv))
}

// LoadFile is Load with an explicit YAML path. An empty path skips the file.
func LoadFile(path string) (*Config, error) {
	cfg := &Config{}
	v := reflect.ValueOf(cfg).Elem()

	if err := applyDefaults(v); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	if err := applyEnv(v); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration and panics on error.
// Use this only in main() where early termination is desired.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// applyDefaults sets every field that has a default tag.
func applyDefaults(v reflect.Value) error {
	return walk(v, func(field reflect.StructField, fieldVal reflect.Value) error {
		def := field.Tag.Get("default")
		if def == "" {
			return nil
		}
		if err := setField(fieldVal, def); err != nil {
			return fmt.Errorf("invalid default for %s=%q: %w", field.Name, def, err)
		}
		return nil
	})
}

// applyEnv overrides fields from environment variables, trying env then envAlt.
func applyEnv(v reflect.Value) error {
	return walk(v, func(field reflect.StructField, fieldVal reflect.Value) error {
		envName := field.Tag.Get("env")
		if envName == "" {
			return nil
		}

		value := os.Getenv(envName)
		if value == "" {
			if alt := field.Tag.Get("envAlt"); alt != "" {
				value = os.Getenv(alt)
			}
		}
		if value == "" {
			return nil
		}

		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
		}
		return nil
	})
}

// walk calls fn for every settable leaf field, recursing into nested structs.
func walk(v reflect.Value, fn func(reflect.StructField, reflect.Value) error) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		if !fieldVal.CanSet() {
			continue
		}

		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			if err := walk(fieldVal, fn); err != nil {
				return err
			}
			continue
		}

		if err := fn(field, fieldVal); err != nil {
			return err
		}
	}
	return nil
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.Set(reflect.ValueOf(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// Validate checks the settings every command needs.
// Channel-specific settings are checked by ValidateChannel.
func (c *Config) Validate() error {
	var errs []string

	if c.Channel != "" {
		if _, err := ParseChannel(c.Channel); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if c.HTTP.Timeout <= 0 {
		errs = append(errs, "HTTP_TIMEOUT must be positive")
	}
	if c.Output.Dir == "" {
		errs = append(errs, "OUTPUT_DIR must not be empty")
	}
	if c.Output.S3Enabled() && c.Output.S3Region == "" {
		errs = append(errs, "OUTPUT_S3_REGION is required when OUTPUT_S3_BUCKET is set")
	}

	if c.Receiver.Port <= 0 || c.Receiver.Port > 65535 {
		errs = append(errs, fmt.Sprintf("RECEIVER_PORT (%d) must be 1-65535", c.Receiver.Port))
	}
	if c.Receiver.FailEvery < 0 {
		errs = append(errs, "RECEIVER_FAIL_EVERY must be non-negative")
	}
	if c.Receiver.ShutdownTimeout <= 0 {
		errs = append(errs, "RECEIVER_SHUTDOWN_TIMEOUT must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return &ConfigurationError{Problems: errs}
	}
	return nil
}

// ParseChannel converts a channel name to core.Channel.
func ParseChannel(name string) (core.Channel, error) {
	switch core.Channel(strings.ToLower(strings.TrimSpace(name))) {
	case core.ChannelWebhook:
		return core.ChannelWebhook, nil
	case core.ChannelCAPI:
		return core.ChannelCAPI, nil
	default:
		return "", fmt.Errorf("REPLAY_CHANNEL (%q) must be one of: webhook, capi", name)
	}
}

// ValidateChannel checks the settings the selected channel needs.
func (c *Config) ValidateChannel(ch core.Channel) error {
	var errs []string

	switch ch {
	case core.ChannelWebhook:
		errs = append(errs, checkURL("WEBHOOK_URL", c.Webhook.URL)...)
		if c.Webhook.RequestsPerMinute <= 0 {
			errs = append(errs, fmt.Sprintf("WEBHOOK_REQUESTS_PER_MINUTE (%d) must be positive", c.Webhook.RequestsPerMinute))
		}

	case core.ChannelCAPI:
		errs = append(errs, checkURL("CAPI_URL", c.CAPI.URL)...)
		if c.CAPI.AccessToken == "" {
			errs = append(errs, "CAPI_ACCESS_TOKEN is required for the capi channel")
		}
		if c.CAPI.ConversionID == "" {
			errs = append(errs, "CAPI_CONVERSION_ID is required for the capi channel")
		}
		if c.CAPI.APIVersion == "" {
			errs = append(errs, "CAPI_API_VERSION must not be empty")
		}
		if c.CAPI.RequestsPerMinute <= 0 {
			errs = append(errs, fmt.Sprintf("CAPI_REQUESTS_PER_MINUTE (%d) must be positive", c.CAPI.RequestsPerMinute))
		}
		if c.CAPI.BatchSize <= 0 || c.CAPI.BatchSize > MaxBatchSize {
			errs = append(errs, fmt.Sprintf("CAPI_BATCH_SIZE (%d) must be 1-%d", c.CAPI.BatchSize, MaxBatchSize))
		}

	default:
		errs = append(errs, fmt.Sprintf("REPLAY_CHANNEL (%q) must be one of: webhook, capi", ch))
	}

	if len(errs) > 0 {
		return &ConfigurationError{Problems: errs}
	}
	return nil
}

func checkURL(name, raw string) []string {
	if raw == "" {
		return []string{name + " is required"}
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return []string{fmt.Sprintf("%s (%q) must be an http(s) URL", name, raw)}
	}
	return nil
}

// RunConfiguration validates the channel settings and returns the immutable
// run configuration the core consumes.
func (c *Config) RunConfiguration(ch core.Channel) (core.RunConfiguration, error) {
	if err := c.ValidateChannel(ch); err != nil {
		return core.RunConfiguration{}, err
	}

	rc := core.RunConfiguration{
		Channel:            ch,
		Timeout:            c.HTTP.Timeout,
		UseConversionTime:  c.Timestamps.UseConversionTime,
		ResetOldTimestamps: c.Timestamps.ResetOldTimestamps,
	}

	switch ch {
	case core.ChannelWebhook:
		rc.EndpointURL = c.Webhook.URL
		rc.RequestsPerMinute = c.Webhook.RequestsPerMinute
	case core.ChannelCAPI:
		rc.EndpointURL = c.CAPI.URL
		rc.RequestsPerMinute = c.CAPI.RequestsPerMinute
		rc.BatchSize = c.CAPI.BatchSize
		rc.ConversionID = c.CAPI.ConversionID
		rc.AccessToken = c.CAPI.AccessToken
		rc.APIVersion = c.CAPI.APIVersion
	}

	return rc, nil
}

// IsConfigurationError reports whether err is or wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// String returns a safe string representation of the config for logging.
// The access token is masked.
func (c *Config) String() string {
	token := ""
	if c.CAPI.AccessToken != "" {
		token = "[MASKED]"
	}

	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Channel: %q, ", c.Channel)
	fmt.Fprintf(&b, "Webhook: {URL: %q, RequestsPerMinute: %d}, ", c.Webhook.URL, c.Webhook.RequestsPerMinute)
	fmt.Fprintf(&b, "CAPI: {URL: %q, AccessToken: %s, ConversionID: %q, RequestsPerMinute: %d, BatchSize: %d}, ",
		c.CAPI.URL, token, c.CAPI.ConversionID, c.CAPI.RequestsPerMinute, c.CAPI.BatchSize)
	fmt.Fprintf(&b, "Timestamps: {UseConversionTime: %v, ResetOldTimestamps: %v}, ",
		c.Timestamps.UseConversionTime, c.Timestamps.ResetOldTimestamps)
	fmt.Fprintf(&b, "Output: {Dir: %q, S3Bucket: %q}, ", c.Output.Dir, c.Output.S3Bucket)
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format)
	b.WriteString("}")
	return b.String()
}
