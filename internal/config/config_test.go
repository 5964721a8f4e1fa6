package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/conversion-replay/internal/core"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := LoadFile("")
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if cfg.Webhook.RequestsPerMinute != 60 {
		t.Errorf("Webhook.RequestsPerMinute = %d, want %d", cfg.Webhook.RequestsPerMinute, 60)
	}
	if cfg.CAPI.URL != "https://api.linkedin.com/rest/conversionEvents" {
		t.Errorf("CAPI.URL = %q", cfg.CAPI.URL)
	}
	if cfg.CAPI.APIVersion != "202409" {
		t.Errorf("CAPI.APIVersion = %q, want %q", cfg.CAPI.APIVersion, "202409")
	}
	if cfg.CAPI.BatchSize != 500 {
		t.Errorf("CAPI.BatchSize = %d, want %d", cfg.CAPI.BatchSize, 500)
	}
	if !cfg.Timestamps.UseConversionTime {
		t.Error("Timestamps.UseConversionTime = false, want true")
	}
	if cfg.Timestamps.ResetOldTimestamps {
		t.Error("Timestamps.ResetOldTimestamps = true, want false")
	}
	if cfg.HTTP.Timeout != 30*time.Second {
		t.Errorf("HTTP.Timeout = %v, want %v", cfg.HTTP.Timeout, 30*time.Second)
	}
	if cfg.Output.Dir != "output" {
		t.Errorf("Output.Dir = %q, want %q", cfg.Output.Dir, "output")
	}
	if cfg.Receiver.Port != 8089 {
		t.Errorf("Receiver.Port = %d, want %d", cfg.Receiver.Port, 8089)
	}
}

func TestLoad_OverrideDefaults(t *testing.T) {
	t.Setenv("WEBHOOK_REQUESTS_PER_MINUTE", "20")
	t.Setenv("RESET_OLD_TIMESTAMPS", "true")
	t.Setenv("HTTP_TIMEOUT", "5s")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadFile("")
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if cfg.Webhook.RequestsPerMinute != 20 {
		t.Errorf("Webhook.RequestsPerMinute = %d, want %d", cfg.Webhook.RequestsPerMinute, 20)
	}
	if !cfg.Timestamps.ResetOldTimestamps {
		t.Error("Timestamps.ResetOldTimestamps = false, want true")
	}
	if cfg.HTTP.Timeout != 5*time.Second {
		t.Errorf("HTTP.Timeout = %v, want 5s", cfg.HTTP.Timeout)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
}

func TestLoad_AltEnvVar(t *testing.T) {
	t.Setenv("LINKEDIN_ACCESS_TOKEN", "alt-token")

	cfg, err := LoadFile("")
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.CAPI.AccessToken != "alt-token" {
		t.Errorf("CAPI.AccessToken = %q, want %q", cfg.CAPI.AccessToken, "alt-token")
	}
}

func TestLoad_PrimaryEnvBeatsAlt(t *testing.T) {
	t.Setenv("CAPI_ACCESS_TOKEN", "primary")
	t.Setenv("LINKEDIN_ACCESS_TOKEN", "alt")

	cfg, err := LoadFile("")
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.CAPI.AccessToken != "primary" {
		t.Errorf("CAPI.AccessToken = %q, want %q", cfg.CAPI.AccessToken, "primary")
	}
}

func TestLoad_InvalidValue(t *testing.T) {
	t.Setenv("HTTP_TIMEOUT", "soon")

	_, err := LoadFile("")
	if err == nil {
		t.Fatal("LoadFile() error = nil, want error")
	}
	if !strings.Contains(err.Error(), "HTTP_TIMEOUT") {
		t.Errorf("error = %v, want it to name HTTP_TIMEOUT", err)
	}
}

// ----------------------------------------------------------------------------
// YAML file
// ----------------------------------------------------------------------------

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "replay.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_YAMLBetweenDefaultsAndEnv(t *testing.T) {
	path := writeYAML(t, `
channel: capi
capi:
  conversion_id: "999"
  batch_size: 100
  requests_per_minute: 10
timestamps:
  use_conversion_time: false
http:
  timeout: 12s
`)
	t.Setenv("CAPI_REQUESTS_PER_MINUTE", "30")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if cfg.Channel != "capi" {
		t.Errorf("Channel = %q, want capi", cfg.Channel)
	}
	if cfg.CAPI.ConversionID != "999" {
		t.Errorf("CAPI.ConversionID = %q, want from file", cfg.CAPI.ConversionID)
	}
	if cfg.CAPI.BatchSize != 100 {
		t.Errorf("CAPI.BatchSize = %d, want 100 from file", cfg.CAPI.BatchSize)
	}
	if cfg.CAPI.RequestsPerMinute != 30 {
		t.Errorf("CAPI.RequestsPerMinute = %d, want 30 from env", cfg.CAPI.RequestsPerMinute)
	}
	if cfg.Timestamps.UseConversionTime {
		t.Error("Timestamps.UseConversionTime = true, want false from file")
	}
	if cfg.HTTP.Timeout != 12*time.Second {
		t.Errorf("HTTP.Timeout = %v, want 12s from file", cfg.HTTP.Timeout)
	}
	if cfg.CAPI.APIVersion != "202409" {
		t.Errorf("CAPI.APIVersion = %q, want default kept", cfg.CAPI.APIVersion)
	}
}

func TestLoad_FileFromEnv(t *testing.T) {
	path := writeYAML(t, "webhook:\n  url: http://localhost:8089/webhook\n")
	t.Setenv(FileEnv, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Webhook.URL != "http://localhost:8089/webhook" {
		t.Errorf("Webhook.URL = %q", cfg.Webhook.URL)
	}
}

func TestLoad_BadYAML(t *testing.T) {
	path := writeYAML(t, "capi: [not, a, map")
	if _, err := LoadFile(path); err == nil {
		t.Error("LoadFile() error = nil, want YAML error")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "none.yaml")); err == nil {
		t.Error("LoadFile() error = nil, want error")
	}
}

// ----------------------------------------------------------------------------
// Validation
// ----------------------------------------------------------------------------

func TestValidate_CollectsAllProblems(t *testing.T) {
	t.Setenv("LOG_LEVEL", "loud")
	t.Setenv("RECEIVER_PORT", "70000")
	t.Setenv("REPLAY_CHANNEL", "fax")

	_, err := LoadFile("")
	if err == nil {
		t.Fatal("LoadFile() error = nil, want error")
	}

	var ce *ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("error type = %T, want *ConfigurationError", err)
	}
	if len(ce.Problems) != 3 {
		t.Errorf("len(Problems) = %d, want 3: %v", len(ce.Problems), ce.Problems)
	}
	if !strings.Contains(err.Error(), "validation failed:\n  - ") {
		t.Errorf("error = %q, want the validation list format", err.Error())
	}
	if !IsConfigurationError(err) {
		t.Error("IsConfigurationError() = false")
	}
}

func TestValidateChannel(t *testing.T) {
	base := func() *Config {
		cfg, err := LoadFile("")
		if err != nil {
			t.Fatalf("LoadFile() error = %v", err)
		}
		return cfg
	}

	tests := []struct {
		name    string
		channel core.Channel
		mutate  func(*Config)
		wantErr []string
	}{
		{
			name:    "webhook ok",
			channel: core.ChannelWebhook,
			mutate:  func(c *Config) { c.Webhook.URL = "https://hooks.example.com/in" },
		},
		{
			name:    "webhook missing url",
			channel: core.ChannelWebhook,
			wantErr: []string{"WEBHOOK_URL is required"},
		},
		{
			name:    "webhook bad url and rate",
			channel: core.ChannelWebhook,
			mutate: func(c *Config) {
				c.Webhook.URL = "ftp://x"
				c.Webhook.RequestsPerMinute = 0
			},
			wantErr: []string{"WEBHOOK_URL", "WEBHOOK_REQUESTS_PER_MINUTE"},
		},
		{
			name:    "capi ok",
			channel: core.ChannelCAPI,
			mutate: func(c *Config) {
				c.CAPI.AccessToken = "tok"
				c.CAPI.ConversionID = "1"
			},
		},
		{
			name:    "capi missing credentials",
			channel: core.ChannelCAPI,
			wantErr: []string{"CAPI_ACCESS_TOKEN", "CAPI_CONVERSION_ID"},
		},
		{
			name:    "capi batch too large",
			channel: core.ChannelCAPI,
			mutate: func(c *Config) {
				c.CAPI.AccessToken = "tok"
				c.CAPI.ConversionID = "1"
				c.CAPI.BatchSize = MaxBatchSize + 1
			},
			wantErr: []string{"CAPI_BATCH_SIZE"},
		},
		{
			name:    "unknown channel",
			channel: core.Channel("sms"),
			wantErr: []string{"REPLAY_CHANNEL"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			if tt.mutate != nil {
				tt.mutate(cfg)
			}
			err := cfg.ValidateChannel(tt.channel)
			if len(tt.wantErr) == 0 {
				if err != nil {
					t.Fatalf("ValidateChannel() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatal("ValidateChannel() error = nil, want error")
			}
			for _, want := range tt.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error = %q, want it to mention %q", err.Error(), want)
				}
			}
		})
	}
}

func TestRunConfiguration(t *testing.T) {
	cfg, err := LoadFile("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.CAPI.AccessToken = "tok"
	cfg.CAPI.ConversionID = "42"
	cfg.CAPI.BatchSize = 250
	cfg.Timestamps.ResetOldTimestamps = true

	rc, err := cfg.RunConfiguration(core.ChannelCAPI)
	if err != nil {
		t.Fatalf("RunConfiguration() error = %v", err)
	}

	if rc.Channel != core.ChannelCAPI || rc.BatchSize != 250 || rc.AccessToken != "tok" {
		t.Errorf("RunConfiguration() = %+v", rc)
	}
	if rc.ConversionURN() != "urn:lla:llaPartnerConversion:42" {
		t.Errorf("ConversionURN() = %q", rc.ConversionURN())
	}
	if !rc.ResetOldTimestamps || !rc.UseConversionTime {
		t.Errorf("timestamp flags not carried: %+v", rc)
	}
	if rc.Interval() != time.Second {
		t.Errorf("Interval() = %v, want 1s at 60 rpm", rc.Interval())
	}

	if _, err := cfg.RunConfiguration(core.ChannelWebhook); !IsConfigurationError(err) {
		t.Errorf("webhook without URL: error = %v, want ConfigurationError", err)
	}
}

func TestParseChannel(t *testing.T) {
	tests := []struct {
		in      string
		want    core.Channel
		wantErr bool
	}{
		{"webhook", core.ChannelWebhook, false},
		{" CAPI ", core.ChannelCAPI, false},
		{"linkedin", "", true},
	}
	for _, tt := range tests {
		got, err := ParseChannel(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseChannel(%q) = (%q, %v), want (%q, wantErr %v)", tt.in, got, err, tt.want, tt.wantErr)
		}
	}
}

func TestReceiverAddr(t *testing.T) {
	tests := []struct {
		host string
		port int
		want string
	}{
		{"", 8089, ":8089"},
		{"127.0.0.1", 9000, "127.0.0.1:9000"},
	}
	for _, tt := range tests {
		c := ReceiverConfig{Host: tt.host, Port: tt.port}
		if got := c.Addr(); got != tt.want {
			t.Errorf("Addr() = %q, want %q", got, tt.want)
		}
	}
}

func TestConfigString_MasksToken(t *testing.T) {
	cfg := &Config{CAPI: CAPIConfig{AccessToken: "super-secret"}}
	s := cfg.String()
	if strings.Contains(s, "super-secret") {
		t.Error("String() should not contain the access token")
	}
	if !strings.Contains(s, "[MASKED]") {
		t.Error("String() should contain [MASKED]")
	}
}
