package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		HTTPPort:             8080,
		BMSTokenURL:          "https://in.bookmyshow.com/api/le-diy/auth/token",
		BMSProfileURL:        "https://in.bookmyshow.com/api/le-diy/user/profile",
		RelayBaseURL:         "http://localhost:8080/relay",
		LumaAPIBaseURL:       "https://api2.luma.com",
		SessionTTL:           15 * time.Minute,
		SessionSweepInterval: time.Minute,
		RateLimitRPS:         10,
		RateLimitBurst:       20,
		OTELSampleRate:       1,
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, "DIY", cfg.BMSAppCode)
	assert.False(t, cfg.PprofEnabled)
	assert.Equal(t, []string{"127.0.0.0/8", "::1/128"}, cfg.PprofAllowedCIDRs)
	assert.Equal(t, "http://localhost:8080/relay", cfg.RelayBaseURL)
	assert.Equal(t, 15*time.Minute, cfg.SessionTTL)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.False(t, cfg.OTELEnabled)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("LUMA_TIMEOUT", "5s")
	t.Setenv("RATE_LIMIT_RPS", "2.5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.HTTPPort)
	assert.Equal(t, "http://localhost:9090/relay", cfg.RelayBaseURL)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 5*time.Second, cfg.LumaTimeout)
	assert.Equal(t, 2.5, cfg.RateLimitRPS)
}

func TestLoad_RelayBaseURLOverride(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("RELAY_BASE_URL", "https://relay.example.com/relay")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://relay.example.com/relay", cfg.RelayBaseURL)
}

func TestLoad_InvalidPort(t *testing.T) {
	t.Setenv("HTTP_PORT", "70000")

	_, err := Load()
	assert.ErrorContains(t, err, "invalid HTTP port")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"relative relay url", func(c *Config) { c.RelayBaseURL = "/relay" }, "RELAY_BASE_URL"},
		{"bad luma url", func(c *Config) { c.LumaAPIBaseURL = "://nope" }, "LUMA_API_BASE_URL"},
		{"zero rps", func(c *Config) { c.RateLimitRPS = 0 }, "invalid rate limit"},
		{"zero burst", func(c *Config) { c.RateLimitBurst = 0 }, "invalid rate limit"},
		{"zero ttl", func(c *Config) { c.SessionTTL = 0 }, "session TTL"},
		{"sample rate", func(c *Config) { c.OTELSampleRate = 1.5 }, "OTEL_SAMPLE_RATE"},
		{"bad pprof cidr", func(c *Config) {
			c.PprofEnabled = true
			c.PprofAllowedCIDRs = []string{"10.0.0.0/33"}
		}, "PPROF_ALLOWED_CIDRS"},
		{"bad pprof cidr while disabled", func(c *Config) { c.PprofAllowedCIDRs = []string{"x"} }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
