package config

import (
	"fmt"
	"net/url"
	"time"

	pkgconfig "github.com/taar-app/ticketsync/pkg/config"
	"github.com/taar-app/ticketsync/pkg/middleware"
)

// Config holds all configuration for the ticketsync service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	HTTPPort    int    `env:"HTTP_PORT" envDefault:"8080"`

	// BookMyShow upstream behind the relay endpoints.
	BMSTokenURL   string        `env:"BMS_TOKEN_URL" envDefault:"https://in.bookmyshow.com/api/le-diy/auth/token"`
	BMSProfileURL string        `env:"BMS_PROFILE_URL" envDefault:"https://in.bookmyshow.com/api/le-diy/user/profile"`
	BMSAppCode    string        `env:"BMS_APP_CODE" envDefault:"DIY"`
	BMSTimeout    time.Duration `env:"BMS_TIMEOUT" envDefault:"15s"`

	// RelayBaseURL is where the BookMyShow flow reaches the relay
	// endpoints. When unset this process serves them itself on HTTPPort.
	RelayBaseURL string `env:"RELAY_BASE_URL"`

	// Luma API
	LumaAPIBaseURL    string        `env:"LUMA_API_BASE_URL" envDefault:"https://api2.luma.com"`
	LumaClientVersion string        `env:"LUMA_CLIENT_VERSION" envDefault:"0901ea7d5bb0c105e294cd3c8b5458c2fc1618b5"`
	LumaTimeout       time.Duration `env:"LUMA_TIMEOUT" envDefault:"15s"`

	// Sign-in sessions
	SessionTTL           time.Duration `env:"SESSION_TTL" envDefault:"15m"`
	SessionSweepInterval time.Duration `env:"SESSION_SWEEP_INTERVAL" envDefault:"1m"`
	SessionMax           int           `env:"SESSION_MAX" envDefault:"10000"`

	// Kafka. Leave empty to disable account_linked events.
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`

	// Rate limiting
	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"10"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"20"`

	// CORS for the session API
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// Runtime profiling under /debug/pprof, reachable from PPROF_ALLOWED_CIDRS.
	PprofEnabled      bool     `env:"PPROF_ENABLED" envDefault:"false"`
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"127.0.0.0/8,::1/128" envSeparator:","`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load ticketsync config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills the fields whose defaults depend on other fields.
func (c *Config) ApplyDefaults() {
	if c.RelayBaseURL == "" {
		c.RelayBaseURL = fmt.Sprintf("http://localhost:%d/relay", c.HTTPPort)
	}
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}

	urls := map[string]string{
		"BMS_TOKEN_URL":     c.BMSTokenURL,
		"BMS_PROFILE_URL":   c.BMSProfileURL,
		"RELAY_BASE_URL":    c.RelayBaseURL,
		"LUMA_API_BASE_URL": c.LumaAPIBaseURL,
	}
	for name, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid %s: %q", name, raw)
		}
	}

	if c.RateLimitRPS <= 0 || c.RateLimitBurst < 1 {
		return fmt.Errorf("invalid rate limit: %v rps, burst %d", c.RateLimitRPS, c.RateLimitBurst)
	}
	if c.SessionTTL <= 0 || c.SessionSweepInterval <= 0 {
		return fmt.Errorf("session TTL and sweep interval must be positive")
	}
	if c.PprofEnabled {
		if _, err := middleware.ParsePrefixes(c.PprofAllowedCIDRs); err != nil {
			return fmt.Errorf("invalid PPROF_ALLOWED_CIDRS: %w", err)
		}
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1 {
		return fmt.Errorf("invalid OTEL_SAMPLE_RATE: %v", c.OTELSampleRate)
	}
	return nil
}
