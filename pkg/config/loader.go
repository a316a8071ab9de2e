// Package config loads process configuration from the environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// Defaulter is implemented by configs whose defaults depend on other
// fields, such as a URL built from the listen port. ApplyDefaults runs after
// the environment is parsed and must leave explicitly set fields alone.
type Defaulter interface {
	ApplyDefaults()
}

// Load parses environment variables into cfg, which uses `env` tags, and
// then applies derived defaults when cfg is a Defaulter.
func Load(cfg any) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if d, ok := cfg.(Defaulter); ok {
		d.ApplyDefaults()
	}
	return nil
}
