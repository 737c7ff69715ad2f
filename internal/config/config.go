// Package config loads application configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds everything the server needs to start. Defaults target local
// development; production overrides via environment variables.
//
// REDIS_URL is optional: when empty, sessions fall back to the in-memory
// store (fine for a single dev process, useless behind a load balancer).
type Config struct {
	Port        int    `env:"PORT" envDefault:"8080"`
	DBPath      string `env:"DB_PATH" envDefault:"data/guildhub.db"`
	TemplateDir string `env:"TEMPLATE_DIR" envDefault:"web/templates"`
	RedisURL    string `env:"REDIS_URL"`

	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"168h"`

	DiscordClientID     string `env:"DISCORD_CLIENT_ID"`
	DiscordClientSecret string `env:"DISCORD_CLIENT_SECRET"`
	DiscordCallbackURL  string `env:"DISCORD_CALLBACK_URL"`
}

// Load parses the environment into a Config. The Discord callback URL
// defaults to localhost on the configured port when unset.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing environment: %w", err)
	}

	if cfg.DiscordCallbackURL == "" {
		cfg.DiscordCallbackURL = fmt.Sprintf("http://localhost:%d/auth/discord/callback", cfg.Port)
	}

	return cfg, nil
}
