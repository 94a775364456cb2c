package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	HTTPAddr    string     `env:"HTTP_ADDR" envDefault:":8080"`
	DBPath      string     `env:"DB_PATH" envDefault:"data/mafiabot.db"`
	LogLevel    slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	RedisURL    string     `env:"REDIS_URL"`
	ScenarioDir string     `env:"SCENARIO_DIR"`

	// MinPlayers is checked before a game can start.
	MinPlayers   int           `env:"MIN_PLAYERS" envDefault:"4"`
	VoteDuration time.Duration `env:"VOTE_DURATION" envDefault:"60s"`

	CountdownCoarse    time.Duration `env:"COUNTDOWN_COARSE" envDefault:"10s"`
	CountdownFine      time.Duration `env:"COUNTDOWN_FINE" envDefault:"1s"`
	CountdownThreshold time.Duration `env:"COUNTDOWN_THRESHOLD" envDefault:"10s"`

	OTELEndpoint string `env:"OTEL_ENDPOINT"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c Config) validate() error {
	if c.MinPlayers < 1 {
		return fmt.Errorf("MIN_PLAYERS must be at least 1, got %d", c.MinPlayers)
	}
	if c.VoteDuration <= 0 {
		return fmt.Errorf("VOTE_DURATION must be positive, got %s", c.VoteDuration)
	}
	return nil
}
