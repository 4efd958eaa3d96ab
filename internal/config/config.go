package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr string     `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`

	// DBPath is the activity journal. ":memory:" keeps it for the process
	// lifetime only.
	DBPath string `env:"DB_PATH" envDefault:"data/activity.db"`

	// RedisURL enables the presence tracker when set.
	RedisURL    string        `env:"REDIS_URL"`
	PresenceTTL time.Duration `env:"PRESENCE_TTL" envDefault:"6h"`

	WSWriteTimeout  time.Duration `env:"WS_WRITE_TIMEOUT" envDefault:"10s"`
	WSReadLimit     int64         `env:"WS_READ_LIMIT" envDefault:"65536"`
	WSOriginPattern []string      `env:"WS_ALLOWED_ORIGINS" envSeparator:","`
}

// Load reads an optional .env file in the working directory, then parses the
// environment. Variables already set take precedence over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	return &cfg, nil
}
