// Package config reads server settings from the environment, after loading an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/DoyleJ11/bingo-backend/internal/engine"
)

type Config struct {
	Addr string `env:"BINGO_ADDR" envDefault:":8080"`
	// DatabaseURL selects the PostgreSQL store. Empty keeps sessions in memory.
	DatabaseURL string `env:"BINGO_DATABASE_URL"`

	JWTSecret string `env:"BINGO_JWT_SECRET,required,notEmpty"`
	JWTIssuer string `env:"BINGO_JWT_ISSUER"`

	InvitationTTL  time.Duration `env:"BINGO_INVITATION_TTL"  envDefault:"24h"`
	NumberMin      int           `env:"BINGO_NUMBER_MIN"      envDefault:"1"`
	NumberMax      int           `env:"BINGO_NUMBER_MAX"      envDefault:"75"`
	DefaultPattern string        `env:"BINGO_DEFAULT_PATTERN" envDefault:"lines"`
	RequiredLines  int           `env:"BINGO_REQUIRED_LINES"  envDefault:"5"`

	AllowedOrigins  []string      `env:"BINGO_ALLOWED_ORIGINS"  envSeparator:","`
	OutboxSize      int           `env:"BINGO_OUTBOX_SIZE"      envDefault:"32"`
	PingInterval    time.Duration `env:"BINGO_PING_INTERVAL"    envDefault:"25s"`
	ActionTimeout   time.Duration `env:"BINGO_ACTION_TIMEOUT"   envDefault:"5s"`
	ShutdownTimeout time.Duration `env:"BINGO_SHUTDOWN_TIMEOUT" envDefault:"10s"`

	LogLevel       string `env:"BINGO_LOG_LEVEL"       envDefault:"info"`
	LogDevelopment bool   `env:"BINGO_LOG_DEVELOPMENT"`
}

// Load reads the given .env files (default ".env") if they exist, then parses
// the process environment. Variables already set win over the files.
func Load(dotenvFiles ...string) (Config, error) {
	if err := godotenv.Load(dotenvFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load dotenv: %w", err)
	}
	return Parse(nil)
}

// Parse reads configuration from environ, or from the process environment
// when environ is nil.
func Parse(environ map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	pattern, err := engine.ParsePattern(cfg.DefaultPattern)
	if err != nil {
		return Config{}, fmt.Errorf("invalid game defaults: %w", err)
	}
	cfg.DefaultPattern = string(pattern)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Rules are the defaults every new game starts from.
func (c Config) Rules() engine.Rules {
	return engine.Rules{
		Pattern:       engine.Pattern(c.DefaultPattern),
		RequiredLines: c.RequiredLines,
		Numbers:       engine.NumberRange{Min: c.NumberMin, Max: c.NumberMax},
	}
}

func (c Config) Validate() error {
	if err := c.Rules().Validate(); err != nil {
		return fmt.Errorf("invalid game defaults: %w", err)
	}
	if c.InvitationTTL <= 0 {
		return errors.New("BINGO_INVITATION_TTL must be positive")
	}
	if c.OutboxSize <= 0 {
		return errors.New("BINGO_OUTBOX_SIZE must be positive")
	}
	return nil
}
