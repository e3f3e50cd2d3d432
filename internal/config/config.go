// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	engine "github.com/phaseten/phaseten/engine"
)

// Config holds the process configuration loaded from the environment.
type Config struct {
	Addr           string   // listen address for the websocket server
	AllowedOrigins []string // extra websocket origin patterns, e.g. "*.example.com"

	JWTSecret string
	TokenTTL  time.Duration

	DatabaseURL string // empty disables result persistence

	RedisAddr     string // empty disables the action historian
	RedisPassword string
	RedisDB       int

	LogLevel  string
	LogFormat string

	TurnLimit            time.Duration
	TimeoutTick          time.Duration
	HandSize             int
	MaxPlayers           int
	TimeoutDiscardsDrawn bool
}

// Load reads a .env file if one exists and then the process environment.
// Missing variables fall back to defaults; malformed ones are errors.
func Load() (Config, error) {
	_ = godotenv.Load()
	return fromEnv(os.LookupEnv)
}

func fromEnv(lookup func(string) (string, bool)) (Config, error) {
	defaults := engine.DefaultHouseRules()
	cfg := Config{
		Addr:          str(lookup, "PHASETEN_ADDR", ":8080"),
		JWTSecret:     str(lookup, "PHASETEN_JWT_SECRET", ""),
		DatabaseURL:   str(lookup, "DATABASE_URL", ""),
		RedisAddr:     str(lookup, "REDIS_ADDR", ""),
		RedisPassword: str(lookup, "REDIS_PASSWORD", ""),
		LogLevel:      str(lookup, "LOG_LEVEL", "info"),
		LogFormat:     str(lookup, "LOG_FORMAT", "text"),
	}
	cfg.AllowedOrigins = list(lookup, "PHASETEN_ALLOWED_ORIGINS")

	var err error
	if cfg.TokenTTL, err = duration(lookup, "PHASETEN_TOKEN_TTL", 30*24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.TurnLimit, err = duration(lookup, "PHASETEN_TURN_LIMIT", defaults.TurnLimit); err != nil {
		return Config{}, err
	}
	if cfg.TimeoutTick, err = duration(lookup, "PHASETEN_TICK", 250*time.Millisecond); err != nil {
		return Config{}, err
	}
	if cfg.RedisDB, err = integer(lookup, "REDIS_DB", 0); err != nil {
		return Config{}, err
	}
	if cfg.HandSize, err = integer(lookup, "PHASETEN_HAND_SIZE", defaults.HandSize); err != nil {
		return Config{}, err
	}
	if cfg.MaxPlayers, err = integer(lookup, "PHASETEN_MAX_PLAYERS", defaults.MaxPlayers); err != nil {
		return Config{}, err
	}
	if cfg.TimeoutDiscardsDrawn, err = boolean(lookup, "PHASETEN_TIMEOUT_DISCARDS_DRAWN", false); err != nil {
		return Config{}, err
	}

	if cfg.TimeoutTick <= 0 {
		return Config{}, fmt.Errorf("PHASETEN_TICK must be positive, got %s", cfg.TimeoutTick)
	}
	if cfg.TurnLimit < 0 {
		return Config{}, fmt.Errorf("PHASETEN_TURN_LIMIT must not be negative, got %s", cfg.TurnLimit)
	}
	if cfg.HandSize < 1 {
		return Config{}, fmt.Errorf("PHASETEN_HAND_SIZE must be positive, got %d", cfg.HandSize)
	}
	if cfg.MaxPlayers < 2 {
		return Config{}, fmt.Errorf("PHASETEN_MAX_PLAYERS must be at least 2, got %d", cfg.MaxPlayers)
	}
	return cfg, nil
}

// HouseRules returns the default rules with the configured overrides applied.
func (c Config) HouseRules() engine.HouseRules {
	r := engine.DefaultHouseRules()
	r.HandSize = c.HandSize
	r.MaxPlayers = c.MaxPlayers
	r.TurnLimit = c.TurnLimit
	r.TimeoutDiscardsDrawn = c.TimeoutDiscardsDrawn
	return r
}

func str(lookup func(string) (string, bool), key, def string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return def
}

// list splits a comma separated value, dropping empty entries.
func list(lookup func(string) (string, bool), key string) []string {
	v, _ := lookup(key)
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func duration(lookup func(string) (string, bool), key string, def time.Duration) (time.Duration, error) {
	v, ok := lookup(key)
	if !ok || v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func integer(lookup func(string) (string, bool), key string, def int) (int, error) {
	v, ok := lookup(key)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func boolean(lookup func(string) (string, bool), key string, def bool) (bool, error) {
	v, ok := lookup(key)
	if !ok || v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}
