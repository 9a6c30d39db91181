package server

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
)

// Config holds the process settings read from the environment.
type Config struct {
	Port            int
	Env             string
	DatabaseURL     string // empty keeps rooms in memory
	RedisAddr       string // empty keeps notifications in process
	RedisPassword   string
	RedisDB         int
	JWTSecret       string
	SessionTTL      time.Duration
	DealMaxAttempts int
	AllowedOrigins  []string
	CleanupSchedule string
	RoomRetention   time.Duration
	PassRateLimit   int
	LogLevel        string
	LogFormat       string
}

func LoadConfig() (Config, error) {
	return loadConfig(os.Getenv)
}

func loadConfig(getenv func(string) string) (Config, error) {
	cfg := Config{
		Env:             stringOr(getenv("APP_ENV"), "local"),
		DatabaseURL:     getenv("DATABASE_URL"),
		RedisAddr:       getenv("REDIS_ADDR"),
		RedisPassword:   getenv("REDIS_PASSWORD"),
		JWTSecret:       getenv("JWT_SECRET"),
		CleanupSchedule: stringOr(getenv("CLEANUP_SCHEDULE"), "@hourly"),
		LogLevel:        stringOr(getenv("LOG_LEVEL"), "info"),
		LogFormat:       stringOr(getenv("LOG_FORMAT"), "text"),
		AllowedOrigins:  splitList(stringOr(getenv("ALLOWED_ORIGINS"), "*")),
	}

	var err error
	if cfg.Port, err = intOr(getenv, "PORT", 8080); err != nil {
		return Config{}, err
	}
	if cfg.RedisDB, err = intOr(getenv, "REDIS_DB", 0); err != nil {
		return Config{}, err
	}
	if cfg.DealMaxAttempts, err = intOr(getenv, "DEAL_MAX_ATTEMPTS", 10000); err != nil {
		return Config{}, err
	}
	if cfg.PassRateLimit, err = intOr(getenv, "PASS_RATE_LIMIT", 10); err != nil {
		return Config{}, err
	}
	if cfg.SessionTTL, err = durationOr(getenv, "SESSION_TTL", 24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.RoomRetention, err = durationOr(getenv, "ROOM_RETENTION", 48*time.Hour); err != nil {
		return Config{}, err
	}

	if cfg.JWTSecret == "" {
		if cfg.Env == "production" {
			return Config{}, fmt.Errorf("JWT_SECRET is required in production")
		}
		cfg.JWTSecret = "local-development-secret"
	}
	if cfg.PassRateLimit <= 0 {
		return Config{}, fmt.Errorf("PASS_RATE_LIMIT must be positive, got %d", cfg.PassRateLimit)
	}
	return cfg, nil
}

func stringOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func intOr(getenv func(string) string, key string, fallback int) (int, error) {
	v := getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func durationOr(getenv func(string) string, key string, fallback time.Duration) (time.Duration, error) {
	v := getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
