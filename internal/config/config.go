package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL           string
	JWTSecret             string
	Port                  string
	Timezone              string
	LogLevel              string
	OrderWriteConcurrency int
	SessionIdleTTL        time.Duration
}

// Load reads an optional .env file and then the process environment.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		DatabaseURL:           getEnv("DATABASE_URL", "steady.db"),
		JWTSecret:             getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		Port:                  getEnv("PORT", "8080"),
		Timezone:              getEnv("TIMEZONE", "UTC"),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		OrderWriteConcurrency: getEnvInt("ORDER_WRITE_CONCURRENCY", 8),
		SessionIdleTTL:        getEnvDuration("SESSION_IDLE_TTL", 30*time.Minute),
	}
}

// Location resolves Timezone, falling back to UTC for unknown zone names.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
