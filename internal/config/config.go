// Package config loads application settings from environment variables with
// defaults. cmd binaries call godotenv.Load first so a local .env file works
// the same as real environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all settings shared by the server and the worker.
type Config struct {
	// HTTP server
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Postgres
	DBUser string
	DBPass string
	DBHost string
	DBPort string
	DBName string

	// Job transport. Empty AMQPURL means the in-memory queue (local dev).
	AMQPURL string

	// Realtime notification fan-out
	RedisURL  string
	RedisPass string

	// Messaging provider
	ProviderBaseURL string
	SendTimeout     time.Duration

	// Agents that pick up conversations nobody is assigned to yet.
	UnassignedAgentPool []string

	// Worker loops
	SweepInterval    time.Duration
	SchedulePollEach time.Duration

	// Logging
	LogLevel  string
	LogPretty bool
}

// Load reads configuration from the environment and validates required keys.
func Load() (Config, error) {
	cfg := Config{
		Port:         getenv("PORT", "8080"),
		ReadTimeout:  getdur("READ_TIMEOUT", 15*time.Second),
		WriteTimeout: getdur("WRITE_TIMEOUT", 20*time.Second),

		DBUser: getenv("DB_USER", "postgres"),
		DBPass: getenv("DB_PASSWORD", ""),
		DBHost: getenv("DB_HOST", "localhost"),
		DBPort: getenv("DB_PORT", "5432"),
		DBName: os.Getenv("DB_NAME"),

		AMQPURL: os.Getenv("AMQP_URL"),

		RedisURL:  getenv("REDIS_URL", "localhost:6379"),
		RedisPass: os.Getenv("REDIS_PASS"),

		ProviderBaseURL: getenv("PROVIDER_BASE_URL", "https://graph.provider.example/v1"),
		SendTimeout:     getdur("SEND_TIMEOUT", 10*time.Second),

		UnassignedAgentPool: splitCSV(getenv("UNASSIGNED_AGENT_POOL", "support")),

		SweepInterval:    getdur("SWEEP_INTERVAL", 30*time.Second),
		SchedulePollEach: getdur("SCHEDULE_POLL_INTERVAL", time.Minute),

		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),
	}

	if cfg.DBName == "" {
		return cfg, fmt.Errorf("config: DB_NAME is required")
	}
	if cfg.SendTimeout <= 0 {
		return cfg, fmt.Errorf("config: SEND_TIMEOUT must be positive")
	}
	return cfg, nil
}

// MustLoad panics on invalid configuration; used from main.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// DSN builds the postgres connection string.
func (c Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DBUser, c.DBPass, c.DBHost, c.DBPort, c.DBName)
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getdur(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getbool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
