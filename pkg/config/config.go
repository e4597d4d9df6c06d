// Package config loads exporter configuration from the environment and from
// per-deployment profile files.
package config

import (
	"os"
	"strconv"
)

// Config holds process-level configuration.
type Config struct {
	LogLevel    string
	DatabaseURL string // postgres URL; empty selects the SQLite store
	SQLitePath  string
	RedisAddr   string // optional evidence cache
	ProfilesDir string

	LineageDepth       int
	ResolveConcurrency int

	TelemetryEnabled bool
	OTLPEndpoint     string
}

// Load reads configuration from environment variables, applying defaults.
func Load() *Config {
	cfg := &Config{
		LogLevel:           envOr("LOG_LEVEL", "INFO"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		SQLitePath:         envOr("SQLITE_PATH", "data/proofpack.db"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		ProfilesDir:        envOr("PROFILES_DIR", "profiles"),
		LineageDepth:       envInt("LINEAGE_MAX_DEPTH", 1000),
		ResolveConcurrency: envInt("RESOLVE_CONCURRENCY", 8),
		TelemetryEnabled:   os.Getenv("OTEL_ENABLED") == "true",
		OTLPEndpoint:       envOr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
