package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "data/proofpack.db", cfg.SQLitePath)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, "profiles", cfg.ProfilesDir)
	assert.Equal(t, 1000, cfg.LineageDepth)
	assert.Equal(t, 8, cfg.ResolveConcurrency)
	assert.False(t, cfg.TelemetryEnabled)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("DATABASE_URL", "postgres://proofpack@localhost:5432/proofpack?sslmode=disable")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("LINEAGE_MAX_DEPTH", "25")
	t.Setenv("OTEL_ENABLED", "true")

	cfg := Load()

	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "postgres://proofpack@localhost:5432/proofpack?sslmode=disable", cfg.DatabaseURL)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 25, cfg.LineageDepth)
	assert.True(t, cfg.TelemetryEnabled)
}

func TestLoad_BadIntFallsBack(t *testing.T) {
	t.Setenv("LINEAGE_MAX_DEPTH", "not-a-number")
	t.Setenv("RESOLVE_CONCURRENCY", "-3")

	cfg := Load()

	assert.Equal(t, 1000, cfg.LineageDepth)
	assert.Equal(t, 8, cfg.ResolveConcurrency)
}
