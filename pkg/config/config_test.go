package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/SodiumBank/Datum/pkg/config"
)

// TestLoad_Defaults verifies that Load() returns sensible defaults when
// no environment variables are set.
func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("STORE_DSN", "")
	t.Setenv("AUDIT_REPLAY", "")

	cfg := config.Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "sqlite", cfg.StoreDriver)
	assert.False(t, cfg.AuditReplay)
}

// TestLoad_Overrides verifies that environment variables correctly
// override default values.
func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("STORE_DSN", "postgres://datumplan@localhost:5432/datumplan?sslmode=disable")
	t.Setenv("AUDIT_REPLAY", "true")

	cfg := config.Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "postgres", cfg.StoreDriver)
	assert.Equal(t, "postgres://datumplan@localhost:5432/datumplan?sslmode=disable", cfg.StoreDSN)
	assert.True(t, cfg.AuditReplay)
}
