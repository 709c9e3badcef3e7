package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")

	cfg := LoadConfig()

	assert.Equal(t, 8080, cfg.ServerPort)
	assert.Equal(t, StoreBackendPostgres, cfg.StoreBackend)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, time.Minute, cfg.Sweep.Interval)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "  padded  ")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("STORE_BACKEND", "Mongo")
	t.Setenv("TOKEN_TTL", "15m")
	t.Setenv("SWEEP_INTERVAL", "0s")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("DB_SSL", "true")

	cfg := LoadConfig()

	assert.Equal(t, "padded", cfg.Auth.JWTSecret)
	assert.Equal(t, 9090, cfg.ServerPort)
	assert.Equal(t, StoreBackendMongo, cfg.StoreBackend)
	assert.Equal(t, 15*time.Minute, cfg.Auth.TokenTTL)
	assert.Zero(t, cfg.Sweep.Interval)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.True(t, cfg.Database.UseSSL)
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadConfig(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("STORE_BACKEND", "sqlite")
	t.Setenv("EVENTS_BACKEND", "kafka")

	err := LoadConfig().Validate()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET is required")
	assert.Contains(t, err.Error(), `unknown STORE_BACKEND "sqlite"`)
	assert.Contains(t, err.Error(), `unknown EVENTS_BACKEND "kafka"`)
}

func TestValidateAcceptsMemoryObjectStore(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("OBJECT_STORE", "Memory")

	cfg := LoadConfig()

	assert.Equal(t, ObjectStoreMemory, cfg.ObjectStore)
	require.NoError(t, cfg.Validate())
}
