package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoadDefaults(t *testing.T) {
	for key := range defaults {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := Load(noEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, DriverSQLite, cfg.DBDriver)
	assert.Equal(t, "slotswap.db", cfg.SQLitePath)
	assert.Equal(t, 30*24*time.Hour, cfg.RetentionWindow)
	assert.Equal(t, 72*time.Hour, cfg.ExpiringSoonHorizon)
	assert.Equal(t, 7*24*time.Hour, cfg.PendingRequestTTL)
	assert.Equal(t, 10.0, cfg.RateLimitRPS)
	assert.Equal(t, 20, cfg.RateLimitBurst)
	assert.False(t, cfg.IsProduction())
}

func TestLoadFromEnvAndFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("SWEEP_INTERVAL=15m\nJWT_SECRET=from-file\n"), 0o600))

	t.Setenv("DB_DRIVER", "Postgres")
	t.Setenv("DB_DSN", "postgres://localhost/slotswap")
	t.Setenv("RETENTION_WINDOW", "48h")
	t.Setenv("PENDING_REQUEST_TTL", "0")
	// godotenv не перетирает уже заданные переменные
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("SWEEP_INTERVAL", "")
	os.Unsetenv("SWEEP_INTERVAL")

	cfg, err := Load(envFile)
	require.NoError(t, err)
	t.Cleanup(func() { os.Unsetenv("SWEEP_INTERVAL") })

	assert.Equal(t, DriverPostgres, cfg.DBDriver)
	assert.Equal(t, 48*time.Hour, cfg.RetentionWindow)
	assert.Equal(t, time.Duration(0), cfg.PendingRequestTTL)
	assert.Equal(t, 15*time.Minute, cfg.SweepInterval)
	assert.Equal(t, "from-env", cfg.JWTSecret)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			DBDriver:            DriverSQLite,
			SQLitePath:          "x.db",
			RetentionWindow:     time.Hour,
			MaxSlotDuration:     time.Hour,
			ExpiringSoonHorizon: time.Hour,
			SweepInterval:       time.Minute,
		}
	}

	cfg := valid()
	require.NoError(t, cfg.Validate())

	cfg = valid()
	cfg.DBDriver = "mysql"
	assert.ErrorContains(t, cfg.Validate(), "unknown DB_DRIVER")

	cfg = valid()
	cfg.DBDriver = DriverPostgres
	assert.ErrorContains(t, cfg.Validate(), "DB_DSN")

	cfg = valid()
	cfg.RetentionWindow = 0
	cfg.PendingRequestTTL = -time.Second
	err := cfg.Validate()
	assert.ErrorContains(t, err, "RETENTION_WINDOW")
	assert.ErrorContains(t, err, "PENDING_REQUEST_TTL")
}
