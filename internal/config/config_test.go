package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cheertaboi/qris-discount-service/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, config.StoreMemory, cfg.Store)
	assert.Equal(t, 15*time.Minute, cfg.ReservationTTL)
	assert.Equal(t, 24*time.Hour, cfg.Retention)
	assert.Equal(t, 5, cfg.SaveRetries)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Jakarta", loc.String())
}

func TestLoadFromEnvFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(file, []byte(
		"PROMO_STORE=redis\nPROMO_RESERVATION_TTL=2m\nPROMO_PEPPER=abc\nPROMO_APPLY_BURST=3\n"), 0o600))
	t.Cleanup(func() {
		for _, key := range []string{"PROMO_STORE", "PROMO_RESERVATION_TTL", "PROMO_PEPPER", "PROMO_APPLY_BURST"} {
			_ = os.Unsetenv(key)
		}
	})

	cfg, err := config.Load(file)
	require.NoError(t, err)
	assert.Equal(t, config.StoreRedis, cfg.Store)
	assert.Equal(t, 2*time.Minute, cfg.ReservationTTL)
	assert.Equal(t, "abc", cfg.Pepper)
	assert.Equal(t, 3, cfg.ApplyBurst)
}

func TestValidate(t *testing.T) {
	t.Setenv("PROMO_STORE", "content")
	_, err := config.Load(filepath.Join(t.TempDir(), "none.env"))
	assert.True(t, config.Error.Has(err))

	t.Setenv("PROMO_STORE", "floppy")
	_, err = config.Load(filepath.Join(t.TempDir(), "none.env"))
	assert.True(t, config.Error.Has(err))

	t.Setenv("PROMO_STORE", "memory")
	t.Setenv("PROMO_TIMEZONE", "Mars/Olympus")
	_, err = config.Load(filepath.Join(t.TempDir(), "none.env"))
	assert.True(t, config.Error.Has(err))

	t.Setenv("PROMO_TIMEZONE", "Asia/Jakarta")
	t.Setenv("PROMO_RETENTION", "-1h")
	_, err = config.Load(filepath.Join(t.TempDir(), "none.env"))
	assert.True(t, config.Error.Has(err))

	t.Setenv("PROMO_RETENTION", "0s")
	_, err = config.Load(filepath.Join(t.TempDir(), "none.env"))
	assert.NoError(t, err)
}

func TestNewLogger(t *testing.T) {
	log, err := config.NewLogger("debug", filepath.Join(t.TempDir(), "service.log"))
	require.NoError(t, err)
	log.Info("hello")
	_ = log.Sync()

	_, err = config.NewLogger("loud", "")
	assert.Error(t, err)
}
