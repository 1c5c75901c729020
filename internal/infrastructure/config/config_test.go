package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/reconcile/internal/domain/ledger"
)

func TestLoadFromYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
storage:
  database_path: "ledger.db"
reconcile:
  max_date_delta_days: 3
  max_amount_delta_ratio: 0.02
  auto_confirm_threshold: 0.9
  storage_timeout: 2s
  split_suggestions: false
lock:
  backend: redis
  redis_addr: "localhost:6379"
  ttl: 30s
api:
  port: 9090
  allowed_origins: ["http://localhost:3000"]
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "ledger.db", cfg.Storage.DatabasePath)
	assert.Equal(t, ledger.Window{MaxDateDeltaDays: 3, MaxAmountDeltaRatio: 0.02}, cfg.Reconcile.Window())
	assert.Equal(t, 0.9, cfg.Reconcile.AutoConfirmThreshold)
	assert.Equal(t, 2*time.Second, cfg.Reconcile.StorageTimeout)
	assert.False(t, cfg.Reconcile.SplitsEnabled())
	assert.Equal(t, LockBackendRedis, cfg.Lock.Backend)
	assert.Equal(t, 30*time.Second, cfg.Lock.TTL)
	assert.Equal(t, 9090, cfg.API.Port)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.API.AllowedOrigins)

	// Unset fields fall back to defaults
	assert.Equal(t, 4, cfg.Reconcile.Workers)
	assert.Equal(t, 3, cfg.Reconcile.MaxSplitParts)
	assert.Equal(t, "info", cfg.Observability.Logging.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("RECONCILE_DB_PATH", "test.db")
	t.Setenv("RECONCILE_MAX_DATE_DELTA_DAYS", "7")
	t.Setenv("RECONCILE_AUTO_CONFIRM_THRESHOLD", "0.8")
	t.Setenv("RECONCILE_STORAGE_TIMEOUT", "250ms")
	t.Setenv("RECONCILE_ALLOWED_ORIGINS", "http://a.test, http://b.test")

	cfg := LoadFromEnv()
	assert.NotNil(t, cfg)
	assert.Equal(t, "test.db", cfg.Storage.DatabasePath)
	assert.Equal(t, 7, cfg.Reconcile.MaxDateDeltaDays)
	assert.Equal(t, 0.8, cfg.Reconcile.AutoConfirmThreshold)
	assert.Equal(t, 250*time.Millisecond, cfg.Reconcile.StorageTimeout)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.API.AllowedOrigins)
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	os.Unsetenv("RECONCILE_DB_PATH")
	os.Unsetenv("RECONCILE_LOCK_BACKEND")

	cfg := LoadFromEnv()
	assert.Equal(t, "reconcile.db", cfg.Storage.DatabasePath)
	assert.Equal(t, ledger.DefaultWindow(), cfg.Reconcile.Window())
	assert.Equal(t, ledger.DefaultAutoConfirmThreshold, cfg.Reconcile.AutoConfirmThreshold)
	assert.True(t, cfg.Reconcile.SplitsEnabled())
	assert.Equal(t, LockBackendLocal, cfg.Lock.Backend)
	assert.Equal(t, 8080, cfg.API.Port)
	assert.NoError(t, cfg.Validate())
}

func TestLoadOrEnv_FallbackToEnv(t *testing.T) {
	t.Setenv("RECONCILE_DB_PATH", "fallback.db")

	cfg := LoadOrEnv_WithPath("nonexistent.yaml")
	assert.NotNil(t, cfg)
	assert.Equal(t, "fallback.db", cfg.Storage.DatabasePath)
}

func TestEnvVarExpansion(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
storage:
  database_path: "${TEST_DB_PATH}"
lock:
  redis_addr: "${TEST_REDIS_ADDR}"
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	t.Setenv("TEST_DB_PATH", "expanded.db")
	t.Setenv("TEST_REDIS_ADDR", "redis:6379")

	cfg, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, "expanded.db", cfg.Storage.DatabasePath)
	assert.Equal(t, "redis:6379", cfg.Lock.RedisAddr)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(c *Config)
		wantWindow bool
		wantErr    bool
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "negative days", mutate: func(c *Config) { c.Reconcile.MaxDateDeltaDays = -1 }, wantWindow: true, wantErr: true},
		{name: "negative ratio", mutate: func(c *Config) { c.Reconcile.MaxAmountDeltaRatio = -0.5 }, wantWindow: true, wantErr: true},
		{name: "threshold above one", mutate: func(c *Config) { c.Reconcile.AutoConfirmThreshold = 1.5 }, wantWindow: true, wantErr: true},
		{name: "redis without addr", mutate: func(c *Config) { c.Lock.Backend = LockBackendRedis }, wantErr: true},
		{name: "unknown backend", mutate: func(c *Config) { c.Lock.Backend = "etcd" }, wantErr: true},
		{name: "one split part", mutate: func(c *Config) { c.Reconcile.MaxSplitParts = 1 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := LoadFromEnv()
			tt.mutate(cfg)

			err := cfg.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantWindow, errors.Is(err, ledger.ErrInvalidWindow))
		})
	}
}
