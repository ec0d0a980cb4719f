package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STOCKLEDGER_DATABASE_URL", "postgres://localhost/stock")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, LockLocal, cfg.LockBackend)
	assert.Equal(t, 5*time.Second, cfg.LockTimeout)
	assert.Equal(t, 30, cfg.ExpiryWarningDays)
	assert.Equal(t, "stock:events", cfg.EventStream)
	assert.Equal(t, "*/5 * * * * *", cfg.OutboxSchedule)
	assert.True(t, cfg.VoucherNumbering)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STOCKLEDGER_DATABASE_URL", "postgres://localhost/stock")
	t.Setenv("STOCKLEDGER_LOCK_BACKEND", "redis")
	t.Setenv("STOCKLEDGER_LOCK_TTL", "1m")
	t.Setenv("STOCKLEDGER_EXPIRY_WARNING_DAYS", "7")
	t.Setenv("STOCKLEDGER_APP_ENV", "production")
	t.Setenv("STOCKLEDGER_VOUCHER_NUMBERING", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, LockRedis, cfg.LockBackend)
	assert.Equal(t, time.Minute, cfg.LockTTL)
	assert.Equal(t, 7, cfg.ExpiryWarningDays)
	assert.False(t, cfg.VoucherNumbering)
	assert.False(t, cfg.IsDevelopment())
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing database url", env: map[string]string{}},
		{name: "unknown lock backend", env: map[string]string{"STOCKLEDGER_LOCK_BACKEND": "zookeeper"}},
		{name: "ttl shorter than timeout", env: map[string]string{
			"STOCKLEDGER_LOCK_BACKEND": "redis",
			"STOCKLEDGER_LOCK_TTL":     "1s",
		}},
		{name: "bad duration", env: map[string]string{"STOCKLEDGER_LOCK_TIMEOUT": "soon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.name != "missing database url" {
				t.Setenv("STOCKLEDGER_DATABASE_URL", "postgres://localhost/stock")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
