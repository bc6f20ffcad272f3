package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stockroom.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsWithEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/stockroom")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("SUMMARY_CACHE_TTL", "90s")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/stockroom", cfg.Database.URL)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, 90*time.Second, cfg.Redis.SummaryTTL)
	assert.Equal(t, 2, cfg.Jobs.LowStockThreshold)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeConfig(t, `
[server]
port = 9090

[database]
url = "postgres://file/stockroom"
max_conns = 4

[redis]
addr = "cache:6379"
summary_ttl = "2m"

[jobs]
enabled = true
reconcile_interval = "5m"
overdue_interval = "1h"
low_stock_interval = "10m"
low_stock_threshold = 7
`)
	t.Setenv("PORT", "9191")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "postgres://file/stockroom", cfg.Database.URL)
	assert.Equal(t, int32(4), cfg.Database.MaxConns)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
	assert.Equal(t, 2*time.Minute, cfg.Redis.SummaryTTL)
	assert.Equal(t, 5*time.Minute, cfg.Jobs.ReconcileInterval)
	assert.Equal(t, 7, cfg.Jobs.LowStockThreshold)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		file    string
		wantErr string
	}{
		{
			name:    "missing database url",
			env:     map[string]string{"DATABASE_URL": ""},
			wantErr: "DATABASE_URL is required",
		},
		{
			name:    "bad port",
			env:     map[string]string{"DATABASE_URL": "postgres://x", "PORT": "eighty"},
			wantErr: "invalid PORT",
		},
		{
			name:    "bad duration",
			env:     map[string]string{"DATABASE_URL": "postgres://x", "RECONCILE_INTERVAL": "soon"},
			wantErr: "invalid RECONCILE_INTERVAL",
		},
		{
			name:    "missing file",
			env:     map[string]string{"DATABASE_URL": "postgres://x"},
			file:    "/nonexistent/stockroom.toml",
			wantErr: "failed to load config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(tt.file)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
