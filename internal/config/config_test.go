package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8097", cfg.Port)
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, 10*time.Second, cfg.ProxyTimeout)
	assert.Equal(t, 10*time.Second, cfg.MetricsRefreshInterval)
	assert.Equal(t, 10000, cfg.AuditResponseLimit)
	assert.Equal(t, "@every 1m", cfg.StatusCheckSchedule)
}

func TestLoad_MissingSecret(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "serverdeck.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "9000"
db_driver: sqlite
jwt_secret: from-file
proxy_timeout: 3s
metrics_refresh_interval: 30s
`), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("JWT_SECRET", "")
	t.Setenv("PORT", "9100")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9100", cfg.Port, "env overrides file")
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "from-file", cfg.JWTSecret)
	assert.Equal(t, 3*time.Second, cfg.ProxyTimeout)
	assert.Equal(t, 30*time.Second, cfg.MetricsRefreshInterval)
	assert.Equal(t, path, cfg.File)
}

func TestLoad_BadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: [unterminated"), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("JWT_SECRET", "secret")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.DBDriver = "mysql" }},
		{"zero timeout", func(c *Config) { c.ProxyTimeout = 0 }},
		{"zero refresh interval", func(c *Config) { c.MetricsRefreshInterval = 0 }},
		{"negative rate", func(c *Config) { c.ProxyRateLimit = -1 }},
		{"zero audit limit", func(c *Config) { c.AuditResponseLimit = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			cfg.JWTSecret = "secret"
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "serverdeck.yaml")
	require.NoError(t, os.WriteFile(path, []byte("jwt_secret: s\nmetrics_refresh_interval: 10s\n"), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("JWT_SECRET", "")
	t.Setenv("METRICS_REFRESH_INTERVAL", "")

	cfg, err := Load()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, cfg, func(next *Config) { changes <- next })
	}()

	// Give the watcher a moment to register the directory.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("jwt_secret: s\nmetrics_refresh_interval: 45s\n"), 0o600))

	select {
	case next := <-changes:
		assert.Equal(t, 45*time.Second, next.MetricsRefreshInterval)
	case <-time.After(5 * time.Second):
		t.Fatal("config change was not delivered")
	}

	cancel()
	assert.NoError(t, <-done)
}
