package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 1, cfg.MinWorkers)
	assert.Equal(t, 4, cfg.MaxWorkers)
	assert.Equal(t, 5*time.Minute, cfg.WorkerTaskTimeout)
	assert.Equal(t, "info", cfg.LoggingConfig.Level)
	assert.Empty(t, cfg.TickCron)
	assert.Error(t, cfg.RequirePostgres())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://u:p@localhost/db")
	t.Setenv("MAX_WORKERS", "2")
	t.Setenv("WORKER_TASK_TIMEOUT", "30s")
	t.Setenv("TICK_CRON", "@every 1m")
	t.Setenv("LOG_DIR", "/var/log/casino")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.MaxWorkers)
	assert.Equal(t, 30*time.Second, cfg.WorkerTaskTimeout)
	assert.Equal(t, "@every 1m", cfg.TickCron)
	assert.Equal(t, "/var/log/casino", cfg.LoggingConfig.Dir)
	assert.NoError(t, cfg.RequirePostgres())
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("MASTER_SEED=from-file\nHTTP_ADDR=:9090\n"), 0o600))
	t.Setenv("HTTP_ADDR", ":7070")
	// godotenv sets variables process-wide; undo after the test.
	t.Cleanup(func() { os.Unsetenv("MASTER_SEED") })

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.MasterSeed)
	assert.Equal(t, ":7070", cfg.HTTPAddr, "environment wins over the file")
}

func TestLoad_MissingEnvFileIsIgnored(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	assert.NoError(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{MasterSeed: "s", MinWorkers: 1, MaxWorkers: 4, WorkerTaskTimeout: time.Minute}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"single worker", func(c *Config) { c.MaxWorkers = 1 }, false},
		{"zero min", func(c *Config) { c.MinWorkers = 0 }, true},
		{"min above max", func(c *Config) { c.MinWorkers = 3; c.MaxWorkers = 2 }, true},
		{"max above limit", func(c *Config) { c.MaxWorkers = 5 }, true},
		{"zero timeout", func(c *Config) { c.WorkerTaskTimeout = 0 }, true},
		{"empty seed", func(c *Config) { c.MasterSeed = "" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
