package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, "./data", cfg.Storage.DataPath)
	assert.Equal(t, "ollama", cfg.Embedding.Provider)
	assert.Equal(t, 0.7, cfg.Retrieval.BaseMinScore)
	assert.Equal(t, 256, cfg.Retrieval.QueryCacheSize)
	assert.Equal(t, 5*time.Minute, cfg.Sync.DrainInterval)
	assert.Equal(t, 60*time.Second, cfg.Sync.RetryFlushInterval)
	assert.Equal(t, 2, cfg.Sync.ProjectionWorkers)
	assert.True(t, cfg.Sync.WatchQueueFile)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("MEMORYD_DATA_PATH", "/var/lib/memoryd")
	t.Setenv("MEMORYD_EMBEDDING_PROVIDER", "openai")
	t.Setenv("MEMORYD_EMBEDDING_MODEL", "text-embedding-3-small")
	t.Setenv("MEMORYD_EMBEDDING_DIMENSIONS", "1536")
	t.Setenv("MEMORYD_BASE_MIN_SCORE", "0.5")
	t.Setenv("MEMORYD_DRAIN_INTERVAL", "90s")
	t.Setenv("MEMORYD_WATCH_QUEUE_FILE", "no")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/memoryd", cfg.Storage.DataPath)
	assert.Equal(t, "openai", cfg.Embedding.Provider)
	assert.Equal(t, "text-embedding-3-small", cfg.Embedding.Model)
	assert.Equal(t, 1536, cfg.Embedding.Dimensions)
	assert.Equal(t, 0.5, cfg.Retrieval.BaseMinScore)
	assert.Equal(t, 90*time.Second, cfg.Sync.DrainInterval)
	assert.False(t, cfg.Sync.WatchQueueFile)
}

func TestLoadYAMLFileWithEnvPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memoryd.yaml")
	body := []byte(`
storage:
  data_path: /from/file
retrieval:
  base_min_score: 0.6
sync:
  projection_workers: 4
`)
	require.NoError(t, os.WriteFile(path, body, 0o644))

	t.Setenv("MEMORYD_DATA_PATH", "/from/env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/from/env", cfg.Storage.DataPath, "environment beats file")
	assert.Equal(t, 0.6, cfg.Retrieval.BaseMinScore)
	assert.Equal(t, 4, cfg.Sync.ProjectionWorkers)
	assert.Equal(t, "sqlite", cfg.Storage.Backend, "unset keys keep defaults")
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"postgres without dsn", func(c *Config) {
			c.Storage.Backend = "postgres"
			c.Storage.PostgresDSN = ""
		}},
		{"unknown backend", func(c *Config) {
			c.Storage.Backend = "redis"
		}},
		{"empty data path", func(c *Config) {
			c.Storage.DataPath = ""
		}},
		{"min score above one", func(c *Config) {
			c.Retrieval.BaseMinScore = 1.5
		}},
		{"negative min score", func(c *Config) {
			c.Retrieval.BaseMinScore = -0.1
		}},
		{"no embedding provider", func(c *Config) {
			c.Embedding.Provider = "none"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestGetEnvBoolVariants(t *testing.T) {
	t.Setenv("MEMORYD_TEST_BOOL", "YES")
	assert.True(t, getEnvBool("MEMORYD_TEST_BOOL", false))

	t.Setenv("MEMORYD_TEST_BOOL", "0")
	assert.False(t, getEnvBool("MEMORYD_TEST_BOOL", true))

	t.Setenv("MEMORYD_TEST_BOOL", "maybe")
	assert.True(t, getEnvBool("MEMORYD_TEST_BOOL", true), "unrecognized keeps default")
}
