// Package config provides configuration for the memory daemon. Settings
// come from an optional YAML file plus environment variables with the
// MEMORYD_ prefix; an environment variable always wins over the file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all settings for the memory daemon.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Embedding ProviderConfig  `yaml:"embedding"`
	Extractor ProviderConfig  `yaml:"extractor"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Sync      SyncConfig      `yaml:"sync"`
}

// StorageConfig selects and parameterizes the vector backend and the
// on-disk queue documents.
type StorageConfig struct {
	Backend     string `yaml:"backend"`      // sqlite or postgres (default: sqlite)
	DataPath    string `yaml:"data_path"`    // directory for sqlite db and queue documents (default: ./data)
	PostgresDSN string `yaml:"postgres_dsn"` // required when backend is postgres
}

// ProviderConfig parameterizes one LLM collaborator.
type ProviderConfig struct {
	Provider          string        `yaml:"provider"` // ollama, openai, or none (extractor only)
	BaseURL           string        `yaml:"base_url"`
	APIKey            string        `yaml:"api_key"`
	Model             string        `yaml:"model"`
	Dimensions        int           `yaml:"dimensions"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
}

// RetrievalConfig tunes the vector store's scoring defaults.
type RetrievalConfig struct {
	BaseMinScore   float64 `yaml:"base_min_score"`   // default: 0.7
	QueryCacheSize int     `yaml:"query_cache_size"` // default: 256
}

// SyncConfig tunes the background queues.
type SyncConfig struct {
	DrainInterval      time.Duration `yaml:"drain_interval"`       // default: 5m
	RetryFlushInterval time.Duration `yaml:"retry_flush_interval"` // default: 60s
	ProjectionWorkers  int           `yaml:"projection_workers"`   // default: 2
	WatchQueueFile     bool          `yaml:"watch_queue_file"`     // default: true
}

// Load builds the configuration: defaults, then the YAML file at path (if
// non-empty), then environment overrides. Validation failures are fatal by
// contract; callers abort startup on error.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the daemon cannot start with.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "sqlite":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("config: postgres backend requires MEMORYD_POSTGRES_DSN")
		}
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.Storage.Backend)
	}

	if c.Storage.DataPath == "" {
		return fmt.Errorf("config: data path must not be empty")
	}
	if c.Retrieval.BaseMinScore < 0 || c.Retrieval.BaseMinScore > 1 {
		return fmt.Errorf("config: base min score %g out of range [0,1]", c.Retrieval.BaseMinScore)
	}
	if c.Embedding.Provider == "none" {
		return fmt.Errorf("config: an embedding provider is required")
	}
	return nil
}

func defaults() *Config {
	return &Config{
		Storage: StorageConfig{
			Backend:  "sqlite",
			DataPath: "./data",
		},
		Embedding: ProviderConfig{
			Provider: "ollama",
			BaseURL:  "http://localhost:11434",
		},
		Extractor: ProviderConfig{
			Provider: "ollama",
			BaseURL:  "http://localhost:11434",
		},
		Retrieval: RetrievalConfig{
			BaseMinScore:   0.7,
			QueryCacheSize: 256,
		},
		Sync: SyncConfig{
			DrainInterval:      5 * time.Minute,
			RetryFlushInterval: 60 * time.Second,
			ProjectionWorkers:  2,
			WatchQueueFile:     true,
		},
	}
}

func applyEnv(cfg *Config) {
	cfg.Storage.Backend = getEnv("MEMORYD_STORAGE_BACKEND", cfg.Storage.Backend)
	cfg.Storage.DataPath = getEnv("MEMORYD_DATA_PATH", cfg.Storage.DataPath)
	cfg.Storage.PostgresDSN = getEnv("MEMORYD_POSTGRES_DSN", cfg.Storage.PostgresDSN)

	cfg.Embedding.Provider = getEnv("MEMORYD_EMBEDDING_PROVIDER", cfg.Embedding.Provider)
	cfg.Embedding.BaseURL = getEnv("MEMORYD_EMBEDDING_URL", cfg.Embedding.BaseURL)
	cfg.Embedding.APIKey = getEnv("MEMORYD_EMBEDDING_API_KEY", cfg.Embedding.APIKey)
	cfg.Embedding.Model = getEnv("MEMORYD_EMBEDDING_MODEL", cfg.Embedding.Model)
	cfg.Embedding.Dimensions = getEnvInt("MEMORYD_EMBEDDING_DIMENSIONS", cfg.Embedding.Dimensions)

	cfg.Extractor.Provider = getEnv("MEMORYD_EXTRACTOR_PROVIDER", cfg.Extractor.Provider)
	cfg.Extractor.BaseURL = getEnv("MEMORYD_EXTRACTOR_URL", cfg.Extractor.BaseURL)
	cfg.Extractor.APIKey = getEnv("MEMORYD_EXTRACTOR_API_KEY", cfg.Extractor.APIKey)
	cfg.Extractor.Model = getEnv("MEMORYD_EXTRACTOR_MODEL", cfg.Extractor.Model)

	cfg.Retrieval.BaseMinScore = getEnvFloat("MEMORYD_BASE_MIN_SCORE", cfg.Retrieval.BaseMinScore)
	cfg.Retrieval.QueryCacheSize = getEnvInt("MEMORYD_QUERY_CACHE_SIZE", cfg.Retrieval.QueryCacheSize)

	cfg.Sync.DrainInterval = getEnvDuration("MEMORYD_DRAIN_INTERVAL", cfg.Sync.DrainInterval)
	cfg.Sync.RetryFlushInterval = getEnvDuration("MEMORYD_RETRY_FLUSH_INTERVAL", cfg.Sync.RetryFlushInterval)
	cfg.Sync.ProjectionWorkers = getEnvInt("MEMORYD_PROJECTION_WORKERS", cfg.Sync.ProjectionWorkers)
	cfg.Sync.WatchQueueFile = getEnvBool("MEMORYD_WATCH_QUEUE_FILE", cfg.Sync.WatchQueueFile)
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value when unset or unparseable.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvBool recognizes "true", "1", "yes" and "false", "0", "no".
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch value {
		case "true", "1", "yes", "True", "TRUE", "Yes", "YES":
			return true
		case "false", "0", "no", "False", "FALSE", "No", "NO":
			return false
		}
	}
	return defaultValue
}
