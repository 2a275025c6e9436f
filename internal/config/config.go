// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Store     StoreConfig
	Catalog   CatalogConfig
	Migration MigrationConfig
	Transfer  TransferConfig
	Journal   JournalConfig
	Logging   LoggingConfig
	Metrics   MetricsConfig
}

type StoreConfig struct {
	Endpoint string // artifact-manager service endpoint
	Token    string // workspace access token
}

type CatalogConfig struct {
	Mode      string // "http" | "bucket"
	IndexURL  string // http mode: collection index URL
	BucketURL string // bucket mode: gocloud.dev bucket URL
	IndexKey  string // bucket mode: index object key
}

type MigrationConfig struct {
	CollectionAlias      string // alias of the parent collection artifact
	ParentID             string // parent artifact ID; derived from alias when empty
	MaxConcurrentRecords int
	SkipMigrated         bool
}

type TransferConfig struct {
	MaxRetries  int
	RetryDelay  time.Duration // base delay: fixed under rate limiting, linear otherwise
	HTTPTimeout time.Duration
}

type JournalConfig struct {
	Enabled bool
	Dir     string
}

type LoggingConfig struct {
	Format string
	Level  string
	File   string
}

type MetricsConfig struct {
	Enabled bool
	Address string
}

// Load reads configuration from environment variables.
func Load() (Config, error) {
	cfg := Config{
		Store: StoreConfig{
			Endpoint: os.Getenv("STORE_ENDPOINT"),
			Token:    os.Getenv("WORKSPACE_TOKEN"),
		},
		Catalog: CatalogConfig{
			Mode:      getenvDefault("CATALOG_MODE", "http"),
			IndexURL:  os.Getenv("COLLECTION_INDEX_URL"),
			BucketURL: os.Getenv("CATALOG_BUCKET_URL"),
			IndexKey:  getenvDefault("CATALOG_INDEX_KEY", "collection.json"),
		},
		Migration: MigrationConfig{
			CollectionAlias:      getenvDefault("COLLECTION_ALIAS", "catalog"),
			ParentID:             os.Getenv("PARENT_ARTIFACT_ID"),
			MaxConcurrentRecords: parseInt(getenvDefault("MAX_CONCURRENT_RECORDS", "10")),
			SkipMigrated:         os.Getenv("SKIP_MIGRATED") == "true",
		},
		Transfer: TransferConfig{
			MaxRetries:  parseInt(getenvDefault("TRANSFER_MAX_RETRIES", "5")),
			RetryDelay:  time.Duration(parseInt(getenvDefault("TRANSFER_RETRY_DELAY_SECONDS", "5"))) * time.Second,
			HTTPTimeout: time.Duration(parseInt(getenvDefault("TRANSFER_HTTP_TIMEOUT_SECONDS", "20"))) * time.Second,
		},
		Journal: JournalConfig{
			Enabled: os.Getenv("JOURNAL_ENABLED") == "true",
			Dir:     getenvDefault("JOURNAL_DIR", "./journal"),
		},
		Logging: LoggingConfig{
			Format: getenvDefault("LOG_FORMAT", "text"),
			Level:  getenvDefault("LOG_LEVEL", "info"),
			File:   getenvDefault("LOG_FILE", "migration.log"),
		},
		Metrics: MetricsConfig{
			Enabled: os.Getenv("METRICS_ENABLED") == "true",
			Address: getenvDefault("METRICS_ADDRESS", ":9090"),
		},
	}

	if cfg.Store.Endpoint == "" {
		return cfg, fmt.Errorf("STORE_ENDPOINT is not set")
	}
	switch cfg.Catalog.Mode {
	case "http":
		if cfg.Catalog.IndexURL == "" {
			return cfg, fmt.Errorf("COLLECTION_INDEX_URL is not set")
		}
	case "bucket":
		if cfg.Catalog.BucketURL == "" {
			return cfg, fmt.Errorf("CATALOG_BUCKET_URL is not set")
		}
	default:
		return cfg, fmt.Errorf("unknown catalog mode: %s", cfg.Catalog.Mode)
	}
	if cfg.Migration.MaxConcurrentRecords < 1 {
		cfg.Migration.MaxConcurrentRecords = 10
	}

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func parseInt(v string) int {
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return parsed
}
