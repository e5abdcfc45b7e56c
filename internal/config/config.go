package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	BackendMemory    = "memory"
	BackendSQLServer = "sqlserver"
	BackendMongoDB   = "mongodb"
)

type Config struct {
	Env      string
	LogLevel string

	Backend string

	DatabaseURL string

	MongoURI        string
	MongoDatabase   string
	MongoCollection string

	EnableCaching       bool
	CacheAbsoluteTTL    time.Duration
	CacheSlidingTTL     time.Duration
	TreatMissingAsFalse bool

	// DeletionRetentionTTL bounds how long deleted flags and history
	// snapshots are kept. Zero keeps them forever.
	DeletionRetentionTTL time.Duration
	HistoryPurgeInterval time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		Env:             getEnv("APP_ENV", "development"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		Backend:         strings.ToLower(getEnv("FLAG_STORE_BACKEND", BackendMemory)),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		MongoURI:        os.Getenv("MONGO_URI"),
		MongoDatabase:   getEnv("MONGO_DATABASE", "thoth"),
		MongoCollection: getEnv("MONGO_COLLECTION", "FeatureManager"),
	}

	var err error
	if cfg.EnableCaching, err = getEnvBool("ENABLE_CACHING", true); err != nil {
		return nil, err
	}
	if cfg.TreatMissingAsFalse, err = getEnvBool("TREAT_MISSING_AS_FALSE", true); err != nil {
		return nil, err
	}
	if cfg.CacheAbsoluteTTL, err = getEnvDuration("CACHE_ABSOLUTE_TTL", 168*time.Hour); err != nil {
		return nil, err
	}
	if cfg.CacheSlidingTTL, err = getEnvDuration("CACHE_SLIDING_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.DeletionRetentionTTL, err = getEnvDuration("DELETION_RETENTION_TTL", 0); err != nil {
		return nil, err
	}
	if cfg.HistoryPurgeInterval, err = getEnvDuration("HISTORY_PURGE_INTERVAL", 12*time.Hour); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []string
	switch c.Backend {
	case BackendMemory, BackendSQLServer, BackendMongoDB:
	default:
		errs = append(errs, fmt.Sprintf("FLAG_STORE_BACKEND must be one of %s, %s, %s", BackendMemory, BackendSQLServer, BackendMongoDB))
	}
	if c.Backend == BackendSQLServer && c.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required for the sqlserver backend")
	}
	if c.Backend == BackendMongoDB && c.MongoURI == "" {
		errs = append(errs, "MONGO_URI is required for the mongodb backend")
	}
	if c.EnableCaching {
		if c.CacheAbsoluteTTL <= 0 {
			errs = append(errs, "CACHE_ABSOLUTE_TTL must be > 0 when caching is enabled")
		}
		if c.CacheSlidingTTL <= 0 {
			errs = append(errs, "CACHE_SLIDING_TTL must be > 0 when caching is enabled")
		}
		if c.CacheSlidingTTL > c.CacheAbsoluteTTL {
			errs = append(errs, "CACHE_SLIDING_TTL must not exceed CACHE_ABSOLUTE_TTL")
		}
	}
	if c.DeletionRetentionTTL < 0 {
		errs = append(errs, "DELETION_RETENTION_TTL must be >= 0")
	}
	if c.HistoryPurgeInterval <= 0 {
		errs = append(errs, "HISTORY_PURGE_INTERVAL must be > 0")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func getEnv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getEnvBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return b, nil
}

func getEnvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}
