// Package config loads server settings from the environment with an
// optional YAML file underneath.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/olgasafonova/wikiclone-server/internal/encyclopedia"
	"github.com/olgasafonova/wikiclone-server/internal/infra"
	"github.com/olgasafonova/wikiclone-server/internal/store"
)

// Configuration validation errors.
var (
	ErrInvalidAPIURL      = errors.New("api_url must be an absolute http(s) URL")
	ErrMissingUserAgent   = errors.New("user_agent is required")
	ErrMissingListenAddr  = errors.New("listen_addr is required")
	ErrInvalidBackend     = errors.New("cache.backend must be one of: memory, redis, mongo")
	ErrMissingRedisAddr   = errors.New("cache.redis_addr is required for the redis backend")
	ErrMissingMongoURI    = errors.New("cache.mongo_uri is required for the mongo backend")
	ErrInvalidCacheTTL    = errors.New("cache.ttl must be positive")
	ErrInvalidMaxEntries  = errors.New("cache.max_entries must be at least 1")
	ErrInvalidRateLimit   = errors.New("rate_limit must be non-negative")
	ErrInvalidLogLevel    = errors.New("log_level must be one of: debug, info, warn, error")
	ErrInvalidMaxBodySize = errors.New("max_body_size must be positive")
)

// Environment variable names.
const (
	EnvConfigFile      = "WIKICLONE_CONFIG"
	EnvAPIURL          = "WIKICLONE_API_URL"
	EnvUserAgent       = "WIKICLONE_USER_AGENT"
	EnvListenAddr      = "WIKICLONE_LISTEN_ADDR"
	EnvLogLevel        = "WIKICLONE_LOG_LEVEL"
	EnvRateLimit       = "WIKICLONE_RATE_LIMIT"
	EnvCacheBackend    = "WIKICLONE_CACHE_BACKEND"
	EnvCacheTTL        = "WIKICLONE_CACHE_TTL"
	EnvCacheMaxEntries = "WIKICLONE_CACHE_MAX_ENTRIES"
	EnvRedisAddr       = "WIKICLONE_REDIS_ADDR"
	EnvMongoURI        = "WIKICLONE_MONGO_URI"
	EnvMongoDatabase   = "WIKICLONE_MONGO_DATABASE"
)

// DefaultRateLimit is the article page budget per client IP per minute.
const DefaultRateLimit = 10

// Config holds the server settings.
type Config struct {
	APIURL      string      `yaml:"api_url"`
	UserAgent   string      `yaml:"user_agent"`
	ListenAddr  string      `yaml:"listen_addr"`
	LogLevel    string      `yaml:"log_level"`
	RateLimit   int         `yaml:"rate_limit"`
	MaxBodySize int64       `yaml:"max_body_size"`
	Cache       CacheConfig `yaml:"cache"`
}

// CacheConfig selects the article cache backend.
type CacheConfig struct {
	Backend         string        `yaml:"backend"`
	TTL             time.Duration `yaml:"ttl"`
	MaxEntries      int           `yaml:"max_entries"`
	RedisAddr       string        `yaml:"redis_addr"`
	MongoURI        string        `yaml:"mongo_uri"`
	MongoDatabase   string        `yaml:"mongo_database"`
	MongoCollection string        `yaml:"mongo_collection"`
}

// Default returns the settings used when nothing is configured.
func Default() *Config {
	return &Config{
		APIURL:      encyclopedia.DefaultAPIURL,
		UserAgent:   encyclopedia.DefaultUserAgent,
		ListenAddr:  ":8080",
		LogLevel:    "info",
		RateLimit:   DefaultRateLimit,
		MaxBodySize: 1 << 20,
		Cache: CacheConfig{
			Backend:         store.BackendMemory,
			TTL:             encyclopedia.ArticleTTL,
			MaxEntries:      infra.DefaultMaxCacheEntries,
			MongoDatabase:   store.DefaultMongoDatabase,
			MongoCollection: store.DefaultMongoCollection,
		},
	}
}

// Load reads the YAML file named by WIKICLONE_CONFIG (if set), applies
// environment overrides and validates the result.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.APIURL, EnvAPIURL)
	setString(&c.UserAgent, EnvUserAgent)
	setString(&c.ListenAddr, EnvListenAddr)
	setString(&c.LogLevel, EnvLogLevel)
	setString(&c.Cache.Backend, EnvCacheBackend)
	setString(&c.Cache.RedisAddr, EnvRedisAddr)
	setString(&c.Cache.MongoURI, EnvMongoURI)
	setString(&c.Cache.MongoDatabase, EnvMongoDatabase)

	if v := os.Getenv(EnvRateLimit); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvRateLimit, err)
		}
		c.RateLimit = n
	}
	if v := os.Getenv(EnvCacheMaxEntries); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvCacheMaxEntries, err)
		}
		c.Cache.MaxEntries = n
	}
	if v := os.Getenv(EnvCacheTTL); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvCacheTTL, err)
		}
		c.Cache.TTL = d
	}
	return nil
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidAPIURL
	}
	if strings.TrimSpace(c.UserAgent) == "" {
		return ErrMissingUserAgent
	}
	if c.ListenAddr == "" {
		return ErrMissingListenAddr
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	if c.RateLimit < 0 {
		return ErrInvalidRateLimit
	}
	if c.MaxBodySize <= 0 {
		return ErrInvalidMaxBodySize
	}

	switch c.Cache.Backend {
	case store.BackendMemory:
		if c.Cache.MaxEntries < 1 {
			return ErrInvalidMaxEntries
		}
	case store.BackendRedis:
		if c.Cache.RedisAddr == "" {
			return ErrMissingRedisAddr
		}
	case store.BackendMongo:
		if c.Cache.MongoURI == "" {
			return ErrMissingMongoURI
		}
	default:
		return ErrInvalidBackend
	}
	if c.Cache.TTL <= 0 {
		return ErrInvalidCacheTTL
	}
	return nil
}

// SlogLevel maps LogLevel to a slog.Level.
func (c *Config) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, ErrInvalidLogLevel
	}
}

// StoreOptions converts the cache settings for store.Open.
func (c *Config) StoreOptions(logger *slog.Logger) store.Options {
	return store.Options{
		Backend:         c.Cache.Backend,
		MaxEntries:      c.Cache.MaxEntries,
		RedisAddr:       c.Cache.RedisAddr,
		MongoURI:        c.Cache.MongoURI,
		MongoDatabase:   c.Cache.MongoDatabase,
		MongoCollection: c.Cache.MongoCollection,
		Logger:          logger,
	}
}
