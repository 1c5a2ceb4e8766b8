package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Cache backends accepted by CACHE_BACKEND.
const (
	CacheBackendRedis  = "redis"
	CacheBackendMemory = "memory"
	CacheBackendNone   = "none"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	ShutdownTimeout time.Duration

	Database DatabaseConfig
	Redis    RedisConfig
	Cache    CacheConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Search   SearchConfig
	Feed     FeedConfig
	Sentry   SentryConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// CacheConfig selects the cache backend used for search and recent listings.
type CacheConfig struct {
	Backend    string
	DefaultTTL time.Duration
}

type JWTConfig struct {
	Secret     string
	Issuer     string
	Expiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// SearchConfig tunes the public search endpoint.
type SearchConfig struct {
	DefaultPageSize int
	MaxPageSize     int
	RecentLimit     int
	CacheTTL        time.Duration
	// CountAllStates reproduces the legacy total count, which ignored the
	// confirmed-only restriction applied to the result page.
	CountAllStates bool
}

// FeedConfig configures ingestion from the external sighting feed.
type FeedConfig struct {
	Enabled      bool
	BaseURL      string
	APIKey       string
	SourceName   string
	PageLimit    int
	PollInterval time.Duration
	Timeout      time.Duration
	Workers      int
	MaxRetries   int
	RetryDelay   time.Duration
}

// SentryConfig enables error reporting when DSN is set.
type SentryConfig struct {
	DSN         string
	Environment string
	SampleRate  float64
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")
	cfg.ShutdownTimeout = parseDuration(v.GetString("SHUTDOWN_TIMEOUT"), 10*time.Second)

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Cache = CacheConfig{
		Backend:    strings.ToLower(v.GetString("CACHE_BACKEND")),
		DefaultTTL: parseDuration(v.GetString("CACHE_DEFAULT_TTL"), 5*time.Minute),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Issuer:     v.GetString("JWT_ISSUER"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 12*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Search = SearchConfig{
		DefaultPageSize: v.GetInt("SEARCH_DEFAULT_PAGE_SIZE"),
		MaxPageSize:     v.GetInt("SEARCH_MAX_PAGE_SIZE"),
		RecentLimit:     v.GetInt("SEARCH_RECENT_LIMIT"),
		CacheTTL:        parseDuration(v.GetString("SEARCH_CACHE_TTL"), time.Minute),
		CountAllStates:  v.GetBool("SEARCH_COUNT_ALL_STATES"),
	}

	cfg.Feed = FeedConfig{
		Enabled:      v.GetBool("ENABLE_FEED_INGEST"),
		BaseURL:      strings.TrimRight(v.GetString("FEED_BASE_URL"), "/"),
		APIKey:       v.GetString("FEED_API_KEY"),
		SourceName:   v.GetString("FEED_SOURCE_NAME"),
		PageLimit:    v.GetInt("FEED_PAGE_LIMIT"),
		PollInterval: parseDuration(v.GetString("FEED_POLL_INTERVAL"), time.Hour),
		Timeout:      parseDuration(v.GetString("FEED_TIMEOUT"), 15*time.Second),
		Workers:      v.GetInt("FEED_WORKERS"),
		MaxRetries:   v.GetInt("FEED_MAX_RETRIES"),
		RetryDelay:   parseDuration(v.GetString("FEED_RETRY_DELAY"), 30*time.Second),
	}

	cfg.Sentry = SentryConfig{
		DSN:         v.GetString("SENTRY_DSN"),
		Environment: v.GetString("SENTRY_ENVIRONMENT"),
		SampleRate:  v.GetFloat64("SENTRY_SAMPLE_RATE"),
	}
	if cfg.Sentry.Environment == "" {
		cfg.Sentry.Environment = cfg.Env
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api")
	v.SetDefault("SHUTDOWN_TIMEOUT", "10s")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "whale_spotting")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("CACHE_BACKEND", CacheBackendMemory)
	v.SetDefault("CACHE_DEFAULT_TTL", "5m")

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "whale-spotting-api")
	v.SetDefault("JWT_EXPIRATION", "12h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SEARCH_DEFAULT_PAGE_SIZE", 10)
	v.SetDefault("SEARCH_MAX_PAGE_SIZE", 100)
	v.SetDefault("SEARCH_RECENT_LIMIT", 5)
	v.SetDefault("SEARCH_CACHE_TTL", "1m")
	v.SetDefault("SEARCH_COUNT_ALL_STATES", false)

	v.SetDefault("ENABLE_FEED_INGEST", false)
	v.SetDefault("FEED_BASE_URL", "https://hotline.whalemuseum.org")
	v.SetDefault("FEED_API_KEY", "")
	v.SetDefault("FEED_SOURCE_NAME", "Whale Museum Hotline")
	v.SetDefault("FEED_PAGE_LIMIT", 1000)
	v.SetDefault("FEED_POLL_INTERVAL", "1h")
	v.SetDefault("FEED_TIMEOUT", "15s")
	v.SetDefault("FEED_WORKERS", 1)
	v.SetDefault("FEED_MAX_RETRIES", 3)
	v.SetDefault("FEED_RETRY_DELAY", "30s")

	v.SetDefault("SENTRY_DSN", "")
	v.SetDefault("SENTRY_ENVIRONMENT", "")
	v.SetDefault("SENTRY_SAMPLE_RATE", 1.0)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
