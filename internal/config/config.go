package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the clearops server.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Geocoder  GeocoderConfig
	Notify    NotifyConfig
	SLA       SLAConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type GeocoderConfig struct {
	Provider     string
	BaseURL      string
	UserAgent    string
	CountryCodes string
	Timeout      time.Duration
	RatePerSec   float64
	CacheTTL     time.Duration
}

type NotifyConfig struct {
	// Stream is the Redis stream notifications are appended to. Empty means log only.
	Stream  string
	MaxLen  int64
	Timeout time.Duration
}

type SLAConfig struct {
	UrgencyCacheTTL time.Duration
}

type RateLimitConfig struct {
	PerMinute int
}

var validGeocoders = map[string]bool{
	"nominatim": true,
	"disabled":  true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("CLEAROPS_PORT", 8080),
			Env:  envString("CLEAROPS_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Geocoder: GeocoderConfig{
			Provider:     envString("GEOCODER_PROVIDER", "nominatim"),
			BaseURL:      envString("GEOCODER_BASE_URL", "https://nominatim.openstreetmap.org"),
			UserAgent:    envString("GEOCODER_USER_AGENT", "clearops/1.0"),
			CountryCodes: envString("GEOCODER_COUNTRY_CODES", "gb"),
			Timeout:      envDuration("GEOCODER_TIMEOUT", 10*time.Second),
			RatePerSec:   envFloat("GEOCODER_RATE_PER_SEC", 1),
			CacheTTL:     envDuration("GEOCODER_CACHE_TTL", 24*time.Hour),
		},
		Notify: NotifyConfig{
			Stream:  envStringAllowEmpty("NOTIFY_STREAM", "clearops:notifications"),
			MaxLen:  int64(envInt("NOTIFY_STREAM_MAXLEN", 100000)),
			Timeout: envDuration("NOTIFY_TIMEOUT", 5*time.Second),
		},
		SLA: SLAConfig{
			UrgencyCacheTTL: envDuration("SLA_URGENCY_CACHE_TTL", time.Hour),
		},
		RateLimit: RateLimitConfig{
			PerMinute: envInt("RATE_LIMIT_PER_MIN", 60),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if !validGeocoders[c.Geocoder.Provider] {
		return fmt.Errorf("GEOCODER_PROVIDER must be one of nominatim, disabled; got %q", c.Geocoder.Provider)
	}
	if c.Geocoder.Provider == "nominatim" {
		if !strings.HasPrefix(c.Geocoder.BaseURL, "http://") && !strings.HasPrefix(c.Geocoder.BaseURL, "https://") {
			return fmt.Errorf("GEOCODER_BASE_URL must start with http:// or https://, got %q", c.Geocoder.BaseURL)
		}
		if c.Geocoder.RatePerSec <= 0 {
			return fmt.Errorf("GEOCODER_RATE_PER_SEC must be positive, got %v", c.Geocoder.RatePerSec)
		}
	}

	if c.RateLimit.PerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MIN must be positive, got %d", c.RateLimit.PerMinute)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// envStringAllowEmpty distinguishes unset (default) from explicitly empty.
func envStringAllowEmpty(key, defaultVal string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
