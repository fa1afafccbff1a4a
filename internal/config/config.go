// Package config loads runtime configuration from an optional .env file
// with environment variables taking precedence.
package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	PostgresDSN string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	FXAPIKey   string
	FXBaseURL  string
	FXCacheTTL time.Duration

	AuthSecret   string
	TokenTTL     time.Duration
	AdminUserIDs []string

	RateLimitRPS   float64
	RateLimitBurst int
	MaxBodyBytes   int64
}

// Load reads .env if present and applies environment overrides.
func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	// Missing .env is fine; env vars and defaults cover everything.
	_ = v.ReadInConfig()

	v.SetDefault("ADDR", ":8080")
	v.SetDefault("READ_TIMEOUT", "10s")
	v.SetDefault("WRITE_TIMEOUT", "20s")
	v.SetDefault("IDLE_TIMEOUT", "60s")
	v.SetDefault("POSTGRES_DSN", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("FX_API_KEY", "")
	v.SetDefault("FX_BASE_URL", "")
	v.SetDefault("FX_CACHE_TTL", "6h")
	v.SetDefault("AUTH_SECRET", "")
	v.SetDefault("TOKEN_TTL", "24h")
	v.SetDefault("ADMIN_USER_IDS", []string{})
	v.SetDefault("RATE_LIMIT_RPS", 50.0)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("MAX_BODY_BYTES", int64(1<<20))

	cfg := Config{
		Addr:           v.GetString("ADDR"),
		ReadTimeout:    v.GetDuration("READ_TIMEOUT"),
		WriteTimeout:   v.GetDuration("WRITE_TIMEOUT"),
		IdleTimeout:    v.GetDuration("IDLE_TIMEOUT"),
		PostgresDSN:    v.GetString("POSTGRES_DSN"),
		RedisAddr:      v.GetString("REDIS_ADDR"),
		RedisPassword:  v.GetString("REDIS_PASSWORD"),
		RedisDB:        v.GetInt("REDIS_DB"),
		FXAPIKey:       v.GetString("FX_API_KEY"),
		FXBaseURL:      v.GetString("FX_BASE_URL"),
		FXCacheTTL:     v.GetDuration("FX_CACHE_TTL"),
		AuthSecret:     v.GetString("AUTH_SECRET"),
		TokenTTL:       v.GetDuration("TOKEN_TTL"),
		AdminUserIDs:   v.GetStringSlice("ADMIN_USER_IDS"),
		RateLimitRPS:   v.GetFloat64("RATE_LIMIT_RPS"),
		RateLimitBurst: v.GetInt("RATE_LIMIT_BURST"),
		MaxBodyBytes:   v.GetInt64("MAX_BODY_BYTES"),
	}
	return cfg, nil
}

// IsAdmin reports whether userID is in the configured admin allowlist.
func (c Config) IsAdmin(userID string) bool {
	for _, id := range c.AdminUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}
