package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds process configuration, loaded from an optional YAML file
// and ENTGATE_-prefixed environment variables.
type Config struct {
	ListenAddr string `mapstructure:"listen_addr"`

	LogFormat string `mapstructure:"log_format"`
	LogLevel  string `mapstructure:"log_level"`

	// Postgres DSN; when empty the in-memory repositories are used.
	PGDSN string `mapstructure:"pg_dsn"`

	Session SessionConfig `mapstructure:"session"`

	RateLimitPerSecond int   `mapstructure:"rate_limit_per_second"`
	RateLimitBurst     int   `mapstructure:"rate_limit_burst"`
	MaxBodyBytes       int64 `mapstructure:"max_body_bytes"`
}

// SessionConfig configures the session/code store.
type SessionConfig struct {
	// Store is "memory" or "redis".
	Store     string        `mapstructure:"store"`
	RedisAddr string        `mapstructure:"redis_addr"`
	TTL       time.Duration `mapstructure:"ttl"`
	CodeTTL   time.Duration `mapstructure:"code_ttl"`

	// TokenSecret switches token issuance from opaque random tokens to
	// signed JWTs when set.
	TokenSecret string `mapstructure:"token_secret"`
}

// Load reads configuration from the given file path (optional) and the
// environment.
func Load(path string) (Config, error) {
	v := viper.New()

	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("log_format", "json")
	v.SetDefault("log_level", "info")
	v.SetDefault("session.store", "memory")
	v.SetDefault("session.ttl", 300*time.Second)
	v.SetDefault("session.code_ttl", 300*time.Second)
	v.SetDefault("rate_limit_per_second", 50)
	v.SetDefault("rate_limit_burst", 100)
	v.SetDefault("max_body_bytes", 1<<20)

	v.SetEnvPrefix("ENTGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Session.Store != "memory" && cfg.Session.Store != "redis" {
		return Config{}, fmt.Errorf("unsupported session store: %s", cfg.Session.Store)
	}
	if cfg.Session.Store == "redis" && cfg.Session.RedisAddr == "" {
		return Config{}, fmt.Errorf("session.redis_addr is required for the redis store")
	}

	return cfg, nil
}
