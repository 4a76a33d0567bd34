package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config represents the runtime configuration for the keygate service.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Keys      KeysConfig      `mapstructure:"keys"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	LogLevel        string        `mapstructure:"log_level"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// RedisConfig holds connection options for the cache, lock and limiter backend.
type RedisConfig struct {
	Address  string        `mapstructure:"address"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TLS      bool          `mapstructure:"tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// AuthConfig configures issuer tokens for the management surface.
type AuthConfig struct {
	JWT JWTSettings `mapstructure:"jwt"`
}

// JWTSettings configures signed issuer tokens.
type JWTSettings struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"token_ttl"`
}

// KeysConfig tunes the credential pipeline.
type KeysConfig struct {
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
	LockTTL       time.Duration `mapstructure:"lock_ttl"`
	SweepSchedule string        `mapstructure:"sweep_schedule"`
	Argon2        Argon2Config  `mapstructure:"argon2"`
}

// Argon2Config tunes the verifier derivation cost.
type Argon2Config struct {
	Time    uint32 `mapstructure:"time"`
	Memory  uint32 `mapstructure:"memory"`
	Threads uint8  `mapstructure:"threads"`
}

// RateLimitConfig tunes the sliding windows. Validation throttles per caller
// inside the pipeline; HTTP throttles the management surface per client IP.
type RateLimitConfig struct {
	Validation WindowConfig `mapstructure:"validation"`
	HTTP       WindowConfig `mapstructure:"http"`
}

// WindowConfig is one ceiling over one window.
type WindowConfig struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("KEYGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects configurations the server cannot start with. Secrets are
// checked at bootstrap instead, so that config loading stays usable in tests.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d is out of range", c.Server.Port)
	}

	switch strings.ToLower(c.Database.Driver) {
	case "", "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("config: unsupported database driver %q", c.Database.Driver)
	}

	if c.RateLimit.Validation.Limit <= 0 || c.RateLimit.Validation.Window <= 0 {
		return fmt.Errorf("config: rate_limit.validation must have a positive limit and window")
	}
	if c.Keys.CacheTTL <= 0 {
		return fmt.Errorf("config: keys.cache_ttl must be positive")
	}
	if c.Keys.LockTTL <= 0 {
		return fmt.Errorf("config: keys.lock_ttl must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/keygate.sqlite")

	v.SetDefault("redis.address", "127.0.0.1:6379")
	v.SetDefault("redis.username", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.tls", false)
	v.SetDefault("redis.timeout", "5s")

	v.SetDefault("auth.jwt.issuer", "keygate")
	v.SetDefault("auth.jwt.token_ttl", "15m")

	v.SetDefault("keys.cache_ttl", "15m")
	v.SetDefault("keys.lock_ttl", "10s")
	v.SetDefault("keys.sweep_schedule", "@every 5m")
	v.SetDefault("keys.argon2.time", 2)
	v.SetDefault("keys.argon2.memory", 65536)
	v.SetDefault("keys.argon2.threads", 4)

	v.SetDefault("rate_limit.validation.limit", 120)
	v.SetDefault("rate_limit.validation.window", "1m")
	v.SetDefault("rate_limit.http.limit", 300)
	v.SetDefault("rate_limit.http.window", "1m")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
