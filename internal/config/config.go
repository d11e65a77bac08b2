// Package config loads service configuration from an optional YAML file,
// a .env file and CHATROULETTE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. CHATROULETTE_REDIS_ADDR.
const EnvPrefix = "CHATROULETTE"

type Config struct {
	Log         LoggerConfig      `mapstructure:"log"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Telegram    TelegramConfig    `mapstructure:"telegram"`
	Matchmaking MatchmakingConfig `mapstructure:"matchmaking"`
	Admin       AdminConfig       `mapstructure:"admin"`
}

type LoggerConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"` // json | console
	EnableColor      bool     `mapstructure:"enable_color"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

type HTTPConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// DatabaseConfig points at Postgres. An empty DSN disables accounts,
// premium features and session history.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type TelegramConfig struct {
	Token         string        `mapstructure:"token"`
	Debug         bool          `mapstructure:"debug"`
	UpdateTimeout int           `mapstructure:"update_timeout"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Burst         int           `mapstructure:"burst"`
	PrimingDelay  time.Duration `mapstructure:"priming_delay"`
}

type MatchmakingConfig struct {
	// Store selects the participant store: redis or memory.
	Store            string        `mapstructure:"store"`
	MatchInterval    time.Duration `mapstructure:"match_interval"`
	CleanupInterval  time.Duration `mapstructure:"cleanup_interval"`
	InactiveTimeout  time.Duration `mapstructure:"inactive_timeout"`
	PostMatchTimeout time.Duration `mapstructure:"post_match_timeout"`
	RegionFilter     bool          `mapstructure:"region_filter"`
}

type AdminConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "json")
	v.SetDefault("log.enable_color", false)
	v.SetDefault("log.development", false)
	v.SetDefault("log.output_paths", []string{})
	v.SetDefault("log.error_output_paths", []string{})

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", 10*time.Second)
	v.SetDefault("http.write_timeout", 10*time.Second)

	v.SetDefault("redis.addr", "localhost:6380")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "cr:")

	v.SetDefault("database.dsn", "")

	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.debug", false)
	v.SetDefault("telegram.update_timeout", 60)
	v.SetDefault("telegram.rate_per_second", 25.0)
	v.SetDefault("telegram.burst", 5)
	v.SetDefault("telegram.priming_delay", 50*time.Millisecond)

	v.SetDefault("matchmaking.store", "redis")
	v.SetDefault("matchmaking.match_interval", time.Second)
	v.SetDefault("matchmaking.cleanup_interval", 5*time.Second)
	v.SetDefault("matchmaking.inactive_timeout", 30*time.Second)
	v.SetDefault("matchmaking.post_match_timeout", 30*time.Second)
	v.SetDefault("matchmaking.region_filter", true)

	v.SetDefault("admin.jwt_secret", "")
	v.SetDefault("admin.token_ttl", 24*time.Hour)
}

// Load reads configuration. path may be empty; a missing .env file is not
// an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// The bot token keeps its conventional name.
	if err := v.BindEnv("telegram.token", EnvPrefix+"_TELEGRAM_TOKEN", "TELEGRAM_BOT_TOKEN"); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would make the service misbehave silently.
func (c *Config) Validate() error {
	m := c.Matchmaking
	if m.MatchInterval <= 0 || m.CleanupInterval <= 0 {
		return errors.New("matchmaking intervals must be positive")
	}
	if m.InactiveTimeout <= 0 {
		return errors.New("matchmaking.inactive_timeout must be positive")
	}
	switch m.Store {
	case "redis", "memory":
	default:
		return fmt.Errorf("unknown matchmaking.store %q", m.Store)
	}
	return nil
}
