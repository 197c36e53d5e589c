package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"envwatch/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Server    ServerConfig    `mapstructure:"server"`
	Analysis  AnalysisConfig  `mapstructure:"analysis"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Retention RetentionConfig `mapstructure:"retention"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Redis     RedisConfig     `mapstructure:"redis"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// ServerConfig covers the HTTP API listener.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
}

// AnalysisConfig holds detector defaults applied to requests that omit them.
type AnalysisConfig struct {
	WindowSize          int     `mapstructure:"window_size"`
	ThresholdMultiplier float64 `mapstructure:"threshold_multiplier"`
	MinEventDuration    int     `mapstructure:"min_event_duration"`
	ListLimit           int     `mapstructure:"list_limit"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
}

// RetentionConfig governs periodic pruning of stored analyses.
type RetentionConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	MaxAge   time.Duration `mapstructure:"max_age"`
	Interval time.Duration `mapstructure:"interval"`
}

// AlertingConfig defines event notification routing.
type AlertingConfig struct {
	Enabled   bool           `mapstructure:"enabled"`
	MinEvents int            `mapstructure:"min_events"`
	Channels  []string       `mapstructure:"channels"`
	Telegram  TelegramConfig `mapstructure:"telegram"`
	AMQP      AMQPConfig     `mapstructure:"amqp"`
}

// TelegramConfig describes the Telegram bot channel.
type TelegramConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	BotToken string        `mapstructure:"bot_token"`
	ChatID   string        `mapstructure:"chat_id"`
	APIBase  string        `mapstructure:"api_base"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// AMQPConfig describes the message broker channel.
type AMQPConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	URL        string `mapstructure:"url"`
	Exchange   string `mapstructure:"exchange"`
	RoutingKey string `mapstructure:"routing_key"`
}

// RedisConfig locates the redis instance backing the rate limiter.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// RateLimitConfig bounds per-client request rates on the API.
type RateLimitConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Limit     int           `mapstructure:"limit"`
	Window    time.Duration `mapstructure:"window"`
	KeyPrefix string        `mapstructure:"key_prefix"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ENVWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "envwatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stderr")

	v.SetDefault("server.addr", ":3000")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.request_timeout", "20s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.max_body_bytes", int64(10<<20))

	v.SetDefault("analysis.window_size", 120)
	v.SetDefault("analysis.threshold_multiplier", 3.0)
	v.SetDefault("analysis.min_event_duration", 10)
	v.SetDefault("analysis.list_limit", 50)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.connect_timeout", "5s")

	v.SetDefault("retention.enabled", false)
	v.SetDefault("retention.max_age", "720h")
	v.SetDefault("retention.interval", "1h")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.min_events", 1)
	v.SetDefault("alerting.channels", []string{"telegram"})
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.timeout", "10s")
	v.SetDefault("alerting.amqp.enabled", false)
	v.SetDefault("alerting.amqp.exchange", "envwatch.anomalies")
	v.SetDefault("alerting.amqp.routing_key", "anomaly.detected")

	v.SetDefault("redis.db", 0)

	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.limit", 60)
	v.SetDefault("rate_limit.window", "1m")
	v.SetDefault("rate_limit.key_prefix", "envwatch:rl:")

	v.SetDefault("export.max_data_points", 5000)
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

// maxListLimit mirrors storage.MaxListLimit; storage imports this package.
const maxListLimit = 50

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	a := c.Analysis
	if a.WindowSize < 10 || a.WindowSize > 500 {
		return fmt.Errorf("analysis.window_size must be between 10 and 500")
	}
	if a.ThresholdMultiplier < 1 || a.ThresholdMultiplier > 10 {
		return fmt.Errorf("analysis.threshold_multiplier must be between 1 and 10")
	}
	if a.MinEventDuration < 1 || a.MinEventDuration > 200 {
		return fmt.Errorf("analysis.min_event_duration must be between 1 and 200")
	}
	if a.ListLimit <= 0 || a.ListLimit > maxListLimit {
		return fmt.Errorf("analysis.list_limit must be between 1 and %d", maxListLimit)
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 1 {
		return fmt.Errorf("export.max_data_points must be greater than one")
	}
	if c.Retention.Enabled {
		if c.Retention.MaxAge <= 0 {
			return fmt.Errorf("retention.max_age must be greater than zero")
		}
		if c.Retention.Interval <= 0 {
			return fmt.Errorf("retention.interval must be greater than zero")
		}
	}
	if c.Alerting.MinEvents < 1 {
		return fmt.Errorf("alerting.min_events must be at least 1")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required when telegram is enabled")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required when telegram is enabled")
		}
	}
	if c.Alerting.AMQP.Enabled && c.Alerting.AMQP.URL == "" {
		return fmt.Errorf("alerting.amqp.url is required when amqp is enabled")
	}
	if c.RateLimit.Enabled {
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required when rate_limit is enabled")
		}
		if c.RateLimit.Limit <= 0 || c.RateLimit.Window <= 0 {
			return fmt.Errorf("rate_limit.limit and rate_limit.window must be greater than zero")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
