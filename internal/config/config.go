package config

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"cloudpulse/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Logging    logging.Config   `mapstructure:"logging"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	AWS        AWSConfig        `mapstructure:"aws"`
	SMTP       SMTPConfig       `mapstructure:"smtp"`
	Alerting   AlertingConfig   `mapstructure:"alerting"`
	Encryption EncryptionConfig `mapstructure:"encryption"`
	Export     ExportConfig     `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// RedisConfig backs the durable scheduler queue. An empty addr disables the
// queue backend and the in-process timer fallback is used instead.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SchedulerConfig governs the fetch-cycle cadence.
type SchedulerConfig struct {
	Interval         time.Duration `mapstructure:"interval"`
	LookbackDays     int           `mapstructure:"lookback_days"`
	StartupDelay     time.Duration `mapstructure:"startup_delay"`
	FetchConcurrency int           `mapstructure:"fetch_concurrency"`
	AdvisoryLockKey  int64         `mapstructure:"advisory_lock_key"`
}

// AWSConfig covers Cost Explorer access.
type AWSConfig struct {
	Region         string        `mapstructure:"region"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// SMTPConfig parameterises the email alert channel.
type SMTPConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// AlertingConfig defines dispatch behaviour.
type AlertingConfig struct {
	DedupWindow    time.Duration `mapstructure:"dedup_window"`
	WebhookTimeout time.Duration `mapstructure:"webhook_timeout"`
}

// EncryptionConfig holds the credential encryption key (hex, 32 bytes).
type EncryptionConfig struct {
	Key string `mapstructure:"key"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CLOUDPULSE")
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
	v.SetDefault("app.name", "cloudpulse")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "6h")
	v.SetDefault("scheduler.lookback_days", 2)
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.fetch_concurrency", 4)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x63706C73))

	v.SetDefault("redis.db", 0)

	v.SetDefault("aws.region", "us-east-1")
	v.SetDefault("aws.request_timeout", "30s")

	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.from", "CloudPulse <alerts@cloudpulse.dev>")
	v.SetDefault("smtp.timeout", "10s")

	v.SetDefault("alerting.dedup_window", "6h")
	v.SetDefault("alerting.webhook_timeout", "10s")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
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

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Scheduler.LookbackDays < 0 {
		return fmt.Errorf("scheduler.lookback_days cannot be negative")
	}
	if c.Scheduler.FetchConcurrency <= 0 {
		return fmt.Errorf("scheduler.fetch_concurrency must be greater than zero")
	}
	if c.Alerting.DedupWindow <= 0 {
		return fmt.Errorf("alerting.dedup_window must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Encryption.Key != "" {
		raw, err := hex.DecodeString(c.Encryption.Key)
		if err != nil {
			return fmt.Errorf("encryption.key must be hex encoded: %w", err)
		}
		if len(raw) != 32 {
			return fmt.Errorf("encryption.key must decode to 32 bytes, got %d", len(raw))
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
