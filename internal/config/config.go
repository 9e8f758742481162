package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the whole service configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	MySQL   MySQLConfig   `mapstructure:"mysql"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	Loyalty LoyaltyConfig `mapstructure:"loyalty"`
	Points  PointsConfig  `mapstructure:"points"`
	Sync    SyncConfig    `mapstructure:"sync"`
	Jobs    JobsConfig    `mapstructure:"jobs"`
	Log     LogConfig     `mapstructure:"log"`
}

type ServerConfig struct {
	Port     int   `mapstructure:"port"`
	WorkerID int64 `mapstructure:"worker_id"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers       []string         `mapstructure:"brokers"`
	Topic         KafkaTopicConfig `mapstructure:"topic"`
	MaxRetryCount int              `mapstructure:"max_retry_count"`
}

type KafkaTopicConfig struct {
	Notifications string `mapstructure:"notifications"`
}

// LoyaltyConfig holds every tunable of the award engine. Nothing outside this
// section may hard-code a threshold.
type LoyaltyConfig struct {
	TradieThreshold      int64  `mapstructure:"tradie_threshold"`
	ForemanThreshold     int64  `mapstructure:"foreman_threshold"`
	PunchCardTarget      int    `mapstructure:"punch_card_target"`
	PunchCardBonus       int64  `mapstructure:"punch_card_bonus"`
	StreakThreshold      int    `mapstructure:"streak_threshold"`
	QRPoints             int64  `mapstructure:"qr_points"`
	QRPrefix             string `mapstructure:"qr_prefix"`
	ReferrerBonus        int64  `mapstructure:"referrer_bonus"`
	RefereeBonus         int64  `mapstructure:"referee_bonus"`
	RedemptionCodePrefix string `mapstructure:"redemption_code_prefix"`
	StreakCodePrefix     string `mapstructure:"streak_code_prefix"`
	TimeZone             string `mapstructure:"time_zone"`
	LockTTLSeconds       int    `mapstructure:"lock_ttl_seconds"`
	LockRetryMillis      int    `mapstructure:"lock_retry_millis"`
	LockMaxRetries       int    `mapstructure:"lock_max_retries"`
}

// PointsConfig is the product-name → points table. Keywords are matched as
// lower-case substrings, groups are checked in order large, small, snack.
// PerDollar prices manually entered purchases.
type PointsConfig struct {
	LargeDrink    int64    `mapstructure:"large_drink"`
	SmallDrink    int64    `mapstructure:"small_drink"`
	Snack         int64    `mapstructure:"snack"`
	Default       int64    `mapstructure:"default"`
	PerDollar     int64    `mapstructure:"per_dollar"`
	LargeKeywords []string `mapstructure:"large_keywords"`
	SmallKeywords []string `mapstructure:"small_keywords"`
	SnackKeywords []string `mapstructure:"snack_keywords"`
}

type SyncConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	BaseURL         string `mapstructure:"base_url"`
	APIKey          string `mapstructure:"api_key"`
	IntervalSeconds int    `mapstructure:"interval_seconds"`
	LookbackHours   int    `mapstructure:"lookback_hours"`
}

type JobsConfig struct {
	ReconcileIntervalMinutes int `mapstructure:"reconcile_interval_minutes"`
	SeasonCheckMinutes       int `mapstructure:"season_check_minutes"`
}

type LogConfig struct {
	Env     string `mapstructure:"env"`
	Service string `mapstructure:"service"`
}

func (c LoyaltyConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

func (c LoyaltyConfig) LockRetryInterval() time.Duration {
	return time.Duration(c.LockRetryMillis) * time.Millisecond
}

func (c LoyaltyConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.Local
	}
	return loc
}

func (c SyncConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// Validate checks the loyalty rules for contradictions.
func (c *Config) Validate() error {
	l := c.Loyalty
	var errs []error
	if l.TradieThreshold <= 0 {
		errs = append(errs, errors.New("loyalty.tradie_threshold must be positive"))
	}
	if l.ForemanThreshold <= l.TradieThreshold {
		errs = append(errs, errors.New("loyalty.foreman_threshold must be greater than tradie_threshold"))
	}
	if l.PunchCardTarget <= 0 {
		errs = append(errs, errors.New("loyalty.punch_card_target must be positive"))
	}
	if l.StreakThreshold <= 0 {
		errs = append(errs, errors.New("loyalty.streak_threshold must be positive"))
	}
	if c.Points.Default < 0 {
		errs = append(errs, errors.New("points.default must not be negative"))
	}
	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.worker_id", 1)

	v.SetDefault("mysql.host", "127.0.0.1")
	v.SetDefault("mysql.port", 3306)
	v.SetDefault("mysql.user", "root")
	v.SetDefault("mysql.password", "")
	v.SetDefault("mysql.database", "hivis_loyalty")
	v.SetDefault("mysql.max_open_conns", 20)
	v.SetDefault("mysql.max_idle_conns", 5)

	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.brokers", []string{"127.0.0.1:9092"})
	v.SetDefault("kafka.topic.notifications", "loyalty.notifications")
	v.SetDefault("kafka.max_retry_count", 5)

	v.SetDefault("loyalty.tradie_threshold", 500)
	v.SetDefault("loyalty.foreman_threshold", 1000)
	v.SetDefault("loyalty.punch_card_target", 10)
	v.SetDefault("loyalty.punch_card_bonus", 100)
	v.SetDefault("loyalty.streak_threshold", 3)
	v.SetDefault("loyalty.qr_points", 10)
	v.SetDefault("loyalty.qr_prefix", "HIVIS_MACHINE_")
	v.SetDefault("loyalty.referrer_bonus", 50)
	v.SetDefault("loyalty.referee_bonus", 25)
	v.SetDefault("loyalty.redemption_code_prefix", "HIVIS")
	v.SetDefault("loyalty.streak_code_prefix", "STREAK")
	v.SetDefault("loyalty.time_zone", "Australia/Sydney")
	v.SetDefault("loyalty.lock_ttl_seconds", 30)
	v.SetDefault("loyalty.lock_retry_millis", 100)
	v.SetDefault("loyalty.lock_max_retries", 30)

	v.SetDefault("points.large_drink", 20)
	v.SetDefault("points.small_drink", 10)
	v.SetDefault("points.snack", 15)
	v.SetDefault("points.default", 10)
	v.SetDefault("points.per_dollar", 10)
	v.SetDefault("points.large_keywords", []string{"large", "600ml", "750ml"})
	v.SetDefault("points.small_keywords", []string{"small", "250ml", "330ml", "can", "bottle", "water", "coke", "pepsi", "sprite"})
	v.SetDefault("points.snack_keywords", []string{"chip", "chocolate", "bar", "snack", "biscuit", "cookie", "nuts", "crackers"})

	v.SetDefault("sync.enabled", false)
	v.SetDefault("sync.base_url", "")
	v.SetDefault("sync.api_key", "")
	v.SetDefault("sync.interval_seconds", 30)
	v.SetDefault("sync.lookback_hours", 24)

	v.SetDefault("jobs.reconcile_interval_minutes", 60)
	v.SetDefault("jobs.season_check_minutes", 10)

	v.SetDefault("log.env", "development")
	v.SetDefault("log.service", "hivis-loyalty")
}

// Load reads configPath (optional) and lets LOYALTY_* environment variables
// override any key, e.g. LOYALTY_MYSQL_HOST.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("LOYALTY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
