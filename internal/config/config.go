package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"concretesync/pkg/circuitbreaker"
	"concretesync/pkg/config"
)

// 变更流驱动
const (
	FeedDriverAMQP     = "amqp"
	FeedDriverPostgres = "postgres"
	FeedDriverMemory   = "memory"
)

type InstanceConfig struct {
	ID string `yaml:"id"` // 为空时启动时生成
}

type FeedConfig struct {
	Driver          string `yaml:"driver"`
	Exchange        string `yaml:"exchange"`
	PGChannel       string `yaml:"pg_channel"`
	DedupTTLSeconds int    `yaml:"dedup_ttl_seconds"`
}

type SyncConfig struct {
	LivenessIntervalSeconds int    `yaml:"liveness_interval_seconds"`
	BroadcastKey            string `yaml:"broadcast_key"`
	BroadcastChannel        string `yaml:"broadcast_channel"`
}

type NotificationConfig struct {
	StoreCapacity      int    `yaml:"store_capacity"`
	AutoDismissSeconds int    `yaml:"auto_dismiss_seconds"`
	Timezone           string `yaml:"timezone"`
	ConfigKey          string `yaml:"config_key"`
	PushEnabled        bool   `yaml:"push_enabled"`
}

type Config struct {
	Server         config.ServerConfig   `yaml:"server"`
	Log            config.LogConfig      `yaml:"log"`
	Instance       InstanceConfig        `yaml:"instance"`
	DB             config.DBConfig       `yaml:"db"`
	MQ             config.MQConfig       `yaml:"mq"`
	Redis          config.RedisConfig    `yaml:"redis"`
	JWT            config.JWTConfig      `yaml:"jwt"`
	Feed           FeedConfig            `yaml:"feed"`
	Sync           SyncConfig            `yaml:"sync"`
	Notification   NotificationConfig    `yaml:"notification"`
	CircuitBreaker circuitbreaker.Config `yaml:"circuit_breaker"`
}

func Load() *Config {
	// 使用统一配置中心
	env := config.GetConfigEnv()
	configDir := config.GetEnv("CONFIG_DIR", "config")

	cfg, err := LoadFrom(env, configDir)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

// LoadFrom 加载配置、应用环境变量覆盖并校验
func LoadFrom(env, configDir string) (*Config, error) {
	var cfg Config
	if err := config.LoadInto(env, configDir, &cfg); err != nil {
		return nil, err
	}

	// 环境变量覆盖（优先级最高）
	config.OverrideServerFromEnv(&cfg.Server)
	config.OverrideLogFromEnv(&cfg.Log)
	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideJWTFromEnv(&cfg.JWT)
	if driver := os.Getenv("FEED_DRIVER"); driver != "" {
		cfg.Feed.Driver = driver
	}
	if id := os.Getenv("INSTANCE_ID"); id != "" {
		cfg.Instance.ID = id
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = ":8080"
	}
	if c.Feed.Driver == "" {
		c.Feed.Driver = FeedDriverAMQP
	}
	if c.Feed.Exchange == "" {
		c.Feed.Exchange = "feed"
	}
	if c.Feed.PGChannel == "" {
		c.Feed.PGChannel = "table_changes"
	}
	if c.Feed.DedupTTLSeconds <= 0 {
		c.Feed.DedupTTLSeconds = 600
	}
	if c.Sync.LivenessIntervalSeconds <= 0 {
		c.Sync.LivenessIntervalSeconds = 30
	}
	if c.Sync.BroadcastKey == "" {
		c.Sync.BroadcastKey = "sync:broadcast"
	}
	if c.Sync.BroadcastChannel == "" {
		c.Sync.BroadcastChannel = "sync:broadcast:changed"
	}
	if c.Notification.StoreCapacity <= 0 {
		c.Notification.StoreCapacity = 20
	}
	if c.Notification.AutoDismissSeconds <= 0 {
		c.Notification.AutoDismissSeconds = 10
	}
	if c.Notification.ConfigKey == "" {
		c.Notification.ConfigKey = "notification_config"
	}
}

func (c *Config) Validate() error {
	switch c.Feed.Driver {
	case FeedDriverAMQP, FeedDriverPostgres, FeedDriverMemory:
	default:
		return fmt.Errorf("unknown feed driver %q", c.Feed.Driver)
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location 通知免打扰时段使用的时区，为空时使用本地时区
func (c *Config) Location() (*time.Location, error) {
	if c.Notification.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Notification.Timezone)
	if err != nil {
		return nil, fmt.Errorf("notification.timezone: %w", err)
	}
	return loc, nil
}

func (c *Config) LivenessInterval() time.Duration {
	return time.Duration(c.Sync.LivenessIntervalSeconds) * time.Second
}

func (c *Config) DedupTTL() time.Duration {
	return time.Duration(c.Feed.DedupTTLSeconds) * time.Second
}

func (c *Config) AutoDismiss() time.Duration {
	return time.Duration(c.Notification.AutoDismissSeconds) * time.Second
}
