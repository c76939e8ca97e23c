// Package config loads settings from an optional config.yaml plus
// PALAVER_-prefixed environment variables, environment winning.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Database  DatabaseConfig
	Redis     RedisConfig
	Cache     CacheConfig
	Access    AccessConfig
	Snowflake SnowflakeConfig
	Logging   LoggingConfig
}

type DatabaseConfig struct {
	URL string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

type CacheConfig struct {
	// L1SizeMB bounds the in-process grant cache.
	L1SizeMB int
	// GrantTTL bounds how long a grant entry may be served, independent of
	// version staleness.
	GrantTTL time.Duration
}

type AccessConfig struct {
	// DenyGroupsEnabled turns the denied-groups revocation rule on.
	DenyGroupsEnabled bool
}

type SnowflakeConfig struct {
	NodeID int64
}

type LoggingConfig struct {
	Level string
}

// Load reads config.yaml from configPath (or the working directory) when one
// exists, then applies environment overrides.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix("PALAVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	cfg.Database.URL = v.GetString("database.url")
	cfg.Redis.Addr = v.GetString("redis.addr")
	cfg.Redis.Password = v.GetString("redis.password")
	cfg.Redis.DB = v.GetInt("redis.db")
	cfg.Redis.PoolSize = v.GetInt("redis.pool_size")
	cfg.Cache.L1SizeMB = v.GetInt("cache.l1_size_mb")
	cfg.Cache.GrantTTL = v.GetDuration("cache.grant_ttl")
	cfg.Access.DenyGroupsEnabled = v.GetBool("access.deny_groups_enabled")
	cfg.Snowflake.NodeID = v.GetInt64("snowflake.node_id")
	cfg.Logging.Level = v.GetString("logging.level")
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.url", "postgres://localhost:5432/palaver?sslmode=disable")
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("cache.l1_size_mb", 32)
	v.SetDefault("cache.grant_ttl", "10m")
	v.SetDefault("access.deny_groups_enabled", true)
	v.SetDefault("snowflake.node_id", 0)
	v.SetDefault("logging.level", "info")
}
