package main

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/privatestate/attribution-go/issuer"
)

// EnvPrefix is the prefix of environment variables read by pst-issuer.
const EnvPrefix = "PST_ISSUER"

// Config is the issuer server configuration.
type Config struct {
	Listen       string
	Origin       string
	KeyFiles     []string
	CommitmentID int
	SpentTTL     time.Duration
	Redis        issuer.RedisConfig
	LogLevel     string
	Development  bool
}

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"listen":         "listen",
	"origin":         "origin",
	"key":            "keys",
	"commitment-id":  "commitment_id",
	"spent-ttl":      "spent_ttl",
	"redis-addr":     "redis.addr",
	"redis-password": "redis.password",
	"redis-db":       "redis.db",
	"redis-prefix":   "redis.prefix",
	"log-level":      "log_level",
	"dev":            "development",
}

func registerFlags(flags *pflag.FlagSet) {
	flags.StringP("config", "c", "", "Configuration file (yaml, toml or json)")
	flags.String("listen", ":8080", "Address to listen on")
	flags.String("origin", "", "Issuer origin published in the key commitment")
	flags.StringSlice("key", nil, "Signing key PEM file; repeat for several keys")
	flags.Int("commitment-id", 1, "Key commitment id")
	flags.Duration("spent-ttl", issuer.DefaultSpentTTL, "How long tokens of non-expiring keys are remembered")
	flags.String("redis-addr", "", "Redis address for the spent token store; memory when empty")
	flags.String("redis-password", "", "Redis password")
	flags.Int("redis-db", 0, "Redis database")
	flags.String("redis-prefix", issuer.DefaultRedisPrefix, "Redis key prefix")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.Bool("dev", false, "Development logging")
}

// bindConfig wires flags, environment and the optional config file into v.
func bindConfig(v *viper.Viper, flags *pflag.FlagSet) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for flag, key := range flagKeys {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return err
		}
	}

	path, _ := flags.GetString("config")
	if path == "" {
		path = v.GetString("config")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return err
		}
	}
	return nil
}

func loadConfig(v *viper.Viper) (Config, error) {
	cfg := Config{
		Listen:       v.GetString("listen"),
		Origin:       v.GetString("origin"),
		KeyFiles:     v.GetStringSlice("keys"),
		CommitmentID: v.GetInt("commitment_id"),
		SpentTTL:     v.GetDuration("spent_ttl"),
		Redis: issuer.RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			Prefix:   v.GetString("redis.prefix"),
		},
		LogLevel:    v.GetString("log_level"),
		Development: v.GetBool("development"),
	}
	if cfg.Origin == "" {
		return cfg, errors.New("origin is required")
	}
	if len(cfg.KeyFiles) == 0 {
		return cfg, errors.New("at least one signing key is required")
	}
	if cfg.SpentTTL <= 0 {
		return cfg, errors.New("spent_ttl must be positive")
	}
	return cfg, nil
}
