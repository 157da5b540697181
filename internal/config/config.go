// Package config loads the shared cart service configuration.
//
// Sources are applied in order, later ones winning: built-in defaults, an
// optional YAML file, then SHAREDCART_* environment variables. An env name
// maps to a key by dropping the prefix, lowercasing and turning every
// underscore into a dot, so keys never contain underscores.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	EnvPrefix = "SHAREDCART_"
	// FileEnv names the variable holding the optional YAML file path.
	FileEnv = EnvPrefix + "CONFIG"
)

type Config struct {
	App    AppConfig    `koanf:"app"`
	HTTP   HTTPConfig   `koanf:"http"`
	Remote RemoteConfig `koanf:"remote"`
	Cache  CacheConfig  `koanf:"cache"`
	Redis  RedisConfig  `koanf:"redis"`
	Kafka  KafkaConfig  `koanf:"kafka"`
	Share  ShareConfig  `koanf:"share"`
	Sweep  SweepConfig  `koanf:"sweep"`
}

type AppConfig struct {
	Env   string `koanf:"env"`
	Level string `koanf:"level"`
}

type HTTPConfig struct {
	Addr     string        `koanf:"addr"`
	Timeout  time.Duration `koanf:"timeout"`
	Shutdown time.Duration `koanf:"shutdown"`
}

// RemoteConfig describes the authoritative MongoDB tier. An empty URI keeps
// shared carts in process memory.
type RemoteConfig struct {
	URI      string        `koanf:"uri"`
	Database string        `koanf:"database"`
	Timeout  time.Duration `koanf:"timeout"`
	TTL      time.Duration `koanf:"ttl"`
	Breaker  BreakerConfig `koanf:"breaker"`
}

type BreakerConfig struct {
	// Failures is the consecutive failure count that opens the breaker; 0 disables it.
	Failures uint32        `koanf:"failures"`
	Timeout  time.Duration `koanf:"timeout"`
}

type CacheConfig struct {
	// Driver is badger or redis.
	Driver   string `koanf:"driver"`
	Dir      string `koanf:"dir"`
	InMemory bool   `koanf:"inmemory"`
}

type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type KafkaConfig struct {
	Brokers []string `koanf:"brokers"`
	Topic   string   `koanf:"topic"`
}

type ShareConfig struct {
	Attempts int    `koanf:"attempts"`
	IDGen    string `koanf:"idgen"`
}

type SweepConfig struct {
	Interval time.Duration `koanf:"interval"`
}

func Default() *Config {
	return &Config{
		App: AppConfig{Env: "development", Level: "info"},
		HTTP: HTTPConfig{
			Addr:     ":8080",
			Timeout:  30 * time.Second,
			Shutdown: 10 * time.Second,
		},
		Remote: RemoteConfig{
			Database: "sharedcarts",
			Timeout:  5 * time.Second,
			TTL:      24 * time.Hour,
			Breaker:  BreakerConfig{Failures: 5, Timeout: 30 * time.Second},
		},
		Cache: CacheConfig{Driver: "badger", Dir: "./data/badger"},
		Redis: RedisConfig{Addr: "localhost:6379"},
		Kafka: KafkaConfig{Topic: "shared-cart-events"},
		Share: ShareConfig{Attempts: 3, IDGen: "timestamp"},
		Sweep: SweepConfig{Interval: 10 * time.Minute},
	}
}

// Load reads path (may be empty) and the environment over the defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	transform := func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		return strings.ReplaceAll(strings.ToLower(s), "_", ".")
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", transform), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Cache.Driver {
	case "badger", "redis":
	default:
		errs = append(errs, fmt.Errorf("cache.driver must be badger or redis, got %q", c.Cache.Driver))
	}
	switch c.Share.IDGen {
	case "", "timestamp", "ulid":
	default:
		errs = append(errs, fmt.Errorf("share.idgen must be timestamp or ulid, got %q", c.Share.IDGen))
	}
	if c.Remote.TTL <= 0 {
		errs = append(errs, errors.New("remote.ttl must be positive"))
	}
	if c.Remote.Timeout <= 0 {
		errs = append(errs, errors.New("remote.timeout must be positive"))
	}
	if c.Share.Attempts < 1 {
		errs = append(errs, errors.New("share.attempts must be at least 1"))
	}
	if c.Cache.Driver == "badger" && c.Cache.Dir == "" && !c.Cache.InMemory {
		errs = append(errs, errors.New("cache.dir is required for the badger driver"))
	}
	return errors.Join(errs...)
}
