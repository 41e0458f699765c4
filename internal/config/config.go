// README: Config loader; defaults, then an optional YAML file, then RIDEBID_* env overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type AuctionConfig struct {
	SweepInterval       time.Duration `yaml:"sweep_interval"`
	CollaboratorTimeout time.Duration `yaml:"collaborator_timeout"`
	DispatchWorkers     int           `yaml:"dispatch_workers"`
	DispatchQueue       int           `yaml:"dispatch_queue"`
}

type Config struct {
	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`
	DB struct {
		DSN string `yaml:"dsn"`
	} `yaml:"db"`
	Redis struct {
		Addr      string        `yaml:"addr"`
		MirrorTTL time.Duration `yaml:"mirror_ttl"`
	} `yaml:"redis"`
	AMQP struct {
		URL      string `yaml:"url"`
		Exchange string `yaml:"exchange"`
	} `yaml:"amqp"`
	Auction AuctionConfig `yaml:"auction"`
	Log     struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

func Default() Config {
	var cfg Config
	cfg.HTTP.Addr = ":8080"
	cfg.Redis.MirrorTTL = time.Hour
	cfg.AMQP.Exchange = "auction_topic"
	cfg.Auction = AuctionConfig{
		SweepInterval:       5 * time.Second,
		CollaboratorTimeout: 5 * time.Second,
		DispatchWorkers:     4,
		DispatchQueue:       256,
	}
	cfg.Log.Level = "info"
	return cfg
}

// Load reads path (or RIDEBID_CONFIG when path is empty) if set, then applies
// env overrides. Empty DSN, Redis or AMQP settings disable that collaborator.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("RIDEBID_CONFIG")
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.HTTP.Addr = envOrDefault("RIDEBID_HTTP_ADDR", cfg.HTTP.Addr)
	cfg.DB.DSN = envOrDefault("RIDEBID_DB_DSN", cfg.DB.DSN)
	cfg.Redis.Addr = envOrDefault("RIDEBID_REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.MirrorTTL = envOrDefaultDuration("RIDEBID_MIRROR_TTL", cfg.Redis.MirrorTTL)
	cfg.AMQP.URL = envOrDefault("RIDEBID_AMQP_URL", cfg.AMQP.URL)
	cfg.AMQP.Exchange = envOrDefault("RIDEBID_AMQP_EXCHANGE", cfg.AMQP.Exchange)
	cfg.Auction.SweepInterval = envOrDefaultDuration("RIDEBID_SWEEP_INTERVAL", cfg.Auction.SweepInterval)
	cfg.Auction.CollaboratorTimeout = envOrDefaultDuration("RIDEBID_COLLABORATOR_TIMEOUT", cfg.Auction.CollaboratorTimeout)
	cfg.Auction.DispatchWorkers = envOrDefaultInt("RIDEBID_DISPATCH_WORKERS", cfg.Auction.DispatchWorkers)
	cfg.Auction.DispatchQueue = envOrDefaultInt("RIDEBID_DISPATCH_QUEUE", cfg.Auction.DispatchQueue)
	cfg.Log.Level = envOrDefault("RIDEBID_LOG_LEVEL", cfg.Log.Level)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Auction.SweepInterval <= 0 {
		return fmt.Errorf("auction.sweep_interval must be positive, got %s", c.Auction.SweepInterval)
	}
	if c.Auction.CollaboratorTimeout <= 0 {
		return fmt.Errorf("auction.collaborator_timeout must be positive, got %s", c.Auction.CollaboratorTimeout)
	}
	if c.Auction.DispatchWorkers <= 0 || c.Auction.DispatchQueue <= 0 {
		return fmt.Errorf("auction dispatch workers and queue must be positive")
	}
	return nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
