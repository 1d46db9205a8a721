// Package config loads walletauth configuration from a YAML file and/or
// environment variables using cleanenv.
//
// Sources, by decreasing priority:
//  1. explicit path (the --config flag);
//  2. the CONFIG_PATH environment variable;
//  3. walletauth.yaml in the working directory;
//  4. environment variables only.
//
// Environment variables are always overlaid on top of file values.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultFile is looked up in the working directory when no path is given.
const DefaultFile = "walletauth.yaml"

// Store drivers.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

// Event drivers.
const (
	EventsGoChannel = "gochannel"
	EventsRedis     = "redis"
)

// Config is the root configuration shared by the CLI client and the reference identity provider.
type Config struct {
	Env    string       `yaml:"env" env:"ENV" env-default:"local"`
	Log    LogConfig    `yaml:"log"`
	Client ClientConfig `yaml:"client"`
	Store  StoreConfig  `yaml:"store"`
	IdP    IdPConfig    `yaml:"idp"`
	Events EventsConfig `yaml:"events"`
}

// LogConfig selects the zap preset and level.
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}

// ClientConfig configures the authenticating client.
type ClientConfig struct {
	BaseURL        string        `yaml:"base_url" env:"BASE_URL" env-default:"http://localhost:9000"`
	Namespace      string        `yaml:"namespace" env:"NAMESPACE" env-default:"default"`
	PrivateKey     string        `yaml:"private_key" env:"WALLET_PRIVATE_KEY"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT" env-default:"30s"`
	// RefreshTimeout bounds the shared refresh call; zero means no bound.
	RefreshTimeout time.Duration `yaml:"refresh_timeout" env:"REFRESH_TIMEOUT" env-default:"0s"`
	RevokeOnLogout bool          `yaml:"revoke_on_logout" env:"REVOKE_ON_LOGOUT" env-default:"false"`
}

// StoreConfig selects the key/value backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" env:"STORE_DRIVER" env-default:"sqlite"`
	SQLitePath  string `yaml:"sqlite_path" env:"STORE_SQLITE_PATH" env-default:".walletauth/session.db"`
	RedisURL    string `yaml:"redis_url" env:"REDIS_URL"`
	RedisPrefix string `yaml:"redis_prefix" env:"STORE_REDIS_PREFIX" env-default:"walletauth:"`
}

// IdPConfig configures the reference identity provider.
type IdPConfig struct {
	Addr            string        `yaml:"addr" env:"IDP_ADDR" env-default:":9000"`
	Issuer          string        `yaml:"issuer" env:"IDP_ISSUER" env-default:"walletauth-idp"`
	ChallengeWindow time.Duration `yaml:"challenge_window" env:"IDP_CHALLENGE_WINDOW" env-default:"5m"`
	AccessTTL       time.Duration `yaml:"access_ttl" env:"IDP_ACCESS_TTL" env-default:"5m"`
	RefreshTTL      time.Duration `yaml:"refresh_ttl" env:"IDP_REFRESH_TTL" env-default:"120h"`
	// LoginRate is the per-IP budget of /auth requests per minute, zero disables it.
	LoginRate int `yaml:"login_rate" env:"IDP_LOGIN_RATE" env-default:"60"`
}

// EventsConfig selects the watermill backend.
type EventsConfig struct {
	Driver string `yaml:"driver" env:"EVENTS_DRIVER" env-default:"gochannel"`
}

// MustLoad wraps Load and panics on error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}

	return cfg
}

// Load reads the configuration following the priority documented on the package.
func Load(path string) (*Config, error) {
	var cfg Config

	switch {
	case path != "":
		if err := readFile(path, &cfg); err != nil {
			return nil, err
		}
	case os.Getenv("CONFIG_PATH") != "":
		if err := readFile(os.Getenv("CONFIG_PATH"), &cfg); err != nil {
			return nil, err
		}
	default:
		if _, err := os.Stat(DefaultFile); err == nil {
			if err := readFile(DefaultFile, &cfg); err != nil {
				return nil, err
			}
		} else if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to read env: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readFile(path string, cfg *Config) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("config file %q stat failed: %w", path, err)
	}

	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	if err := cleanenv.ReadEnv(cfg); err != nil {
		return fmt.Errorf("failed to overlay env: %w", err)
	}

	return nil
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case StoreMemory, StoreSQLite:
	case StoreRedis:
		if c.Store.RedisURL == "" {
			return fmt.Errorf("store driver %q requires redis_url", c.Store.Driver)
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	switch c.Events.Driver {
	case EventsGoChannel:
	case EventsRedis:
		if c.Store.RedisURL == "" {
			return fmt.Errorf("events driver %q requires redis_url", c.Events.Driver)
		}
	default:
		return fmt.Errorf("unknown events driver %q", c.Events.Driver)
	}

	if c.Client.Namespace == "" {
		return fmt.Errorf("client namespace must not be empty")
	}

	return nil
}
