// Package config loads the client configuration from YAML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	LogLevel     string
	Agent        AgentConfig
	Storage      StorageConfig
	Connect      ConnectConfig
	Canisters    map[string]CanisterConfig
	RestServices map[string]RestConfig
}

// AgentConfig is the default transport. An empty Host means no default agent.
type AgentConfig struct {
	Host          string
	IngressExpiry time.Duration
	Timeout       time.Duration
	RootKey       string
}

type StorageConfig struct {
	Backend     string
	Path        string
	Passphrase  string
	RedisAddr   string
	RedisDB     int
	RedisPrefix string
}

type ConnectConfig struct {
	RatePerSecond float64
	Burst         int
}

type CanisterConfig struct {
	CanisterID string
	// Host overrides the default agent host for this canister.
	Host string
}

type RestConfig struct {
	BaseURL string
	Timeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Storage:  StorageConfig{Backend: BackendMemory, RedisPrefix: "ares:"},
		Connect:  ConnectConfig{RatePerSecond: 1, Burst: 3},
	}
}

type FileConfig struct {
	LogLevel     string                   `yaml:"logLevel"`
	Agent        FileAgentConfig          `yaml:"agent"`
	Storage      FileStorageConfig        `yaml:"storage"`
	Connect      FileConnectConfig        `yaml:"connect"`
	Canisters    map[string]FileCanister  `yaml:"canisters"`
	RestServices map[string]FileRestEntry `yaml:"restServices"`
}

type FileAgentConfig struct {
	Host          string        `yaml:"host"`
	IngressExpiry time.Duration `yaml:"ingressExpiry"`
	Timeout       time.Duration `yaml:"timeout"`
	RootKey       string        `yaml:"rootKey"`
}

type FileStorageConfig struct {
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Passphrase  string `yaml:"passphrase"`
	RedisAddr   string `yaml:"redisAddr"`
	RedisDB     *int   `yaml:"redisDB"`
	RedisPrefix string `yaml:"redisPrefix"`
}

type FileConnectConfig struct {
	RatePerSecond *float64 `yaml:"ratePerSecond"`
	Burst         *int     `yaml:"burst"`
}

type FileCanister struct {
	CanisterID string `yaml:"canisterId"`
	Host       string `yaml:"host"`
}

type FileRestEntry struct {
	BaseURL string        `yaml:"baseUrl"`
	Timeout time.Duration `yaml:"timeout"`
}

// LoadFromPath reads configPath, or the first default location that exists
// when configPath is empty, then applies environment overrides. A missing
// default file is not an error; a missing explicit one is.
func LoadFromPath(configPath string) (Config, error) {
	cfg := DefaultConfig()

	candidates := make([]string, 0, 2)
	if configPath != "" {
		candidates = append(candidates, configPath)
	} else {
		candidates = append(candidates,
			"configs/ares.yaml",
			"ares.yaml",
		)
	}

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			if configPath != "" {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
			continue
		}

		var parsed FileConfig
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
		Merge(&cfg, parsed)
		break
	}

	ApplyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Merge(dst *Config, src FileConfig) {
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
	if src.Agent.Host != "" {
		dst.Agent.Host = src.Agent.Host
	}
	if src.Agent.IngressExpiry != 0 {
		dst.Agent.IngressExpiry = src.Agent.IngressExpiry
	}
	if src.Agent.Timeout != 0 {
		dst.Agent.Timeout = src.Agent.Timeout
	}
	if src.Agent.RootKey != "" {
		dst.Agent.RootKey = src.Agent.RootKey
	}
	if src.Storage.Backend != "" {
		dst.Storage.Backend = src.Storage.Backend
	}
	if src.Storage.Path != "" {
		dst.Storage.Path = src.Storage.Path
	}
	if src.Storage.Passphrase != "" {
		dst.Storage.Passphrase = src.Storage.Passphrase
	}
	if src.Storage.RedisAddr != "" {
		dst.Storage.RedisAddr = src.Storage.RedisAddr
	}
	if src.Storage.RedisDB != nil {
		dst.Storage.RedisDB = *src.Storage.RedisDB
	}
	if src.Storage.RedisPrefix != "" {
		dst.Storage.RedisPrefix = src.Storage.RedisPrefix
	}
	if src.Connect.RatePerSecond != nil {
		dst.Connect.RatePerSecond = *src.Connect.RatePerSecond
	}
	if src.Connect.Burst != nil {
		dst.Connect.Burst = *src.Connect.Burst
	}
	if src.Canisters != nil {
		dst.Canisters = make(map[string]CanisterConfig, len(src.Canisters))
		for name, c := range src.Canisters {
			dst.Canisters[name] = CanisterConfig{CanisterID: c.CanisterID, Host: c.Host}
		}
	}
	if src.RestServices != nil {
		dst.RestServices = make(map[string]RestConfig, len(src.RestServices))
		for name, r := range src.RestServices {
			dst.RestServices[name] = RestConfig{BaseURL: r.BaseURL, Timeout: r.Timeout}
		}
	}
}

func ApplyEnvOverrides(cfg *Config) {
	if host := strings.TrimSpace(os.Getenv("ARES_AGENT_HOST")); host != "" {
		cfg.Agent.Host = host
	}
	if backend := strings.TrimSpace(os.Getenv("ARES_STORAGE_BACKEND")); backend != "" {
		cfg.Storage.Backend = strings.ToLower(backend)
	}
	if path := strings.TrimSpace(os.Getenv("ARES_STORAGE_PATH")); path != "" {
		cfg.Storage.Path = path
	}
	// Passphrases may legitimately contain surrounding spaces.
	if pass := os.Getenv("ARES_STORAGE_PASSPHRASE"); pass != "" {
		cfg.Storage.Passphrase = pass
	}
	if addr := strings.TrimSpace(os.Getenv("ARES_REDIS_ADDR")); addr != "" {
		cfg.Storage.RedisAddr = addr
	}
	if level := strings.TrimSpace(os.Getenv("ARES_LOG_LEVEL")); level != "" {
		cfg.LogLevel = level
	}

	raw := strings.TrimSpace(os.Getenv("ARES_CONNECT_RATE"))
	if raw == "" {
		return
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return
	}
	cfg.Connect.RatePerSecond = v
}

func (c Config) Validate() error {
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendFile:
		if strings.TrimSpace(c.Storage.Path) == "" {
			return fmt.Errorf("%w: file storage requires a path", ErrInvalid)
		}
	case BackendRedis:
		if strings.TrimSpace(c.Storage.RedisAddr) == "" {
			return fmt.Errorf("%w: redis storage requires an address", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown storage backend %q", ErrInvalid, c.Storage.Backend)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	for name, can := range c.Canisters {
		if strings.TrimSpace(can.CanisterID) == "" {
			return fmt.Errorf("%w: canister %s has no canisterId", ErrInvalid, name)
		}
	}
	for name, svc := range c.RestServices {
		if strings.TrimSpace(svc.BaseURL) == "" {
			return fmt.Errorf("%w: rest service %s has no baseUrl", ErrInvalid, name)
		}
	}
	return nil
}

func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("%w: log level %q", ErrInvalid, c.LogLevel)
	}
	return level, nil
}
