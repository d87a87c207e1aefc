package client

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"

	"ares/go-client/internal/config"
	"ares/go-client/internal/platform/privacylog"
	"ares/go-client/pkg/agent"
	"ares/go-client/pkg/provider"
	"ares/go-client/pkg/storage"
)

// CreateFromFile builds a client from a YAML config file (see
// config.LoadFromPath for lookup and environment overrides).
func CreateFromFile(path string, providers ...provider.Provider) (*Client, error) {
	cfg, err := config.LoadFromPath(path)
	if err != nil {
		return nil, err
	}
	return CreateFromConfig(cfg, providers...)
}

func CreateFromConfig(cfg config.Config, providers ...provider.Provider) (*Client, error) {
	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	st, err := openStorage(cfg.Storage)
	if err != nil {
		return nil, err
	}

	out := Config{
		Providers: providers,
		Storage:   st,
		Logger:    privacylog.NewLogger(os.Stderr, level),
		Connect: ConnectLimit{
			RatePerSecond: cfg.Connect.RatePerSecond,
			Burst:         cfg.Connect.Burst,
		},
		Canisters:    make(map[string]Canister, len(cfg.Canisters)),
		RestServices: make(map[string]RestService, len(cfg.RestServices)),
	}
	if cfg.Agent.Host != "" {
		opts, err := agentOptions(cfg.Agent, cfg.Agent.Host)
		if err != nil {
			return nil, err
		}
		out.Agent = &opts
	}
	for name, can := range cfg.Canisters {
		entry := Canister{CanisterID: can.CanisterID}
		if can.Host != "" {
			opts, err := agentOptions(cfg.Agent, can.Host)
			if err != nil {
				return nil, err
			}
			entry.Agent = &opts
		}
		out.Canisters[name] = entry
	}
	for name, svc := range cfg.RestServices {
		out.RestServices[name] = RestService{BaseURL: svc.BaseURL, Timeout: svc.Timeout}
	}
	return Create(out)
}

func agentOptions(base config.AgentConfig, host string) (agent.Options, error) {
	opts := agent.Options{
		Host:          host,
		IngressExpiry: base.IngressExpiry,
		Timeout:       base.Timeout,
	}
	if base.RootKey != "" {
		key, err := hex.DecodeString(base.RootKey)
		if err != nil {
			return agent.Options{}, fmt.Errorf("%w: agent root key is not hex", config.ErrInvalid)
		}
		opts.RootKey = key
	}
	return opts, nil
}

func openStorage(cfg config.StorageConfig) (storage.Storage, error) {
	switch cfg.Backend {
	case config.BackendFile:
		var opts []storage.FileOption
		if cfg.Passphrase != "" {
			opts = append(opts, storage.WithPassphrase(cfg.Passphrase))
		}
		f, err := storage.NewFile(cfg.Path, opts...)
		if err != nil {
			return nil, err
		}
		return f, nil
	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		return storage.NewRedis(rdb, cfg.RedisPrefix), nil
	case config.BackendMemory, "":
		return storage.NewMemory(), nil
	default:
		return nil, fmt.Errorf("%w: unknown storage backend %q", config.ErrInvalid, cfg.Backend)
	}
}
