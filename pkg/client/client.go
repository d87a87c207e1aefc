// Package client is the session coordinator: it owns the persisted sessions
// and their in-memory index, drives provider handshakes and hands out
// transport actors bound to an identity.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"

	"ares/go-client/internal/metrics"
	"ares/go-client/internal/platform/privacylog"
	"ares/go-client/internal/platform/ratelimiter"
	"ares/go-client/internal/registry"
	"ares/go-client/internal/sessionstore"
	"ares/go-client/pkg/agent"
	"ares/go-client/pkg/events"
	"ares/go-client/pkg/identity"
	"ares/go-client/pkg/models"
	"ares/go-client/pkg/provider"
	"ares/go-client/pkg/storage"
)

const (
	defaultAgentCacheSize = 64
	connectLimiterIdleTTL = 30 * time.Minute
)

// Canister names a candid service. A nil Agent falls back to Config.Agent.
type Canister struct {
	CanisterID string
	Agent      *agent.Options
}

type RestService struct {
	BaseURL string
	Timeout time.Duration
}

// ConnectLimit throttles Connect per provider. A zero value disables it.
type ConnectLimit struct {
	RatePerSecond float64
	Burst         int
}

type Config struct {
	Providers []provider.Provider
	// Storage defaults to a fresh in-memory store.
	Storage storage.Storage
	Logger  *slog.Logger
	// Registerer receives the client metrics. Nil keeps them in a private
	// registry exposed by Client.Metrics.
	Registerer prometheus.Registerer

	// Agent is the default transport for canisters without their own.
	Agent          *agent.Options
	Canisters      map[string]Canister
	RestServices   map[string]RestService
	AgentCacheSize int

	Connect ConnectLimit
	// VerifyPolicy defaults to trusting canister signatures, which cannot be
	// checked client-side.
	VerifyPolicy *identity.VerifyPolicy
	Clock        func() time.Time
}

type agentKey struct {
	host      string
	options   string
	principal string
	session   string
}

type Client struct {
	providers []provider.Provider
	byName    map[string]provider.Provider

	storage  storage.Storage
	store    *sessionstore.Store
	registry *registry.Registry
	bus      *events.Bus
	logger   *slog.Logger
	metrics  metrics.SessionMetrics
	gatherer prometheus.Gatherer
	limiter  *ratelimiter.MapLimiter
	now      func() time.Time

	defaultAgent *agent.Options
	canisters    map[string]Canister
	restServices map[string]RestService
	agents       *lru.Cache[agentKey, *agent.Agent]

	initMu      sync.Mutex
	initialized atomic.Bool
	// ready holds providers whose Init succeeded, guarded by initMu.
	ready map[string]bool

	// opMu serializes every persist+index pair.
	opMu sync.Mutex

	currentMu sync.RWMutex
	current   string
}

// Create validates cfg and wires the client. It does no I/O.
func Create(cfg Config) (*Client, error) {
	byName := make(map[string]provider.Provider, len(cfg.Providers))
	for i, p := range cfg.Providers {
		if p == nil {
			return nil, fmt.Errorf("provider %d is nil", i)
		}
		name := strings.TrimSpace(p.Name())
		if name == "" {
			return nil, fmt.Errorf("provider %d has an empty name", i)
		}
		if _, dup := byName[name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateProvider, name)
		}
		byName[name] = p
	}

	st := cfg.Storage
	if st == nil {
		st = storage.NewMemory()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = privacylog.DefaultLogger()
	}
	var gatherer prometheus.Gatherer
	reg := cfg.Registerer
	if reg == nil {
		private := prometheus.NewRegistry()
		reg, gatherer = private, private
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	m, err := metrics.InitMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	policy := identity.VerifyPolicy{TrustCanisterSignatures: true}
	if cfg.VerifyPolicy != nil {
		policy = *cfg.VerifyPolicy
	}

	size := cfg.AgentCacheSize
	if size <= 0 {
		size = defaultAgentCacheSize
	}
	agents, err := lru.New[agentKey, *agent.Agent](size)
	if err != nil {
		return nil, err
	}

	c := &Client{
		providers:    append([]provider.Provider(nil), cfg.Providers...),
		byName:       byName,
		storage:      st,
		registry:     registry.New(),
		bus:          events.NewBus(),
		logger:       logger,
		metrics:      m,
		gatherer:     gatherer,
		limiter:      ratelimiter.New(cfg.Connect.RatePerSecond, cfg.Connect.Burst, connectLimiterIdleTTL),
		now:          now,
		defaultAgent: cfg.Agent,
		canisters:    make(map[string]Canister, len(cfg.Canisters)),
		restServices: make(map[string]RestService, len(cfg.RestServices)),
		agents:       agents,
		ready:        make(map[string]bool, len(cfg.Providers)),
	}
	for name, can := range cfg.Canisters {
		c.canisters[name] = can
	}
	for name, svc := range cfg.RestServices {
		c.restServices[name] = svc
	}
	c.store = sessionstore.New(st,
		sessionstore.WithLogger(logger),
		sessionstore.WithMetrics(m),
		sessionstore.WithVerifyPolicy(policy),
		sessionstore.WithClock(now),
	)
	return c, nil
}

// Init loads persisted sessions, restores the current provider and
// initializes every provider. Only the first successful call does work; a
// retry after a failure skips providers that already initialized.
func (c *Client) Init(ctx context.Context) error {
	c.initMu.Lock()
	defer c.initMu.Unlock()
	if c.initialized.Load() {
		return nil
	}

	if n, err := c.store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate legacy sessions: %w", err)
	} else if n > 0 {
		c.logger.Info("legacy sessions migrated", "count", n)
	}
	entries, err := c.store.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("load sessions: %w", err)
	}

	current, ok, err := c.storage.GetItem(ctx, storage.CurrentProviderKey)
	if err != nil {
		c.metrics.StorageError(string(storage.OpGet))
		return fmt.Errorf("load current provider: %w", err)
	}
	if ok {
		if _, known := c.byName[current]; !known {
			c.logger.Warn("stored current provider is not registered", "provider", current)
			current = ""
		}
	}

	for _, p := range c.providers {
		name := p.Name()
		if c.ready[name] {
			continue
		}
		if err := p.Init(ctx, c); err != nil {
			return fmt.Errorf("init provider %s: %w", name, err)
		}
		c.ready[name] = true
	}

	c.opMu.Lock()
	c.registry.Load(entries)
	c.metrics.SetIdentities(c.registry.Len())
	c.opMu.Unlock()
	c.setCurrentLocal(current)
	c.initialized.Store(true)
	c.logger.Info("client initialized", "identities", len(entries), "providers", len(c.providers))
	return nil
}

func (c *Client) requireInit() error {
	if !c.initialized.Load() {
		return ErrNotInitialized
	}
	return nil
}

func (c *Client) GetProvider(name string) (provider.Provider, error) {
	p, ok := c.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	return p, nil
}

// GetProviders returns the registered providers in registration order.
func (c *Client) GetProviders() []models.ProviderInfo {
	out := make([]models.ProviderInfo, 0, len(c.providers))
	for _, p := range c.providers {
		out = append(out, provider.Info(p))
	}
	return out
}

func (c *Client) Events() *events.Bus { return c.bus }

func (c *Client) Logger() *slog.Logger { return c.logger }

// Metrics returns the gatherer holding the client metrics, or nil when they
// went to a caller-supplied registerer that cannot be gathered.
func (c *Client) Metrics() prometheus.Gatherer { return c.gatherer }

func (c *Client) CurrentProvider() string {
	c.currentMu.RLock()
	defer c.currentMu.RUnlock()
	return c.current
}

func (c *Client) setCurrentLocal(name string) {
	c.currentMu.Lock()
	c.current = name
	c.currentMu.Unlock()
}

// setCurrent records name as the current provider. Persisting the marker is
// best effort: a failure is logged and the in-memory value still changes.
func (c *Client) setCurrent(ctx context.Context, name string) {
	c.setCurrentLocal(name)
	var err error
	op := storage.OpSet
	if name == "" {
		op = storage.OpRemove
		err = c.storage.RemoveItem(ctx, storage.CurrentProviderKey)
	} else {
		err = c.storage.SetItem(ctx, storage.CurrentProviderKey, name)
	}
	if err != nil {
		c.metrics.StorageError(string(op))
		c.logger.Warn("persist current provider failed", "provider", name, "error", err)
	}
}
