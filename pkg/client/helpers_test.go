package client

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"ares/go-client/internal/platform/privacylog"
	"ares/go-client/pkg/events"
	"ares/go-client/pkg/identity"
	"ares/go-client/pkg/models"
	"ares/go-client/pkg/provider"
	"ares/go-client/pkg/storage"
)

// fakeProvider completes its handshake in-process: every Connect gets a
// chain from a fresh root key, so each connect yields a new principal.
type fakeProvider struct {
	name      string
	handshake *provider.Handshake
	ttl       time.Duration

	mu            sync.Mutex
	inits         int
	initErr       error
	connectErr    error
	disconnectErr error
	disconnected  []string
}

func newFakeProvider(name string) *fakeProvider {
	return &fakeProvider{name: name, handshake: provider.NewHandshake(name, false), ttl: time.Hour}
}

func (p *fakeProvider) Name() string        { return p.name }
func (p *fakeProvider) DisplayName() string { return "Fake " + p.name }
func (p *fakeProvider) Logo() string        { return "" }

func (p *fakeProvider) Init(_ context.Context, coord provider.Coordinator) error {
	p.mu.Lock()
	p.inits++
	initErr := p.initErr
	p.mu.Unlock()
	if initErr != nil {
		return initErr
	}
	return p.handshake.Init(coord)
}

func (p *fakeProvider) Connect(ctx context.Context) (*identity.DelegatedIdentity, error) {
	p.mu.Lock()
	connectErr := p.connectErr
	p.mu.Unlock()
	if connectErr != nil {
		return nil, connectErr
	}
	key, err := p.handshake.Begin()
	if err != nil {
		return nil, err
	}
	root, err := identity.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	chain, err := identity.CreateChain(root, key.PublicKeyDER(), time.Now().Add(p.ttl), nil, nil)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(chain)
	if err != nil {
		return nil, err
	}
	return p.handshake.Complete(ctx, models.CallbackParams{
		PublicKey:  hex.EncodeToString(key.PublicKeyDER()),
		Delegation: string(raw),
	})
}

func (p *fakeProvider) Disconnect(_ context.Context, principal string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disconnectErr != nil {
		return p.disconnectErr
	}
	p.disconnected = append(p.disconnected, principal)
	return nil
}

func (p *fakeProvider) setInitErr(err error) {
	p.mu.Lock()
	p.initErr = err
	p.mu.Unlock()
}

func (p *fakeProvider) setConnectErr(err error) {
	p.mu.Lock()
	p.connectErr = err
	p.mu.Unlock()
}

func (p *fakeProvider) initCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inits
}

var errStorageDown = errors.New("storage down")

// flakyStorage fails writes while failing is set.
type flakyStorage struct {
	*storage.Memory
	mu      sync.Mutex
	failing bool
}

func (f *flakyStorage) setFailing(v bool) {
	f.mu.Lock()
	f.failing = v
	f.mu.Unlock()
}

func (f *flakyStorage) SetItem(ctx context.Context, key, value string) error {
	f.mu.Lock()
	failing := f.failing
	f.mu.Unlock()
	if failing {
		return &storage.Error{Op: storage.OpSet, Key: key, Err: errStorageDown}
	}
	return f.Memory.SetItem(ctx, key, value)
}

// recorder captures every event of the client bus.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func record(c *Client) *recorder {
	r := &recorder{}
	for _, topic := range []events.Topic{
		events.ConnectSuccess, events.ConnectError,
		events.DisconnectSuccess, events.DisconnectError,
		events.IdentityAdded, events.IdentityRemoved,
	} {
		c.Events().Subscribe(topic, func(e events.Event) {
			r.mu.Lock()
			r.events = append(r.events, e)
			r.mu.Unlock()
		})
	}
	return r
}

func (r *recorder) topics() []events.Topic {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Topic, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Topic)
	}
	return out
}

func (r *recorder) count(topic events.Topic) int {
	n := 0
	for _, t := range r.topics() {
		if t == topic {
			n++
		}
	}
	return n
}

func (r *recorder) last(topic events.Topic) (events.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Topic == topic {
			return r.events[i], true
		}
	}
	return events.Event{}, false
}

func newClient(t *testing.T, cfg Config) *Client {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = privacylog.Discard()
	}
	c, err := Create(cfg)
	if err != nil {
		t.Fatalf("create client failed: %v", err)
	}
	return c
}

func initClient(t *testing.T, cfg Config) *Client {
	t.Helper()
	c := newClient(t, cfg)
	if err := c.Init(context.Background()); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	return c
}

func principals(entries []models.IdentityEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Principal())
	}
	return out
}
