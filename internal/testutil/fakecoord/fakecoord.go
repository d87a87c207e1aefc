// Package fakecoord is a provider.Coordinator backed by an in-memory session
// store, for provider tests that run without a client.
package fakecoord

import (
	"context"
	"log/slog"
	"sync"

	"ares/go-client/internal/platform/privacylog"
	"ares/go-client/internal/sessionstore"
	"ares/go-client/pkg/identity"
	"ares/go-client/pkg/storage"
)

type Coordinator struct {
	Store *sessionstore.Store

	mu      sync.Mutex
	added   []*identity.DelegatedIdentity
	removed []string
}

func New() *Coordinator {
	return &Coordinator{Store: sessionstore.New(storage.NewMemory())}
}

func (c *Coordinator) AddIdentity(ctx context.Context, key *identity.KeyPair, chain *identity.Chain, provider string) (*identity.DelegatedIdentity, error) {
	id, err := c.Store.Persist(ctx, key, chain, provider)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.added = append(c.added, id)
	c.mu.Unlock()
	return id, nil
}

func (c *Coordinator) RemoveIdentity(ctx context.Context, principal string) error {
	if _, err := c.Store.Remove(ctx, principal); err != nil {
		return err
	}
	c.mu.Lock()
	c.removed = append(c.removed, principal)
	c.mu.Unlock()
	return nil
}

func (c *Coordinator) Logger() *slog.Logger {
	return privacylog.Discard()
}

func (c *Coordinator) Added() []*identity.DelegatedIdentity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*identity.DelegatedIdentity(nil), c.added...)
}

func (c *Coordinator) Removed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.removed...)
}
