package client

import (
	"context"
	"fmt"

	"ares/go-client/pkg/events"
	"ares/go-client/pkg/identity"
	"ares/go-client/pkg/models"
)

// GetIdentities returns a snapshot of the held identities, oldest first.
func (c *Client) GetIdentities() ([]models.IdentityEntry, error) {
	if err := c.requireInit(); err != nil {
		return nil, err
	}
	return c.registry.List(), nil
}

// AddIdentity persists the session for key and chain, then indexes it and
// emits identity-added. Nothing is indexed when persisting fails.
func (c *Client) AddIdentity(ctx context.Context, key *identity.KeyPair, chain *identity.Chain, providerName string) (*identity.DelegatedIdentity, error) {
	if err := c.requireInit(); err != nil {
		return nil, err
	}
	if _, err := c.GetProvider(providerName); err != nil {
		return nil, err
	}

	c.opMu.Lock()
	id, err := c.store.Persist(ctx, key, chain, providerName)
	if err != nil {
		c.opMu.Unlock()
		return nil, err
	}
	entry := models.IdentityEntry{Identity: id, Provider: providerName}
	c.registry.Add(entry)
	c.metrics.SetIdentities(c.registry.Len())
	c.opMu.Unlock()

	principal := entry.Principal()
	c.logger.Info("identity added", "principal", principal, "provider", providerName, "expires_at", entry.ExpiresAt())
	c.bus.Emit(events.IdentityAdded, models.IdentityChange{Principal: principal, Provider: providerName})
	return id, nil
}

// RemoveIdentity deletes the session for principal. Removing an unknown
// principal succeeds without emitting anything.
func (c *Client) RemoveIdentity(ctx context.Context, principal string) error {
	if err := c.requireInit(); err != nil {
		return err
	}

	c.opMu.Lock()
	stored, err := c.store.Remove(ctx, principal)
	if err != nil {
		c.opMu.Unlock()
		return fmt.Errorf("remove identity: %w", err)
	}
	entry, indexed := c.registry.Get(principal)
	c.registry.Remove(principal)
	c.metrics.SetIdentities(c.registry.Len())
	c.opMu.Unlock()

	if !stored && !indexed {
		return nil
	}
	c.dropAgents(principal)
	c.logger.Info("identity removed", "principal", principal, "provider", entry.Provider)
	c.bus.Emit(events.IdentityRemoved, models.IdentityChange{Principal: principal, Provider: entry.Provider})
	return nil
}
