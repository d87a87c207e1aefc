package client

import (
	"context"
	"fmt"

	"ares/go-client/internal/metrics"
	"ares/go-client/pkg/events"
	"ares/go-client/pkg/identity"
	"ares/go-client/pkg/models"
	"ares/go-client/pkg/provider"
)

// Connect runs the named provider's handshake. When it completes in-process
// the new identity is returned and connect-success is emitted. A nil
// identity with a nil error means the handshake was handed to an external
// agent; HandleCallback finishes it. Failures emit connect-error and are
// also returned.
func (c *Client) Connect(ctx context.Context, name string) (*identity.DelegatedIdentity, error) {
	if err := c.requireInit(); err != nil {
		return nil, err
	}
	p, err := c.GetProvider(name)
	if err != nil {
		return nil, err
	}
	if ok, wait := c.limiter.Reserve(name, c.now()); !ok {
		c.metrics.ConnectAttempt(name, metrics.ResultThrottle)
		err := fmt.Errorf("%w: %s, retry in %s", ErrConnectThrottled, name, wait)
		c.connectFailed(name, err)
		return nil, err
	}

	c.logger.Info("connect started", "provider", name)
	id, err := p.Connect(ctx)
	if err != nil {
		c.metrics.ConnectAttempt(name, metrics.ResultError)
		c.connectFailed(name, err)
		return nil, err
	}
	if id == nil {
		c.metrics.ConnectAttempt(name, metrics.ResultHandoff)
		c.logger.Info("connect handed off to external agent", "provider", name)
		return nil, nil
	}
	c.connected(ctx, name, id)
	return id, nil
}

// HandleCallback completes a handed-off handshake with the parameters the
// external agent returned.
func (c *Client) HandleCallback(ctx context.Context, name string, params models.CallbackParams) (*identity.DelegatedIdentity, error) {
	if err := c.requireInit(); err != nil {
		return nil, err
	}
	p, err := c.GetProvider(name)
	if err != nil {
		return nil, err
	}
	receiver, ok := p.(provider.CallbackReceiver)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCallbackUnsupported, name)
	}
	id, err := receiver.OnExternalCallback(ctx, params)
	if err != nil {
		c.metrics.ConnectAttempt(name, metrics.ResultError)
		c.connectFailed(name, err)
		return nil, err
	}
	c.connected(ctx, name, id)
	return id, nil
}

func (c *Client) connected(ctx context.Context, name string, id *identity.DelegatedIdentity) {
	c.metrics.ConnectAttempt(name, metrics.ResultSuccess)
	// Only attempts that did not yield an identity count against the bucket.
	c.limiter.Forget(name)
	c.setCurrent(ctx, name)
	c.logger.Info("connect succeeded", "provider", name, "principal", id.Principal().String())
	c.bus.Emit(events.ConnectSuccess, models.ConnectSuccess{Provider: name, Identity: id})
}

func (c *Client) connectFailed(name string, err error) {
	c.logger.Warn("connect failed", "provider", name, "error", err)
	c.bus.Emit(events.ConnectError, models.ConnectFailure{Provider: name, Err: err})
}

// Disconnect signs principal out of its provider and forgets the session.
// An unknown principal is a no-op. The current provider marker is cleared
// once its provider holds no identities.
func (c *Client) Disconnect(ctx context.Context, principal string) error {
	if err := c.requireInit(); err != nil {
		return err
	}
	entry, ok := c.registry.Get(principal)
	if !ok {
		return nil
	}

	if p, registered := c.byName[entry.Provider]; registered {
		if err := p.Disconnect(ctx, principal); err != nil {
			c.disconnectFailed(entry.Provider, principal, err)
			return err
		}
	} else {
		c.logger.Warn("identity provider is not registered, skipping provider sign-out", "provider", entry.Provider)
	}
	if err := c.RemoveIdentity(ctx, principal); err != nil {
		c.disconnectFailed(entry.Provider, principal, err)
		return err
	}

	if c.CurrentProvider() == entry.Provider && len(c.registry.ByProvider(entry.Provider)) == 0 {
		c.setCurrent(ctx, "")
	}
	c.logger.Info("disconnected", "provider", entry.Provider, "principal", principal)
	c.bus.Emit(events.DisconnectSuccess, models.DisconnectSuccess{Provider: entry.Provider, Principal: principal})
	return nil
}

func (c *Client) disconnectFailed(providerName, principal string, err error) {
	c.logger.Warn("disconnect failed", "provider", providerName, "principal", principal, "error", err)
	c.bus.Emit(events.DisconnectError, models.DisconnectFailure{Provider: providerName, Principal: principal, Err: err})
}
