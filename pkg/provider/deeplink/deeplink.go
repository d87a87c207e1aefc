// Package deeplink implements the in-app browser flow used by mobile shells:
// the provider page returns to the application through an app link, and the
// host application forwards that link to the client.
package deeplink

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"ares/go-client/internal/platform/privacylog"
	"ares/go-client/pkg/identity"
	"ares/go-client/pkg/models"
	"ares/go-client/pkg/provider"
)

const (
	Name               = "internet-identity-middleware"
	DefaultProviderURL = "https://identity.ic0.app"
)

var ErrNoAppLink = errors.New("deeplink provider: app link is not configured")

type InAppBrowser interface {
	Open(ctx context.Context, url string) error
	Close(ctx context.Context) error
}

type Config struct {
	ProviderURL string
	// AppLink is the URL the provider page redirects to, e.g. myapp://auth.
	AppLink     string
	Browser     InAppBrowser
	DisplayName string
	Logo        string
}

type Provider struct {
	cfg       Config
	handshake *provider.Handshake
	logger    *slog.Logger
}

func New(cfg Config) *Provider {
	if cfg.ProviderURL == "" {
		cfg.ProviderURL = DefaultProviderURL
	}
	if cfg.DisplayName == "" {
		cfg.DisplayName = "Internet Identity"
	}
	return &Provider{
		cfg:       cfg,
		handshake: provider.NewHandshake(Name, true),
		logger:    privacylog.Discard(),
	}
}

func (p *Provider) Name() string        { return Name }
func (p *Provider) DisplayName() string { return p.cfg.DisplayName }
func (p *Provider) Logo() string        { return p.cfg.Logo }

func (p *Provider) Init(ctx context.Context, coord provider.Coordinator) error {
	if p.cfg.AppLink == "" {
		return ErrNoAppLink
	}
	if p.cfg.Browser == nil {
		return errors.New("deeplink provider: no in-app browser configured")
	}
	if err := p.handshake.Init(coord); err != nil {
		return err
	}
	if logger := coord.Logger(); logger != nil {
		p.logger = logger.With("provider", Name)
	}
	return nil
}

// Connect opens the provider page and returns without an identity. A second
// Connect before the app link arrives replaces the pending session key.
func (p *Provider) Connect(ctx context.Context) (*identity.DelegatedIdentity, error) {
	key, err := p.handshake.Begin()
	if err != nil {
		return nil, err
	}
	if err := p.cfg.Browser.Close(ctx); err != nil {
		p.logger.Debug("closing in-app browser failed", "error", err.Error())
	}
	u, err := url.Parse(p.cfg.ProviderURL)
	if err != nil {
		p.handshake.Abandon(key)
		return nil, fmt.Errorf("deeplink provider: provider url: %w", err)
	}
	q := u.Query()
	q.Set("redirect_uri", p.cfg.AppLink)
	q.Set("pubkey", hex.EncodeToString(key.PublicKeyDER()))
	u.RawQuery = q.Encode()

	if err := p.cfg.Browser.Open(ctx, u.String()); err != nil {
		p.handshake.Abandon(key)
		return nil, fmt.Errorf("deeplink provider: open in-app browser: %w", err)
	}
	p.logger.Info("awaiting app link", "session_key", key.Fingerprint())
	return nil, nil
}

func (p *Provider) OnExternalCallback(ctx context.Context, params models.CallbackParams) (*identity.DelegatedIdentity, error) {
	id, err := p.handshake.Complete(ctx, params)
	if cerr := p.cfg.Browser.Close(ctx); cerr != nil {
		p.logger.Debug("closing in-app browser failed", "error", cerr.Error())
	}
	return id, err
}

// HandleAppLink parses the raw app link and completes the handshake.
func (p *Provider) HandleAppLink(ctx context.Context, link string) (*identity.DelegatedIdentity, error) {
	params, err := models.CallbackParamsFromURL(link)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrInvalidCallback, err)
	}
	return p.OnExternalCallback(ctx, params)
}

func (p *Provider) Disconnect(ctx context.Context, principal string) error {
	p.logger.Info("disconnect", "principal", principal)
	return p.cfg.Browser.Close(ctx)
}
