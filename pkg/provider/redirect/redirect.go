// Package redirect implements the browser redirect flow: the session key is
// sent to the identity provider in the login URL and the delegation comes
// back on a loopback HTTP listener.
package redirect

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"ares/go-client/internal/platform/privacylog"
	"ares/go-client/pkg/identity"
	"ares/go-client/pkg/models"
	"ares/go-client/pkg/provider"
)

const (
	Name                 = "internet-identity"
	DefaultProviderURL   = "https://identity.ic0.app"
	DefaultMaxTimeToLive = 8 * time.Hour
	DefaultTimeout       = 5 * time.Minute
	callbackPath         = "/callback"
	// callbackGrace bounds the wait for a callback that claimed the session
	// key right before the deadline.
	callbackGrace = 10 * time.Second
)

// Browser hands a URL to the user's browser.
type Browser interface {
	Open(ctx context.Context, url string) error
}

type BrowserFunc func(ctx context.Context, url string) error

func (f BrowserFunc) Open(ctx context.Context, url string) error { return f(ctx, url) }

type Config struct {
	ProviderURL   string
	MaxTimeToLive time.Duration
	// ListenAddr is the loopback address of the callback listener.
	ListenAddr  string
	Timeout     time.Duration
	Browser     Browser
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
	if cfg.MaxTimeToLive <= 0 {
		cfg.MaxTimeToLive = DefaultMaxTimeToLive
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:0"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.DisplayName == "" {
		cfg.DisplayName = "Internet Identity"
	}
	return &Provider{
		cfg:       cfg,
		handshake: provider.NewHandshake(Name, false),
		logger:    privacylog.Discard(),
	}
}

func (p *Provider) Name() string        { return Name }
func (p *Provider) DisplayName() string { return p.cfg.DisplayName }
func (p *Provider) Logo() string        { return p.cfg.Logo }

func (p *Provider) Init(ctx context.Context, coord provider.Coordinator) error {
	if p.cfg.Browser == nil {
		return errors.New("redirect provider: no browser configured")
	}
	if _, err := url.Parse(p.cfg.ProviderURL); err != nil {
		return fmt.Errorf("redirect provider: provider url: %w", err)
	}
	if err := p.handshake.Init(coord); err != nil {
		return err
	}
	if logger := coord.Logger(); logger != nil {
		p.logger = logger.With("provider", Name)
	}
	return nil
}

type result struct {
	id  *identity.DelegatedIdentity
	err error
}

// Connect blocks until the provider redirects back, ctx ends or the
// configured timeout passes.
func (p *Provider) Connect(ctx context.Context) (*identity.DelegatedIdentity, error) {
	key, err := p.handshake.Begin()
	if err != nil {
		return nil, err
	}
	ln, err := net.Listen("tcp", p.cfg.ListenAddr)
	if err != nil {
		p.handshake.Abandon(key)
		return nil, fmt.Errorf("redirect provider: listen: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	results := make(chan result, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+callbackPath, func(w http.ResponseWriter, r *http.Request) {
		id, err := p.handshake.Complete(ctx, models.CallbackParamsFromQuery(r.URL.Query()))
		writePage(w, err)
		if errors.Is(err, provider.ErrNoPendingHandshake) {
			// A stray or repeated redirect; the claiming request reports.
			return
		}
		select {
		case results <- result{id: id, err: err}:
		default:
		}
	})
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.logger.Warn("callback listener stopped", "error", err.Error())
		}
	}()
	defer func() {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 2*time.Second)
		defer stop()
		_ = srv.Shutdown(shutdownCtx)
	}()

	authURL, err := p.authorizeURL(key, "http://"+ln.Addr().String()+callbackPath)
	if err != nil {
		p.handshake.Abandon(key)
		return nil, err
	}
	p.logger.Info("opening identity provider", "session_key", key.Fingerprint())
	if err := p.cfg.Browser.Open(ctx, authURL); err != nil {
		p.handshake.Abandon(key)
		return nil, fmt.Errorf("redirect provider: open browser: %w", err)
	}

	select {
	case res := <-results:
		return res.id, res.err
	case <-ctx.Done():
		if p.handshake.Abandon(key) {
			return nil, ctx.Err()
		}
		// A callback claimed the key before the deadline, so its outcome
		// stands even if persisting it outlived ctx.
		grace := time.NewTimer(callbackGrace)
		defer grace.Stop()
		select {
		case res := <-results:
			return res.id, res.err
		case <-grace.C:
			return nil, ctx.Err()
		}
	}
}

// Disconnect has nothing to revoke remotely; the delegation simply expires.
func (p *Provider) Disconnect(ctx context.Context, principal string) error {
	p.logger.Info("disconnect", "principal", principal)
	return nil
}

func (p *Provider) authorizeURL(key *identity.KeyPair, callback string) (string, error) {
	u, err := url.Parse(p.cfg.ProviderURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("pubkey", hex.EncodeToString(key.PublicKeyDER()))
	q.Set("redirect_uri", callback)
	q.Set("max_time_to_live", strconv.FormatInt(p.cfg.MaxTimeToLive.Nanoseconds(), 10))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func writePage(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = fmt.Fprint(w, "<!doctype html><title>Sign-in failed</title><p>Sign-in failed. You can close this window and try again.</p>")
		return
	}
	_, _ = fmt.Fprint(w, "<!doctype html><title>Signed in</title><p>Signed in. You can close this window.</p>")
}
