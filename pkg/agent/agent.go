// Package agent talks to replica hosts on behalf of an identity: it signs
// request envelopes, bootstraps the root key of local networks and exposes
// the candid and REST actors built on top.
package agent

import (
	"context"
	"crypto/rand"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"ares/go-client/pkg/identity"
)

const (
	DefaultHost          = "http://localhost:4943"
	DefaultIngressExpiry = 4 * time.Minute
)

type Options struct {
	Host          string
	IngressExpiry time.Duration
	// RootKey pins the network root key and skips the status bootstrap.
	RootKey []byte
	Timeout time.Duration
}

type Agent struct {
	host          string
	identity      identity.Identity
	rest          *resty.Client
	local         bool
	ingressExpiry time.Duration
	now           func() time.Time

	mu      sync.Mutex
	rootKey []byte
}

func New(opts Options, id identity.Identity) (*Agent, error) {
	host := strings.TrimRight(strings.TrimSpace(opts.Host), "/")
	if host == "" {
		host = DefaultHost
	}
	if _, err := url.Parse(host); err != nil {
		return nil, fmt.Errorf("agent host: %w", err)
	}
	if id == nil {
		id = identity.Anonymous{}
	}
	if opts.IngressExpiry <= 0 {
		opts.IngressExpiry = DefaultIngressExpiry
	}
	rest := resty.New().SetBaseURL(host)
	if opts.Timeout > 0 {
		rest.SetTimeout(opts.Timeout)
	}
	return &Agent{
		host:          host,
		identity:      id,
		rest:          rest,
		local:         IsLocal(host),
		ingressExpiry: opts.IngressExpiry,
		now:           time.Now,
		rootKey:       append([]byte(nil), opts.RootKey...),
	}, nil
}

// IsLocal reports whether host is a development network whose root key must
// be fetched instead of trusted from the mainnet constant.
func IsLocal(host string) bool {
	u, err := url.Parse(host)
	if err != nil {
		return false
	}
	hostname := u.Hostname()
	if hostname == "" {
		hostname, _, _ = net.SplitHostPort(host)
	}
	switch {
	case hostname == "127.0.0.1", hostname == "localhost":
		return true
	case strings.HasSuffix(hostname, ".ngrok-free.app"), strings.HasSuffix(hostname, ".loca.lt"):
		return true
	}
	return false
}

func (a *Agent) Host() string                { return a.host }
func (a *Agent) Identity() identity.Identity { return a.identity }
func (a *Agent) IsLocal() bool               { return a.local }

func (a *Agent) RootKey() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]byte(nil), a.rootKey...)
}

type status struct {
	RootKey []byte `cbor:"root_key"`
}

// EnsureRootKey fetches the root key from /api/v2/status once for local
// hosts. A failed fetch is retried on the next call.
func (a *Agent) EnsureRootKey(ctx context.Context) error {
	if !a.local {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.rootKey) > 0 {
		return nil
	}
	resp, err := a.rest.R().SetContext(ctx).Get("/api/v2/status")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRootKey, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: %w", ErrRootKey, &HTTPError{Status: resp.StatusCode(), Body: resp.Body()})
	}
	var st status
	if err := decodeCBOR(resp.Body(), &st); err != nil {
		return fmt.Errorf("%w: %v", ErrRootKey, err)
	}
	if len(st.RootKey) == 0 {
		return fmt.Errorf("%w: status has no root_key", ErrRootKey)
	}
	a.rootKey = st.RootKey
	return nil
}

type queryResponse struct {
	Status        string `cbor:"status"`
	Reply         *reply `cbor:"reply"`
	RejectCode    uint64 `cbor:"reject_code"`
	RejectMessage string `cbor:"reject_message"`
}

type reply struct {
	Arg []byte `cbor:"arg"`
}

// Query runs a read-only method and returns its encoded reply.
func (a *Agent) Query(ctx context.Context, canisterID identity.Principal, method string, arg []byte) ([]byte, error) {
	body, _, err := a.envelope(ctx, "query", canisterID, method, arg)
	if err != nil {
		return nil, err
	}
	resp, err := a.post(ctx, canisterID, "query", body)
	if err != nil {
		return nil, err
	}
	var qr queryResponse
	if err := decodeCBOR(resp, &qr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	switch qr.Status {
	case "replied":
		if qr.Reply == nil {
			return nil, fmt.Errorf("%w: reply without arg", ErrMalformedBody)
		}
		return qr.Reply.Arg, nil
	case "rejected":
		return nil, &RejectError{Code: qr.RejectCode, Message: qr.RejectMessage}
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrMalformedBody, qr.Status)
	}
}

// Call submits an update and returns its request id. The replica answers
// asynchronously; polling the result is left to the caller.
func (a *Agent) Call(ctx context.Context, canisterID identity.Principal, method string, arg []byte) ([32]byte, error) {
	body, reqID, err := a.envelope(ctx, "call", canisterID, method, arg)
	if err != nil {
		return reqID, err
	}
	if _, err := a.post(ctx, canisterID, "call", body); err != nil {
		return reqID, err
	}
	return reqID, nil
}

func (a *Agent) envelope(ctx context.Context, kind string, canisterID identity.Principal, method string, arg []byte) ([]byte, [32]byte, error) {
	if err := a.EnsureRootKey(ctx); err != nil {
		return nil, [32]byte{}, err
	}
	content := requestContent{
		RequestType:   kind,
		CanisterID:    canisterID.Bytes(),
		MethodName:    method,
		Arg:           append([]byte(nil), arg...),
		Sender:        a.identity.Principal().Bytes(),
		IngressExpiry: uint64(a.now().Add(a.ingressExpiry).UnixNano()),
	}
	if kind == "call" {
		content.Nonce = make([]byte, 16)
		if _, err := rand.Read(content.Nonce); err != nil {
			return nil, [32]byte{}, err
		}
	}
	return sign(a.identity, content)
}

func (a *Agent) post(ctx context.Context, canisterID identity.Principal, kind string, body []byte) ([]byte, error) {
	resp, err := a.rest.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/cbor").
		SetBody(body).
		Post("/api/v2/canister/" + canisterID.String() + "/" + kind)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, &HTTPError{Status: resp.StatusCode(), Body: resp.Body()}
	}
	return resp.Body(), nil
}
