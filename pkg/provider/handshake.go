package provider

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"ares/go-client/pkg/identity"
	"ares/go-client/pkg/models"
)

// Handshake tracks one provider's session-key exchange:
// uninitialized -> initialized -> awaiting -> initialized.
// Only the most recently issued key is accepted on completion, and every
// completion attempt, good or bad, ends the wait.
type Handshake struct {
	name         string
	allowRestart bool
	newKey       func() (*identity.KeyPair, error)

	mu      sync.Mutex
	coord   Coordinator
	pending *identity.KeyPair
}

// NewHandshake builds the state machine for provider name. With allowRestart
// a Begin while awaiting replaces the pending key instead of failing.
func NewHandshake(name string, allowRestart bool) *Handshake {
	return &Handshake{name: name, allowRestart: allowRestart, newKey: identity.GenerateKeyPair}
}

func (h *Handshake) Init(coord Coordinator) error {
	if coord == nil {
		return fmt.Errorf("%w: nil coordinator", ErrNotInitialized)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.coord = coord
	return nil
}

func (h *Handshake) Coordinator() Coordinator {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.coord
}

func (h *Handshake) Awaiting() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pending != nil
}

// Begin issues a fresh session key and enters the awaiting state.
func (h *Handshake) Begin() (*identity.KeyPair, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.coord == nil {
		return nil, ErrNotInitialized
	}
	if h.pending != nil && !h.allowRestart {
		return nil, ErrHandshakeInProgress
	}
	key, err := h.newKey()
	if err != nil {
		return nil, err
	}
	h.pending = key
	return key, nil
}

// Abandon leaves the awaiting state if key is still the pending one and
// reports whether it was. False means a completion already claimed key.
func (h *Handshake) Abandon(key *identity.KeyPair) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pending != nil && h.pending.Equal(key) {
		h.pending = nil
		return true
	}
	return false
}

// Complete checks a callback against the pending key and hands the chain to
// the coordinator. Nothing is stored when it fails.
func (h *Handshake) Complete(ctx context.Context, params models.CallbackParams) (*identity.DelegatedIdentity, error) {
	h.mu.Lock()
	if h.coord == nil {
		h.mu.Unlock()
		return nil, ErrNotInitialized
	}
	key, coord := h.pending, h.coord
	h.pending = nil
	h.mu.Unlock()

	if key == nil {
		return nil, ErrNoPendingHandshake
	}
	chain, err := VerifyCallback(key, params)
	if err != nil {
		return nil, err
	}
	return coord.AddIdentity(ctx, key, chain, h.name)
}

// VerifyCallback checks that params answer for key and decodes the chain.
// The delegation may arrive raw or still percent-encoded.
func VerifyCallback(key *identity.KeyPair, params models.CallbackParams) (*identity.Chain, error) {
	params = models.NormalizeCallbackParams(params)
	if params.Error != "" {
		return nil, fmt.Errorf("%w: provider reported %q", ErrInvalidCallback, params.Error)
	}
	if params.PublicKey == "" || params.Delegation == "" {
		return nil, fmt.Errorf("%w: missing publicKey or delegation", ErrInvalidCallback)
	}
	if params.PublicKey != hex.EncodeToString(key.PublicKeyDER()) {
		return nil, ErrKeyMismatch
	}
	chain, err := identity.ParseChain([]byte(params.Delegation))
	if err != nil && strings.Contains(params.Delegation, "%") {
		decoded, uerr := url.QueryUnescape(params.Delegation)
		if uerr != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCallback, uerr)
		}
		chain, err = identity.ParseChain([]byte(decoded))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCallback, err)
	}
	return chain, nil
}
