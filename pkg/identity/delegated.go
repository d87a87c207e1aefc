package identity

import (
	"bytes"
	"fmt"
	"time"
)

// DelegatedIdentity signs with the session key and presents the chain so the
// request is attributed to the chain's root principal.
type DelegatedIdentity struct {
	key       *KeyPair
	chain     *Chain
	principal Principal
}

func NewDelegatedIdentity(key *KeyPair, chain *Chain) (*DelegatedIdentity, error) {
	if key == nil {
		return nil, fmt.Errorf("%w: nil key pair", ErrKeyFormat)
	}
	if chain == nil || len(chain.Delegations) == 0 || len(chain.PublicKey) == 0 {
		return nil, fmt.Errorf("%w: empty chain", ErrInvalidDelegation)
	}
	if !bytes.Equal(chain.SessionPublicKey(), key.der) {
		return nil, ErrChainNotBound
	}
	return &DelegatedIdentity{
		key:       key,
		chain:     chain,
		principal: SelfAuthenticating(chain.PublicKey),
	}, nil
}

func (d *DelegatedIdentity) Principal() Principal {
	return d.principal.Bytes()
}

func (d *DelegatedIdentity) PublicKeyDER() []byte {
	return append([]byte(nil), d.chain.PublicKey...)
}

func (d *DelegatedIdentity) Sign(msg []byte) ([]byte, error) {
	return d.key.Sign(msg)
}

func (d *DelegatedIdentity) Delegations() []SignedDelegation {
	return append([]SignedDelegation(nil), d.chain.Delegations...)
}

func (d *DelegatedIdentity) Key() *KeyPair {
	return d.key
}

func (d *DelegatedIdentity) Chain() *Chain {
	return d.chain
}

func (d *DelegatedIdentity) Expiration() time.Time {
	return d.chain.Expiration()
}

func (d *DelegatedIdentity) Validate(now time.Time, policy VerifyPolicy) error {
	return d.chain.Validate(now, policy)
}
