// Package identity holds the signing primitives of the SDK: the local session
// key pair, delegation chains issued by identity providers, and the delegated
// identity that combines both.
package identity

// Identity is anything that can authenticate a request: a bare key pair, a
// delegated identity, or the anonymous identity.
type Identity interface {
	Principal() Principal
	// PublicKeyDER is the DER SubjectPublicKeyInfo of the sender key. For a
	// delegated identity this is the root key of the chain.
	PublicKeyDER() []byte
	Sign(msg []byte) ([]byte, error)
	Delegations() []SignedDelegation
}

// Signer is the subset of Identity needed to issue delegations.
type Signer interface {
	PublicKeyDER() []byte
	Sign(msg []byte) ([]byte, error)
}

type Anonymous struct{}

func (Anonymous) Principal() Principal            { return AnonymousPrincipal() }
func (Anonymous) PublicKeyDER() []byte            { return nil }
func (Anonymous) Sign([]byte) ([]byte, error)     { return nil, nil }
func (Anonymous) Delegations() []SignedDelegation { return nil }
