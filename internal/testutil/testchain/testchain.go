// Package testchain issues delegation chains from throwaway root keys so
// tests can play the identity provider.
package testchain

import (
	"testing"
	"time"

	"ares/go-client/pkg/identity"
)

type Issued struct {
	Root    *identity.KeyPair
	Session *identity.KeyPair
	Chain   *identity.Chain
}

// Issue delegates from a fresh root key to session (or a fresh session key
// when nil) until now+ttl. A negative ttl yields an expired chain.
func Issue(t testing.TB, session *identity.KeyPair, ttl time.Duration) Issued {
	t.Helper()
	root, err := identity.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate root key failed: %v", err)
	}
	if session == nil {
		session, err = identity.GenerateKeyPair()
		if err != nil {
			t.Fatalf("generate session key failed: %v", err)
		}
	}
	chain, err := identity.CreateChain(root, session.PublicKeyDER(), time.Now().Add(ttl), nil, nil)
	if err != nil {
		t.Fatalf("create chain failed: %v", err)
	}
	return Issued{Root: root, Session: session, Chain: chain}
}

func (i Issued) Principal() string {
	return i.Root.Principal().String()
}

func (i Issued) Identity(t testing.TB) *identity.DelegatedIdentity {
	t.Helper()
	id, err := identity.NewDelegatedIdentity(i.Session, i.Chain)
	if err != nil {
		t.Fatalf("delegated identity failed: %v", err)
	}
	return id
}
