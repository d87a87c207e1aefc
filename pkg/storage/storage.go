// Package storage is the key/value persistence seam of the SDK. The client
// keeps two keys in it: the stored identity collection and the marker of the
// last used provider.
package storage

import (
	"context"
	"fmt"
)

const (
	CurrentProviderKey  = "CURRENT_PROVIDER_KEY"
	StoredIdentitiesKey = "STORED_IDENTITIES_KEY"

	// Layout written by earlier releases: one shared session key plus a list
	// of chains. Only read by migration.
	LegacyIdentityKey         = "ARES_IDENTITY_KEY"
	LegacyDelegationChainsKey = "ARES_DELEGATION_CHAINS_KEY"
)

// Storage is a string key/value store. GetItem reports absence with ok=false
// and a nil error.
type Storage interface {
	GetItem(ctx context.Context, key string) (value string, ok bool, err error)
	SetItem(ctx context.Context, key, value string) error
	RemoveItem(ctx context.Context, key string) error
}

type Op string

const (
	OpGet    Op = "get"
	OpSet    Op = "set"
	OpRemove Op = "remove"
)

// Error is returned by every backend for a failed read, write or delete.
type Error struct {
	Op  Op
	Key string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrap(op Op, key string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Key: key, Err: err}
}
