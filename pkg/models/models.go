package models

import (
	"time"

	"ares/go-client/pkg/identity"
)

type IdentityEntry struct {
	Identity *identity.DelegatedIdentity `json:"-"`
	Provider string                      `json:"provider"`
}

// Principal returns the textual principal, or "" for an empty entry.
func (e IdentityEntry) Principal() string {
	if e.Identity == nil {
		return ""
	}
	return e.Identity.Principal().String()
}

func (e IdentityEntry) ExpiresAt() time.Time {
	if e.Identity == nil {
		return time.Time{}
	}
	return e.Identity.Expiration()
}

type ConnectSuccess struct {
	Provider string                      `json:"provider"`
	Identity *identity.DelegatedIdentity `json:"-"`
}

type ConnectFailure struct {
	Provider string `json:"provider"`
	Err      error  `json:"-"`
}

type DisconnectSuccess struct {
	Provider  string `json:"provider"`
	Principal string `json:"principal"`
}

type DisconnectFailure struct {
	Provider  string `json:"provider"`
	Principal string `json:"principal"`
	Err       error  `json:"-"`
}

type IdentityChange struct {
	Principal string `json:"principal"`
	Provider  string `json:"provider"`
}

type ProviderInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Logo        string `json:"logo,omitempty"`
}
