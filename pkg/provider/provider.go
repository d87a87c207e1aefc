// Package provider defines how identity providers plug into the client and
// the handshake bookkeeping they share.
package provider

import (
	"context"
	"log/slog"

	"ares/go-client/pkg/identity"
	"ares/go-client/pkg/models"
)

// Provider obtains delegation chains for fresh session keys from an external
// identity service.
//
// Connect returns the new identity when the handshake finished in-process. A
// nil identity with a nil error means the user was handed to an external
// agent and the result arrives later through CallbackReceiver.
type Provider interface {
	Name() string
	DisplayName() string
	Logo() string
	Init(ctx context.Context, coord Coordinator) error
	Connect(ctx context.Context) (*identity.DelegatedIdentity, error)
	Disconnect(ctx context.Context, principal string) error
}

// CallbackReceiver is implemented by providers whose handshake completes out
// of process, e.g. through an app link.
type CallbackReceiver interface {
	OnExternalCallback(ctx context.Context, params models.CallbackParams) (*identity.DelegatedIdentity, error)
}

// Coordinator is the side of the client a provider talks back to.
type Coordinator interface {
	AddIdentity(ctx context.Context, key *identity.KeyPair, chain *identity.Chain, provider string) (*identity.DelegatedIdentity, error)
	RemoveIdentity(ctx context.Context, principal string) error
	Logger() *slog.Logger
}

func Info(p Provider) models.ProviderInfo {
	return models.ProviderInfo{Name: p.Name(), DisplayName: p.DisplayName(), Logo: p.Logo()}
}
