package agent

import (
	"context"
	"fmt"

	"ares/go-client/pkg/identity"
)

// CandidActor binds a canister to an agent. Arguments and replies are
// candid-encoded by the caller.
type CandidActor struct {
	Name       string
	CanisterID identity.Principal
	Agent      *Agent
}

func NewCandidActor(name string, canisterID string, agent *Agent) (*CandidActor, error) {
	id, err := identity.ParsePrincipal(canisterID)
	if err != nil {
		return nil, fmt.Errorf("canister %s: %w", name, err)
	}
	return &CandidActor{Name: name, CanisterID: id, Agent: agent}, nil
}

func (c *CandidActor) Query(ctx context.Context, method string, arg []byte) ([]byte, error) {
	return c.Agent.Query(ctx, c.CanisterID, method, arg)
}

func (c *CandidActor) Call(ctx context.Context, method string, arg []byte) ([32]byte, error) {
	return c.Agent.Call(ctx, c.CanisterID, method, arg)
}
