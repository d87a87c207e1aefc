package client

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"

	"ares/go-client/pkg/agent"
	"ares/go-client/pkg/identity"
)

type ActorOption func(*actorOptions)

type actorOptions struct {
	canisterID string
}

// WithCanisterID overrides the configured canister id, e.g. for a
// per-user canister.
func WithCanisterID(id string) ActorOption {
	return func(o *actorOptions) { o.canisterID = strings.TrimSpace(id) }
}

// GetCandidActor binds the named canister to an agent signing as id. A nil
// id is anonymous.
func (c *Client) GetCandidActor(name string, id identity.Identity, opts ...ActorOption) (*agent.CandidActor, error) {
	can, ok := c.canisters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCanisterDoesNotExist, name)
	}
	o := actorOptions{canisterID: can.CanisterID}
	for _, opt := range opts {
		opt(&o)
	}
	if o.canisterID == "" {
		return nil, fmt.Errorf("%w: %s has no canister id", ErrCanisterDoesNotExist, name)
	}
	agentOpts := can.Agent
	if agentOpts == nil {
		agentOpts = c.defaultAgent
	}
	if agentOpts == nil {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotDefined, name)
	}
	a, err := c.agentFor(*agentOpts, id)
	if err != nil {
		return nil, err
	}
	return agent.NewCandidActor(name, o.canisterID, a)
}

// GetRestActor binds the named REST service to id.
func (c *Client) GetRestActor(name string, id identity.Identity) (*agent.RestActor, error) {
	svc, ok := c.restServices[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCanisterDoesNotExist, name)
	}
	if strings.TrimSpace(svc.BaseURL) == "" {
		return nil, fmt.Errorf("%w: %s has no base url", ErrAgentNotDefined, name)
	}
	return agent.NewRestActor(name, svc.BaseURL, id, svc.Timeout)
}

// agentFor returns the cached agent for (host, identity) or builds one.
// Agents hold the bootstrapped root key, so reuse saves a status round trip.
func (c *Client) agentFor(opts agent.Options, id identity.Identity) (*agent.Agent, error) {
	if id == nil {
		id = identity.Anonymous{}
	}
	key := cacheKey(opts, id)
	if a, ok := c.agents.Get(key); ok {
		return a, nil
	}
	a, err := agent.New(opts, id)
	if err != nil {
		return nil, err
	}
	c.agents.Add(key, a)
	return a, nil
}

func cacheKey(opts agent.Options, id identity.Identity) agentKey {
	host := strings.TrimRight(strings.TrimSpace(opts.Host), "/")
	if host == "" {
		host = agent.DefaultHost
	}
	k := agentKey{host: host, options: optionsDigest(opts), principal: id.Principal().String()}
	if links := id.Delegations(); len(links) > 0 {
		k.session = hex.EncodeToString(links[len(links)-1].Delegation.PublicKey)
	} else {
		k.session = hex.EncodeToString(id.PublicKeyDER())
	}
	return k
}

// optionsDigest covers every option besides the host that shapes an agent.
func optionsDigest(opts agent.Options) string {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], uint64(opts.IngressExpiry))
	binary.BigEndian.PutUint64(buf[8:], uint64(opts.Timeout))
	sum := blake2b.Sum256(append(buf[:], opts.RootKey...))
	return hex.EncodeToString(sum[:16])
}

func (c *Client) dropAgents(principal string) {
	for _, k := range c.agents.Keys() {
		if k.principal == principal {
			c.agents.Remove(k)
		}
	}
}
