package identity

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

const delegationDomain = "\x1Aic-request-auth-delegation"

// Delegation authorizes PublicKey to act for the signer until Expiration,
// optionally restricted to Targets.
type Delegation struct {
	PublicKey  []byte
	Expiration time.Time
	Targets    []Principal
}

func (d Delegation) fields() map[string]any {
	fields := map[string]any{
		"pubkey":     d.PublicKey,
		"expiration": uint64(d.Expiration.UnixNano()),
	}
	if len(d.Targets) > 0 {
		fields["targets"] = d.Targets
	}
	return fields
}

// SigningPayload is the byte string the issuer signs.
func (d Delegation) SigningPayload() ([]byte, error) {
	id, err := RequestID(d.fields())
	if err != nil {
		return nil, err
	}
	return append([]byte(delegationDomain), id[:]...), nil
}

type SignedDelegation struct {
	Delegation Delegation
	Signature  []byte
}

// Chain is an ordered delegation chain rooted at PublicKey. Treat it as
// immutable; refreshed sessions get a new chain.
type Chain struct {
	Delegations []SignedDelegation
	PublicKey   []byte
}

// CreateChain signs a delegation from signer to the DER public key `to`. With
// a previous chain the new link is appended to it; signer must then be the
// key targeted by the previous chain's last link.
func CreateChain(signer Signer, to []byte, expiration time.Time, targets []Principal, previous *Chain) (*Chain, error) {
	d := Delegation{
		PublicKey:  append([]byte(nil), to...),
		Expiration: expiration,
		Targets:    append([]Principal(nil), targets...),
	}
	payload, err := d.SigningPayload()
	if err != nil {
		return nil, err
	}
	sig, err := signer.Sign(payload)
	if err != nil {
		return nil, err
	}
	signed := SignedDelegation{Delegation: d, Signature: sig}
	if previous == nil {
		return &Chain{
			Delegations: []SignedDelegation{signed},
			PublicKey:   signer.PublicKeyDER(),
		}, nil
	}
	links := make([]SignedDelegation, 0, len(previous.Delegations)+1)
	links = append(links, previous.Delegations...)
	return &Chain{
		Delegations: append(links, signed),
		PublicKey:   append([]byte(nil), previous.PublicKey...),
	}, nil
}

// Expiration is the earliest expiration in the chain.
func (c *Chain) Expiration() time.Time {
	var earliest time.Time
	for i, sd := range c.Delegations {
		if i == 0 || sd.Delegation.Expiration.Before(earliest) {
			earliest = sd.Delegation.Expiration
		}
	}
	return earliest
}

// SessionPublicKey is the DER key targeted by the last link.
func (c *Chain) SessionPublicKey() []byte {
	if c == nil || len(c.Delegations) == 0 {
		return nil
	}
	return c.Delegations[len(c.Delegations)-1].Delegation.PublicKey
}

// Validate checks expirations against now and every signature back to the
// root key.
func (c *Chain) Validate(now time.Time, policy VerifyPolicy) error {
	if c == nil || len(c.Delegations) == 0 {
		return fmt.Errorf("%w: empty chain", ErrInvalidDelegation)
	}
	if len(c.PublicKey) == 0 {
		return fmt.Errorf("%w: missing root public key", ErrInvalidDelegation)
	}
	signer := c.PublicKey
	for i, sd := range c.Delegations {
		if !sd.Delegation.Expiration.After(now) {
			return fmt.Errorf("%w: link %d expired at %s", ErrDelegationExpired, i, sd.Delegation.Expiration.UTC().Format(time.RFC3339))
		}
		payload, err := sd.Delegation.SigningPayload()
		if err != nil {
			return fmt.Errorf("%w: link %d: %v", ErrInvalidDelegation, i, err)
		}
		if err := VerifySignature(signer, payload, sd.Signature, policy); err != nil {
			return fmt.Errorf("%w: link %d: %v", ErrInvalidDelegation, i, err)
		}
		signer = sd.Delegation.PublicKey
	}
	return nil
}

type jsonDelegation struct {
	PubKey     string   `json:"pubkey"`
	Expiration string   `json:"expiration"`
	Targets    []string `json:"targets,omitempty"`
}

type jsonSignedDelegation struct {
	Delegation jsonDelegation `json:"delegation"`
	Signature  string         `json:"signature"`
}

type jsonChain struct {
	Delegations []jsonSignedDelegation `json:"delegations"`
	PublicKey   string                 `json:"publicKey"`
}

func (c *Chain) MarshalJSON() ([]byte, error) {
	out := jsonChain{
		Delegations: make([]jsonSignedDelegation, 0, len(c.Delegations)),
		PublicKey:   hex.EncodeToString(c.PublicKey),
	}
	for _, sd := range c.Delegations {
		jd := jsonDelegation{
			PubKey:     hex.EncodeToString(sd.Delegation.PublicKey),
			Expiration: strconv.FormatUint(uint64(sd.Delegation.Expiration.UnixNano()), 16),
		}
		for _, target := range sd.Delegation.Targets {
			jd.Targets = append(jd.Targets, hex.EncodeToString(target))
		}
		out.Delegations = append(out.Delegations, jsonSignedDelegation{
			Delegation: jd,
			Signature:  hex.EncodeToString(sd.Signature),
		})
	}
	return json.Marshal(out)
}

func (c *Chain) UnmarshalJSON(data []byte) error {
	var in jsonChain
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDelegation, err)
	}
	root, err := hex.DecodeString(in.PublicKey)
	if err != nil {
		return fmt.Errorf("%w: public key: %v", ErrInvalidDelegation, err)
	}
	links := make([]SignedDelegation, 0, len(in.Delegations))
	for i, jsd := range in.Delegations {
		pub, err := hex.DecodeString(jsd.Delegation.PubKey)
		if err != nil {
			return fmt.Errorf("%w: link %d pubkey: %v", ErrInvalidDelegation, i, err)
		}
		ns, err := strconv.ParseUint(jsd.Delegation.Expiration, 16, 64)
		if err != nil {
			return fmt.Errorf("%w: link %d expiration: %v", ErrInvalidDelegation, i, err)
		}
		sig, err := hex.DecodeString(jsd.Signature)
		if err != nil {
			return fmt.Errorf("%w: link %d signature: %v", ErrInvalidDelegation, i, err)
		}
		var targets []Principal
		for _, t := range jsd.Delegation.Targets {
			raw, err := hex.DecodeString(t)
			if err != nil {
				return fmt.Errorf("%w: link %d target: %v", ErrInvalidDelegation, i, err)
			}
			targets = append(targets, Principal(raw))
		}
		links = append(links, SignedDelegation{
			Delegation: Delegation{
				PublicKey:  pub,
				Expiration: time.Unix(0, int64(ns)),
				Targets:    targets,
			},
			Signature: sig,
		})
	}
	*c = Chain{Delegations: links, PublicKey: root}
	return nil
}

func ParseChain(raw []byte) (*Chain, error) {
	var c Chain
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
