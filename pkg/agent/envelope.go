package agent

import (
	"bytes"

	"github.com/fxamacker/cbor/v2"

	"ares/go-client/pkg/identity"
)

const requestDomain = "\x0Aic-request"

// selfDescribeTag is the CBOR tag 55799 prefix the replica puts on its
// bodies and expects on envelopes.
var selfDescribeTag = []byte{0xd9, 0xd9, 0xf7}

type requestContent struct {
	RequestType   string `cbor:"request_type"`
	CanisterID    []byte `cbor:"canister_id"`
	MethodName    string `cbor:"method_name"`
	Arg           []byte `cbor:"arg"`
	Sender        []byte `cbor:"sender"`
	IngressExpiry uint64 `cbor:"ingress_expiry"`
	Nonce         []byte `cbor:"nonce,omitempty"`
}

func (c requestContent) requestID() ([32]byte, error) {
	fields := map[string]any{
		"request_type":   c.RequestType,
		"canister_id":    c.CanisterID,
		"method_name":    c.MethodName,
		"arg":            c.Arg,
		"sender":         c.Sender,
		"ingress_expiry": c.IngressExpiry,
	}
	if len(c.Nonce) > 0 {
		fields["nonce"] = c.Nonce
	}
	return identity.RequestID(fields)
}

type wireDelegation struct {
	PubKey     []byte   `cbor:"pubkey"`
	Expiration uint64   `cbor:"expiration"`
	Targets    [][]byte `cbor:"targets,omitempty"`
}

type wireSignedDelegation struct {
	Delegation wireDelegation `cbor:"delegation"`
	Signature  []byte         `cbor:"signature"`
}

type envelope struct {
	Content          requestContent         `cbor:"content"`
	SenderPubKey     []byte                 `cbor:"sender_pubkey,omitempty"`
	SenderSig        []byte                 `cbor:"sender_sig,omitempty"`
	SenderDelegation []wireSignedDelegation `cbor:"sender_delegation,omitempty"`
}

// sign wraps content into an envelope signed by id. Anonymous requests carry
// no signature.
func sign(id identity.Identity, content requestContent) ([]byte, [32]byte, error) {
	reqID, err := content.requestID()
	if err != nil {
		return nil, reqID, err
	}
	env := envelope{Content: content}
	if !id.Principal().IsAnonymous() {
		sig, err := id.Sign(append([]byte(requestDomain), reqID[:]...))
		if err != nil {
			return nil, reqID, err
		}
		env.SenderPubKey = id.PublicKeyDER()
		env.SenderSig = sig
		for _, sd := range id.Delegations() {
			wd := wireSignedDelegation{
				Delegation: wireDelegation{
					PubKey:     sd.Delegation.PublicKey,
					Expiration: uint64(sd.Delegation.Expiration.UnixNano()),
				},
				Signature: sd.Signature,
			}
			for _, t := range sd.Delegation.Targets {
				wd.Delegation.Targets = append(wd.Delegation.Targets, t.Bytes())
			}
			env.SenderDelegation = append(env.SenderDelegation, wd)
		}
	}
	raw, err := cbor.Marshal(env)
	if err != nil {
		return nil, reqID, err
	}
	return append(append([]byte(nil), selfDescribeTag...), raw...), reqID, nil
}

func decodeCBOR(data []byte, v any) error {
	return cbor.Unmarshal(bytes.TrimPrefix(data, selfDescribeTag), v)
}
