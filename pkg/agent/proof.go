package agent

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ares/go-client/pkg/identity"
)

const (
	HeaderPrincipal  = "X-Ic-Principal"
	HeaderSenderKey  = "X-Ic-Sender-Pubkey"
	HeaderDelegation = "X-Ic-Delegation"
	HeaderSignature  = "X-Ic-Signature"
	HeaderTimestamp  = "X-Ic-Timestamp"
	HeaderRequestID  = "X-Request-Id"

	proofDomain = "\x0Fares-rest-proof"
)

// proofDigest binds the signature to one request: method, path with query,
// timestamp, request id and body.
func proofDigest(method, pathQuery string, ts int64, requestID string, body []byte) []byte {
	bodySum := sha256.Sum256(body)
	h := sha256.New()
	fmt.Fprintf(h, "%s\n%s\n%d\n%s\n%x", strings.ToUpper(method), pathQuery, ts, requestID, bodySum)
	return append([]byte(proofDomain), h.Sum(nil)...)
}

func proofHeaders(id identity.Identity, method, pathQuery string, ts time.Time, requestID string, body []byte) (map[string]string, error) {
	headers := map[string]string{HeaderRequestID: requestID}
	if id == nil || id.Principal().IsAnonymous() {
		return headers, nil
	}
	nanos := ts.UnixNano()
	sig, err := id.Sign(proofDigest(method, pathQuery, nanos, requestID, body))
	if err != nil {
		return nil, err
	}
	headers[HeaderPrincipal] = id.Principal().String()
	headers[HeaderSenderKey] = hex.EncodeToString(id.PublicKeyDER())
	headers[HeaderSignature] = hex.EncodeToString(sig)
	headers[HeaderTimestamp] = strconv.FormatInt(nanos, 10)
	if links := id.Delegations(); len(links) > 0 {
		raw, err := json.Marshal(&identity.Chain{Delegations: links, PublicKey: id.PublicKeyDER()})
		if err != nil {
			return nil, err
		}
		headers[HeaderDelegation] = base64.RawURLEncoding.EncodeToString(raw)
	}
	return headers, nil
}

// VerifyRequest checks the proof headers a RestActor attached to r and
// returns the authenticated principal. body is the request body as read by
// the server. Requests older or newer than maxSkew are rejected.
func VerifyRequest(r *http.Request, body []byte, now time.Time, maxSkew time.Duration, policy identity.VerifyPolicy) (identity.Principal, error) {
	principalText := r.Header.Get(HeaderPrincipal)
	if principalText == "" {
		return identity.AnonymousPrincipal(), nil
	}
	claimed, err := identity.ParsePrincipal(principalText)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadProof, err)
	}
	senderKey, err := hex.DecodeString(r.Header.Get(HeaderSenderKey))
	if err != nil || len(senderKey) == 0 {
		return nil, fmt.Errorf("%w: sender key", ErrBadProof)
	}
	if !identity.SelfAuthenticating(senderKey).Equal(claimed) {
		return nil, fmt.Errorf("%w: principal does not match sender key", ErrBadProof)
	}
	nanos, err := strconv.ParseInt(r.Header.Get(HeaderTimestamp), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: timestamp", ErrBadProof)
	}
	if skew := now.Sub(time.Unix(0, nanos)); skew > maxSkew || skew < -maxSkew {
		return nil, fmt.Errorf("%w: timestamp outside allowed skew", ErrBadProof)
	}
	sig, err := hex.DecodeString(r.Header.Get(HeaderSignature))
	if err != nil {
		return nil, fmt.Errorf("%w: signature", ErrBadProof)
	}
	digest := proofDigest(r.Method, r.URL.RequestURI(), nanos, r.Header.Get(HeaderRequestID), body)

	// The session key signs; the chain proves it speaks for the sender key.
	signer := senderKey
	if encoded := r.Header.Get(HeaderDelegation); encoded != "" {
		raw, err := base64.RawURLEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("%w: delegation encoding", ErrBadProof)
		}
		chain, err := identity.ParseChain(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadProof, err)
		}
		if !identity.SelfAuthenticating(chain.PublicKey).Equal(claimed) {
			return nil, fmt.Errorf("%w: delegation root does not match principal", ErrBadProof)
		}
		if err := chain.Validate(now, policy); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBadProof, err)
		}
		signer = chain.SessionPublicKey()
	}
	if err := identity.VerifySignature(signer, digest, sig, policy); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadProof, err)
	}
	return claimed, nil
}
