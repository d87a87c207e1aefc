package identity

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"
	"fmt"
	"math/big"
)

var oidCanisterSignature = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 56387, 1, 2}

var (
	errBadSignature   = errors.New("signature verification failed")
	errUnverifiable   = errors.New("canister signature cannot be verified locally")
	errUnsupportedKey = errors.New("unsupported public key algorithm")
)

// VerifyPolicy controls how signatures that need network state are treated.
// Canister signatures are certified by the network root key; they can only
// be checked by a component that holds that certificate.
type VerifyPolicy struct {
	TrustCanisterSignatures bool
}

// VerifySignature checks sig over msg against a DER SPKI public key.
func VerifySignature(der, msg, sig []byte, policy VerifyPolicy) error {
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		oid, ok := algorithmOID(der)
		if ok && oid.Equal(oidCanisterSignature) {
			if policy.TrustCanisterSignatures {
				return nil
			}
			return errUnverifiable
		}
		return fmt.Errorf("%w: %v", errUnsupportedKey, err)
	}
	switch key := pub.(type) {
	case ed25519.PublicKey:
		if !ed25519.Verify(key, msg, sig) {
			return errBadSignature
		}
	case *ecdsa.PublicKey:
		// IEEE P1363 encoding: r || s.
		if len(sig) != 64 {
			return errBadSignature
		}
		digest := sha256.Sum256(msg)
		r := new(big.Int).SetBytes(sig[:32])
		s := new(big.Int).SetBytes(sig[32:])
		if !ecdsa.Verify(key, digest[:], r, s) {
			return errBadSignature
		}
	default:
		return fmt.Errorf("%w: %T", errUnsupportedKey, pub)
	}
	return nil
}

func algorithmOID(der []byte) (asn1.ObjectIdentifier, bool) {
	var spki struct {
		Algorithm pkix.AlgorithmIdentifier
		PublicKey asn1.BitString
	}
	rest, err := asn1.Unmarshal(der, &spki)
	if err != nil || len(rest) > 0 {
		return nil, false
	}
	return spki.Algorithm.Algorithm, true
}
