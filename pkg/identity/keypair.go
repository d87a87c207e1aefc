package identity

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mr-tron/base58/base58"
	"golang.org/x/crypto/blake2b"
)

// KeyPair is the device-local Ed25519 session key. It is the delegation
// target of every chain obtained from a provider.
type KeyPair struct {
	public ed25519.PublicKey
	secret ed25519.PrivateKey
	der    []byte
}

func GenerateKeyPair() (*KeyPair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return newKeyPair(priv)
}

func KeyPairFromSeed(seed []byte) (*KeyPair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: seed size %d", ErrKeyFormat, len(seed))
	}
	return newKeyPair(ed25519.NewKeyFromSeed(seed))
}

func newKeyPair(priv ed25519.PrivateKey) (*KeyPair, error) {
	pub := priv.Public().(ed25519.PublicKey)
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, err
	}
	return &KeyPair{
		public: append(ed25519.PublicKey(nil), pub...),
		secret: append(ed25519.PrivateKey(nil), priv...),
		der:    der,
	}, nil
}

func (k *KeyPair) PublicKey() ed25519.PublicKey {
	return append(ed25519.PublicKey(nil), k.public...)
}

func (k *KeyPair) PublicKeyDER() []byte {
	return append([]byte(nil), k.der...)
}

// Seed returns the 32-byte private seed.
func (k *KeyPair) Seed() []byte {
	return append([]byte(nil), k.secret.Seed()...)
}

func (k *KeyPair) Principal() Principal {
	return SelfAuthenticating(k.der)
}

func (k *KeyPair) Sign(msg []byte) ([]byte, error) {
	return ed25519.Sign(k.secret, msg), nil
}

func (k *KeyPair) Delegations() []SignedDelegation {
	return nil
}

// Fingerprint is a short, log-safe handle for the public key.
func (k *KeyPair) Fingerprint() string {
	h := blake2b.Sum256(k.public)
	return "sk1" + base58.Encode(h[:])
}

func (k *KeyPair) Equal(other *KeyPair) bool {
	if k == nil || other == nil {
		return k == other
	}
	return bytes.Equal(k.public, other.public) && bytes.Equal(k.secret, other.secret)
}

type jsonKeyPair struct {
	PublicKey string `json:"publicKey"`
	SecretKey string `json:"secretKey"`
}

func (k *KeyPair) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonKeyPair{
		PublicKey: hex.EncodeToString(k.der),
		SecretKey: hex.EncodeToString(k.secret.Seed()),
	})
}

// UnmarshalJSON accepts the object form written by MarshalJSON and the older
// two-element array form [publicKeyHex, secretKeyHex].
func (k *KeyPair) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	var parsed jsonKeyPair
	if len(data) > 0 && data[0] == '[' {
		var pair []string
		if err := json.Unmarshal(data, &pair); err != nil {
			return fmt.Errorf("%w: %v", ErrKeyFormat, err)
		}
		if len(pair) != 2 {
			return fmt.Errorf("%w: expected 2 elements, got %d", ErrKeyFormat, len(pair))
		}
		parsed = jsonKeyPair{PublicKey: pair[0], SecretKey: pair[1]}
	} else if err := json.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("%w: %v", ErrKeyFormat, err)
	}

	secret, err := hex.DecodeString(parsed.SecretKey)
	if err != nil {
		return fmt.Errorf("%w: secret key: %v", ErrKeyFormat, err)
	}
	public, err := hex.DecodeString(parsed.PublicKey)
	if err != nil {
		return fmt.Errorf("%w: public key: %v", ErrKeyFormat, err)
	}

	var kp *KeyPair
	switch len(secret) {
	case ed25519.SeedSize:
		kp, err = KeyPairFromSeed(secret)
	case ed25519.PrivateKeySize:
		kp, err = KeyPairFromSeed(secret[:ed25519.SeedSize])
		if err == nil && !bytes.Equal(secret[ed25519.SeedSize:], kp.public) {
			err = fmt.Errorf("%w: secret key tail does not match public key", ErrKeyFormat)
		}
	default:
		err = fmt.Errorf("%w: secret key size %d", ErrKeyFormat, len(secret))
	}
	if err != nil {
		return err
	}
	if !bytes.Equal(public, kp.der) && !bytes.Equal(public, kp.public) {
		return fmt.Errorf("%w: public key does not match secret key", ErrKeyFormat)
	}
	*k = *kp
	return nil
}

func SerializeKeyPair(k *KeyPair) (string, error) {
	if k == nil {
		return "", fmt.Errorf("%w: nil key pair", ErrKeyFormat)
	}
	raw, err := json.Marshal(k)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func DeserializeKeyPair(raw string) (*KeyPair, error) {
	var k KeyPair
	if err := json.Unmarshal([]byte(raw), &k); err != nil {
		if errors.Is(err, ErrKeyFormat) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrKeyFormat, err)
	}
	return &k, nil
}
