package identity

import (
	"crypto/sha256"
	"io"
	"strings"

	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/hkdf"
)

const hkdfInfoSessionKey = "ares/session-key/v1"

// NewMnemonic returns a fresh 24-word BIP-39 phrase for a recoverable
// session key.
func NewMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", err
	}
	return bip39.NewMnemonic(entropy)
}

// KeyPairFromMnemonic derives the same session key for the same phrase and
// passphrase.
func KeyPairFromMnemonic(mnemonic, passphrase string) (*KeyPair, error) {
	mnemonic = strings.Join(strings.Fields(mnemonic), " ")
	if mnemonic == "" || !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	seed := bip39.NewSeed(mnemonic, passphrase)
	reader := hkdf.New(sha256.New, seed, nil, []byte(hkdfInfoSessionKey))
	keySeed := make([]byte, 32)
	if _, err := io.ReadFull(reader, keySeed); err != nil {
		return nil, err
	}
	return KeyPairFromSeed(keySeed)
}
