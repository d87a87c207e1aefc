package identity

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestKeyPairSerializeRoundtrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	raw, err := SerializeKeyPair(kp)
	if err != nil {
		t.Fatalf("serialize failed: %v", err)
	}
	restored, err := DeserializeKeyPair(raw)
	if err != nil {
		t.Fatalf("deserialize failed: %v", err)
	}
	if !kp.Equal(restored) {
		t.Fatal("restored key pair differs from original")
	}
	if !kp.Principal().Equal(restored.Principal()) {
		t.Fatal("principal must survive roundtrip")
	}
	msg := []byte("payload")
	sigA, _ := kp.Sign(msg)
	sigB, _ := restored.Sign(msg)
	if hex.EncodeToString(sigA) != hex.EncodeToString(sigB) {
		t.Fatal("ed25519 signatures must be deterministic for the same key")
	}
}

func TestGenerateKeyPairIsNotReused(t *testing.T) {
	a, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	b, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if a.Equal(b) {
		t.Fatal("two generated key pairs must differ")
	}
}

func TestDeserializeKeyPairAcceptsLegacyArrayForm(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	full := append(kp.Seed(), kp.PublicKey()...)
	legacy, _ := json.Marshal([]string{hex.EncodeToString(kp.PublicKeyDER()), hex.EncodeToString(full)})

	restored, err := DeserializeKeyPair(string(legacy))
	if err != nil {
		t.Fatalf("deserialize legacy failed: %v", err)
	}
	if !kp.Equal(restored) {
		t.Fatal("legacy form must restore the same key pair")
	}
}

func TestDeserializeKeyPairRejectsMalformedInput(t *testing.T) {
	other, _ := GenerateKeyPair()
	kp, _ := GenerateKeyPair()
	mismatched, _ := json.Marshal(map[string]string{
		"publicKey": hex.EncodeToString(other.PublicKeyDER()),
		"secretKey": hex.EncodeToString(kp.Seed()),
	})
	cases := map[string]string{
		"not json":        "{nope",
		"bad hex":         `{"publicKey":"zz","secretKey":"00"}`,
		"short secret":    `{"publicKey":"","secretKey":"0102"}`,
		"array length":    `["aa"]`,
		"key mismatch":    string(mismatched),
		"wrong json type": `42`,
	}
	for name, raw := range cases {
		if _, err := DeserializeKeyPair(raw); !errors.Is(err, ErrKeyFormat) {
			t.Fatalf("%s: expected ErrKeyFormat, got %v", name, err)
		}
	}
}

func TestKeyPairFromMnemonicIsDeterministic(t *testing.T) {
	mnemonic, err := NewMnemonic()
	if err != nil {
		t.Fatalf("mnemonic failed: %v", err)
	}
	a, err := KeyPairFromMnemonic(mnemonic, "pass")
	if err != nil {
		t.Fatalf("derive failed: %v", err)
	}
	b, err := KeyPairFromMnemonic("  "+strings.ReplaceAll(mnemonic, " ", "  ")+" ", "pass")
	if err != nil {
		t.Fatalf("derive with extra whitespace failed: %v", err)
	}
	if !a.Equal(b) {
		t.Fatal("same mnemonic must derive the same key pair")
	}
	c, err := KeyPairFromMnemonic(mnemonic, "other")
	if err != nil {
		t.Fatalf("derive failed: %v", err)
	}
	if a.Equal(c) {
		t.Fatal("passphrase must change the derived key pair")
	}
	if _, err := KeyPairFromMnemonic("not a valid phrase", ""); !errors.Is(err, ErrInvalidMnemonic) {
		t.Fatalf("expected ErrInvalidMnemonic, got %v", err)
	}
}

func TestFingerprintIsStable(t *testing.T) {
	kp, _ := GenerateKeyPair()
	if !strings.HasPrefix(kp.Fingerprint(), "sk1") {
		t.Fatalf("unexpected fingerprint prefix: %s", kp.Fingerprint())
	}
	if kp.Fingerprint() != kp.Fingerprint() {
		t.Fatal("fingerprint must be stable")
	}
}
