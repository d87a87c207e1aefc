package identity

import (
	"bytes"
	"crypto/sha256"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"strings"
)

const (
	selfAuthenticatingSuffix = 0x02
	anonymousSuffix          = 0x04
	maxPrincipalBytes        = 29
)

var principalEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Principal is the stable identifier of an identity. Delegated identities use
// the self-authenticating principal of their root key.
type Principal []byte

func SelfAuthenticating(derPublicKey []byte) Principal {
	sum := sha256.Sum224(derPublicKey)
	out := make([]byte, 0, len(sum)+1)
	out = append(out, sum[:]...)
	return append(out, selfAuthenticatingSuffix)
}

func AnonymousPrincipal() Principal {
	return Principal{anonymousSuffix}
}

func (p Principal) IsAnonymous() bool {
	return len(p) == 1 && p[0] == anonymousSuffix
}

func (p Principal) Equal(other Principal) bool {
	return bytes.Equal(p, other)
}

func (p Principal) Bytes() []byte {
	return append([]byte(nil), p...)
}

// String renders the textual form: base32 of crc32(p)||p, lowercase, grouped
// by five characters.
func (p Principal) String() string {
	buf := make([]byte, 4+len(p))
	binary.BigEndian.PutUint32(buf, crc32.ChecksumIEEE(p))
	copy(buf[4:], p)
	encoded := strings.ToLower(principalEncoding.EncodeToString(buf))

	var b strings.Builder
	for i := 0; i < len(encoded); i += 5 {
		if i > 0 {
			b.WriteByte('-')
		}
		end := min(i+5, len(encoded))
		b.WriteString(encoded[i:end])
	}
	return b.String()
}

func ParsePrincipal(text string) (Principal, error) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	raw, err := principalEncoding.DecodeString(strings.ToUpper(strings.ReplaceAll(normalized, "-", "")))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrincipal, err)
	}
	if len(raw) < 4 || len(raw)-4 > maxPrincipalBytes {
		return nil, fmt.Errorf("%w: length %d", ErrInvalidPrincipal, len(raw))
	}
	p := Principal(raw[4:])
	if binary.BigEndian.Uint32(raw[:4]) != crc32.ChecksumIEEE(p) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrInvalidPrincipal)
	}
	if p.String() != normalized {
		return nil, fmt.Errorf("%w: non-canonical text %q", ErrInvalidPrincipal, text)
	}
	return p, nil
}
