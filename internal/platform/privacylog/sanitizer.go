// Package privacylog keeps key material and raw principals out of logs.
// Secret-bearing attributes are redacted; identifying ones are replaced by a
// per-process fingerprint so lines about the same principal still correlate.
package privacylog

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"strings"

	"golang.org/x/crypto/blake2b"
)

const redactedValue = "[REDACTED]"

type action int

const (
	keep action = iota
	redact
	fingerprint
)

var (
	// identifyingKeys name values that pin a user or a session key.
	identifyingKeys = map[string]bool{
		"principal":   true,
		"public_key":  true,
		"pubkey":      true,
		"session_key": true,
		"root_key":    true,
	}
	// secretMarkers redact any key that contains them.
	secretMarkers = []string{
		"secret", "private", "seed", "mnemonic", "passphrase", "password",
		"signature", "delegation", "token", "authorization",
	}
	fingerprintKey = processKey()
)

func classify(key string) action {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, marker := range secretMarkers {
		if strings.Contains(key, marker) {
			return redact
		}
	}
	if identifyingKeys[key] || strings.HasSuffix(key, "_principal") {
		return fingerprint
	}
	return keep
}

type handler struct {
	next slog.Handler
}

// WrapHandler sanitizes every attribute before next sees it, including
// attributes bound through With and nested groups.
func WrapHandler(next slog.Handler) slog.Handler {
	if next == nil {
		return nil
	}
	return handler{next: next}
}

func (h handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h handler) Handle(ctx context.Context, rec slog.Record) error {
	clean := slog.NewRecord(rec.Time, rec.Level, rec.Message, rec.PC)
	rec.Attrs(func(a slog.Attr) bool {
		clean.AddAttrs(scrub(a))
		return true
	})
	return h.next.Handle(ctx, clean)
}

func (h handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return handler{next: h.next.WithAttrs(scrubAll(attrs))}
}

func (h handler) WithGroup(name string) slog.Handler {
	return handler{next: h.next.WithGroup(name)}
}

func scrub(a slog.Attr) slog.Attr {
	switch classify(a.Key) {
	case redact:
		return slog.String(a.Key, redactedValue)
	case fingerprint:
		name := a.Key
		if !strings.HasSuffix(strings.ToLower(name), "_fp") {
			name += "_fp"
		}
		return slog.String(name, fingerprintOf(a.Value.Resolve().String()))
	}
	if v := a.Value.Resolve(); v.Kind() == slog.KindGroup {
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(scrubAll(v.Group())...)}
	}
	return a
}

func scrubAll(attrs []slog.Attr) []slog.Attr {
	out := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		out[i] = scrub(a)
	}
	return out
}

// fingerprintOf is a keyed hash under a key drawn once per process, so
// fingerprints correlate within one run and never across runs.
func fingerprintOf(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	mac, err := blake2b.New(8, fingerprintKey)
	if err != nil {
		return redactedValue
	}
	mac.Write([]byte(value))
	return "fp_" + hex.EncodeToString(mac.Sum(nil))
}

func processKey() []byte {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		panic("privacylog: no randomness for fingerprint key: " + err.Error())
	}
	return key
}
