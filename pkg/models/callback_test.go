package models

import (
	"net/url"
	"testing"
)

func TestNormalizeCallbackParams(t *testing.T) {
	p := NormalizeCallbackParams(CallbackParams{PublicKey: " ABCD ", Delegation: " {} "})
	if p.PublicKey != "abcd" {
		t.Fatalf("expected lowercase trimmed key, got %q", p.PublicKey)
	}
	if p.Delegation != "{}" {
		t.Fatalf("expected trimmed delegation, got %q", p.Delegation)
	}
}

func TestCallbackParamsFromURL(t *testing.T) {
	delegation := `{"delegations":[],"publicKey":"00"}`
	raw := "myapp://auth?publicKey=AA01&delegation=" + url.QueryEscape(delegation)
	p, err := CallbackParamsFromURL(raw)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if p.PublicKey != "aa01" {
		t.Fatalf("unexpected public key %q", p.PublicKey)
	}
	if p.Delegation != delegation {
		t.Fatalf("delegation must be query-decoded, got %q", p.Delegation)
	}
}

func TestCallbackParamsFromQueryCarriesError(t *testing.T) {
	p := CallbackParamsFromQuery(url.Values{"error": {" UserInterrupt "}})
	if p.Error != "UserInterrupt" {
		t.Fatalf("unexpected error field %q", p.Error)
	}
	if p.PublicKey != "" || p.Delegation != "" {
		t.Fatalf("missing fields must stay empty: %+v", p)
	}
}

func TestIdentityEntryZeroValue(t *testing.T) {
	var e IdentityEntry
	if e.Principal() != "" {
		t.Fatal("empty entry must have empty principal")
	}
	if !e.ExpiresAt().IsZero() {
		t.Fatal("empty entry must have zero expiry")
	}
}
