package agent

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ares/go-client/internal/testutil/testchain"
	"ares/go-client/pkg/identity"
)

// whoami answers with the principal the proof headers authenticate.
func whoami(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		p, err := VerifyRequest(r, body, time.Now(), time.Minute, identity.VerifyPolicy{})
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		w.Header().Set(HeaderRequestID, r.Header.Get(HeaderRequestID))
		_, _ = w.Write([]byte(p.String()))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRestActorProvesDelegatedIdentity(t *testing.T) {
	srv := whoami(t)
	issued := testchain.Issue(t, nil, time.Hour)
	actor, err := NewRestActor("profile", srv.URL+"/v1", issued.Identity(t), 5*time.Second)
	if err != nil {
		t.Fatalf("new rest actor failed: %v", err)
	}

	resp, err := actor.Post(context.Background(), "profile", []byte(`{"name":"a"}`), WithQuery("lang", "en"), WithHeader("Content-Type", "application/json"))
	if err != nil {
		t.Fatalf("post failed: %v", err)
	}
	if string(resp.Body) != issued.Principal() {
		t.Fatalf("server authenticated %q, want %q", resp.Body, issued.Principal())
	}
	if resp.RequestID == "" || resp.Header.Get(HeaderRequestID) != resp.RequestID {
		t.Fatalf("request id not propagated: %q vs %q", resp.RequestID, resp.Header.Get(HeaderRequestID))
	}
}

func TestRestActorPlainKeyAndAnonymous(t *testing.T) {
	srv := whoami(t)
	key, err := identity.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key failed: %v", err)
	}
	signed, err := NewRestActor("profile", srv.URL, key, 0)
	if err != nil {
		t.Fatalf("new rest actor failed: %v", err)
	}
	resp, err := signed.Get(context.Background(), "/me")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if string(resp.Body) != key.Principal().String() {
		t.Fatalf("unexpected principal %q", resp.Body)
	}

	anon, err := NewRestActor("profile", srv.URL, nil, 0)
	if err != nil {
		t.Fatalf("new rest actor failed: %v", err)
	}
	resp, err = anon.Delete(context.Background(), "/me")
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if string(resp.Body) != identity.AnonymousPrincipal().String() {
		t.Fatalf("unexpected principal %q", resp.Body)
	}
}

func TestRestActorHTTPError(t *testing.T) {
	srv := whoami(t)
	actor, err := NewRestActor("profile", srv.URL, nil, 0)
	if err != nil {
		t.Fatalf("new rest actor failed: %v", err)
	}
	_, err = actor.Put(context.Background(), "/missing", []byte("x"))
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.Status != http.StatusNotFound {
		t.Fatalf("expected 404 HTTPError, got %v", err)
	}
}

func TestNewRestActorRejectsRelativeURL(t *testing.T) {
	if _, err := NewRestActor("profile", "/api", nil, 0); err == nil {
		t.Fatalf("expected relative base url to be rejected")
	}
}

func signedRequest(t *testing.T, id identity.Identity, ts time.Time, body []byte) *http.Request {
	t.Helper()
	headers, err := proofHeaders(id, http.MethodPost, "/notes?draft=1", ts, "req-1", body)
	if err != nil {
		t.Fatalf("proof headers failed: %v", err)
	}
	r := httptest.NewRequest(http.MethodPost, "/notes?draft=1", bytes.NewReader(body))
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	return r
}

func TestVerifyRequestRejectsTampering(t *testing.T) {
	issued := testchain.Issue(t, nil, time.Hour)
	id := issued.Identity(t)
	now := time.Now()
	body := []byte("hello")

	if _, err := VerifyRequest(signedRequest(t, id, now, body), body, now, time.Minute, identity.VerifyPolicy{}); err != nil {
		t.Fatalf("verify failed: %v", err)
	}

	if _, err := VerifyRequest(signedRequest(t, id, now, body), []byte("hellO"), now, time.Minute, identity.VerifyPolicy{}); !errors.Is(err, ErrBadProof) {
		t.Fatalf("expected ErrBadProof for altered body, got %v", err)
	}

	stale := signedRequest(t, id, now.Add(-2*time.Minute), body)
	if _, err := VerifyRequest(stale, body, now, time.Minute, identity.VerifyPolicy{}); !errors.Is(err, ErrBadProof) {
		t.Fatalf("expected ErrBadProof for stale timestamp, got %v", err)
	}

	spoofed := signedRequest(t, id, now, body)
	other := testchain.Issue(t, nil, time.Hour)
	spoofed.Header.Set(HeaderPrincipal, other.Principal())
	if _, err := VerifyRequest(spoofed, body, now, time.Minute, identity.VerifyPolicy{}); !errors.Is(err, ErrBadProof) {
		t.Fatalf("expected ErrBadProof for spoofed principal, got %v", err)
	}

	moved := signedRequest(t, id, now, body)
	moved.URL.RawQuery = "draft=0"
	if _, err := VerifyRequest(moved, body, now, time.Minute, identity.VerifyPolicy{}); !errors.Is(err, ErrBadProof) {
		t.Fatalf("expected ErrBadProof for altered query, got %v", err)
	}
}

func TestVerifyRequestRejectsExpiredDelegation(t *testing.T) {
	issued := testchain.Issue(t, nil, time.Minute)
	id := issued.Identity(t)
	now := time.Now()
	r := signedRequest(t, id, now, nil)
	_, err := VerifyRequest(r, nil, now.Add(2*time.Minute), 5*time.Minute, identity.VerifyPolicy{})
	if !errors.Is(err, ErrBadProof) || !errors.Is(err, identity.ErrDelegationExpired) {
		t.Fatalf("expected expired delegation, got %v", err)
	}
}
