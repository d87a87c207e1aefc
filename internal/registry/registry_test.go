package registry

import (
	"testing"
	"time"

	"ares/go-client/internal/testutil/testchain"
	"ares/go-client/pkg/models"
)

func entry(t *testing.T, provider string) models.IdentityEntry {
	t.Helper()
	issued := testchain.Issue(t, nil, time.Hour)
	return models.IdentityEntry{Identity: issued.Identity(t), Provider: provider}
}

func TestRegistryKeepsInsertionOrder(t *testing.T) {
	r := New()
	a, b, c := entry(t, "x"), entry(t, "y"), entry(t, "x")
	r.Add(a)
	r.Add(b)
	r.Add(c)

	list := r.List()
	if len(list) != 3 || list[0].Principal() != a.Principal() || list[2].Principal() != c.Principal() {
		t.Fatal("list must follow insertion order")
	}
	r.Add(a)
	list = r.List()
	if r.Len() != 3 || list[2].Principal() != a.Principal() {
		t.Fatal("re-added entry must move to the end without duplicating")
	}
	if got := r.ByProvider("x"); len(got) != 2 {
		t.Fatalf("expected two entries for provider x, got %d", len(got))
	}
}

func TestRegistryLoadReplacesContents(t *testing.T) {
	r := New()
	stale := entry(t, "x")
	r.Add(stale)
	fresh := []models.IdentityEntry{entry(t, "y"), entry(t, "z")}
	r.Load(fresh)
	r.Load(fresh)
	if r.Len() != 2 {
		t.Fatalf("load must replace and stay idempotent, got %d", r.Len())
	}
	if _, ok := r.Get(stale.Principal()); ok {
		t.Fatal("stale entry must be gone after load")
	}
}

func TestRegistryRemoveAndSnapshotIsolation(t *testing.T) {
	r := New()
	a := entry(t, "x")
	r.Add(a)
	snapshot := r.List()
	if !r.Remove(a.Principal()) {
		t.Fatal("remove must report deletion")
	}
	if r.Remove(a.Principal()) {
		t.Fatal("second remove must report nothing removed")
	}
	if len(snapshot) != 1 {
		t.Fatal("earlier snapshot must not change")
	}
	r.Add(models.IdentityEntry{Provider: "x"})
	if r.Len() != 0 {
		t.Fatal("entry without identity must be ignored")
	}
}
