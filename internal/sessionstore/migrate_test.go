package sessionstore

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"ares/go-client/internal/testutil/testchain"
	"ares/go-client/pkg/identity"
	"ares/go-client/pkg/storage"
)

func seedLegacy(t *testing.T, st storage.Storage, key *identity.KeyPair, chains map[string]*identity.Chain) {
	t.Helper()
	ctx := context.Background()
	rawKey, err := identity.SerializeKeyPair(key)
	if err != nil {
		t.Fatalf("serialize key failed: %v", err)
	}
	if err := st.SetItem(ctx, storage.LegacyIdentityKey, rawKey); err != nil {
		t.Fatalf("seed key failed: %v", err)
	}
	pairs := make([][2]any, 0, len(chains))
	for principal, chain := range chains {
		pairs = append(pairs, [2]any{principal, map[string]any{"chain": chain, "provider": "internet-identity"}})
	}
	raw, _ := json.Marshal(pairs)
	if err := st.SetItem(ctx, storage.LegacyDelegationChainsKey, string(raw)); err != nil {
		t.Fatalf("seed chains failed: %v", err)
	}
}

func TestMigrateMovesLegacySessions(t *testing.T) {
	st := storage.NewMemory()
	shared, _ := identity.GenerateKeyPair()
	valid := testchain.Issue(t, shared, time.Hour)
	expired := testchain.Issue(t, shared, -time.Hour)
	seedLegacy(t, st, shared, map[string]*identity.Chain{
		valid.Principal():   valid.Chain,
		expired.Principal(): expired.Chain,
	})

	s := New(st)
	n, err := s.Migrate(context.Background())
	if err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 migrated session, got %d", n)
	}
	for _, key := range []string{storage.LegacyIdentityKey, storage.LegacyDelegationChainsKey} {
		if _, ok, _ := st.GetItem(context.Background(), key); ok {
			t.Fatalf("legacy key %s must be removed", key)
		}
	}
	entries, err := s.GetAll(context.Background())
	if err != nil {
		t.Fatalf("get all failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Principal() != valid.Principal() {
		t.Fatalf("expected migrated session, got %d entries", len(entries))
	}
	if !entries[0].Identity.Key().Equal(shared) {
		t.Fatal("migrated record must carry the shared session key")
	}

	again, err := s.Migrate(context.Background())
	if err != nil || again != 0 {
		t.Fatalf("second migrate must be a no-op, n=%d err=%v", again, err)
	}
}

func TestMigrateDiscardsUnreadableLegacyKey(t *testing.T) {
	st := storage.NewMemory()
	ctx := context.Background()
	_ = st.SetItem(ctx, storage.LegacyIdentityKey, "garbage")
	_ = st.SetItem(ctx, storage.LegacyDelegationChainsKey, "[]")

	n, err := New(st).Migrate(ctx)
	if err != nil || n != 0 {
		t.Fatalf("unreadable legacy data must be discarded, n=%d err=%v", n, err)
	}
	if _, ok, _ := st.GetItem(ctx, storage.LegacyIdentityKey); ok {
		t.Fatal("legacy key must be removed")
	}
}
