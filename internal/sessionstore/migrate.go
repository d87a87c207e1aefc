package sessionstore

import (
	"context"
	"encoding/json"
	"fmt"

	"ares/go-client/pkg/identity"
	"ares/go-client/pkg/storage"
)

type legacyChain struct {
	Chain    json.RawMessage `json:"chain"`
	Provider string          `json:"provider"`
}

// Migrate moves sessions written in the shared-key layout into the record
// collection and deletes the legacy keys. Chains that no longer validate are
// dropped. It returns the number of sessions carried over.
func (s *Store) Migrate(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rawKey, hasKey, err := s.storage.GetItem(ctx, storage.LegacyIdentityKey)
	if err != nil {
		s.metrics.StorageError(string(storage.OpGet))
		return 0, err
	}
	rawChains, hasChains, err := s.storage.GetItem(ctx, storage.LegacyDelegationChainsKey)
	if err != nil {
		s.metrics.StorageError(string(storage.OpGet))
		return 0, err
	}
	if !hasKey && !hasChains {
		return 0, nil
	}

	migrated := 0
	if hasKey && hasChains {
		legacy, err := s.legacyItems(rawKey, rawChains)
		if err != nil {
			s.logger.Warn("legacy sessions are unreadable, discarding", "error", err.Error())
		}
		if len(legacy) > 0 {
			items, _, err := s.loadLocked(ctx)
			if err != nil {
				return 0, err
			}
			for _, it := range legacy {
				if indexOf(items, it.principal) >= 0 {
					continue
				}
				items = append(items, it)
				migrated++
			}
			if err := s.writeLocked(ctx, items); err != nil {
				return 0, err
			}
		}
	}

	for _, key := range []string{storage.LegacyDelegationChainsKey, storage.LegacyIdentityKey} {
		if err := s.storage.RemoveItem(ctx, key); err != nil {
			s.metrics.StorageError(string(storage.OpRemove))
			return migrated, err
		}
	}
	s.logger.Info("legacy sessions migrated", "count", migrated)
	return migrated, nil
}

func (s *Store) legacyItems(rawKey, rawChains string) ([]item, error) {
	key, err := identity.DeserializeKeyPair(rawKey)
	if err != nil {
		return nil, err
	}
	var pairs [][2]json.RawMessage
	if err := json.Unmarshal([]byte(rawChains), &pairs); err != nil {
		return nil, fmt.Errorf("legacy chains: %w", err)
	}
	rawIdentity, err := json.Marshal(key)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]item, 0, len(pairs))
	for _, pair := range pairs {
		var principal string
		var lc legacyChain
		if json.Unmarshal(pair[0], &principal) != nil || json.Unmarshal(pair[1], &lc) != nil {
			s.metrics.RecordDropped(DropMalformed)
			continue
		}
		it := item{principal: principal, record: Record{Identity: rawIdentity, Delegation: lc.Chain, Provider: lc.Provider}}
		if _, reason, err := s.restore(it, now); err != nil {
			s.metrics.RecordDropped(reason)
			s.logger.Warn("dropping legacy session", "principal", principal, "reason", reason, "error", err.Error())
			continue
		}
		out = append(out, it)
	}
	return out, nil
}
