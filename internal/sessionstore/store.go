// Package sessionstore persists delegated sessions as one JSON collection in
// a storage.Storage. Each record carries its own session key, the chain that
// delegates to it and the provider that issued it.
package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ares/go-client/internal/metrics"
	"ares/go-client/internal/platform/privacylog"
	"ares/go-client/pkg/identity"
	"ares/go-client/pkg/models"
	"ares/go-client/pkg/storage"
)

const (
	DropMalformed         = "malformed"
	DropExpired           = "expired"
	DropInvalid           = "invalid"
	DropPrincipalMismatch = "principal_mismatch"
)

var ErrEmptyProvider = errors.New("provider name is empty")

// Record is the persisted form of one session.
type Record struct {
	Identity   json.RawMessage `json:"identity"`
	Delegation json.RawMessage `json:"delegation"`
	Provider   string          `json:"provider"`
}

type item struct {
	principal string
	record    Record
}

type Store struct {
	mu      sync.Mutex
	storage storage.Storage
	logger  *slog.Logger
	metrics metrics.SessionMetrics
	policy  identity.VerifyPolicy
	now     func() time.Time
}

type Option func(*Store)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m metrics.SessionMetrics) Option {
	return func(s *Store) {
		if m != nil {
			s.metrics = m
		}
	}
}

func WithVerifyPolicy(p identity.VerifyPolicy) Option {
	return func(s *Store) { s.policy = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func New(st storage.Storage, opts ...Option) *Store {
	s := &Store{
		storage: st,
		logger:  privacylog.Discard(),
		metrics: metrics.Noop(),
		policy:  identity.VerifyPolicy{TrustCanisterSignatures: true},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetAll returns every usable session in persisted order. Records that no
// longer decode or validate are dropped and pruned from storage; a prune
// failure is logged, not returned.
func (s *Store) GetAll(ctx context.Context) ([]models.IdentityEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, dirty, err := s.loadLocked(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	entries := make([]models.IdentityEntry, 0, len(items))
	kept := make([]item, 0, len(items))
	for _, it := range items {
		id, reason, err := s.restore(it, now)
		if err != nil {
			s.metrics.RecordDropped(reason)
			s.logger.Warn("dropping stored session", "principal", it.principal, "provider", it.record.Provider, "reason", reason, "error", err.Error())
			continue
		}
		kept = append(kept, it)
		entries = append(entries, models.IdentityEntry{Identity: id, Provider: it.record.Provider})
	}
	if dirty || len(kept) != len(items) {
		if err := s.writeLocked(ctx, kept); err != nil {
			s.logger.Warn("pruning stored sessions failed", "error", err.Error())
		}
	}
	return entries, nil
}

// Persist validates chain against key and stores the session under the
// chain's principal, replacing any previous record for it.
func (s *Store) Persist(ctx context.Context, key *identity.KeyPair, chain *identity.Chain, provider string) (*identity.DelegatedIdentity, error) {
	if provider == "" {
		return nil, ErrEmptyProvider
	}
	id, err := identity.NewDelegatedIdentity(key, chain)
	if err != nil {
		return nil, err
	}
	if err := id.Validate(s.now(), s.policy); err != nil {
		return nil, err
	}
	rec, err := newRecord(key, chain, provider)
	if err != nil {
		return nil, err
	}
	principal := id.Principal().String()

	s.mu.Lock()
	defer s.mu.Unlock()
	items, _, err := s.loadLocked(ctx)
	if err != nil {
		return nil, err
	}
	items = upsert(items, item{principal: principal, record: rec})
	if err := s.writeLocked(ctx, items); err != nil {
		return nil, err
	}
	return id, nil
}

// Remove deletes the record for principal. Removing an absent principal is
// not an error.
func (s *Store) Remove(ctx context.Context, principal string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, _, err := s.loadLocked(ctx)
	if err != nil {
		return false, err
	}
	idx := indexOf(items, principal)
	if idx < 0 {
		return false, nil
	}
	items = append(items[:idx], items[idx+1:]...)
	if err := s.writeLocked(ctx, items); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) restore(it item, now time.Time) (*identity.DelegatedIdentity, string, error) {
	var key identity.KeyPair
	if err := json.Unmarshal(it.record.Identity, &key); err != nil {
		return nil, DropMalformed, err
	}
	chain, err := identity.ParseChain(it.record.Delegation)
	if err != nil {
		return nil, DropMalformed, err
	}
	if it.record.Provider == "" {
		return nil, DropMalformed, ErrEmptyProvider
	}
	id, err := identity.NewDelegatedIdentity(&key, chain)
	if err != nil {
		return nil, DropInvalid, err
	}
	if err := id.Validate(now, s.policy); err != nil {
		if errors.Is(err, identity.ErrDelegationExpired) {
			return nil, DropExpired, err
		}
		return nil, DropInvalid, err
	}
	if got := id.Principal().String(); got != it.principal {
		return nil, DropPrincipalMismatch, fmt.Errorf("record keyed by %s belongs to %s", it.principal, got)
	}
	return id, "", nil
}

func newRecord(key *identity.KeyPair, chain *identity.Chain, provider string) (Record, error) {
	rawKey, err := json.Marshal(key)
	if err != nil {
		return Record{}, err
	}
	rawChain, err := json.Marshal(chain)
	if err != nil {
		return Record{}, err
	}
	return Record{Identity: rawKey, Delegation: rawChain, Provider: provider}, nil
}

// loadLocked reports dirty when the stored collection carried pairs that
// were skipped or collapsed while decoding.
func (s *Store) loadLocked(ctx context.Context) ([]item, bool, error) {
	raw, ok, err := s.storage.GetItem(ctx, storage.StoredIdentitiesKey)
	if err != nil {
		s.metrics.StorageError(string(storage.OpGet))
		return nil, false, err
	}
	if !ok || raw == "" {
		return nil, false, nil
	}
	items, total, skipped, err := decodeItems(raw)
	if err != nil {
		s.logger.Warn("stored sessions are malformed, treating as empty", "error", err.Error())
		s.metrics.RecordDropped(DropMalformed)
		return nil, true, nil
	}
	for _, serr := range skipped {
		s.logger.Warn("dropping stored session", "reason", DropMalformed, "error", serr.Error())
		s.metrics.RecordDropped(DropMalformed)
	}
	return items, len(items) != total, nil
}

func (s *Store) writeLocked(ctx context.Context, items []item) error {
	raw, err := encodeItems(items)
	if err != nil {
		return err
	}
	if err := s.storage.SetItem(ctx, storage.StoredIdentitiesKey, raw); err != nil {
		s.metrics.StorageError(string(storage.OpSet))
		return err
	}
	return nil
}

// The collection is a JSON array of [principal, record] pairs. Only a blob
// that is not an array fails as a whole; a pair that does not decode is
// reported in skipped and the rest are kept.
func decodeItems(raw string) (items []item, total int, skipped []error, err error) {
	var pairs []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &pairs); err != nil {
		return nil, 0, nil, err
	}
	items = make([]item, 0, len(pairs))
	for i, pair := range pairs {
		it, err := decodePair(pair)
		if err != nil {
			skipped = append(skipped, fmt.Errorf("entry %d: %w", i, err))
			continue
		}
		items = upsert(items, it)
	}
	return items, len(pairs), skipped, nil
}

func decodePair(pair json.RawMessage) (item, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(pair, &parts); err != nil {
		return item{}, err
	}
	if len(parts) != 2 {
		return item{}, fmt.Errorf("expected 2 elements, got %d", len(parts))
	}
	var it item
	if err := json.Unmarshal(parts[0], &it.principal); err != nil {
		return item{}, fmt.Errorf("principal: %w", err)
	}
	if err := json.Unmarshal(parts[1], &it.record); err != nil {
		return item{}, fmt.Errorf("record: %w", err)
	}
	return it, nil
}

func encodeItems(items []item) (string, error) {
	pairs := make([][2]any, 0, len(items))
	for _, it := range items {
		pairs = append(pairs, [2]any{it.principal, it.record})
	}
	raw, err := json.Marshal(pairs)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func indexOf(items []item, principal string) int {
	for i, it := range items {
		if it.principal == principal {
			return i
		}
	}
	return -1
}

// upsert moves a replaced record to the end so the most recent session is
// always last.
func upsert(items []item, it item) []item {
	if idx := indexOf(items, it.principal); idx >= 0 {
		items = append(items[:idx], items[idx+1:]...)
	}
	return append(items, it)
}
