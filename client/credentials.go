package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
)

// CredentialStore persists the credential pair and user snapshot as one record
// under "<namespace>:session". Every write replaces the whole record, so a
// reader never sees a new access token next to a stale refresh token.
//
// Clear bumps an epoch. Writers that captured an older epoch are refused,
// which lets a logout win over a login or refresh that is still in flight.
type CredentialStore struct {
	store  ports.Store
	key    string
	logger *zap.Logger

	mu    sync.Mutex
	epoch uint64
	// cleared is set when a Clear could not delete the backing key;
	// Read reports absent until the next successful write.
	cleared bool
}

// NewCredentialStore creates a credential store scoped to namespace
func NewCredentialStore(store ports.Store, namespace string, logger *zap.Logger) *CredentialStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if namespace == "" {
		namespace = "default"
	}
	return &CredentialStore{
		store:  store,
		key:    namespace + ":session",
		logger: logger.Named("credentials"),
	}
}

// Key returns the storage key of the record
func (s *CredentialStore) Key() string {
	return s.key
}

// Read returns the stored record. Missing, unreadable or corrupted data reads as absent.
func (s *CredentialStore) Read(ctx context.Context) (core.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.readLocked(ctx)
}

// Credentials returns only the token pair
func (s *CredentialStore) Credentials(ctx context.Context) (core.Credentials, bool) {
	rec, ok := s.Read(ctx)
	return rec.Credentials, ok
}

// Epoch returns the current clear generation
func (s *CredentialStore) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.epoch
}

// Write replaces the record unconditionally
func (s *CredentialStore) Write(ctx context.Context, rec core.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.writeLocked(ctx, rec)
}

// WriteIfCurrent replaces the record only if no Clear happened since epoch was read.
func (s *CredentialStore) WriteIfCurrent(ctx context.Context, epoch uint64, rec core.Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if epoch != s.epoch {
		return false, nil
	}
	if err := s.writeLocked(ctx, rec); err != nil {
		return false, err
	}
	return true, nil
}

// UpdateCredentials swaps the token pair of the stored record, keeping the user.
// It is refused when the store was cleared since epoch or when the stored
// refresh token is no longer previous.
func (s *CredentialStore) UpdateCredentials(ctx context.Context, epoch uint64, previous string, creds core.Credentials) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if epoch != s.epoch {
		return false, nil
	}

	rec, ok := s.readLocked(ctx)
	if !ok || rec.Credentials.RefreshToken != previous {
		return false, nil
	}

	rec.Credentials = creds
	if err := s.writeLocked(ctx, rec); err != nil {
		return false, err
	}
	return true, nil
}

// Clear removes the record. After Clear returns, Read reports absent even if
// the backing delete failed.
func (s *CredentialStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.clearLocked(ctx)
}

// ClearIf removes the record only while it still holds refreshToken.
// An already absent record counts as cleared and leaves the epoch alone,
// so a login started after the record went away can still complete.
func (s *CredentialStore) ClearIf(ctx context.Context, refreshToken string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.readLocked(ctx)
	if !ok {
		return true, nil
	}
	if rec.Credentials.RefreshToken != refreshToken {
		return false, nil
	}
	return true, s.clearLocked(ctx)
}

func (s *CredentialStore) readLocked(ctx context.Context) (core.Record, bool) {
	if s.cleared {
		return core.Record{}, false
	}

	raw, err := s.store.Get(ctx, s.key)
	if err != nil {
		if !errors.Is(err, core.ErrNotFound) {
			s.logger.Warn("failed to read credentials", zap.String("key", s.key), zap.Error(err))
		}
		return core.Record{}, false
	}

	var rec core.Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil || !rec.Credentials.Complete() {
		s.logger.Warn("discarding unreadable credentials", zap.String("key", s.key))
		return core.Record{}, false
	}

	return rec, true
}

func (s *CredentialStore) writeLocked(ctx context.Context, rec core.Record) error {
	if !rec.Credentials.Complete() {
		return fmt.Errorf("credentials must carry both tokens")
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}

	if err := s.store.Set(ctx, s.key, string(raw), 0); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}

	s.cleared = false
	return nil
}

func (s *CredentialStore) clearLocked(ctx context.Context) error {
	s.epoch++
	s.cleared = true

	if err := s.store.Delete(ctx, s.key); err != nil {
		return fmt.Errorf("delete credentials: %w", err)
	}

	s.cleared = false
	return nil
}
