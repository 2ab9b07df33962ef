package core

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"
)

const defaultOAuthStateTTL = 10 * time.Minute

// OAuthStateRecord binds an authorization state token to the Disconnected
// integration pre-created for it.
type OAuthStateRecord struct {
	State         string
	TenantID      string
	UserID        string
	IntegrationID string
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

// Normalize checks the record and fills its timestamps from now and ttl.
func (r OAuthStateRecord) Normalize(now time.Time, ttl time.Duration) (OAuthStateRecord, error) {
	r.State = strings.TrimSpace(r.State)
	r.IntegrationID = strings.TrimSpace(r.IntegrationID)
	switch {
	case r.State == "":
		return r, fmt.Errorf("core: oauth state is required")
	case r.IntegrationID == "":
		return r, fmt.Errorf("core: oauth state integration id is required")
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if r.ExpiresAt.IsZero() {
		if ttl <= 0 {
			ttl = defaultOAuthStateTTL
		}
		r.ExpiresAt = r.CreatedAt.Add(ttl)
	}
	return r, nil
}

func (r OAuthStateRecord) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}

// OAuthStateStore hands out each saved record at most once.
type OAuthStateStore interface {
	Save(ctx context.Context, record OAuthStateRecord) error
	Consume(ctx context.Context, state string) (OAuthStateRecord, error)
}

type MemoryOAuthStateStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]OAuthStateRecord
	nowFn   func() time.Time
}

func NewMemoryOAuthStateStore(ttl time.Duration) *MemoryOAuthStateStore {
	return NewMemoryOAuthStateStoreWithClock(ttl, nil)
}

// NewMemoryOAuthStateStoreWithClock checks expiry against now, which must be
// the clock that stamps the saved records. A nil clock uses wall time.
func NewMemoryOAuthStateStoreWithClock(ttl time.Duration, now func() time.Time) *MemoryOAuthStateStore {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &MemoryOAuthStateStore{
		ttl:     ttl,
		entries: map[string]OAuthStateRecord{},
		nowFn:   now,
	}
}

func (s *MemoryOAuthStateStore) Save(_ context.Context, record OAuthStateRecord) error {
	if s == nil {
		return fmt.Errorf("core: oauth state store is not configured")
	}
	now := s.nowFn()
	record, err := record.Normalize(now, s.ttl)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, existing := range s.entries {
		if existing.Expired(now) {
			delete(s.entries, key)
		}
	}
	s.entries[record.State] = record
	return nil
}

func (s *MemoryOAuthStateStore) Consume(_ context.Context, state string) (OAuthStateRecord, error) {
	if s == nil {
		return OAuthStateRecord{}, fmt.Errorf("core: oauth state store is not configured")
	}
	state = strings.TrimSpace(state)
	if state == "" {
		return OAuthStateRecord{}, fmt.Errorf("%w: state is required", ErrOAuthStateInvalid)
	}

	s.mu.Lock()
	record, ok := s.entries[state]
	delete(s.entries, state)
	s.mu.Unlock()

	switch {
	case !ok:
		return OAuthStateRecord{}, fmt.Errorf("%w: state not found", ErrOAuthStateInvalid)
	case record.Expired(s.nowFn()):
		return OAuthStateRecord{}, fmt.Errorf("%w: state expired", ErrOAuthStateInvalid)
	}
	return record, nil
}

func generateOAuthState() (string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("core: generate oauth state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
