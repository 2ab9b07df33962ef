package redislock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/goliatone/go-ledger-sync/core"
)

const (
	DefaultStatePrefix = "go-ledger-sync:oauth_state"
	defaultStateTTL    = 10 * time.Minute
)

// StateStore keeps OAuth state records in redis so the callback can land on
// any process. Records expire with the key TTL and are read with GETDEL.
type StateStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

type StateOption func(*StateStore)

func WithStatePrefix(prefix string) StateOption {
	return func(s *StateStore) {
		if trimmed := strings.Trim(strings.TrimSpace(prefix), ":"); trimmed != "" {
			s.prefix = trimmed
		}
	}
}

func WithStateClock(now func() time.Time) StateOption {
	return func(s *StateStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewStateStore(client redis.UniversalClient, ttl time.Duration, opts ...StateOption) (*StateStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redislock: redis client is required")
	}
	if ttl <= 0 {
		ttl = defaultStateTTL
	}
	store := &StateStore{
		client: client,
		prefix: DefaultStatePrefix,
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

func (s *StateStore) Save(ctx context.Context, record core.OAuthStateRecord) error {
	now := s.now()
	record, err := record.Normalize(now, s.ttl)
	if err != nil {
		return err
	}
	ttl := record.ExpiresAt.Sub(now)
	if ttl <= 0 {
		return fmt.Errorf("redislock: oauth state already expired")
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("redislock: encode oauth state: %w", err)
	}
	if err := s.client.Set(ctx, s.key(record.State), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redislock: save oauth state: %w", err)
	}
	return nil
}

func (s *StateStore) Consume(ctx context.Context, state string) (core.OAuthStateRecord, error) {
	state = strings.TrimSpace(state)
	if state == "" {
		return core.OAuthStateRecord{}, fmt.Errorf("%w: state is required", core.ErrOAuthStateInvalid)
	}
	payload, err := s.client.GetDel(ctx, s.key(state)).Bytes()
	if errors.Is(err, redis.Nil) {
		return core.OAuthStateRecord{}, fmt.Errorf("%w: state not found", core.ErrOAuthStateInvalid)
	}
	if err != nil {
		return core.OAuthStateRecord{}, fmt.Errorf("redislock: consume oauth state: %w", err)
	}
	var record core.OAuthStateRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return core.OAuthStateRecord{}, fmt.Errorf("redislock: decode oauth state: %w", err)
	}
	if record.Expired(s.now()) {
		return core.OAuthStateRecord{}, fmt.Errorf("%w: state expired", core.ErrOAuthStateInvalid)
	}
	return record, nil
}

func (s *StateStore) key(state string) string {
	return s.prefix + ":" + state
}

var _ core.OAuthStateStore = (*StateStore)(nil)
