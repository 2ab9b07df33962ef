package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/goliatone/go-ledger-sync/core"
)

const mappingCacheKeyPrefix = "go-ledger-sync::entity_mapping::v1"

var errMappingMiss = errors.New("sqlstore: mapping cache miss")

// CachedMappingStore reads mappings through a cache. Only hits are cached:
// mappings are never updated once written, and a miss must keep reaching the
// database so a freshly created mapping is seen.
type CachedMappingStore struct {
	base  core.MappingStore
	cache repositorycache.CacheService
}

func NewCachedMappingStore(base core.MappingStore, cacheService repositorycache.CacheService) (*CachedMappingStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base mapping store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: mapping cache service is required")
	}
	return &CachedMappingStore{base: base, cache: cacheService}, nil
}

// MappingCacheKey returns
// go-ledger-sync::entity_mapping::v1::<tenant>::<integration>::<type>::<local|external>::<id>
// with every segment URL-path escaped.
func MappingCacheKey(lookup core.MappingLookup) (string, error) {
	if err := lookup.Validate(); err != nil {
		return "", err
	}
	side, id := "local", strings.TrimSpace(lookup.LocalID)
	if external := strings.TrimSpace(lookup.ExternalID); external != "" {
		side, id = "external", external
	}
	segments := []string{
		strings.TrimSpace(lookup.TenantID),
		strings.TrimSpace(lookup.IntegrationID),
		string(lookup.EntityType),
		side,
		id,
	}
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(append([]string{mappingCacheKeyPrefix}, segments...), "::"), nil
}

func (s *CachedMappingStore) Find(ctx context.Context, lookup core.MappingLookup) (core.EntityMapping, bool, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.EntityMapping{}, false, fmt.Errorf("sqlstore: cached mapping store is not configured")
	}
	key, err := MappingCacheKey(lookup)
	if err != nil {
		return core.EntityMapping{}, false, err
	}
	mapping, err := repositorycache.GetOrFetch(ctx, s.cache, key, func(ctx context.Context) (core.EntityMapping, error) {
		found, ok, findErr := s.base.Find(ctx, lookup)
		if findErr != nil {
			return core.EntityMapping{}, findErr
		}
		if !ok {
			return core.EntityMapping{}, errMappingMiss
		}
		return found, nil
	})
	if err != nil {
		if errors.Is(err, errMappingMiss) {
			return core.EntityMapping{}, false, nil
		}
		return core.EntityMapping{}, false, err
	}
	return mapping, true, nil
}

// Create writes through and evicts both lookup directions.
func (s *CachedMappingStore) Create(ctx context.Context, mapping core.EntityMapping) (core.EntityMapping, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.EntityMapping{}, fmt.Errorf("sqlstore: cached mapping store is not configured")
	}
	created, err := s.base.Create(ctx, mapping)
	if err != nil {
		return core.EntityMapping{}, err
	}
	for _, lookup := range []core.MappingLookup{
		{TenantID: created.TenantID, IntegrationID: created.IntegrationID, EntityType: created.EntityType, LocalID: created.LocalID},
		{TenantID: created.TenantID, IntegrationID: created.IntegrationID, EntityType: created.EntityType, ExternalID: created.ExternalID},
	} {
		key, keyErr := MappingCacheKey(lookup)
		if keyErr != nil {
			continue
		}
		if err := s.cache.Delete(ctx, key); err != nil {
			return core.EntityMapping{}, err
		}
	}
	return created, nil
}

var _ core.MappingStore = (*CachedMappingStore)(nil)
