package sqlstore

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/goliatone/go-ledger-sync/core"
)

type stubMappingStore struct {
	mu          sync.Mutex
	mappings    []core.EntityMapping
	findCalls   int
	createCalls int
	findErr     error
}

func (s *stubMappingStore) Find(_ context.Context, lookup core.MappingLookup) (core.EntityMapping, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findCalls++
	if s.findErr != nil {
		return core.EntityMapping{}, false, s.findErr
	}
	for _, mapping := range s.mappings {
		if mapping.TenantID != lookup.TenantID || mapping.IntegrationID != lookup.IntegrationID || mapping.EntityType != lookup.EntityType {
			continue
		}
		if lookup.ExternalID != "" && mapping.ExternalID == lookup.ExternalID {
			return mapping, true, nil
		}
		if lookup.LocalID != "" && mapping.LocalID == lookup.LocalID {
			return mapping, true, nil
		}
	}
	return core.EntityMapping{}, false, nil
}

func (s *stubMappingStore) Create(_ context.Context, mapping core.EntityMapping) (core.EntityMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createCalls++
	mapping.ID = "map-" + mapping.LocalID
	s.mappings = append(s.mappings, mapping)
	return mapping, nil
}

func (s *stubMappingStore) calls() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findCalls, s.createCalls
}

func TestCachedMappingStore_Find_MissFetchThenHit(t *testing.T) {
	ctx := context.Background()
	base := &stubMappingStore{mappings: []core.EntityMapping{{
		ID:            "map-1",
		TenantID:      "tenant-1",
		IntegrationID: "int-1",
		EntityType:    core.EntityTypeCustomer,
		ExternalID:    "58",
		LocalID:       "cus-1",
		SyncStatus:    core.MappingStatusSynced,
	}}}
	store, err := NewCachedMappingStore(base, newTestMappingCacheService(t))
	if err != nil {
		t.Fatalf("new cached mapping store: %v", err)
	}

	lookup := core.MappingLookup{TenantID: "tenant-1", IntegrationID: "int-1", EntityType: core.EntityTypeCustomer, ExternalID: "58"}
	first, ok, err := store.Find(ctx, lookup)
	if err != nil || !ok {
		t.Fatalf("first find: ok=%v err=%v", ok, err)
	}
	second, ok, err := store.Find(ctx, lookup)
	if err != nil || !ok {
		t.Fatalf("second find: ok=%v err=%v", ok, err)
	}
	if first.LocalID != "cus-1" || second.LocalID != "cus-1" {
		t.Fatalf("unexpected mappings %+v %+v", first, second)
	}
	if finds, _ := base.calls(); finds != 1 {
		t.Fatalf("expected one base read, got %d", finds)
	}
}

func TestCachedMappingStore_Find_MissIsNotCached(t *testing.T) {
	ctx := context.Background()
	base := &stubMappingStore{}
	store, err := NewCachedMappingStore(base, newTestMappingCacheService(t))
	if err != nil {
		t.Fatalf("new cached mapping store: %v", err)
	}

	lookup := core.MappingLookup{TenantID: "tenant-1", IntegrationID: "int-1", EntityType: core.EntityTypeInvoice, LocalID: "inv-1"}
	if _, ok, err := store.Find(ctx, lookup); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}

	if _, err := store.Create(ctx, core.EntityMapping{
		TenantID:      "tenant-1",
		IntegrationID: "int-1",
		EntityType:    core.EntityTypeInvoice,
		ExternalID:    "130",
		LocalID:       "inv-1",
	}); err != nil {
		t.Fatalf("create mapping: %v", err)
	}

	found, ok, err := store.Find(ctx, lookup)
	if err != nil || !ok {
		t.Fatalf("expected created mapping to be visible, ok=%v err=%v", ok, err)
	}
	if found.ExternalID != "130" {
		t.Fatalf("expected external id 130, got %q", found.ExternalID)
	}
	if finds, creates := base.calls(); finds != 2 || creates != 1 {
		t.Fatalf("expected 2 base reads and 1 create, got %d and %d", finds, creates)
	}
}

func TestCachedMappingStore_Find_PropagatesBaseErrors(t *testing.T) {
	base := &stubMappingStore{findErr: errors.New("database gone")}
	store, err := NewCachedMappingStore(base, newTestMappingCacheService(t))
	if err != nil {
		t.Fatalf("new cached mapping store: %v", err)
	}
	_, _, err = store.Find(context.Background(), core.MappingLookup{
		TenantID: "tenant-1", IntegrationID: "int-1", EntityType: core.EntityTypeVendor, ExternalID: "56",
	})
	if err == nil || !strings.Contains(err.Error(), "database gone") {
		t.Fatalf("expected base error propagation, got %v", err)
	}
}

func TestMappingCacheKey(t *testing.T) {
	key, err := MappingCacheKey(core.MappingLookup{
		TenantID:      "tenant/1",
		IntegrationID: "int-1",
		EntityType:    core.EntityTypeCustomer,
		LocalID:       "cus 1",
	})
	if err != nil {
		t.Fatalf("mapping cache key: %v", err)
	}
	want := "go-ledger-sync::entity_mapping::v1::tenant%2F1::int-1::Customer::local::cus%201"
	if key != want {
		t.Fatalf("expected key %q, got %q", want, key)
	}

	if _, err := MappingCacheKey(core.MappingLookup{
		TenantID: "tenant-1", IntegrationID: "int-1", EntityType: core.EntityTypeCustomer,
		LocalID: "cus-1", ExternalID: "58",
	}); err == nil {
		t.Fatalf("expected lookup with both ids to be rejected")
	}
}

func newTestMappingCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}
