package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-ledger-sync/core"
)

// MappingStore is the sole writer of entity mappings. Uniqueness is enforced
// by the schema on (tenant, integration, type, local id) and
// (tenant, integration, type, external id); violations surface as
// core.ErrMappingExists.
type MappingStore struct {
	db   bun.IDB
	repo repository.Repository[*entityMappingRecord]
}

func NewMappingStore(db *bun.DB) (*MappingStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo, err := newRepository(db, mappingHandlers(), "entity mapping")
	if err != nil {
		return nil, err
	}
	return &MappingStore{db: db, repo: repo}, nil
}

func (s *MappingStore) withTx(tx bun.Tx) *MappingStore {
	return &MappingStore{db: tx, repo: s.repo}
}

func (s *MappingStore) Find(ctx context.Context, lookup core.MappingLookup) (core.EntityMapping, bool, error) {
	if s == nil || s.db == nil {
		return core.EntityMapping{}, false, fmt.Errorf("sqlstore: mapping store is not configured")
	}
	if err := lookup.Validate(); err != nil {
		return core.EntityMapping{}, false, err
	}
	record := &entityMappingRecord{}
	query := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.tenant_id = ?", strings.TrimSpace(lookup.TenantID)).
		Where("?TableAlias.integration_id = ?", strings.TrimSpace(lookup.IntegrationID)).
		Where("?TableAlias.entity_type = ?", string(lookup.EntityType))
	if externalID := strings.TrimSpace(lookup.ExternalID); externalID != "" {
		query = query.Where("?TableAlias.external_id = ?", externalID)
	} else {
		query = query.Where("?TableAlias.local_id = ?", strings.TrimSpace(lookup.LocalID))
	}
	if err := query.Limit(1).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.EntityMapping{}, false, nil
		}
		return core.EntityMapping{}, false, err
	}
	return record.toDomain(), true, nil
}

func (s *MappingStore) Create(ctx context.Context, mapping core.EntityMapping) (core.EntityMapping, error) {
	if s == nil || s.repo == nil {
		return core.EntityMapping{}, fmt.Errorf("sqlstore: mapping store is not configured")
	}
	record, err := newEntityMappingRecord(mapping, time.Now().UTC())
	if err != nil {
		return core.EntityMapping{}, err
	}
	created, err := createRecord(ctx, s.db, s.repo, record)
	if err != nil {
		if isUniqueViolation(err) {
			return core.EntityMapping{}, fmt.Errorf("%w: %s %s/%s", core.ErrMappingExists, record.EntityType, record.LocalID, record.ExternalID)
		}
		return core.EntityMapping{}, err
	}
	return created.toDomain(), nil
}

func newEntityMappingRecord(in core.EntityMapping, now time.Time) (*entityMappingRecord, error) {
	record := &entityMappingRecord{
		ID:            uuid.NewString(),
		TenantID:      strings.TrimSpace(in.TenantID),
		IntegrationID: strings.TrimSpace(in.IntegrationID),
		EntityType:    string(in.EntityType),
		ExternalID:    strings.TrimSpace(in.ExternalID),
		LocalID:       strings.TrimSpace(in.LocalID),
		SyncStatus:    strings.TrimSpace(in.SyncStatus),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if record.TenantID == "" || record.IntegrationID == "" {
		return nil, fmt.Errorf("sqlstore: mapping tenant id and integration id are required")
	}
	if !in.EntityType.Valid() {
		return nil, fmt.Errorf("sqlstore: mapping entity type %q is invalid", in.EntityType)
	}
	if record.LocalID == "" {
		return nil, fmt.Errorf("sqlstore: mapping local id is required")
	}
	if record.SyncStatus == "" {
		record.SyncStatus = core.MappingStatusSynced
	}
	return record, nil
}
