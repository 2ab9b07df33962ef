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

// IntegrationStore persists integrations. The credential blob lives on the
// same row and is only touched through the CredentialBlobStore methods.
type IntegrationStore struct {
	db   *bun.DB
	repo repository.Repository[*integrationRecord]
}

func NewIntegrationStore(db *bun.DB) (*IntegrationStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo, err := newRepository(db, integrationHandlers(), "integration")
	if err != nil {
		return nil, err
	}
	return &IntegrationStore{db: db, repo: repo}, nil
}

func (s *IntegrationStore) Create(ctx context.Context, in core.Integration) (core.Integration, error) {
	if s == nil || s.repo == nil {
		return core.Integration{}, fmt.Errorf("sqlstore: integration store is not configured")
	}
	in.TenantID = strings.TrimSpace(in.TenantID)
	if in.TenantID == "" {
		return core.Integration{}, fmt.Errorf("sqlstore: tenant id is required")
	}
	if strings.TrimSpace(in.ID) == "" {
		in.ID = uuid.NewString()
	}
	if in.ServiceType == "" {
		in.ServiceType = core.ServiceTypeQuickBooks
	}
	if in.Status == "" {
		in.Status = core.IntegrationDisconnected
	}
	now := time.Now().UTC()
	in.CreatedAt = now

	created, err := s.repo.Create(ctx, newIntegrationRecord(in, now))
	if err != nil {
		return core.Integration{}, err
	}
	return created.toDomain(), nil
}

func (s *IntegrationStore) Get(ctx context.Context, id string) (core.Integration, error) {
	if s == nil || s.db == nil {
		return core.Integration{}, fmt.Errorf("sqlstore: integration store is not configured")
	}
	id = strings.TrimSpace(id)
	record := &integrationRecord{}
	err := s.db.NewSelect().
		Model(record).
		ExcludeColumn("credentials").
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Integration{}, fmt.Errorf("%w: integration %s", core.ErrNotFoundLocal, id)
		}
		return core.Integration{}, err
	}
	return record.toDomain(), nil
}

// Update writes every column except the credential blob and created_at.
func (s *IntegrationStore) Update(ctx context.Context, in core.Integration) (core.Integration, error) {
	if s == nil || s.db == nil {
		return core.Integration{}, fmt.Errorf("sqlstore: integration store is not configured")
	}
	in.ID = strings.TrimSpace(in.ID)
	if in.ID == "" {
		return core.Integration{}, fmt.Errorf("sqlstore: integration id is required")
	}
	record := newIntegrationRecord(in, time.Now().UTC())
	res, err := s.db.NewUpdate().
		Model(record).
		ExcludeColumn("credentials", "created_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return core.Integration{}, err
	}
	if err := requireAffected(res, "integration", in.ID); err != nil {
		return core.Integration{}, err
	}
	return record.toDomain(), nil
}

func (s *IntegrationStore) ListByTenant(ctx context.Context, tenantID string) ([]core.Integration, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: integration store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("tenant_id", "=", strings.TrimSpace(tenantID)),
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.ExcludeColumn("credentials")
		}),
		repository.OrderBy("created_at ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.Integration, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

// FindConnected returns the most recently created Connected integration.
func (s *IntegrationStore) FindConnected(ctx context.Context, tenantID string, serviceType core.ServiceType) (core.Integration, bool, error) {
	if s == nil || s.repo == nil {
		return core.Integration{}, false, fmt.Errorf("sqlstore: integration store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("tenant_id", "=", strings.TrimSpace(tenantID)),
		repository.SelectBy("service_type", "=", string(serviceType)),
		repository.SelectBy("status", "=", string(core.IntegrationConnected)),
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.ExcludeColumn("credentials")
		}),
		repository.OrderBy("created_at DESC"),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.Integration{}, false, err
	}
	if len(records) == 0 {
		return core.Integration{}, false, nil
	}
	return records[0].toDomain(), true, nil
}

func (s *IntegrationStore) LoadCredentialBlob(ctx context.Context, integrationID string) ([]byte, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: integration store is not configured")
	}
	integrationID = strings.TrimSpace(integrationID)
	var blob []byte
	err := s.db.NewSelect().
		Model((*integrationRecord)(nil)).
		Column("credentials").
		Where("?TableAlias.id = ?", integrationID).
		Limit(1).
		Scan(ctx, &blob)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: integration %s", core.ErrNotFoundLocal, integrationID)
		}
		return nil, err
	}
	if len(blob) == 0 {
		return nil, nil
	}
	return blob, nil
}

func (s *IntegrationStore) SaveCredentialBlob(ctx context.Context, integrationID string, blob []byte) error {
	return s.writeCredentialBlob(ctx, integrationID, append([]byte(nil), blob...))
}

func (s *IntegrationStore) ClearCredentialBlob(ctx context.Context, integrationID string) error {
	return s.writeCredentialBlob(ctx, integrationID, nil)
}

func (s *IntegrationStore) writeCredentialBlob(ctx context.Context, integrationID string, blob []byte) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: integration store is not configured")
	}
	integrationID = strings.TrimSpace(integrationID)
	if integrationID == "" {
		return fmt.Errorf("sqlstore: integration id is required")
	}
	res, err := s.db.NewUpdate().
		Model((*integrationRecord)(nil)).
		Set("credentials = ?", blob).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", integrationID).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffected(res, "integration", integrationID)
}

func requireAffected(res sql.Result, kind, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s %s", core.ErrNotFoundLocal, kind, id)
	}
	return nil
}
