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

// CustomerStore persists local customers. A store built by withTx runs every
// statement on that transaction.
type CustomerStore struct {
	db   bun.IDB
	repo repository.Repository[*customerRecord]
}

func NewCustomerStore(db *bun.DB) (*CustomerStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo, err := newRepository(db, customerHandlers(), "customer")
	if err != nil {
		return nil, err
	}
	return &CustomerStore{db: db, repo: repo}, nil
}

func (s *CustomerStore) withTx(tx bun.Tx) *CustomerStore {
	return &CustomerStore{db: tx, repo: s.repo}
}

func (s *CustomerStore) Create(ctx context.Context, in core.Customer) (core.Customer, error) {
	if s == nil || s.repo == nil {
		return core.Customer{}, fmt.Errorf("sqlstore: customer store is not configured")
	}
	in.TenantID = strings.TrimSpace(in.TenantID)
	in.Name = strings.TrimSpace(in.Name)
	if in.TenantID == "" || in.Name == "" {
		return core.Customer{}, fmt.Errorf("sqlstore: customer tenant id and name are required")
	}
	in.ID = uuid.NewString()
	created, err := createRecord(ctx, s.db, s.repo, newCustomerRecord(in, time.Now().UTC()))
	if err != nil {
		return core.Customer{}, err
	}
	return created.toDomain(), nil
}

func (s *CustomerStore) Get(ctx context.Context, tenantID, id string) (core.Customer, error) {
	if s == nil || s.db == nil {
		return core.Customer{}, fmt.Errorf("sqlstore: customer store is not configured")
	}
	record := &customerRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.tenant_id = ?", strings.TrimSpace(tenantID)).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return core.Customer{}, notFound(err, "customer", id)
	}
	return record.toDomain(), nil
}

func (s *CustomerStore) Update(ctx context.Context, in core.Customer) (core.Customer, error) {
	if s == nil || s.db == nil {
		return core.Customer{}, fmt.Errorf("sqlstore: customer store is not configured")
	}
	if strings.TrimSpace(in.ID) == "" {
		return core.Customer{}, fmt.Errorf("sqlstore: customer id is required")
	}
	record := newCustomerRecord(in, time.Now().UTC())
	res, err := s.db.NewUpdate().
		Model(record).
		ExcludeColumn("created_at").
		WherePK().
		Where("tenant_id = ?", record.TenantID).
		Exec(ctx)
	if err != nil {
		return core.Customer{}, err
	}
	if err := requireAffected(res, "customer", in.ID); err != nil {
		return core.Customer{}, err
	}
	return record.toDomain(), nil
}

// FindByName matches the display name exactly, oldest row first.
func (s *CustomerStore) FindByName(ctx context.Context, tenantID, name string) (core.Customer, bool, error) {
	if s == nil || s.db == nil {
		return core.Customer{}, false, fmt.Errorf("sqlstore: customer store is not configured")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return core.Customer{}, false, nil
	}
	record := &customerRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.tenant_id = ?", strings.TrimSpace(tenantID)).
		Where("?TableAlias.name = ?", name).
		OrderExpr("?TableAlias.created_at ASC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Customer{}, false, nil
		}
		return core.Customer{}, false, err
	}
	return record.toDomain(), true, nil
}

type VendorStore struct {
	db   bun.IDB
	repo repository.Repository[*vendorRecord]
}

func NewVendorStore(db *bun.DB) (*VendorStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo, err := newRepository(db, vendorHandlers(), "vendor")
	if err != nil {
		return nil, err
	}
	return &VendorStore{db: db, repo: repo}, nil
}

func (s *VendorStore) withTx(tx bun.Tx) *VendorStore {
	return &VendorStore{db: tx, repo: s.repo}
}

func (s *VendorStore) Create(ctx context.Context, in core.Vendor) (core.Vendor, error) {
	if s == nil || s.repo == nil {
		return core.Vendor{}, fmt.Errorf("sqlstore: vendor store is not configured")
	}
	in.TenantID = strings.TrimSpace(in.TenantID)
	in.Name = strings.TrimSpace(in.Name)
	if in.TenantID == "" || in.Name == "" {
		return core.Vendor{}, fmt.Errorf("sqlstore: vendor tenant id and name are required")
	}
	in.ID = uuid.NewString()
	created, err := createRecord(ctx, s.db, s.repo, newVendorRecord(in, time.Now().UTC()))
	if err != nil {
		return core.Vendor{}, err
	}
	return created.toDomain(), nil
}

func (s *VendorStore) Get(ctx context.Context, tenantID, id string) (core.Vendor, error) {
	if s == nil || s.db == nil {
		return core.Vendor{}, fmt.Errorf("sqlstore: vendor store is not configured")
	}
	record := &vendorRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.tenant_id = ?", strings.TrimSpace(tenantID)).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return core.Vendor{}, notFound(err, "vendor", id)
	}
	return record.toDomain(), nil
}

func (s *VendorStore) Update(ctx context.Context, in core.Vendor) (core.Vendor, error) {
	if s == nil || s.db == nil {
		return core.Vendor{}, fmt.Errorf("sqlstore: vendor store is not configured")
	}
	if strings.TrimSpace(in.ID) == "" {
		return core.Vendor{}, fmt.Errorf("sqlstore: vendor id is required")
	}
	record := newVendorRecord(in, time.Now().UTC())
	res, err := s.db.NewUpdate().
		Model(record).
		ExcludeColumn("created_at").
		WherePK().
		Where("tenant_id = ?", record.TenantID).
		Exec(ctx)
	if err != nil {
		return core.Vendor{}, err
	}
	if err := requireAffected(res, "vendor", in.ID); err != nil {
		return core.Vendor{}, err
	}
	return record.toDomain(), nil
}

func (s *VendorStore) FindByName(ctx context.Context, tenantID, name string) (core.Vendor, bool, error) {
	if s == nil || s.db == nil {
		return core.Vendor{}, false, fmt.Errorf("sqlstore: vendor store is not configured")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return core.Vendor{}, false, nil
	}
	record := &vendorRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.tenant_id = ?", strings.TrimSpace(tenantID)).
		Where("?TableAlias.name = ?", name).
		OrderExpr("?TableAlias.created_at ASC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Vendor{}, false, nil
		}
		return core.Vendor{}, false, err
	}
	return record.toDomain(), true, nil
}

// createRecord inserts through the repository, on the transaction when db is one.
func createRecord[T any](ctx context.Context, db bun.IDB, repo repository.Repository[*T], record *T) (*T, error) {
	if tx, ok := db.(bun.Tx); ok {
		return repo.CreateTx(ctx, tx, record)
	}
	return repo.Create(ctx, record)
}

func notFound(err error, kind, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s %s", core.ErrNotFoundLocal, kind, strings.TrimSpace(id))
	}
	return err
}
