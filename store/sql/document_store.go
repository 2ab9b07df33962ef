package sqlstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-ledger-sync/core"
)

// DocumentStore reads and advances uploaded documents. Documents are created
// by the host application; Create exists for it and for fixtures.
type DocumentStore struct {
	db   *bun.DB
	repo repository.Repository[*documentRecord]
}

func NewDocumentStore(db *bun.DB) (*DocumentStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo, err := newRepository(db, documentHandlers(), "document")
	if err != nil {
		return nil, err
	}
	return &DocumentStore{db: db, repo: repo}, nil
}

func (s *DocumentStore) Create(ctx context.Context, in core.Document) (core.Document, error) {
	if s == nil || s.repo == nil {
		return core.Document{}, fmt.Errorf("sqlstore: document store is not configured")
	}
	in.TenantID = strings.TrimSpace(in.TenantID)
	if in.TenantID == "" {
		return core.Document{}, fmt.Errorf("sqlstore: document tenant id is required")
	}
	if in.Type != core.DocumentTypeInvoice && in.Type != core.DocumentTypeReceipt {
		return core.Document{}, fmt.Errorf("sqlstore: document type %q is invalid", in.Type)
	}
	if strings.TrimSpace(in.ID) == "" {
		in.ID = uuid.NewString()
	}
	created, err := s.repo.Create(ctx, newDocumentRecord(in, time.Now().UTC()))
	if err != nil {
		return core.Document{}, err
	}
	return created.toDomain(), nil
}

func (s *DocumentStore) Get(ctx context.Context, id string) (core.Document, error) {
	if s == nil || s.db == nil {
		return core.Document{}, fmt.Errorf("sqlstore: document store is not configured")
	}
	record := &documentRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return core.Document{}, notFound(err, "document", id)
	}
	return record.toDomain(), nil
}

func (s *DocumentStore) UpdateStatus(ctx context.Context, id string, status core.DocumentStatus, message string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: document store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("sqlstore: document id is required")
	}
	res, err := s.db.NewUpdate().
		Model((*documentRecord)(nil)).
		Set("status = ?", string(core.NormalizeDocumentStatus(string(status)))).
		Set("error_message = ?", strings.TrimSpace(message)).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffected(res, "document", id)
}

func (s *DocumentStore) SaveExtraction(ctx context.Context, id string, processed, raw json.RawMessage) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: document store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("sqlstore: document id is required")
	}
	record := &documentRecord{
		ID:            id,
		ProcessedData: cloneJSON(processed),
		RawData:       cloneJSON(raw),
		UpdatedAt:     time.Now().UTC(),
	}
	res, err := s.db.NewUpdate().
		Model(record).
		Column("processed_data", "raw_data", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffected(res, "document", id)
}
