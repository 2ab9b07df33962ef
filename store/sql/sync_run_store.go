package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-ledger-sync/core"
)

type SyncRunStore struct {
	db   *bun.DB
	repo repository.Repository[*syncRunRecord]
}

func NewSyncRunStore(db *bun.DB) (*SyncRunStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo, err := newRepository(db, syncRunHandlers(), "sync run")
	if err != nil {
		return nil, err
	}
	return &SyncRunStore{db: db, repo: repo}, nil
}

func (s *SyncRunStore) Create(ctx context.Context, run core.SyncRun) (core.SyncRun, error) {
	if s == nil || s.repo == nil {
		return core.SyncRun{}, fmt.Errorf("sqlstore: sync run store is not configured")
	}
	run.TenantID = strings.TrimSpace(run.TenantID)
	run.IntegrationID = strings.TrimSpace(run.IntegrationID)
	if run.TenantID == "" || run.IntegrationID == "" {
		return core.SyncRun{}, fmt.Errorf("sqlstore: sync run tenant id and integration id are required")
	}
	if strings.TrimSpace(run.ID) == "" {
		run.ID = uuid.NewString()
	}
	if run.Status == "" {
		run.Status = core.SyncRunQueued
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	created, err := s.repo.Create(ctx, newSyncRunRecord(run))
	if err != nil {
		return core.SyncRun{}, err
	}
	return created.toDomain(), nil
}

func (s *SyncRunStore) Update(ctx context.Context, run core.SyncRun) (core.SyncRun, error) {
	if s == nil || s.db == nil {
		return core.SyncRun{}, fmt.Errorf("sqlstore: sync run store is not configured")
	}
	run.ID = strings.TrimSpace(run.ID)
	if run.ID == "" {
		return core.SyncRun{}, fmt.Errorf("sqlstore: sync run id is required")
	}
	record := newSyncRunRecord(run)
	res, err := s.db.NewUpdate().
		Model(record).
		Column("status", "report", "error_message", "started_at", "finished_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return core.SyncRun{}, err
	}
	if err := requireAffected(res, "sync run", run.ID); err != nil {
		return core.SyncRun{}, err
	}
	return record.toDomain(), nil
}

// ListByIntegration returns the newest runs first.
func (s *SyncRunStore) ListByIntegration(ctx context.Context, tenantID, integrationID string, limit int) ([]core.SyncRun, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: sync run store is not configured")
	}
	if limit <= 0 {
		limit = 20
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("tenant_id", "=", strings.TrimSpace(tenantID)),
		repository.SelectBy("integration_id", "=", strings.TrimSpace(integrationID)),
		repository.OrderBy("created_at DESC"),
		repository.SelectPaginate(limit, 0),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.SyncRun, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}
