package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type PullSyncRequest struct {
	TenantID      string
	IntegrationID string
	Trigger       string
}

// PullSync mirrors every configured provider entity kind into local records.
// Kinds run in order; a failed page aborts its kind and the run, leaving the
// records already committed in place.
func (s *Service) PullSync(ctx context.Context, req PullSyncRequest) (report SyncReport, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"tenant_id":      req.TenantID,
		"integration_id": req.IntegrationID,
		"trigger":        req.Trigger,
	}
	defer func() {
		fields["report"] = report.Kinds
		s.obs.observeOperation(ctx, startedAt, "pull_sync", err, fields)
	}()

	integration, err := s.tenantIntegration(ctx, req.TenantID, req.IntegrationID)
	if err != nil {
		return NewSyncReport(""), err
	}
	if !integration.Connected() {
		return NewSyncReport(""), fmt.Errorf("%w: integration %s", ErrNotConnected, integration.ID)
	}
	if s.stores.Mappings == nil {
		return NewSyncReport(""), fmt.Errorf("core: mapping store is not configured")
	}

	run, err := s.beginSyncRun(ctx, integration, req.Trigger)
	if err != nil {
		return NewSyncReport(""), err
	}
	report = NewSyncReport(run.ID)
	defer func() {
		s.finishSyncRun(ctx, run, report, err)
	}()

	session, err := s.openSession(ctx, integration)
	if err == nil {
		runCtx := ctx
		if timeout := s.config.Sync.RunTimeout; timeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		for _, kind := range s.config.PullEntities() {
			if err = s.pullKind(runCtx, session, integration, kind, &report); err != nil {
				fields["failed_kind"] = string(kind)
				break
			}
		}
	}
	if IsAuthenticationExpired(err) {
		if markErr := s.markDisconnected(ctx, integration); markErr != nil {
			s.logger.Warn("failed to disconnect integration after auth expiry",
				"integration_id", integration.ID, "error", markErr)
		}
	}
	return report, err
}

func (s *Service) pullKind(ctx context.Context, session *providerSession, integration Integration, kind EntityType, report *SyncReport) error {
	entity, err := externalEntity(kind)
	if err != nil {
		return err
	}
	pageSize := s.config.Sync.PageSize
	if pageSize <= 0 {
		pageSize = DefaultConfig().Sync.PageSize
	}

	total, err := session.Count(ctx, entity)
	if err != nil {
		return err
	}
	report.ensure(kind)
	if total <= 0 {
		return nil
	}
	for page := 1; ; page++ {
		result, err := session.List(ctx, entity, page, pageSize)
		if err != nil {
			return err
		}
		for _, record := range result.Items {
			created, err := s.reconcileRecord(ctx, integration, kind, record)
			if err != nil {
				return err
			}
			report.record(kind, created)
		}
		if page*pageSize >= total {
			return nil
		}
	}
}

// reconcileRecord upserts one provider record and its mapping in a single
// transaction. A new local record is written before the mapping that points
// at it.
func (s *Service) reconcileRecord(ctx context.Context, integration Integration, kind EntityType, record ExternalRecord) (bool, error) {
	if strings.TrimSpace(record.ID) == "" {
		return false, fmt.Errorf("core: provider %s record has no id", kind)
	}
	created := false
	err := s.withinTx(ctx, func(ctx context.Context, tx TxStores) error {
		lookup := MappingLookup{
			TenantID:      integration.TenantID,
			IntegrationID: integration.ID,
			EntityType:    kind,
			ExternalID:    record.ID,
		}
		mapping, found, err := tx.Mappings.Find(ctx, lookup)
		if err != nil {
			return err
		}
		if found {
			return s.updateLocalFromWire(ctx, tx, integration.TenantID, kind, mapping.LocalID, record)
		}
		localID, err := s.createLocalFromWire(ctx, tx, integration.TenantID, kind, record)
		if err != nil {
			return err
		}
		if _, err := tx.Mappings.Create(ctx, EntityMapping{
			TenantID:      integration.TenantID,
			IntegrationID: integration.ID,
			EntityType:    kind,
			ExternalID:    record.ID,
			LocalID:       localID,
			SyncStatus:    MappingStatusSynced,
		}); err != nil {
			return err
		}
		created = true
		return nil
	})
	return created, err
}

func (s *Service) createLocalFromWire(ctx context.Context, tx TxStores, tenantID string, kind EntityType, record ExternalRecord) (string, error) {
	switch kind {
	case EntityTypeCustomer:
		wire, err := decodeWireCustomer(record.Raw)
		if err != nil {
			return "", err
		}
		local := Customer{TenantID: tenantID}
		applyCustomerWire(&local, wire)
		saved, err := tx.Customers.Create(ctx, local)
		if err != nil {
			return "", err
		}
		return saved.ID, nil
	case EntityTypeVendor:
		wire, err := decodeWireVendor(record.Raw)
		if err != nil {
			return "", err
		}
		local := Vendor{TenantID: tenantID}
		applyVendorWire(&local, wire)
		saved, err := tx.Vendors.Create(ctx, local)
		if err != nil {
			return "", err
		}
		return saved.ID, nil
	default:
		return "", fmt.Errorf("core: pull sync does not support %s", kind)
	}
}

func (s *Service) updateLocalFromWire(ctx context.Context, tx TxStores, tenantID string, kind EntityType, localID string, record ExternalRecord) error {
	switch kind {
	case EntityTypeCustomer:
		wire, err := decodeWireCustomer(record.Raw)
		if err != nil {
			return err
		}
		local, err := tx.Customers.Get(ctx, tenantID, localID)
		if err != nil {
			return err
		}
		applyCustomerWire(&local, wire)
		_, err = tx.Customers.Update(ctx, local)
		return err
	case EntityTypeVendor:
		wire, err := decodeWireVendor(record.Raw)
		if err != nil {
			return err
		}
		local, err := tx.Vendors.Get(ctx, tenantID, localID)
		if err != nil {
			return err
		}
		applyVendorWire(&local, wire)
		_, err = tx.Vendors.Update(ctx, local)
		return err
	default:
		return fmt.Errorf("core: pull sync does not support %s", kind)
	}
}

// withinTx runs fn in the configured unit of work, or directly against the
// service stores when none is configured.
func (s *Service) withinTx(ctx context.Context, fn func(ctx context.Context, tx TxStores) error) error {
	if s.stores.UnitOfWork != nil {
		return s.stores.UnitOfWork.WithinTx(ctx, fn)
	}
	return fn(ctx, TxStores{
		Customers: s.stores.Customers,
		Vendors:   s.stores.Vendors,
		Invoices:  s.stores.Invoices,
		Purchases: s.stores.Purchases,
		Mappings:  s.stores.Mappings,
	})
}

func (s *Service) beginSyncRun(ctx context.Context, integration Integration, trigger string) (SyncRun, error) {
	now := s.now()
	run := SyncRun{
		TenantID:      integration.TenantID,
		IntegrationID: integration.ID,
		Trigger:       strings.TrimSpace(trigger),
		Status:        SyncRunProcessing,
		StartedAt:     timePointer(now),
		CreatedAt:     now,
	}
	if run.Trigger == "" {
		run.Trigger = "manual"
	}
	if s.stores.SyncRuns == nil {
		return run, nil
	}
	return s.stores.SyncRuns.Create(ctx, run)
}

func (s *Service) finishSyncRun(ctx context.Context, run SyncRun, report SyncReport, runErr error) {
	if s.stores.SyncRuns == nil {
		return
	}
	run.Report = report
	run.FinishedAt = timePointer(s.now())
	run.Status = SyncRunSynced
	run.ErrorMessage = ""
	if runErr != nil {
		run.Status = SyncRunFailed
		run.ErrorMessage = runErr.Error()
	}
	// the caller's context may already be cancelled by the run timeout
	if _, err := s.stores.SyncRuns.Update(context.WithoutCancel(ctx), run); err != nil {
		s.logger.Warn("failed to record sync run", "run_id", run.ID, "error", err)
	}
}
