package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-ledger-sync/transform"
)

// PushInvoice pushes the invoice document to the connected provider. The
// returned result always carries the document's final status; err is the
// classified failure, if any.
func (s *Service) PushInvoice(ctx context.Context, documentID string) (PushResult, error) {
	return s.pushDocument(ctx, documentID, DocumentTypeInvoice)
}

// PushExpense pushes a receipt document as a provider purchase.
func (s *Service) PushExpense(ctx context.Context, documentID string) (PushResult, error) {
	return s.pushDocument(ctx, documentID, DocumentTypeReceipt)
}

func (s *Service) pushDocument(ctx context.Context, documentID string, docType DocumentType) (result PushResult, err error) {
	startedAt := time.Now().UTC()
	operation := "push_invoice"
	if docType == DocumentTypeReceipt {
		operation = "push_expense"
	}
	documentID = strings.TrimSpace(documentID)
	fields := map[string]any{"document_id": documentID}
	defer func() {
		fields["document_status"] = string(result.Status)
		if result.ExternalID != "" {
			fields["external_id"] = result.ExternalID
		}
		s.obs.observeOperation(ctx, startedAt, operation, err, fields)
	}()

	result = PushResult{DocumentID: documentID}
	if documentID == "" {
		return result, fmt.Errorf("%w: document id is required", ErrInvalidRequest)
	}
	if s.stores.Documents == nil || s.stores.Integrations == nil || s.stores.Mappings == nil {
		return result, fmt.Errorf("core: document, integration and mapping stores are required")
	}
	doc, err := s.stores.Documents.Get(ctx, documentID)
	if err != nil {
		return result, err
	}
	if doc.Type != docType {
		return result, fmt.Errorf("%w: document %s is %s, expected %s", ErrInvalidRequest, doc.ID, doc.Type, docType)
	}
	fields["tenant_id"] = doc.TenantID

	handle, err := s.locker.Acquire(ctx, pushLockKey(doc.TenantID, EntityTypeDocument, doc.ID), s.config.Sync.PushLockTTL)
	if err != nil {
		return result, err
	}
	defer releaseLock(ctx, handle)

	integration, found, err := s.stores.Integrations.FindConnected(ctx, doc.TenantID, ServiceTypeQuickBooks)
	if err != nil {
		return result, err
	}
	if !found {
		return s.failPush(ctx, result, doc, nil, ErrNotConnected)
	}
	fields["integration_id"] = integration.ID

	var externalID string
	switch docType {
	case DocumentTypeInvoice:
		externalID, err = s.pushInvoice(ctx, &doc, integration)
	default:
		externalID, err = s.pushReceipt(ctx, &doc, integration)
	}
	if err != nil {
		result.ExternalID = externalID
		return s.failPush(ctx, result, doc, &integration, err)
	}
	if err := s.setDocumentStatus(ctx, doc.ID, DocumentProcessed, ""); err != nil {
		return result, err
	}
	result.Status = DocumentProcessed
	result.ExternalID = externalID
	return result, nil
}

func (s *Service) pushInvoice(ctx context.Context, doc *Document, integration Integration) (string, error) {
	if err := s.setDocumentStatus(ctx, doc.ID, DocumentProcessing, ""); err != nil {
		return "", err
	}
	raw, err := s.loadSource(ctx, doc)
	if err != nil {
		return "", err
	}
	source, err := transform.DecodeSourceInvoice(raw)
	if err != nil {
		return "", invalidSourceFailure(err)
	}
	if missing := source.Missing(); len(missing) > 0 {
		return "", &transform.MissingFieldsError{Document: "invoice", Fields: missing}
	}
	if strings.TrimSpace(source.CustomerDetails.CompanyName) == "" {
		return "", NewValidationFailure([]ValidationIssue{{
			Field:   "/CustomerDetails/CompanyName",
			Code:    "required",
			Message: "customer company name is required",
		}})
	}

	session, err := s.openSession(ctx, integration)
	if err != nil {
		return "", err
	}

	var customer Customer
	var invoice Invoice
	err = s.withinTx(ctx, func(ctx context.Context, tx TxStores) error {
		var err error
		customer, err = findOrCreateCustomer(ctx, tx, doc.TenantID, source.CustomerDetails)
		if err != nil {
			return err
		}
		existing, found, err := tx.Invoices.FindByDocument(ctx, doc.TenantID, doc.ID)
		if err != nil {
			return err
		}
		fresh := invoiceFromSource(*doc, customer.ID, source, s.config.Transform.DefaultCurrency)
		if found {
			fresh.ID = existing.ID
			fresh.CreatedAt = existing.CreatedAt
			invoice, err = tx.Invoices.Update(ctx, fresh)
			return err
		}
		invoice, err = tx.Invoices.Create(ctx, fresh)
		return err
	})
	if err != nil {
		return "", err
	}

	customerExternalID, err := s.resolveCounterparty(ctx, session, integration, EntityTypeCustomer,
		customer.ID, customer.Name, transform.CustomerFromSource(source.CustomerDetails))
	if err != nil {
		return "", err
	}

	payload, err := s.transformer.TransformInvoice(source, &transform.Ref{Value: customerExternalID, Name: customer.Name})
	if err != nil {
		return "", err
	}
	if check := s.validator.ValidateInvoice(payload); !check.Valid {
		return "", NewValidationFailure(check.Issues)
	}
	return s.upsertExternal(ctx, session, integration, EntityTypeInvoice, invoice.ID, payload, func(id, syncToken string) any {
		return payload.ForUpdate(id, syncToken)
	})
}

func (s *Service) pushReceipt(ctx context.Context, doc *Document, integration Integration) (string, error) {
	raw, err := s.loadSource(ctx, doc)
	if err != nil {
		return "", err
	}
	source, err := transform.DecodeSourceReceipt(raw)
	if err != nil {
		return "", invalidSourceFailure(err)
	}
	if missing := source.Missing(); len(missing) > 0 {
		return "", &transform.MissingFieldsError{Document: "receipt", Fields: missing}
	}
	if source.VendorDetails.DisplayName() == "" {
		return "", NewValidationFailure([]ValidationIssue{{
			Field:   "/VendorDetails/Name",
			Code:    "required",
			Message: "vendor name is required",
		}})
	}

	session, err := s.openSession(ctx, integration)
	if err != nil {
		return "", err
	}

	var vendor Vendor
	var purchase Purchase
	err = s.withinTx(ctx, func(ctx context.Context, tx TxStores) error {
		var err error
		vendor, err = findOrCreateVendor(ctx, tx, doc.TenantID, source.VendorDetails)
		if err != nil {
			return err
		}
		existing, found, err := tx.Purchases.FindByDocument(ctx, doc.TenantID, doc.ID)
		if err != nil {
			return err
		}
		fresh := purchaseFromSource(*doc, vendor.ID, source)
		if found {
			fresh.ID = existing.ID
			fresh.CreatedAt = existing.CreatedAt
			purchase, err = tx.Purchases.Update(ctx, fresh)
			return err
		}
		purchase, err = tx.Purchases.Create(ctx, fresh)
		return err
	})
	if err != nil {
		return "", err
	}

	vendorExternalID, err := s.resolveCounterparty(ctx, session, integration, EntityTypeVendor,
		vendor.ID, vendor.Name, transform.VendorFromSource(source.VendorDetails))
	if err != nil {
		return "", err
	}

	payload, err := s.transformer.TransformReceipt(source, vendorExternalID)
	if err != nil {
		return "", err
	}
	if check := s.validator.ValidateReceipt(payload); !check.Valid {
		return "", NewValidationFailure(check.Issues)
	}
	if err := s.setDocumentStatus(ctx, doc.ID, DocumentReady, ""); err != nil {
		return "", err
	}
	return s.upsertExternal(ctx, session, integration, EntityTypeReceipt, purchase.ID, payload, func(id, syncToken string) any {
		return payload.ForUpdate(id, syncToken)
	})
}

// resolveCounterparty returns the provider id of a local customer or vendor:
// the stored mapping first, then an exact DisplayName match, then a new
// provider record. The mapping is written in every non-mapped case.
func (s *Service) resolveCounterparty(
	ctx context.Context,
	session *providerSession,
	integration Integration,
	kind EntityType,
	localID string,
	name string,
	payload any,
) (string, error) {
	entity, err := externalEntity(kind)
	if err != nil {
		return "", err
	}
	handle, err := acquireWithWait(ctx, s.locker, pushLockKey(integration.TenantID, kind, localID),
		s.config.Sync.PushLockTTL, s.config.Tokens.LockWait)
	if err != nil {
		return "", err
	}
	defer releaseLock(ctx, handle)

	lookup := MappingLookup{
		TenantID:      integration.TenantID,
		IntegrationID: integration.ID,
		EntityType:    kind,
		LocalID:       localID,
	}
	mapping, found, err := s.stores.Mappings.Find(ctx, lookup)
	if err != nil {
		return "", err
	}
	if found && mapping.ExternalID != "" {
		return mapping.ExternalID, nil
	}

	record, found, err := session.FindByName(ctx, entity, name)
	if err != nil {
		return "", err
	}
	if !found {
		record, err = session.Create(ctx, entity, payload)
		if err != nil {
			return "", err
		}
	}
	saved, err := s.saveMapping(ctx, integration, kind, localID, record.ID)
	if err != nil {
		return "", err
	}
	return saved.ExternalID, nil
}

// upsertExternal creates the provider document on first push and records its
// mapping; later pushes of the same local record become sparse updates.
func (s *Service) upsertExternal(
	ctx context.Context,
	session *providerSession,
	integration Integration,
	kind EntityType,
	localID string,
	payload any,
	forUpdate func(id, syncToken string) any,
) (string, error) {
	entity, err := externalEntity(kind)
	if err != nil {
		return "", err
	}
	mapping, found, err := s.stores.Mappings.Find(ctx, MappingLookup{
		TenantID:      integration.TenantID,
		IntegrationID: integration.ID,
		EntityType:    kind,
		LocalID:       localID,
	})
	if err != nil {
		return "", err
	}
	if found {
		if _, err := s.updateExternal(ctx, session, entity, mapping.ExternalID, forUpdate); err != nil {
			return mapping.ExternalID, err
		}
		return mapping.ExternalID, nil
	}

	record, err := session.Create(ctx, entity, payload)
	if err != nil {
		return "", err
	}
	if _, err := s.saveMapping(ctx, integration, kind, localID, record.ID); err != nil {
		return record.ID, err
	}
	return record.ID, nil
}

// updateExternal always re-reads the live SyncToken before a sparse update
// and retries exactly once on a version conflict.
func (s *Service) updateExternal(
	ctx context.Context,
	session *providerSession,
	entity transform.EntityName,
	externalID string,
	forUpdate func(id, syncToken string) any,
) (ExternalRecord, error) {
	for attempt := 1; ; attempt++ {
		live, err := session.GetByID(ctx, entity, externalID)
		if err != nil {
			return ExternalRecord{}, err
		}
		record, err := session.Update(ctx, entity, forUpdate(live.ID, live.SyncToken))
		if err == nil {
			return record, nil
		}
		if attempt > 1 || !IsVersionConflict(err) {
			return ExternalRecord{}, err
		}
		s.logger.Warn("provider version conflict, refetching sync token",
			"entity_kind", string(entity),
			"external_id", externalID,
			"sync_token", live.SyncToken,
		)
	}
}

// saveMapping writes a mapping, tolerating a concurrent writer that stored the
// same pair first.
func (s *Service) saveMapping(ctx context.Context, integration Integration, kind EntityType, localID, externalID string) (EntityMapping, error) {
	mapping, err := s.stores.Mappings.Create(ctx, EntityMapping{
		TenantID:      integration.TenantID,
		IntegrationID: integration.ID,
		EntityType:    kind,
		ExternalID:    externalID,
		LocalID:       localID,
		SyncStatus:    MappingStatusSynced,
	})
	if err == nil {
		return mapping, nil
	}
	if !errors.Is(err, ErrMappingExists) {
		return EntityMapping{}, err
	}
	existing, found, findErr := s.stores.Mappings.Find(ctx, MappingLookup{
		TenantID:      integration.TenantID,
		IntegrationID: integration.ID,
		EntityType:    kind,
		LocalID:       localID,
	})
	if findErr != nil {
		return EntityMapping{}, findErr
	}
	if !found {
		return EntityMapping{}, err
	}
	return existing, nil
}

// loadSource returns the document's structured data, running extraction when
// none has been stored yet.
func (s *Service) loadSource(ctx context.Context, doc *Document) (raw []byte, err error) {
	if hasJSON(doc.ProcessedData) {
		return doc.ProcessedData, nil
	}
	if s.storage == nil || s.extraction == nil {
		return nil, NewValidationFailure([]ValidationIssue{{
			Field:   "/ProcessedData",
			Code:    "required",
			Message: "document has no extracted data",
		}})
	}
	if doc.Type == DocumentTypeReceipt {
		if err := s.setDocumentStatus(ctx, doc.ID, DocumentExtraction, ""); err != nil {
			return nil, err
		}
	}

	refs := append([]string(nil), doc.ProcessedImagePaths...)
	if len(refs) == 0 && strings.TrimSpace(doc.FilePath) != "" {
		refs = []string{doc.FilePath}
	}
	if len(refs) == 0 {
		return nil, NewValidationFailure([]ValidationIssue{{
			Field:   "/FilePath",
			Code:    "required",
			Message: "document has no source file",
		}})
	}
	images := make([][]byte, 0, len(refs))
	for _, ref := range refs {
		data, err := s.storage.DownloadSourceFile(ctx, ref)
		if err != nil {
			return nil, &ExternalServiceError{Operation: "download_source_file", EntityKind: string(EntityTypeDocument), ExternalID: ref, Cause: err}
		}
		images = append(images, data)
	}

	schema, err := transform.SourceInvoiceSchema()
	if doc.Type == DocumentTypeReceipt {
		schema, err = transform.SourceReceiptSchema()
	}
	if err != nil {
		return nil, err
	}
	extracted, err := s.extraction.ExtractStructured(ctx, images, schema)
	if err != nil {
		return nil, &ExternalServiceError{Operation: "extract_structured", EntityKind: string(doc.Type), Cause: err}
	}
	if !hasJSON(extracted.ProcessedJSON) {
		return nil, &ExternalServiceError{Operation: "extract_structured", EntityKind: string(doc.Type), Cause: errors.New("no structured data returned")}
	}
	if err := s.stores.Documents.SaveExtraction(ctx, doc.ID, extracted.ProcessedJSON, extracted.RawJSON); err != nil {
		return nil, err
	}
	key := fmt.Sprintf("%s/documents/%s/extraction.json", doc.TenantID, doc.ID)
	if _, err := s.storage.UploadProcessedArtifact(ctx, extracted.ProcessedJSON, key, "application/json"); err != nil {
		s.logger.Warn("failed to upload extraction artifact", "document_id", doc.ID, "error", err)
	}
	doc.ProcessedData = extracted.ProcessedJSON
	doc.RawData = extracted.RawJSON
	return doc.ProcessedData, nil
}

// failPush classifies cause into the document's terminal status.
func (s *Service) failPush(ctx context.Context, result PushResult, doc Document, integration *Integration, cause error) (PushResult, error) {
	status := DocumentProcessingError
	message := cause.Error()

	var failure *ValidationFailure
	var missing *transform.MissingFieldsError
	switch {
	case errors.As(cause, &failure):
		status = DocumentMissingData
		result.ValidationErrors = append([]ValidationIssue(nil), failure.Errors...)
		message = "validation failed: " + transform.Summary(failure.Errors)
	case errors.As(cause, &missing):
		status = DocumentMissingData
		result.ValidationErrors = missing.Issues()
		message = "validation failed: " + transform.Summary(result.ValidationErrors)
	case errors.Is(cause, ErrNotConnected):
		message = "no connected integration"
	case IsAuthenticationExpired(cause):
		message = "authentication expired, reconnect required"
		if integration != nil {
			if err := s.markDisconnected(context.WithoutCancel(ctx), *integration); err != nil {
				s.logger.Warn("failed to disconnect integration after auth expiry",
					"integration_id", integration.ID, "error", err)
			}
		}
	}

	if err := s.setDocumentStatus(context.WithoutCancel(ctx), doc.ID, status, message); err != nil {
		s.logger.Error("failed to record document failure", "document_id", doc.ID, "error", err)
	}
	result.Status = status
	result.Error = message
	return result, cause
}

func (s *Service) setDocumentStatus(ctx context.Context, documentID string, status DocumentStatus, message string) error {
	return s.stores.Documents.UpdateStatus(ctx, documentID, status, message)
}

func findOrCreateCustomer(ctx context.Context, tx TxStores, tenantID string, details *transform.SourceCustomerDetails) (Customer, error) {
	local := customerFromSource(tenantID, details)
	existing, found, err := tx.Customers.FindByName(ctx, tenantID, local.Name)
	if err != nil {
		return Customer{}, err
	}
	if found {
		return existing, nil
	}
	return tx.Customers.Create(ctx, local)
}

func findOrCreateVendor(ctx context.Context, tx TxStores, tenantID string, details *transform.SourceVendorDetails) (Vendor, error) {
	local := vendorFromSource(tenantID, details)
	existing, found, err := tx.Vendors.FindByName(ctx, tenantID, local.Name)
	if err != nil {
		return Vendor{}, err
	}
	if found {
		return existing, nil
	}
	return tx.Vendors.Create(ctx, local)
}

func invalidSourceFailure(err error) *ValidationFailure {
	return NewValidationFailure([]ValidationIssue{{
		Field:   "/ProcessedData",
		Code:    "invalid",
		Message: err.Error(),
	}})
}

func hasJSON(raw []byte) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed != "" && trimmed != "null" && trimmed != "{}"
}

func pushLockKey(tenantID string, kind EntityType, localID string) string {
	return "ledgersync:push:" + tenantID + ":" + string(kind) + ":" + localID
}
