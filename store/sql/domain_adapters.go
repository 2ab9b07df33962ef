package sqlstore

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/goliatone/go-ledger-sync/core"
)

func newIntegrationRecord(in core.Integration, now time.Time) *integrationRecord {
	record := &integrationRecord{
		ID:             in.ID,
		TenantID:       in.TenantID,
		UserID:         in.UserID,
		ServiceType:    string(in.ServiceType),
		Name:           in.Name,
		Status:         string(in.Status),
		RealmID:        in.RealmID,
		ConnectedAt:    cloneTime(in.ConnectedAt),
		DisconnectedAt: cloneTime(in.DisconnectedAt),
		CreatedAt:      in.CreatedAt,
		UpdatedAt:      now,
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	return record
}

func (r *integrationRecord) toDomain() core.Integration {
	if r == nil {
		return core.Integration{}
	}
	return core.Integration{
		ID:             r.ID,
		TenantID:       r.TenantID,
		UserID:         r.UserID,
		ServiceType:    core.ServiceType(r.ServiceType),
		Name:           r.Name,
		Status:         core.IntegrationStatus(r.Status),
		RealmID:        r.RealmID,
		ConnectedAt:    cloneTime(r.ConnectedAt),
		DisconnectedAt: cloneTime(r.DisconnectedAt),
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func newCustomerRecord(in core.Customer, now time.Time) *customerRecord {
	record := &customerRecord{
		ID:                in.ID,
		TenantID:          in.TenantID,
		Name:              in.Name,
		CompanyName:       in.CompanyName,
		Email:             in.Email,
		Phone:             in.Phone,
		BillingAddress:    cloneAddress(in.BillingAddress),
		ShippingAddress:   cloneAddress(in.ShippingAddress),
		Active:            in.Active,
		Balance:           in.Balance,
		ExternalCreatedAt: in.ExternalCreatedAt,
		ExternalUpdatedAt: in.ExternalUpdatedAt,
		CreatedAt:         in.CreatedAt,
		UpdatedAt:         now,
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	return record
}

func (r *customerRecord) toDomain() core.Customer {
	if r == nil {
		return core.Customer{}
	}
	return core.Customer{
		ID:                r.ID,
		TenantID:          r.TenantID,
		Name:              r.Name,
		CompanyName:       r.CompanyName,
		Email:             r.Email,
		Phone:             r.Phone,
		BillingAddress:    cloneAddress(r.BillingAddress),
		ShippingAddress:   cloneAddress(r.ShippingAddress),
		Active:            r.Active,
		Balance:           r.Balance,
		ExternalCreatedAt: r.ExternalCreatedAt,
		ExternalUpdatedAt: r.ExternalUpdatedAt,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

func newVendorRecord(in core.Vendor, now time.Time) *vendorRecord {
	record := &vendorRecord{
		ID:                in.ID,
		TenantID:          in.TenantID,
		Name:              in.Name,
		CompanyName:       in.CompanyName,
		Email:             in.Email,
		Phone:             in.Phone,
		Address:           cloneAddress(in.Address),
		Active:            in.Active,
		Balance:           in.Balance,
		ExternalCreatedAt: in.ExternalCreatedAt,
		ExternalUpdatedAt: in.ExternalUpdatedAt,
		CreatedAt:         in.CreatedAt,
		UpdatedAt:         now,
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	return record
}

func (r *vendorRecord) toDomain() core.Vendor {
	if r == nil {
		return core.Vendor{}
	}
	return core.Vendor{
		ID:                r.ID,
		TenantID:          r.TenantID,
		Name:              r.Name,
		CompanyName:       r.CompanyName,
		Email:             r.Email,
		Phone:             r.Phone,
		Address:           cloneAddress(r.Address),
		Active:            r.Active,
		Balance:           r.Balance,
		ExternalCreatedAt: r.ExternalCreatedAt,
		ExternalUpdatedAt: r.ExternalUpdatedAt,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

func newDocumentRecord(in core.Document, now time.Time) *documentRecord {
	record := &documentRecord{
		ID:                  in.ID,
		TenantID:            in.TenantID,
		UserID:              in.UserID,
		Type:                string(in.Type),
		Status:              string(core.NormalizeDocumentStatus(string(in.Status))),
		FilePath:            in.FilePath,
		ProcessedImagePaths: append([]string(nil), in.ProcessedImagePaths...),
		ProcessedData:       cloneJSON(in.ProcessedData),
		RawData:             cloneJSON(in.RawData),
		ErrorMessage:        in.ErrorMessage,
		CreatedAt:           in.CreatedAt,
		UpdatedAt:           now,
	}
	if record.Status == "" {
		record.Status = string(core.DocumentInbox)
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	return record
}

// toDomain folds stored legacy statuses onto the canonical vocabulary.
func (r *documentRecord) toDomain() core.Document {
	if r == nil {
		return core.Document{}
	}
	return core.Document{
		ID:                  r.ID,
		TenantID:            r.TenantID,
		UserID:              r.UserID,
		Type:                core.DocumentType(r.Type),
		Status:              core.NormalizeDocumentStatus(r.Status),
		FilePath:            r.FilePath,
		ProcessedImagePaths: append([]string(nil), r.ProcessedImagePaths...),
		ProcessedData:       cloneJSON(r.ProcessedData),
		RawData:             cloneJSON(r.RawData),
		ErrorMessage:        r.ErrorMessage,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
	}
}

func (r *invoiceRecord) toDomain(lines []invoiceLineRecord) core.Invoice {
	out := core.Invoice{
		ID:            r.ID,
		TenantID:      r.TenantID,
		DocumentID:    r.DocumentID,
		CustomerID:    r.CustomerID,
		InvoiceNumber: r.InvoiceNumber,
		Date:          r.Date,
		DueDate:       r.DueDate,
		Currency:      r.Currency,
		TotalAmount:   r.TotalAmount,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	for _, line := range lines {
		out.Lines = append(out.Lines, core.InvoiceLineItem{
			ID:          line.ID,
			InvoiceID:   line.InvoiceID,
			Position:    line.Position,
			Description: line.Description,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			Amount:      line.Amount,
		})
	}
	return out
}

func (r *purchaseRecord) toDomain(lines []purchaseLineRecord) core.Purchase {
	out := core.Purchase{
		ID:              r.ID,
		TenantID:        r.TenantID,
		DocumentID:      r.DocumentID,
		VendorID:        r.VendorID,
		TransactionDate: r.TransactionDate,
		PaymentType:     r.PaymentType,
		Currency:        r.Currency,
		TotalAmount:     r.TotalAmount,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	for _, line := range lines {
		out.Lines = append(out.Lines, core.PurchaseLineItem{
			ID:          line.ID,
			PurchaseID:  line.PurchaseID,
			Position:    line.Position,
			Description: line.Description,
			Amount:      line.Amount,
		})
	}
	return out
}

func (r *entityMappingRecord) toDomain() core.EntityMapping {
	if r == nil {
		return core.EntityMapping{}
	}
	return core.EntityMapping{
		ID:            r.ID,
		TenantID:      r.TenantID,
		IntegrationID: r.IntegrationID,
		EntityType:    core.EntityType(r.EntityType),
		ExternalID:    r.ExternalID,
		LocalID:       r.LocalID,
		SyncStatus:    r.SyncStatus,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func newSyncRunRecord(in core.SyncRun) *syncRunRecord {
	return &syncRunRecord{
		ID:            in.ID,
		TenantID:      in.TenantID,
		IntegrationID: in.IntegrationID,
		Trigger:       in.Trigger,
		Status:        string(in.Status),
		Report:        in.Report,
		ErrorMessage:  in.ErrorMessage,
		StartedAt:     cloneTime(in.StartedAt),
		FinishedAt:    cloneTime(in.FinishedAt),
		CreatedAt:     in.CreatedAt,
	}
}

func (r *syncRunRecord) toDomain() core.SyncRun {
	if r == nil {
		return core.SyncRun{}
	}
	report := r.Report
	if report.Kinds == nil {
		report.Kinds = map[core.EntityType]core.KindReport{}
	}
	return core.SyncRun{
		ID:            r.ID,
		TenantID:      r.TenantID,
		IntegrationID: r.IntegrationID,
		Trigger:       r.Trigger,
		Status:        core.SyncRunStatus(r.Status),
		Report:        report,
		ErrorMessage:  r.ErrorMessage,
		StartedAt:     cloneTime(r.StartedAt),
		FinishedAt:    cloneTime(r.FinishedAt),
		CreatedAt:     r.CreatedAt,
	}
}

func cloneTime(input *time.Time) *time.Time {
	if input == nil {
		return nil
	}
	value := input.UTC()
	return &value
}

func cloneAddress(input *core.Address) *core.Address {
	if input == nil {
		return nil
	}
	value := *input
	return &value
}

// cloneJSON treats a stored JSON null like an absent value.
func cloneJSON(input json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(input)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	return append(json.RawMessage(nil), trimmed...)
}
