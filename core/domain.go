package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type ServiceType string

const ServiceTypeQuickBooks ServiceType = "quickbooks"

type IntegrationStatus string

const (
	IntegrationConnected    IntegrationStatus = "Connected"
	IntegrationDisconnected IntegrationStatus = "Disconnected"
)

type Integration struct {
	ID             string
	TenantID       string
	UserID         string
	ServiceType    ServiceType
	Name           string
	Status         IntegrationStatus
	RealmID        string
	ConnectedAt    *time.Time
	DisconnectedAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (i Integration) Connected() bool {
	return i.Status == IntegrationConnected
}

type EntityType string

const (
	EntityTypeCustomer EntityType = "Customer"
	EntityTypeVendor   EntityType = "Vendor"
	EntityTypeInvoice  EntityType = "Invoice"
	EntityTypePurchase EntityType = "Purchase"
	EntityTypeDocument EntityType = "Document"
	EntityTypeReceipt  EntityType = "Receipt"
)

func (t EntityType) Valid() bool {
	switch t {
	case EntityTypeCustomer, EntityTypeVendor, EntityTypeInvoice,
		EntityTypePurchase, EntityTypeDocument, EntityTypeReceipt:
		return true
	default:
		return false
	}
}

func ParseEntityType(value string) (EntityType, error) {
	for _, candidate := range []EntityType{
		EntityTypeCustomer, EntityTypeVendor, EntityTypeInvoice,
		EntityTypePurchase, EntityTypeDocument, EntityTypeReceipt,
	} {
		if strings.EqualFold(strings.TrimSpace(value), string(candidate)) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("core: invalid entity type %q", value)
}

const MappingStatusSynced = "Synced"

// EntityMapping links a local record to its provider counterpart.
type EntityMapping struct {
	ID            string
	TenantID      string
	IntegrationID string
	EntityType    EntityType
	ExternalID    string
	LocalID       string
	SyncStatus    string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// MappingLookup selects a mapping by exactly one of ExternalID or LocalID.
type MappingLookup struct {
	TenantID      string
	IntegrationID string
	EntityType    EntityType
	ExternalID    string
	LocalID       string
}

func (l MappingLookup) Validate() error {
	if strings.TrimSpace(l.TenantID) == "" {
		return fmt.Errorf("core: mapping lookup tenant id is required")
	}
	if strings.TrimSpace(l.IntegrationID) == "" {
		return fmt.Errorf("core: mapping lookup integration id is required")
	}
	if !l.EntityType.Valid() {
		return fmt.Errorf("core: mapping lookup entity type %q is invalid", l.EntityType)
	}
	hasExternal := strings.TrimSpace(l.ExternalID) != ""
	hasLocal := strings.TrimSpace(l.LocalID) != ""
	if hasExternal == hasLocal {
		return fmt.Errorf("core: mapping lookup requires exactly one of external id or local id")
	}
	return nil
}

type Address struct {
	Line1   string `json:"line1,omitempty"`
	Line2   string `json:"line2,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	ZipCode string `json:"zip_code,omitempty"`
	Country string `json:"country,omitempty"`
}

type Customer struct {
	ID                string
	TenantID          string
	Name              string
	CompanyName       string
	Email             string
	Phone             string
	BillingAddress    *Address
	ShippingAddress   *Address
	Active            bool
	Balance           float64
	ExternalCreatedAt string
	ExternalUpdatedAt string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type Vendor struct {
	ID                string
	TenantID          string
	Name              string
	CompanyName       string
	Email             string
	Phone             string
	Address           *Address
	Active            bool
	Balance           float64
	ExternalCreatedAt string
	ExternalUpdatedAt string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type DocumentType string

const (
	DocumentTypeInvoice DocumentType = "Invoice"
	DocumentTypeReceipt DocumentType = "Receipt"
)

type DocumentStatus string

const (
	DocumentInbox           DocumentStatus = "Inbox"
	DocumentExtraction      DocumentStatus = "Extraction"
	DocumentReady           DocumentStatus = "Ready"
	DocumentProcessing      DocumentStatus = "Processing"
	DocumentMissingData     DocumentStatus = "MissingData"
	DocumentProcessed       DocumentStatus = "Processed"
	DocumentProcessingError DocumentStatus = "ProcessingError"
	DocumentFailed          DocumentStatus = "Failed"
)

// NormalizeDocumentStatus folds legacy spellings onto the canonical set.
func NormalizeDocumentStatus(value string) DocumentStatus {
	trimmed := strings.TrimSpace(value)
	switch strings.ToLower(trimmed) {
	case "inbox":
		return DocumentInbox
	case "extraction":
		return DocumentExtraction
	case "ready":
		return DocumentReady
	case "processing":
		return DocumentProcessing
	case "missingdata", "missing_data":
		return DocumentMissingData
	case "processed":
		return DocumentProcessed
	case "processingerror", "processing_error", "error":
		return DocumentProcessingError
	case "failed":
		return DocumentFailed
	default:
		return DocumentStatus(trimmed)
	}
}

// Failure reports whether status is one of the durable failure states.
func (s DocumentStatus) Failure() bool {
	return s == DocumentMissingData || s == DocumentProcessingError || s == DocumentFailed
}

type Document struct {
	ID                  string
	TenantID            string
	UserID              string
	Type                DocumentType
	Status              DocumentStatus
	FilePath            string
	ProcessedImagePaths []string
	ProcessedData       json.RawMessage
	RawData             json.RawMessage
	ErrorMessage        string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type InvoiceLineItem struct {
	ID          string
	InvoiceID   string
	Position    int
	Description string
	Quantity    float64
	UnitPrice   float64
	Amount      float64
}

type Invoice struct {
	ID            string
	TenantID      string
	DocumentID    string
	CustomerID    string
	InvoiceNumber string
	Date          string
	DueDate       string
	Currency      string
	TotalAmount   float64
	Lines         []InvoiceLineItem
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type PurchaseLineItem struct {
	ID          string
	PurchaseID  string
	Position    int
	Description string
	Amount      float64
}

type Purchase struct {
	ID              string
	TenantID        string
	DocumentID      string
	VendorID        string
	TransactionDate string
	PaymentType     string
	Currency        string
	TotalAmount     float64
	Lines           []PurchaseLineItem
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// KindReport counts pull-sync outcomes for one entity kind.
type KindReport struct {
	Processed int `json:"processed"`
	Created   int `json:"created"`
	Updated   int `json:"updated"`
}

type SyncReport struct {
	RunID string                    `json:"run_id,omitempty"`
	Kinds map[EntityType]KindReport `json:"kinds"`
}

func NewSyncReport(runID string) SyncReport {
	return SyncReport{RunID: runID, Kinds: map[EntityType]KindReport{}}
}

func (r *SyncReport) record(kind EntityType, created bool) {
	if r.Kinds == nil {
		r.Kinds = map[EntityType]KindReport{}
	}
	entry := r.Kinds[kind]
	entry.Processed++
	if created {
		entry.Created++
	} else {
		entry.Updated++
	}
	r.Kinds[kind] = entry
}

func (r *SyncReport) ensure(kind EntityType) {
	if r.Kinds == nil {
		r.Kinds = map[EntityType]KindReport{}
	}
	if _, ok := r.Kinds[kind]; !ok {
		r.Kinds[kind] = KindReport{}
	}
}

type SyncRunStatus string

const (
	SyncRunQueued     SyncRunStatus = "Queued"
	SyncRunProcessing SyncRunStatus = "Processing"
	SyncRunSynced     SyncRunStatus = "Synced"
	SyncRunFailed     SyncRunStatus = "Failed"
)

// SyncRun is the durable log entry of one pull-sync.
type SyncRun struct {
	ID            string
	TenantID      string
	IntegrationID string
	Trigger       string
	Status        SyncRunStatus
	Report        SyncReport
	ErrorMessage  string
	StartedAt     *time.Time
	FinishedAt    *time.Time
	CreatedAt     time.Time
}

// PushResult is the outcome of pushing one document.
type PushResult struct {
	DocumentID       string            `json:"document_id"`
	Status           DocumentStatus    `json:"status"`
	ExternalID       string            `json:"external_id,omitempty"`
	Error            string            `json:"error,omitempty"`
	ValidationErrors []ValidationIssue `json:"validation_errors,omitempty"`
}

type IntegrationStatusReport struct {
	TenantID             string
	Integration          *Integration
	HasActiveIntegration bool
	RealmID              string
	LastSync             *SyncRun
}
