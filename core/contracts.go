package core

import (
	"context"
	"encoding/json"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-ledger-sync/transform"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type SecretProvider interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// CredentialBlobStore persists the opaque credential blob owned by an
// integration row. LoadCredentialBlob returns nil without error when the
// integration has no credentials.
type CredentialBlobStore interface {
	LoadCredentialBlob(ctx context.Context, integrationID string) ([]byte, error)
	SaveCredentialBlob(ctx context.Context, integrationID string, blob []byte) error
	ClearCredentialBlob(ctx context.Context, integrationID string) error
}

type CredentialStore interface {
	Load(ctx context.Context, integrationID string) (IntegrationCredential, bool, error)
	Save(ctx context.Context, integrationID string, credential IntegrationCredential) error
	Clear(ctx context.Context, integrationID string) error
}

type IntegrationStore interface {
	Create(ctx context.Context, integration Integration) (Integration, error)
	Get(ctx context.Context, id string) (Integration, error)
	Update(ctx context.Context, integration Integration) (Integration, error)
	ListByTenant(ctx context.Context, tenantID string) ([]Integration, error)
	FindConnected(ctx context.Context, tenantID string, serviceType ServiceType) (Integration, bool, error)
}

// MappingStore is the only writer of entity mappings. Find returns false when
// no mapping exists; that is never an error.
type MappingStore interface {
	Find(ctx context.Context, lookup MappingLookup) (EntityMapping, bool, error)
	Create(ctx context.Context, mapping EntityMapping) (EntityMapping, error)
}

type CustomerStore interface {
	Create(ctx context.Context, customer Customer) (Customer, error)
	Get(ctx context.Context, tenantID, id string) (Customer, error)
	Update(ctx context.Context, customer Customer) (Customer, error)
	FindByName(ctx context.Context, tenantID, name string) (Customer, bool, error)
}

type VendorStore interface {
	Create(ctx context.Context, vendor Vendor) (Vendor, error)
	Get(ctx context.Context, tenantID, id string) (Vendor, error)
	Update(ctx context.Context, vendor Vendor) (Vendor, error)
	FindByName(ctx context.Context, tenantID, name string) (Vendor, bool, error)
}

type InvoiceStore interface {
	Create(ctx context.Context, invoice Invoice) (Invoice, error)
	Update(ctx context.Context, invoice Invoice) (Invoice, error)
	FindByDocument(ctx context.Context, tenantID, documentID string) (Invoice, bool, error)
}

type PurchaseStore interface {
	Create(ctx context.Context, purchase Purchase) (Purchase, error)
	Update(ctx context.Context, purchase Purchase) (Purchase, error)
	FindByDocument(ctx context.Context, tenantID, documentID string) (Purchase, bool, error)
}

type DocumentStore interface {
	Get(ctx context.Context, id string) (Document, error)
	UpdateStatus(ctx context.Context, id string, status DocumentStatus, message string) error
	SaveExtraction(ctx context.Context, id string, processed, raw json.RawMessage) error
}

type SyncRunStore interface {
	Create(ctx context.Context, run SyncRun) (SyncRun, error)
	Update(ctx context.Context, run SyncRun) (SyncRun, error)
	ListByIntegration(ctx context.Context, tenantID, integrationID string, limit int) ([]SyncRun, error)
}

// TxStores are bound to one local transaction.
type TxStores struct {
	Customers CustomerStore
	Vendors   VendorStore
	Invoices  InvoiceStore
	Purchases PurchaseStore
	Mappings  MappingStore
}

type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, stores TxStores) error) error
}

// Stores groups the persistence collaborators the service needs.
type Stores struct {
	Integrations    IntegrationStore
	CredentialBlobs CredentialBlobStore
	Mappings        MappingStore
	Customers       CustomerStore
	Vendors         VendorStore
	Invoices        InvoiceStore
	Purchases       PurchaseStore
	Documents       DocumentStore
	SyncRuns        SyncRunStore
	UnitOfWork      UnitOfWork
}

type ExternalRecord struct {
	ID        string
	SyncToken string
	Raw       json.RawMessage
}

type ExternalPage struct {
	Items       []ExternalRecord
	CurrentPage int
	PageSize    int
	TotalCount  int
}

// ExternalAPI is the provider gateway. Every call takes the credential to use;
// implementations hold no token state.
type ExternalAPI interface {
	Count(ctx context.Context, cred IntegrationCredential, kind transform.EntityName) (int, error)
	List(ctx context.Context, cred IntegrationCredential, kind transform.EntityName, page, pageSize int) (ExternalPage, error)
	GetByID(ctx context.Context, cred IntegrationCredential, kind transform.EntityName, id string) (ExternalRecord, error)
	FindByName(ctx context.Context, cred IntegrationCredential, kind transform.EntityName, name string) (ExternalRecord, bool, error)
	Create(ctx context.Context, cred IntegrationCredential, kind transform.EntityName, payload any) (ExternalRecord, error)
	Update(ctx context.Context, cred IntegrationCredential, kind transform.EntityName, payload any) (ExternalRecord, error)
	CompanyInfo(ctx context.Context, cred IntegrationCredential) (transform.CompanyInfo, error)
}

// OAuthClient talks to the provider authorization server.
type OAuthClient interface {
	AuthorizationURL(state string) (string, error)
	ExchangeCode(ctx context.Context, code, realmID string) (IntegrationCredential, error)
	Refresh(ctx context.Context, cred IntegrationCredential) (IntegrationCredential, error)
	Revoke(ctx context.Context, token string) error
}

type LockHandle interface {
	Unlock(ctx context.Context) error
}

// Locker grants short-lived advisory locks. Acquire fails with
// ErrLockUnavailable when the key is held.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (LockHandle, error)
}

type StorageService interface {
	DownloadSourceFile(ctx context.Context, ref string) ([]byte, error)
	UploadProcessedArtifact(ctx context.Context, data []byte, key, mimeType string) (string, error)
}

type ExtractionResult struct {
	ProcessedJSON json.RawMessage
	RawJSON       json.RawMessage
}

type ExtractionService interface {
	ExtractStructured(ctx context.Context, images [][]byte, targetSchema json.RawMessage) (ExtractionResult, error)
}

type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

type TransportRequest struct {
	Method               string
	URL                  string
	Headers              map[string]string
	Query                map[string]string
	Body                 []byte
	Timeout              time.Duration
	MaxResponseBodyBytes int64
}

type TransportResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Duration   time.Duration
}

type TransportAdapter interface {
	Kind() string
	Do(ctx context.Context, req TransportRequest) (TransportResponse, error)
}
