package sqlstore

import (
	"encoding/json"
	"time"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-ledger-sync/core"
)

type integrationRecord struct {
	bun.BaseModel `bun:"table:ledger_integrations,alias:li"`

	ID             string     `bun:"id,pk"`
	TenantID       string     `bun:"tenant_id,notnull"`
	UserID         string     `bun:"user_id"`
	ServiceType    string     `bun:"service_type,notnull"`
	Name           string     `bun:"name"`
	Status         string     `bun:"status,notnull"`
	RealmID        string     `bun:"realm_id"`
	Credentials    []byte     `bun:"credentials"`
	ConnectedAt    *time.Time `bun:"connected_at,nullzero"`
	DisconnectedAt *time.Time `bun:"disconnected_at,nullzero"`
	CreatedAt      time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type customerRecord struct {
	bun.BaseModel `bun:"table:ledger_customers,alias:lc"`

	ID                string        `bun:"id,pk"`
	TenantID          string        `bun:"tenant_id,notnull"`
	Name              string        `bun:"name,notnull"`
	CompanyName       string        `bun:"company_name"`
	Email             string        `bun:"email"`
	Phone             string        `bun:"phone"`
	BillingAddress    *core.Address `bun:"billing_address,type:jsonb"`
	ShippingAddress   *core.Address `bun:"shipping_address,type:jsonb"`
	Active            bool          `bun:"active,notnull"`
	Balance           float64       `bun:"balance,notnull"`
	ExternalCreatedAt string        `bun:"external_created_at"`
	ExternalUpdatedAt string        `bun:"external_updated_at"`
	CreatedAt         time.Time     `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt         time.Time     `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type vendorRecord struct {
	bun.BaseModel `bun:"table:ledger_vendors,alias:lv"`

	ID                string        `bun:"id,pk"`
	TenantID          string        `bun:"tenant_id,notnull"`
	Name              string        `bun:"name,notnull"`
	CompanyName       string        `bun:"company_name"`
	Email             string        `bun:"email"`
	Phone             string        `bun:"phone"`
	Address           *core.Address `bun:"address,type:jsonb"`
	Active            bool          `bun:"active,notnull"`
	Balance           float64       `bun:"balance,notnull"`
	ExternalCreatedAt string        `bun:"external_created_at"`
	ExternalUpdatedAt string        `bun:"external_updated_at"`
	CreatedAt         time.Time     `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt         time.Time     `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type documentRecord struct {
	bun.BaseModel `bun:"table:ledger_documents,alias:ld"`

	ID                  string          `bun:"id,pk"`
	TenantID            string          `bun:"tenant_id,notnull"`
	UserID              string          `bun:"user_id"`
	Type                string          `bun:"type,notnull"`
	Status              string          `bun:"status,notnull"`
	FilePath            string          `bun:"file_path"`
	ProcessedImagePaths []string        `bun:"processed_image_paths,type:jsonb"`
	ProcessedData       json.RawMessage `bun:"processed_data,type:jsonb"`
	RawData             json.RawMessage `bun:"raw_data,type:jsonb"`
	ErrorMessage        string          `bun:"error_message"`
	CreatedAt           time.Time       `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt           time.Time       `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type invoiceRecord struct {
	bun.BaseModel `bun:"table:ledger_invoices,alias:linv"`

	ID            string    `bun:"id,pk"`
	TenantID      string    `bun:"tenant_id,notnull"`
	DocumentID    string    `bun:"document_id,notnull"`
	CustomerID    string    `bun:"customer_id,notnull"`
	InvoiceNumber string    `bun:"invoice_number"`
	Date          string    `bun:"invoice_date"`
	DueDate       string    `bun:"due_date"`
	Currency      string    `bun:"currency"`
	TotalAmount   float64   `bun:"total_amount,notnull"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type invoiceLineRecord struct {
	bun.BaseModel `bun:"table:ledger_invoice_lines,alias:lil"`

	ID          string  `bun:"id,pk"`
	InvoiceID   string  `bun:"invoice_id,notnull"`
	Position    int     `bun:"position,notnull"`
	Description string  `bun:"description"`
	Quantity    float64 `bun:"quantity,notnull"`
	UnitPrice   float64 `bun:"unit_price,notnull"`
	Amount      float64 `bun:"amount,notnull"`
}

type purchaseRecord struct {
	bun.BaseModel `bun:"table:ledger_purchases,alias:lp"`

	ID              string    `bun:"id,pk"`
	TenantID        string    `bun:"tenant_id,notnull"`
	DocumentID      string    `bun:"document_id,notnull"`
	VendorID        string    `bun:"vendor_id,notnull"`
	TransactionDate string    `bun:"transaction_date"`
	PaymentType     string    `bun:"payment_type"`
	Currency        string    `bun:"currency"`
	TotalAmount     float64   `bun:"total_amount,notnull"`
	CreatedAt       time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt       time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type purchaseLineRecord struct {
	bun.BaseModel `bun:"table:ledger_purchase_lines,alias:lpl"`

	ID          string  `bun:"id,pk"`
	PurchaseID  string  `bun:"purchase_id,notnull"`
	Position    int     `bun:"position,notnull"`
	Description string  `bun:"description"`
	Amount      float64 `bun:"amount,notnull"`
}

// entityMappingRecord keeps external_id nullable so rows that are not yet
// mapped never collide on the external unique index.
type entityMappingRecord struct {
	bun.BaseModel `bun:"table:ledger_entity_mappings,alias:lem"`

	ID            string    `bun:"id,pk"`
	TenantID      string    `bun:"tenant_id,notnull"`
	IntegrationID string    `bun:"integration_id,notnull"`
	EntityType    string    `bun:"entity_type,notnull"`
	ExternalID    string    `bun:"external_id,nullzero"`
	LocalID       string    `bun:"local_id,notnull"`
	SyncStatus    string    `bun:"sync_status,notnull"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type syncRunRecord struct {
	bun.BaseModel `bun:"table:ledger_sync_runs,alias:lsr"`

	ID            string          `bun:"id,pk"`
	TenantID      string          `bun:"tenant_id,notnull"`
	IntegrationID string          `bun:"integration_id,notnull"`
	Trigger       string          `bun:"trigger_source"`
	Status        string          `bun:"status,notnull"`
	Report        core.SyncReport `bun:"report,type:jsonb"`
	ErrorMessage  string          `bun:"error_message"`
	StartedAt     *time.Time      `bun:"started_at,nullzero"`
	FinishedAt    *time.Time      `bun:"finished_at,nullzero"`
	CreatedAt     time.Time       `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}
