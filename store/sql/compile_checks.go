package sqlstore

import "github.com/goliatone/go-ledger-sync/core"

var (
	_ core.IntegrationStore    = (*IntegrationStore)(nil)
	_ core.CredentialBlobStore = (*IntegrationStore)(nil)
	_ core.CustomerStore       = (*CustomerStore)(nil)
	_ core.VendorStore         = (*VendorStore)(nil)
	_ core.InvoiceStore        = (*InvoiceStore)(nil)
	_ core.PurchaseStore       = (*PurchaseStore)(nil)
	_ core.DocumentStore       = (*DocumentStore)(nil)
	_ core.MappingStore        = (*MappingStore)(nil)
	_ core.SyncRunStore        = (*SyncRunStore)(nil)
	_ core.UnitOfWork          = (*UnitOfWork)(nil)
)
