package sqlstore

import (
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-ledger-sync/core"
)

// RepositoryFactory builds every bun-backed store over one database.
type RepositoryFactory struct {
	db *bun.DB

	integrations *IntegrationStore
	customers    *CustomerStore
	vendors      *VendorStore
	invoices     *InvoiceStore
	purchases    *PurchaseStore
	documents    *DocumentStore
	mappings     *MappingStore
	syncRuns     *SyncRunStore

	mappingCache repositorycache.CacheService
}

type FactoryOption func(*RepositoryFactory)

// WithMappingCache routes mapping reads outside transactions through cache.
func WithMappingCache(cache repositorycache.CacheService) FactoryOption {
	return func(f *RepositoryFactory) {
		f.mappingCache = cache
	}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client, opts ...FactoryOption) (*RepositoryFactory, error) {
	if client == nil {
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	}
	return NewRepositoryFactoryFromDB(client.DB(), opts...)
}

func NewRepositoryFactoryFromDB(db *bun.DB, opts ...FactoryOption) (*RepositoryFactory, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	factory := &RepositoryFactory{db: db}
	for _, opt := range opts {
		if opt != nil {
			opt(factory)
		}
	}
	if err := factory.initStores(); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) IntegrationStore() *IntegrationStore {
	if f == nil {
		return nil
	}
	return f.integrations
}

func (f *RepositoryFactory) DocumentStore() *DocumentStore {
	if f == nil {
		return nil
	}
	return f.documents
}

func (f *RepositoryFactory) MappingStore() *MappingStore {
	if f == nil {
		return nil
	}
	return f.mappings
}

// Stores returns the collaborator set consumed by core.Service.
func (f *RepositoryFactory) Stores() (core.Stores, error) {
	if f == nil || f.db == nil {
		return core.Stores{}, fmt.Errorf("sqlstore: repository factory is not initialized")
	}
	var mappings core.MappingStore = f.mappings
	if f.mappingCache != nil {
		cached, err := NewCachedMappingStore(f.mappings, f.mappingCache)
		if err != nil {
			return core.Stores{}, err
		}
		mappings = cached
	}
	return core.Stores{
		Integrations:    f.integrations,
		CredentialBlobs: f.integrations,
		Mappings:        mappings,
		Customers:       f.customers,
		Vendors:         f.vendors,
		Invoices:        f.invoices,
		Purchases:       f.purchases,
		Documents:       f.documents,
		SyncRuns:        f.syncRuns,
		UnitOfWork: &UnitOfWork{
			db:        f.db,
			customers: f.customers,
			vendors:   f.vendors,
			mappings:  f.mappings,
		},
	}, nil
}

func (f *RepositoryFactory) initStores() error {
	var err error
	if f.integrations, err = NewIntegrationStore(f.db); err != nil {
		return err
	}
	if f.customers, err = NewCustomerStore(f.db); err != nil {
		return err
	}
	if f.vendors, err = NewVendorStore(f.db); err != nil {
		return err
	}
	if f.invoices, err = NewInvoiceStore(f.db); err != nil {
		return err
	}
	if f.purchases, err = NewPurchaseStore(f.db); err != nil {
		return err
	}
	if f.documents, err = NewDocumentStore(f.db); err != nil {
		return err
	}
	if f.mappings, err = NewMappingStore(f.db); err != nil {
		return err
	}
	if f.syncRuns, err = NewSyncRunStore(f.db); err != nil {
		return err
	}
	return nil
}
