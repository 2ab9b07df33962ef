package sqlstore

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-ledger-sync/core"
)

// UnitOfWork binds the local entity and mapping stores to one bun transaction.
type UnitOfWork struct {
	db        *bun.DB
	customers *CustomerStore
	vendors   *VendorStore
	mappings  *MappingStore
}

func (u *UnitOfWork) WithinTx(ctx context.Context, fn func(ctx context.Context, stores core.TxStores) error) error {
	if u == nil || u.db == nil {
		return fmt.Errorf("sqlstore: unit of work is not configured")
	}
	if fn == nil {
		return fmt.Errorf("sqlstore: unit of work callback is required")
	}
	return u.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, core.TxStores{
			Customers: u.customers.withTx(tx),
			Vendors:   u.vendors.withTx(tx),
			Invoices:  &InvoiceStore{db: tx},
			Purchases: &PurchaseStore{db: tx},
			Mappings:  u.mappings.withTx(tx),
		})
	})
}
