package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-ledger-sync/core"
)

// InvoiceStore persists local invoices with their line items. One invoice
// exists per (tenant, document).
type InvoiceStore struct {
	db bun.IDB
}

func NewInvoiceStore(db *bun.DB) (*InvoiceStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &InvoiceStore{db: db}, nil
}

func (s *InvoiceStore) Create(ctx context.Context, in core.Invoice) (core.Invoice, error) {
	if s == nil || s.db == nil {
		return core.Invoice{}, fmt.Errorf("sqlstore: invoice store is not configured")
	}
	header, lines, err := invoiceRows(in, uuid.NewString(), time.Now().UTC())
	if err != nil {
		return core.Invoice{}, err
	}
	err = inTx(ctx, s.db, func(ctx context.Context, db bun.IDB) error {
		if _, err := db.NewInsert().Model(header).Exec(ctx); err != nil {
			return err
		}
		return insertLines(ctx, db, &lines, len(lines))
	})
	if err != nil {
		return core.Invoice{}, err
	}
	return header.toDomain(lines), nil
}

// Update rewrites the invoice header and replaces its line items.
func (s *InvoiceStore) Update(ctx context.Context, in core.Invoice) (core.Invoice, error) {
	if s == nil || s.db == nil {
		return core.Invoice{}, fmt.Errorf("sqlstore: invoice store is not configured")
	}
	id := strings.TrimSpace(in.ID)
	if id == "" {
		return core.Invoice{}, fmt.Errorf("sqlstore: invoice id is required")
	}
	header, lines, err := invoiceRows(in, id, time.Now().UTC())
	if err != nil {
		return core.Invoice{}, err
	}
	err = inTx(ctx, s.db, func(ctx context.Context, db bun.IDB) error {
		res, err := db.NewUpdate().
			Model(header).
			ExcludeColumn("created_at", "document_id").
			WherePK().
			Where("tenant_id = ?", header.TenantID).
			Exec(ctx)
		if err != nil {
			return err
		}
		if err := requireAffected(res, "invoice", id); err != nil {
			return err
		}
		if _, err := db.NewDelete().Model((*invoiceLineRecord)(nil)).Where("invoice_id = ?", id).Exec(ctx); err != nil {
			return err
		}
		return insertLines(ctx, db, &lines, len(lines))
	})
	if err != nil {
		return core.Invoice{}, err
	}
	header.CreatedAt = in.CreatedAt
	return header.toDomain(lines), nil
}

func (s *InvoiceStore) FindByDocument(ctx context.Context, tenantID, documentID string) (core.Invoice, bool, error) {
	if s == nil || s.db == nil {
		return core.Invoice{}, false, fmt.Errorf("sqlstore: invoice store is not configured")
	}
	header := &invoiceRecord{}
	if found, err := findByDocument(ctx, s.db, header, tenantID, documentID); err != nil || !found {
		return core.Invoice{}, false, err
	}
	lines := []invoiceLineRecord{}
	if err := s.db.NewSelect().
		Model(&lines).
		Where("?TableAlias.invoice_id = ?", header.ID).
		OrderExpr("?TableAlias.position ASC").
		Scan(ctx); err != nil {
		return core.Invoice{}, false, err
	}
	return header.toDomain(lines), true, nil
}

func invoiceRows(in core.Invoice, id string, now time.Time) (*invoiceRecord, []invoiceLineRecord, error) {
	header := &invoiceRecord{
		ID:            id,
		TenantID:      strings.TrimSpace(in.TenantID),
		DocumentID:    strings.TrimSpace(in.DocumentID),
		CustomerID:    strings.TrimSpace(in.CustomerID),
		InvoiceNumber: in.InvoiceNumber,
		Date:          in.Date,
		DueDate:       in.DueDate,
		Currency:      in.Currency,
		TotalAmount:   in.TotalAmount,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if header.TenantID == "" || header.DocumentID == "" || header.CustomerID == "" {
		return nil, nil, fmt.Errorf("sqlstore: invoice tenant id, document id and customer id are required")
	}
	lines := make([]invoiceLineRecord, 0, len(in.Lines))
	for index, line := range in.Lines {
		lines = append(lines, invoiceLineRecord{
			ID:          uuid.NewString(),
			InvoiceID:   id,
			Position:    linePosition(line.Position, index),
			Description: line.Description,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			Amount:      line.Amount,
		})
	}
	return header, lines, nil
}

// PurchaseStore persists local purchases (expenses) with their line items.
type PurchaseStore struct {
	db bun.IDB
}

func NewPurchaseStore(db *bun.DB) (*PurchaseStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &PurchaseStore{db: db}, nil
}

func (s *PurchaseStore) Create(ctx context.Context, in core.Purchase) (core.Purchase, error) {
	if s == nil || s.db == nil {
		return core.Purchase{}, fmt.Errorf("sqlstore: purchase store is not configured")
	}
	header, lines, err := purchaseRows(in, uuid.NewString(), time.Now().UTC())
	if err != nil {
		return core.Purchase{}, err
	}
	err = inTx(ctx, s.db, func(ctx context.Context, db bun.IDB) error {
		if _, err := db.NewInsert().Model(header).Exec(ctx); err != nil {
			return err
		}
		return insertLines(ctx, db, &lines, len(lines))
	})
	if err != nil {
		return core.Purchase{}, err
	}
	return header.toDomain(lines), nil
}

// Update rewrites the purchase header and replaces its line items.
func (s *PurchaseStore) Update(ctx context.Context, in core.Purchase) (core.Purchase, error) {
	if s == nil || s.db == nil {
		return core.Purchase{}, fmt.Errorf("sqlstore: purchase store is not configured")
	}
	id := strings.TrimSpace(in.ID)
	if id == "" {
		return core.Purchase{}, fmt.Errorf("sqlstore: purchase id is required")
	}
	header, lines, err := purchaseRows(in, id, time.Now().UTC())
	if err != nil {
		return core.Purchase{}, err
	}
	err = inTx(ctx, s.db, func(ctx context.Context, db bun.IDB) error {
		res, err := db.NewUpdate().
			Model(header).
			ExcludeColumn("created_at", "document_id").
			WherePK().
			Where("tenant_id = ?", header.TenantID).
			Exec(ctx)
		if err != nil {
			return err
		}
		if err := requireAffected(res, "purchase", id); err != nil {
			return err
		}
		if _, err := db.NewDelete().Model((*purchaseLineRecord)(nil)).Where("purchase_id = ?", id).Exec(ctx); err != nil {
			return err
		}
		return insertLines(ctx, db, &lines, len(lines))
	})
	if err != nil {
		return core.Purchase{}, err
	}
	header.CreatedAt = in.CreatedAt
	return header.toDomain(lines), nil
}

func (s *PurchaseStore) FindByDocument(ctx context.Context, tenantID, documentID string) (core.Purchase, bool, error) {
	if s == nil || s.db == nil {
		return core.Purchase{}, false, fmt.Errorf("sqlstore: purchase store is not configured")
	}
	header := &purchaseRecord{}
	if found, err := findByDocument(ctx, s.db, header, tenantID, documentID); err != nil || !found {
		return core.Purchase{}, false, err
	}
	lines := []purchaseLineRecord{}
	if err := s.db.NewSelect().
		Model(&lines).
		Where("?TableAlias.purchase_id = ?", header.ID).
		OrderExpr("?TableAlias.position ASC").
		Scan(ctx); err != nil {
		return core.Purchase{}, false, err
	}
	return header.toDomain(lines), true, nil
}

func purchaseRows(in core.Purchase, id string, now time.Time) (*purchaseRecord, []purchaseLineRecord, error) {
	header := &purchaseRecord{
		ID:              id,
		TenantID:        strings.TrimSpace(in.TenantID),
		DocumentID:      strings.TrimSpace(in.DocumentID),
		VendorID:        strings.TrimSpace(in.VendorID),
		TransactionDate: in.TransactionDate,
		PaymentType:     in.PaymentType,
		Currency:        in.Currency,
		TotalAmount:     in.TotalAmount,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if header.TenantID == "" || header.DocumentID == "" || header.VendorID == "" {
		return nil, nil, fmt.Errorf("sqlstore: purchase tenant id, document id and vendor id are required")
	}
	lines := make([]purchaseLineRecord, 0, len(in.Lines))
	for index, line := range in.Lines {
		lines = append(lines, purchaseLineRecord{
			ID:          uuid.NewString(),
			PurchaseID:  id,
			Position:    linePosition(line.Position, index),
			Description: line.Description,
			Amount:      line.Amount,
		})
	}
	return header, lines, nil
}

func linePosition(position, index int) int {
	if position > 0 {
		return position
	}
	return index + 1
}

// insertLines is a no-op for an empty slice; bun rejects empty bulk inserts.
func insertLines(ctx context.Context, db bun.IDB, lines any, count int) error {
	if count == 0 {
		return nil
	}
	_, err := db.NewInsert().Model(lines).Exec(ctx)
	return err
}

func findByDocument(ctx context.Context, db bun.IDB, model any, tenantID, documentID string) (bool, error) {
	err := db.NewSelect().
		Model(model).
		Where("?TableAlias.tenant_id = ?", strings.TrimSpace(tenantID)).
		Where("?TableAlias.document_id = ?", strings.TrimSpace(documentID)).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// inTx runs fn on db directly when it already is a transaction, otherwise in
// a new one.
func inTx(ctx context.Context, db bun.IDB, fn func(ctx context.Context, db bun.IDB) error) error {
	if tx, ok := db.(bun.Tx); ok {
		return fn(ctx, tx)
	}
	return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, tx)
	})
}
