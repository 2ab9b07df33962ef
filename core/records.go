package core

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/goliatone/go-ledger-sync/transform"
)

func externalEntity(kind EntityType) (transform.EntityName, error) {
	switch kind {
	case EntityTypeCustomer:
		return transform.EntityCustomer, nil
	case EntityTypeVendor:
		return transform.EntityVendor, nil
	case EntityTypeInvoice:
		return transform.EntityInvoice, nil
	case EntityTypePurchase, EntityTypeReceipt:
		return transform.EntityPurchase, nil
	default:
		return "", fmt.Errorf("core: entity type %q has no provider resource", kind)
	}
}

func addressFromWire(wire *transform.PhysicalAddress) *Address {
	if wire == nil || wire.Empty() {
		return nil
	}
	return &Address{
		Line1:   wire.Line1,
		Line2:   wire.Line2,
		City:    wire.City,
		State:   wire.CountrySubDivisionCode,
		ZipCode: wire.PostalCode,
		Country: wire.Country,
	}
}

func addressFromSource(source *transform.SourceAddress) *Address {
	return addressFromWire(source.Wire())
}

func decodeWireCustomer(raw json.RawMessage) (transform.Customer, error) {
	var out transform.Customer
	if err := json.Unmarshal(raw, &out); err != nil {
		return transform.Customer{}, fmt.Errorf("core: decode provider customer: %w", err)
	}
	return out, nil
}

func decodeWireVendor(raw json.RawMessage) (transform.Vendor, error) {
	var out transform.Vendor
	if err := json.Unmarshal(raw, &out); err != nil {
		return transform.Vendor{}, fmt.Errorf("core: decode provider vendor: %w", err)
	}
	return out, nil
}

// applyCustomerWire copies the provider fields onto a local customer.
func applyCustomerWire(dst *Customer, wire transform.Customer) {
	dst.Name = strings.TrimSpace(wire.DisplayName)
	dst.CompanyName = strings.TrimSpace(wire.CompanyName)
	dst.Email = wire.PrimaryEmailAddr.Value()
	dst.Phone = wire.PrimaryPhone.Value()
	dst.BillingAddress = addressFromWire(wire.BillAddr)
	dst.ShippingAddress = addressFromWire(wire.ShipAddr)
	dst.Active = wire.Active == nil || *wire.Active
	dst.Balance = wire.Balance
	dst.ExternalCreatedAt = wire.MetaData.Created()
	dst.ExternalUpdatedAt = wire.MetaData.Updated()
	if dst.Name == "" {
		dst.Name = dst.CompanyName
	}
}

func applyVendorWire(dst *Vendor, wire transform.Vendor) {
	dst.Name = strings.TrimSpace(wire.DisplayName)
	dst.CompanyName = strings.TrimSpace(wire.CompanyName)
	dst.Email = wire.PrimaryEmailAddr.Value()
	dst.Phone = wire.PrimaryPhone.Value()
	dst.Address = addressFromWire(wire.BillAddr)
	dst.Active = wire.Active == nil || *wire.Active
	dst.Balance = wire.Balance
	dst.ExternalCreatedAt = wire.MetaData.Created()
	dst.ExternalUpdatedAt = wire.MetaData.Updated()
	if dst.Name == "" {
		dst.Name = dst.CompanyName
	}
}

func customerFromSource(tenantID string, details *transform.SourceCustomerDetails) Customer {
	name := strings.TrimSpace(details.CompanyName)
	return Customer{
		TenantID:        tenantID,
		Name:            name,
		CompanyName:     name,
		Email:           strings.TrimSpace(details.ContactEmail),
		Phone:           strings.TrimSpace(details.PhoneNumber),
		BillingAddress:  addressFromSource(details.BillingAddress),
		ShippingAddress: addressFromSource(details.ShippingAddress),
		Active:          true,
	}
}

func vendorFromSource(tenantID string, details *transform.SourceVendorDetails) Vendor {
	return Vendor{
		TenantID:    tenantID,
		Name:        details.DisplayName(),
		CompanyName: strings.TrimSpace(details.CompanyName),
		Email:       details.EmailAddress(),
		Phone:       strings.TrimSpace(details.PhoneNumber),
		Address:     addressFromSource(details.Address),
		Active:      true,
	}
}

func invoiceFromSource(doc Document, customerID string, source transform.SourceInvoice, defaultCurrency string) Invoice {
	lines := make([]InvoiceLineItem, 0, len(source.Items))
	sum := 0.0
	for index, item := range source.Items {
		qty, unitPrice, amount := transform.ComputeLine(item)
		sum += amount
		lines = append(lines, InvoiceLineItem{
			Position:    index + 1,
			Description: strings.TrimSpace(item.Description),
			Quantity:    qty,
			UnitPrice:   unitPrice,
			Amount:      amount,
		})
	}
	total := transform.Round2(sum - source.DiscountTotal.Float())
	if source.TotalAmount.Valid {
		total = transform.Round2(source.TotalAmount.Value)
	}
	currency := strings.ToUpper(strings.TrimSpace(source.Currency))
	if currency == "" {
		currency = defaultCurrency
	}
	return Invoice{
		TenantID:      doc.TenantID,
		DocumentID:    doc.ID,
		CustomerID:    customerID,
		InvoiceNumber: strings.TrimSpace(source.InvoiceNumber),
		Date:          strings.TrimSpace(source.Date),
		DueDate:       strings.TrimSpace(source.DueDate),
		Currency:      currency,
		TotalAmount:   total,
		Lines:         lines,
	}
}

func purchaseFromSource(doc Document, vendorID string, source transform.SourceReceipt) Purchase {
	lines := make([]PurchaseLineItem, 0, len(source.PurchaseLines))
	sum := 0.0
	for index, line := range source.PurchaseLines {
		amount := transform.Round2(line.Amount.Float())
		sum += amount
		lines = append(lines, PurchaseLineItem{
			Position:    index + 1,
			Description: strings.TrimSpace(line.Description),
			Amount:      amount,
		})
	}
	total := transform.Round2(sum)
	if source.TotalAmount.Valid {
		total = transform.Round2(source.TotalAmount.Value)
	}
	return Purchase{
		TenantID:        doc.TenantID,
		DocumentID:      doc.ID,
		VendorID:        vendorID,
		TransactionDate: strings.TrimSpace(source.TransactionDate),
		PaymentType:     string(transform.NormalizePaymentType(source.PaymentType)),
		Currency:        strings.ToUpper(strings.TrimSpace(source.Currency)),
		TotalAmount:     total,
		Lines:           lines,
	}
}
