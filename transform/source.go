package transform

import (
	"encoding/json"
	"fmt"
	"strings"
)

type SourceAddress struct {
	Line1   string `json:"Line1,omitempty"`
	Line2   string `json:"Line2,omitempty"`
	City    string `json:"City,omitempty"`
	State   string `json:"State,omitempty"`
	ZipCode string `json:"ZipCode,omitempty"`
	Country string `json:"Country,omitempty"`
}

func (a *SourceAddress) Wire() *PhysicalAddress {
	if a == nil {
		return nil
	}
	out := &PhysicalAddress{
		Line1:                  strings.TrimSpace(a.Line1),
		Line2:                  strings.TrimSpace(a.Line2),
		City:                   strings.TrimSpace(a.City),
		CountrySubDivisionCode: strings.TrimSpace(a.State),
		PostalCode:             strings.TrimSpace(a.ZipCode),
		Country:                strings.TrimSpace(a.Country),
	}
	if out.Empty() {
		return nil
	}
	return out
}

type SourceItem struct {
	Description string `json:"Description,omitempty"`
	Quantity    Number `json:"Quantity"`
	UnitPrice   Number `json:"UnitPrice"`
	Discount    Number `json:"Discount"`
	TotalAmount Number `json:"TotalAmount"`
}

type SourceCustomerDetails struct {
	CompanyName     string         `json:"CompanyName,omitempty"`
	ContactEmail    string         `json:"ContactEmail,omitempty"`
	PhoneNumber     string         `json:"PhoneNumber,omitempty"`
	BillingAddress  *SourceAddress `json:"BillingAddress,omitempty"`
	ShippingAddress *SourceAddress `json:"ShippingAddress,omitempty"`
}

type SourceVendorDetails struct {
	CompanyName  string         `json:"CompanyName,omitempty"`
	Name         string         `json:"Name,omitempty"`
	ContactEmail string         `json:"ContactEmail,omitempty"`
	Email        string         `json:"Email,omitempty"`
	PhoneNumber  string         `json:"PhoneNumber,omitempty"`
	Address      *SourceAddress `json:"Address,omitempty"`
}

// DisplayName returns the first non-empty naming field.
func (v *SourceVendorDetails) DisplayName() string {
	if v == nil {
		return ""
	}
	return firstNonEmpty(v.Name, v.CompanyName, v.ContactEmail, v.Email)
}

func (v *SourceVendorDetails) EmailAddress() string {
	if v == nil {
		return ""
	}
	return firstNonEmpty(v.ContactEmail, v.Email)
}

// SourceInvoice is the structured invoice produced by extraction or entered by a user.
type SourceInvoice struct {
	InvoiceNumber   string                 `json:"InvoiceNumber,omitempty"`
	Date            string                 `json:"Date,omitempty"`
	DueDate         string                 `json:"DueDate,omitempty"`
	Currency        string                 `json:"Currency,omitempty"`
	PaymentTerms    string                 `json:"PaymentTerms,omitempty"`
	Subtotal        Number                 `json:"Subtotal"`
	DiscountTotal   Number                 `json:"DiscountTotal"`
	SalesTaxAmount  Number                 `json:"SalesTaxAmount"`
	TotalAmount     Number                 `json:"TotalAmount"`
	Notes           string                 `json:"Notes,omitempty"`
	Items           []SourceItem           `json:"Items,omitempty"`
	CustomerDetails *SourceCustomerDetails `json:"CustomerDetails,omitempty"`
	VendorDetails   *SourceVendorDetails   `json:"VendorDetails,omitempty"`
}

type SourcePurchaseLine struct {
	Description string `json:"Description,omitempty"`
	Amount      Number `json:"Amount"`
	BillStatus  string `json:"BillStatus,omitempty"`
}

// SourceReceipt is the structured receipt produced by extraction.
type SourceReceipt struct {
	TransactionDate string               `json:"TransactionDate,omitempty"`
	TotalAmount     Number               `json:"TotalAmount"`
	PaymentType     string               `json:"PaymentType,omitempty"`
	Currency        string               `json:"Currency,omitempty"`
	PurchaseLines   []SourcePurchaseLine `json:"PurchaseLines,omitempty"`
	VendorDetails   *SourceVendorDetails `json:"VendorDetails,omitempty"`
}

// Missing lists the sections a provider invoice cannot be built without.
func (s SourceInvoice) Missing() []string {
	var missing []string
	if len(s.Items) == 0 {
		missing = append(missing, "Items")
	}
	if s.CustomerDetails == nil {
		missing = append(missing, "CustomerDetails")
	}
	if s.VendorDetails == nil {
		missing = append(missing, "VendorDetails")
	}
	return missing
}

// Missing lists the sections a provider purchase cannot be built without.
func (s SourceReceipt) Missing() []string {
	var missing []string
	if len(s.PurchaseLines) == 0 {
		missing = append(missing, "PurchaseLines")
	}
	if s.VendorDetails == nil {
		missing = append(missing, "VendorDetails")
	}
	if NormalizePaymentType(s.PaymentType) == "" {
		missing = append(missing, "PaymentType")
	}
	return missing
}

func DecodeSourceInvoice(data []byte) (SourceInvoice, error) {
	var out SourceInvoice
	if err := json.Unmarshal(data, &out); err != nil {
		return SourceInvoice{}, fmt.Errorf("transform: decode source invoice: %w", err)
	}
	return out, nil
}

func DecodeSourceReceipt(data []byte) (SourceReceipt, error) {
	var out SourceReceipt
	if err := json.Unmarshal(data, &out); err != nil {
		return SourceReceipt{}, fmt.Errorf("transform: decode source receipt: %w", err)
	}
	return out, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
