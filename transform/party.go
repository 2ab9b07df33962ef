package transform

import "strings"

// CustomerFromSource builds the provider customer created for an invoice
// counterparty that has no mapping yet.
func CustomerFromSource(details *SourceCustomerDetails) Customer {
	if details == nil {
		return Customer{}
	}
	name := strings.TrimSpace(details.CompanyName)
	out := Customer{
		DisplayName: name,
		CompanyName: name,
		BillAddr:    details.BillingAddress.Wire(),
		ShipAddr:    details.ShippingAddress.Wire(),
	}
	if email := strings.TrimSpace(details.ContactEmail); email != "" {
		out.PrimaryEmailAddr = &EmailAddress{Address: email}
	}
	if phone := strings.TrimSpace(details.PhoneNumber); phone != "" {
		out.PrimaryPhone = &TelephoneNumber{FreeFormNumber: phone}
	}
	return out
}

// VendorFromSource builds the provider vendor created for a receipt
// counterparty that has no mapping yet.
func VendorFromSource(details *SourceVendorDetails) Vendor {
	if details == nil {
		return Vendor{}
	}
	out := Vendor{
		DisplayName: details.DisplayName(),
		CompanyName: strings.TrimSpace(details.CompanyName),
		BillAddr:    details.Address.Wire(),
	}
	if email := details.EmailAddress(); email != "" {
		out.PrimaryEmailAddr = &EmailAddress{Address: email}
	}
	if phone := strings.TrimSpace(details.PhoneNumber); phone != "" {
		out.PrimaryPhone = &TelephoneNumber{FreeFormNumber: phone}
	}
	return out
}

// ForUpdate turns a freshly transformed invoice into a sparse update against
// the live provider version.
func (i Invoice) ForUpdate(id, syncToken string) Invoice {
	i.ID = id
	i.SyncToken = syncToken
	i.Sparse = true
	// DocNumber is assigned once at create time.
	i.DocNumber = ""
	return i
}

func (p Purchase) ForUpdate(id, syncToken string) Purchase {
	p.ID = id
	p.SyncToken = syncToken
	p.Sparse = true
	return p
}

// Value unwraps an optional email field.
func (e *EmailAddress) Value() string {
	if e == nil {
		return ""
	}
	return strings.TrimSpace(e.Address)
}

func (p *TelephoneNumber) Value() string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(p.FreeFormNumber)
}

func (m *MetaData) Created() string {
	if m == nil {
		return ""
	}
	return m.CreateTime
}

func (m *MetaData) Updated() string {
	if m == nil {
		return ""
	}
	return m.LastUpdatedTime
}
