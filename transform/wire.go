package transform

// EntityName is the provider resource name used in query statements and in the
// wrapper key of create/update responses.
type EntityName string

const (
	EntityCustomer    EntityName = "Customer"
	EntityVendor      EntityName = "Vendor"
	EntityInvoice     EntityName = "Invoice"
	EntityPurchase    EntityName = "Purchase"
	EntityCompanyInfo EntityName = "CompanyInfo"
)

type LineDetailType string

const (
	SalesItemLineDetailType           LineDetailType = "SalesItemLineDetail"
	DiscountLineDetailType            LineDetailType = "DiscountLineDetail"
	AccountBasedExpenseLineDetailType LineDetailType = "AccountBasedExpenseLineDetail"
)

type PaymentType string

const (
	PaymentTypeCash       PaymentType = "Cash"
	PaymentTypeCheck      PaymentType = "Check"
	PaymentTypeCreditCard PaymentType = "CreditCard"
)

func (p PaymentType) Valid() bool {
	switch p {
	case PaymentTypeCash, PaymentTypeCheck, PaymentTypeCreditCard:
		return true
	default:
		return false
	}
}

type Ref struct {
	Value string `json:"value"`
	Name  string `json:"name,omitempty"`
	Type  string `json:"type,omitempty"`
}

type MemoRef struct {
	Value string `json:"value"`
}

type EmailAddress struct {
	Address string `json:"Address,omitempty"`
}

type TelephoneNumber struct {
	FreeFormNumber string `json:"FreeFormNumber,omitempty"`
}

type PhysicalAddress struct {
	ID                     string `json:"Id,omitempty"`
	Line1                  string `json:"Line1,omitempty"`
	Line2                  string `json:"Line2,omitempty"`
	City                   string `json:"City,omitempty"`
	CountrySubDivisionCode string `json:"CountrySubDivisionCode,omitempty"`
	PostalCode             string `json:"PostalCode,omitempty"`
	Country                string `json:"Country,omitempty"`
}

func (a *PhysicalAddress) Empty() bool {
	if a == nil {
		return true
	}
	return a.Line1 == "" && a.Line2 == "" && a.City == "" &&
		a.CountrySubDivisionCode == "" && a.PostalCode == "" && a.Country == ""
}

type MetaData struct {
	CreateTime      string `json:"CreateTime,omitempty"`
	LastUpdatedTime string `json:"LastUpdatedTime,omitempty"`
}

type TxnTaxDetail struct {
	TotalTax float64 `json:"TotalTax"`
}

type SalesItemLineDetail struct {
	ItemRef    *Ref    `json:"ItemRef,omitempty"`
	TaxCodeRef *Ref    `json:"TaxCodeRef,omitempty"`
	Qty        float64 `json:"Qty,omitempty"`
	UnitPrice  float64 `json:"UnitPrice,omitempty"`
}

type DiscountLineDetail struct {
	PercentBased       bool    `json:"PercentBased"`
	DiscountPercent    float64 `json:"DiscountPercent,omitempty"`
	DiscountAccountRef *Ref    `json:"DiscountAccountRef,omitempty"`
}

type AccountBasedExpenseLineDetail struct {
	AccountRef     *Ref   `json:"AccountRef,omitempty"`
	BillableStatus string `json:"BillableStatus,omitempty"`
	TaxCodeRef     *Ref   `json:"TaxCodeRef,omitempty"`
	CustomerRef    *Ref   `json:"CustomerRef,omitempty"`
}

// Line is a tagged union: DetailType names the single populated detail block.
// Build lines with the New*Line constructors to keep the tag and block aligned.
type Line struct {
	ID                            string                         `json:"Id,omitempty"`
	Description                   string                         `json:"Description,omitempty"`
	DetailType                    LineDetailType                 `json:"DetailType"`
	Amount                        float64                        `json:"Amount"`
	SalesItemLineDetail           *SalesItemLineDetail           `json:"SalesItemLineDetail,omitempty"`
	DiscountLineDetail            *DiscountLineDetail            `json:"DiscountLineDetail,omitempty"`
	AccountBasedExpenseLineDetail *AccountBasedExpenseLineDetail `json:"AccountBasedExpenseLineDetail,omitempty"`
}

func NewSalesItemLine(description string, amount float64, detail SalesItemLineDetail) Line {
	return Line{
		Description:         description,
		DetailType:          SalesItemLineDetailType,
		Amount:              amount,
		SalesItemLineDetail: &detail,
	}
}

func NewDiscountLine(amount float64, detail DiscountLineDetail) Line {
	return Line{
		DetailType:         DiscountLineDetailType,
		Amount:             amount,
		DiscountLineDetail: &detail,
	}
}

func NewExpenseLine(description string, amount float64, detail AccountBasedExpenseLineDetail) Line {
	return Line{
		Description:                   description,
		DetailType:                    AccountBasedExpenseLineDetailType,
		Amount:                        amount,
		AccountBasedExpenseLineDetail: &detail,
	}
}

// Invoice is the provider Invoice resource.
type Invoice struct {
	ID           string           `json:"Id,omitempty"`
	SyncToken    string           `json:"SyncToken,omitempty"`
	Sparse       bool             `json:"sparse,omitempty"`
	DocNumber    string           `json:"DocNumber,omitempty"`
	TxnDate      string           `json:"TxnDate,omitempty"`
	DueDate      string           `json:"DueDate,omitempty"`
	Line         []Line           `json:"Line,omitempty"`
	CustomerRef  *Ref             `json:"CustomerRef,omitempty"`
	CurrencyRef  *Ref             `json:"CurrencyRef,omitempty"`
	SalesTermRef *Ref             `json:"SalesTermRef,omitempty"`
	BillEmail    *EmailAddress    `json:"BillEmail,omitempty"`
	BillAddr     *PhysicalAddress `json:"BillAddr,omitempty"`
	ShipAddr     *PhysicalAddress `json:"ShipAddr,omitempty"`
	CustomerMemo *MemoRef         `json:"CustomerMemo,omitempty"`
	TxnTaxDetail *TxnTaxDetail    `json:"TxnTaxDetail,omitempty"`
	TotalAmt     float64          `json:"TotalAmt,omitempty"`
	MetaData     *MetaData        `json:"MetaData,omitempty"`
}

// Purchase is the provider Purchase (expense) resource.
type Purchase struct {
	ID          string    `json:"Id,omitempty"`
	SyncToken   string    `json:"SyncToken,omitempty"`
	Sparse      bool      `json:"sparse,omitempty"`
	DocNumber   string    `json:"DocNumber,omitempty"`
	PaymentType string    `json:"PaymentType,omitempty"`
	AccountRef  *Ref      `json:"AccountRef,omitempty"`
	EntityRef   *Ref      `json:"EntityRef,omitempty"`
	CurrencyRef *Ref      `json:"CurrencyRef,omitempty"`
	TxnDate     string    `json:"TxnDate,omitempty"`
	TotalAmt    float64   `json:"TotalAmt,omitempty"`
	PrivateNote string    `json:"PrivateNote,omitempty"`
	Line        []Line    `json:"Line,omitempty"`
	MetaData    *MetaData `json:"MetaData,omitempty"`
}

// Customer is the provider Customer resource.
type Customer struct {
	ID               string           `json:"Id,omitempty"`
	SyncToken        string           `json:"SyncToken,omitempty"`
	Sparse           bool             `json:"sparse,omitempty"`
	DisplayName      string           `json:"DisplayName,omitempty"`
	CompanyName      string           `json:"CompanyName,omitempty"`
	PrimaryEmailAddr *EmailAddress    `json:"PrimaryEmailAddr,omitempty"`
	PrimaryPhone     *TelephoneNumber `json:"PrimaryPhone,omitempty"`
	BillAddr         *PhysicalAddress `json:"BillAddr,omitempty"`
	ShipAddr         *PhysicalAddress `json:"ShipAddr,omitempty"`
	Active           *bool            `json:"Active,omitempty"`
	Balance          float64          `json:"Balance,omitempty"`
	MetaData         *MetaData        `json:"MetaData,omitempty"`
}

// Vendor is the provider Vendor resource.
type Vendor struct {
	ID               string           `json:"Id,omitempty"`
	SyncToken        string           `json:"SyncToken,omitempty"`
	Sparse           bool             `json:"sparse,omitempty"`
	DisplayName      string           `json:"DisplayName,omitempty"`
	CompanyName      string           `json:"CompanyName,omitempty"`
	PrimaryEmailAddr *EmailAddress    `json:"PrimaryEmailAddr,omitempty"`
	PrimaryPhone     *TelephoneNumber `json:"PrimaryPhone,omitempty"`
	BillAddr         *PhysicalAddress `json:"BillAddr,omitempty"`
	Active           *bool            `json:"Active,omitempty"`
	Balance          float64          `json:"Balance,omitempty"`
	MetaData         *MetaData        `json:"MetaData,omitempty"`
}

type CompanyInfo struct {
	ID          string           `json:"Id,omitempty"`
	CompanyName string           `json:"CompanyName,omitempty"`
	LegalName   string           `json:"LegalName,omitempty"`
	Country     string           `json:"Country,omitempty"`
	CompanyAddr *PhysicalAddress `json:"CompanyAddr,omitempty"`
	Email       *EmailAddress    `json:"Email,omitempty"`
}
