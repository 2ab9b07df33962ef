package transform

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// Defaults holds the provider references injected into every payload.
type Defaults struct {
	ItemRefValue       string
	TaxCodeRef         string
	ExpenseAccountRef  string
	PaymentAccountRef  string
	BillableStatus     string
	DefaultCurrency    string
	DocNumberMaxLength int
}

func DefaultSettings() Defaults {
	return Defaults{
		ItemRefValue:       "1",
		TaxCodeRef:         "NON",
		ExpenseAccountRef:  "92",
		PaymentAccountRef:  "93",
		BillableStatus:     "NotBillable",
		DefaultCurrency:    "USD",
		DocNumberMaxLength: 21,
	}
}

type Option func(*Transformer)

func WithDefaults(defaults Defaults) Option {
	return func(t *Transformer) {
		t.defaults = mergeDefaults(defaults)
	}
}

func WithClock(now func() time.Time) Option {
	return func(t *Transformer) {
		if now != nil {
			t.now = now
		}
	}
}

func WithLogger(logger glog.Logger) Option {
	return func(t *Transformer) {
		if logger != nil {
			t.logger = logger
		}
	}
}

type Transformer struct {
	defaults Defaults
	now      func() time.Time
	logger   glog.Logger
}

func New(opts ...Option) *Transformer {
	t := &Transformer{
		defaults: DefaultSettings(),
		now:      time.Now,
		logger:   glog.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

func (t *Transformer) Defaults() Defaults {
	if t == nil {
		return DefaultSettings()
	}
	return t.defaults
}

// TransformInvoice builds the provider invoice for source. customer is the
// resolved provider customer reference; when nil the payload is left without
// CustomerRef and fails validation.
func (t *Transformer) TransformInvoice(source SourceInvoice, customer *Ref) (Invoice, error) {
	if missing := source.Missing(); len(missing) > 0 {
		return Invoice{}, &MissingFieldsError{Document: "invoice", Fields: missing}
	}

	lines := make([]Line, 0, len(source.Items)+1)
	subtotal := 0.0
	for index, item := range source.Items {
		qty, unitPrice, amount := ComputeLine(item)
		if item.TotalAmount.Valid && !withinTolerance(amount, item.TotalAmount.Value) {
			t.warnMismatch("invoice line amount differs from stated total", item.Description, item.TotalAmount.Value, amount)
		}
		subtotal += amount

		description := strings.TrimSpace(item.Description)
		itemName := description
		if itemName == "" {
			itemName = "Item " + strconv.Itoa(index+1)
		}
		lines = append(lines, NewSalesItemLine(description, amount, SalesItemLineDetail{
			ItemRef:    &Ref{Name: itemName, Value: t.defaults.ItemRefValue},
			TaxCodeRef: &Ref{Value: t.defaults.TaxCodeRef},
			Qty:        qty,
			UnitPrice:  unitPrice,
		}))
	}

	discount := 0.0
	if source.DiscountTotal.Valid && source.DiscountTotal.Value > 0 {
		discount = Round2(source.DiscountTotal.Value)
		lines = append(lines, NewDiscountLine(discount, DiscountLineDetail{PercentBased: false}))
	}

	computedTotal := Round2(subtotal - discount)
	total := computedTotal
	if source.TotalAmount.Valid {
		total = Round2(source.TotalAmount.Value)
		if !withinTolerance(total, computedTotal) {
			t.warnMismatch("invoice total differs from computed lines", source.InvoiceNumber, total, computedTotal)
		}
	}

	out := Invoice{
		DocNumber:    t.DocNumber(source.InvoiceNumber),
		TxnDate:      strings.TrimSpace(source.Date),
		DueDate:      strings.TrimSpace(source.DueDate),
		Line:         lines,
		CurrencyRef:  &Ref{Value: t.currency(source.Currency)},
		BillAddr:     source.CustomerDetails.BillingAddress.Wire(),
		ShipAddr:     source.CustomerDetails.ShippingAddress.Wire(),
		TxnTaxDetail: &TxnTaxDetail{TotalTax: Round2(source.SalesTaxAmount.Float())},
		TotalAmt:     total,
	}
	if customer != nil && strings.TrimSpace(customer.Value) != "" {
		ref := *customer
		out.CustomerRef = &ref
	}
	if email := firstNonEmpty(source.CustomerDetails.ContactEmail, source.VendorDetails.EmailAddress()); email != "" {
		out.BillEmail = &EmailAddress{Address: email}
	}
	if notes := strings.TrimSpace(source.Notes); notes != "" {
		out.CustomerMemo = &MemoRef{Value: notes}
	}
	return out, nil
}

// TransformReceipt builds the provider purchase for source against vendorID.
func (t *Transformer) TransformReceipt(source SourceReceipt, vendorID string) (Purchase, error) {
	if missing := source.Missing(); len(missing) > 0 {
		return Purchase{}, &MissingFieldsError{Document: "receipt", Fields: missing}
	}
	paymentType := NormalizePaymentType(source.PaymentType)

	lines := make([]Line, 0, len(source.PurchaseLines))
	sum := 0.0
	for _, line := range source.PurchaseLines {
		amount := Round2(line.Amount.Float())
		sum += amount
		lines = append(lines, NewExpenseLine(strings.TrimSpace(line.Description), amount, AccountBasedExpenseLineDetail{
			AccountRef:     &Ref{Value: t.defaults.ExpenseAccountRef},
			BillableStatus: t.defaults.BillableStatus,
		}))
	}

	computedTotal := Round2(sum)
	total := computedTotal
	if source.TotalAmount.Valid {
		total = Round2(source.TotalAmount.Value)
		if !withinTolerance(total, computedTotal) {
			t.warnMismatch("receipt total differs from computed lines", source.VendorDetails.DisplayName(), total, computedTotal)
		}
	}

	out := Purchase{
		PaymentType: string(paymentType),
		AccountRef:  &Ref{Value: t.defaults.PaymentAccountRef},
		TxnDate:     strings.TrimSpace(source.TransactionDate),
		TotalAmt:    total,
		Line:        lines,
	}
	if vendorID = strings.TrimSpace(vendorID); vendorID != "" {
		out.EntityRef = &Ref{Value: vendorID, Type: string(EntityVendor)}
	}
	if currency := strings.TrimSpace(source.Currency); currency != "" {
		out.CurrencyRef = &Ref{Value: strings.ToUpper(currency)}
	}
	return out, nil
}

// ComputeLine applies the line amount formula: qty defaults to 1, unit price
// falls back to the stated total spread over qty, and the amount is
// round2(qty * unitPrice).
func ComputeLine(item SourceItem) (qty, unitPrice, amount float64) {
	qty = item.Quantity.Float()
	if qty <= 0 {
		qty = 1
	}
	switch {
	case item.UnitPrice.Valid:
		unitPrice = item.UnitPrice.Value
	case item.TotalAmount.Valid:
		unitPrice = item.TotalAmount.Value / qty
	}
	return qty, unitPrice, Round2(qty * unitPrice)
}

// NormalizePaymentType maps loose spellings ("credit card", "cash") onto the
// provider enum. Unknown values return an empty PaymentType.
func NormalizePaymentType(value string) PaymentType {
	compact := strings.ToLower(strings.NewReplacer(" ", "", "_", "", "-", "").Replace(strings.TrimSpace(value)))
	switch compact {
	case "cash":
		return PaymentTypeCash
	case "check", "cheque":
		return PaymentTypeCheck
	case "creditcard", "card", "debitcard":
		return PaymentTypeCreditCard
	default:
		return ""
	}
}

// DocNumber returns "<number[:8]>-<base36 millis[-8:]>" capped at the
// configured maximum length.
func (t *Transformer) DocNumber(sourceNumber string) string {
	suffix := strconv.FormatInt(t.now().UnixMilli(), 36)
	if len(suffix) > 8 {
		suffix = suffix[len(suffix)-8:]
	}
	prefix := strings.TrimSpace(sourceNumber)
	if runes := []rune(prefix); len(runes) > 8 {
		prefix = string(runes[:8])
	}
	value := suffix
	if prefix != "" {
		value = prefix + "-" + suffix
	}
	return TruncateDocNumber(value, t.defaults.DocNumberMaxLength)
}

// TruncateDocNumber cuts value to at most max runes.
func TruncateDocNumber(value string, max int) string {
	if max <= 0 {
		return value
	}
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	return string(runes[:max])
}

func (t *Transformer) currency(value string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return strings.ToUpper(trimmed)
	}
	return t.defaults.DefaultCurrency
}

func (t *Transformer) warnMismatch(message, subject string, stated, computed float64) {
	if t == nil || t.logger == nil {
		return
	}
	t.logger.Warn(message,
		"subject", subject,
		"stated", stated,
		"computed", computed,
		"difference", fmt.Sprintf("%.4f", stated-computed),
	)
}

func mergeDefaults(in Defaults) Defaults {
	out := DefaultSettings()
	if strings.TrimSpace(in.ItemRefValue) != "" {
		out.ItemRefValue = strings.TrimSpace(in.ItemRefValue)
	}
	if strings.TrimSpace(in.TaxCodeRef) != "" {
		out.TaxCodeRef = strings.TrimSpace(in.TaxCodeRef)
	}
	if strings.TrimSpace(in.ExpenseAccountRef) != "" {
		out.ExpenseAccountRef = strings.TrimSpace(in.ExpenseAccountRef)
	}
	if strings.TrimSpace(in.PaymentAccountRef) != "" {
		out.PaymentAccountRef = strings.TrimSpace(in.PaymentAccountRef)
	}
	if strings.TrimSpace(in.BillableStatus) != "" {
		out.BillableStatus = strings.TrimSpace(in.BillableStatus)
	}
	if strings.TrimSpace(in.DefaultCurrency) != "" {
		out.DefaultCurrency = strings.ToUpper(strings.TrimSpace(in.DefaultCurrency))
	}
	if in.DocNumberMaxLength > 0 {
		out.DocNumberMaxLength = in.DocNumberMaxLength
	}
	return out
}
