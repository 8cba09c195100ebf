package economic

// This file holds the record types mirrored locally, together with one
// explicit decode function per source payload shape. Each decode returns a
// fully-populated record: absent optional fields become empty strings, zero
// decimals or zero times rather than being coalesced at use sites.

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// APIDate is a date as serialized by e-conomic, either plain `2006-01-02`
// or a full RFC3339 timestamp.
type APIDate struct {
	time.Time
}

// UnmarshalJSON implements the json.Unmarshaler interface. Null and empty
// values decode to the zero time.
func (d *APIDate) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" || s == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		t, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return fmt.Errorf("invalid date %q: %w", s, err)
		}
	}
	d.Time = t.UTC()
	return nil
}

// PaymentStatus is the locally-resolved lifecycle state of an invoice.
type PaymentStatus string

const (
	StatusDraft   PaymentStatus = "draft"
	StatusPending PaymentStatus = "pending"
	StatusPaid    PaymentStatus = "paid"
	StatusOverdue PaymentStatus = "overdue"
	StatusPartial PaymentStatus = "partial"
)

// Entry types carrying a supporting voucher document. Customer invoice
// entries always have a retrievable PDF so are never checked against the
// documents side API.
const (
	EntryTypeCustomerInvoice = "customerInvoice"
	EntryTypeSupplierInvoice = "supplierInvoice"
	EntryTypeFinanceVoucher  = "financeVoucher"
	EntryTypeReminder        = "reminder"
)

// AccountingYear is one fiscal year of an agreement.
type AccountingYear struct {
	YearID   string
	FromDate time.Time
	ToDate   time.Time
	Closed   bool
}

// DecodeAccountingYear decodes an accounting-years collection item.
func DecodeAccountingYear(raw json.RawMessage) (AccountingYear, error) {
	var p struct {
		Year     string  `json:"year"`
		FromDate APIDate `json:"fromDate"`
		ToDate   APIDate `json:"toDate"`
		Closed   bool    `json:"closed"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return AccountingYear{}, fmt.Errorf("failed to decode accounting year: %w", err)
	}
	if p.Year == "" {
		return AccountingYear{}, fmt.Errorf("accounting year payload missing year identifier")
	}
	return AccountingYear{
		YearID:   p.Year,
		FromDate: p.FromDate.Time,
		ToDate:   p.ToDate.Time,
		Closed:   p.Closed,
	}, nil
}

// AccountingPeriod is one period of a fiscal year. PeriodNumber carries the
// raw source numbering, which does not reset per year; see NormalizePeriod.
type AccountingPeriod struct {
	PeriodNumber int
	FromDate     time.Time
	ToDate       time.Time
	Barred       bool
}

// DecodeAccountingPeriod decodes a periods collection item.
func DecodeAccountingPeriod(raw json.RawMessage) (AccountingPeriod, error) {
	var p struct {
		PeriodNumber int     `json:"periodNumber"`
		FromDate     APIDate `json:"fromDate"`
		ToDate       APIDate `json:"toDate"`
		Barred       bool    `json:"barred"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return AccountingPeriod{}, fmt.Errorf("failed to decode accounting period: %w", err)
	}
	return AccountingPeriod{
		PeriodNumber: p.PeriodNumber,
		FromDate:     p.FromDate.Time,
		ToDate:       p.ToDate.Time,
		Barred:       p.Barred,
	}, nil
}

// NormalizePeriod maps the source's continuous period numbering to the
// local month index: 0 is the annual aggregate, and any p > 0 maps into
// [1,12] with whole multiples of 12 mapping to December.
func NormalizePeriod(p int) int {
	if p <= 0 {
		return 0
	}
	if p%12 == 0 {
		return 12
	}
	return p % 12
}

// AccountingEntry is one booked journal entry. Entries are immutable on the
// source side and upserted idempotently locally.
type AccountingEntry struct {
	EntryNumber   int64
	AccountNumber int
	Amount        decimal.Decimal
	AmountBase    decimal.Decimal
	Currency      string
	Date          time.Time
	Text          string
	EntryType     string
	VoucherNumber int // 0 when the entry has no voucher
}

// DecodeAccountingEntry decodes an entries collection item. A missing
// amountInBaseCurrency defaults to the native amount; a missing voucher
// number defaults to zero.
func DecodeAccountingEntry(raw json.RawMessage) (AccountingEntry, error) {
	var p struct {
		EntryNumber int64 `json:"entryNumber"`
		Account     struct {
			AccountNumber int `json:"accountNumber"`
		} `json:"account"`
		Amount               decimal.Decimal  `json:"amount"`
		AmountInBaseCurrency *decimal.Decimal `json:"amountInBaseCurrency"`
		Currency             string           `json:"currency"`
		Date                 APIDate          `json:"date"`
		Text                 string           `json:"text"`
		EntryType            string           `json:"entryType"`
		VoucherNumber        int              `json:"voucherNumber"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return AccountingEntry{}, fmt.Errorf("failed to decode accounting entry: %w", err)
	}
	amountBase := p.Amount
	if p.AmountInBaseCurrency != nil {
		amountBase = *p.AmountInBaseCurrency
	}
	return AccountingEntry{
		EntryNumber:   p.EntryNumber,
		AccountNumber: p.Account.AccountNumber,
		Amount:        p.Amount,
		AmountBase:    amountBase,
		Currency:      p.Currency,
		Date:          p.Date.Time,
		Text:          p.Text,
		EntryType:     p.EntryType,
		VoucherNumber: p.VoucherNumber,
	}, nil
}

// AccountingTotal is an aggregated base-currency total for one account in
// one period. Totals are derived upstream and overwritten each pass.
type AccountingTotal struct {
	AccountNumber int
	TotalBase     decimal.Decimal
}

// DecodeAccountingTotal decodes a totals collection item.
func DecodeAccountingTotal(raw json.RawMessage) (AccountingTotal, error) {
	var p struct {
		Account struct {
			AccountNumber int `json:"accountNumber"`
		} `json:"account"`
		TotalInBaseCurrency decimal.Decimal `json:"totalInBaseCurrency"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return AccountingTotal{}, fmt.Errorf("failed to decode accounting total: %w", err)
	}
	return AccountingTotal{
		AccountNumber: p.Account.AccountNumber,
		TotalBase:     p.TotalInBaseCurrency,
	}, nil
}

// Invoice is one logical invoice of an agreement. While still a draft its
// identity is the draft number (mirrored into InvoiceNumber); once booked
// the booked number takes over and the draft row is removed.
type Invoice struct {
	InvoiceNumber      int
	DraftInvoiceNumber int // 0 for booked invoices
	CustomerNumber     int
	CustomerName       string
	Currency           string
	Date               time.Time
	DueDate            time.Time
	NetAmount          decimal.Decimal
	GrossAmount        decimal.Decimal
	VatAmount          decimal.Decimal
	Remainder          decimal.Decimal
	PaymentStatus      PaymentStatus
	PdfURL             string
}

// invoicePayload is the wire shape shared by the six invoice views.
type invoicePayload struct {
	DraftInvoiceNumber  int `json:"draftInvoiceNumber"`
	BookedInvoiceNumber int `json:"bookedInvoiceNumber"`
	Customer            struct {
		CustomerNumber int `json:"customerNumber"`
	} `json:"customer"`
	Recipient struct {
		Name string `json:"name"`
	} `json:"recipient"`
	Currency    string           `json:"currency"`
	Date        APIDate          `json:"date"`
	DueDate     APIDate          `json:"dueDate"`
	NetAmount   decimal.Decimal  `json:"netAmount"`
	GrossAmount decimal.Decimal  `json:"grossAmount"`
	VatAmount   decimal.Decimal  `json:"vatAmount"`
	Remainder   *decimal.Decimal `json:"remainder"`
	Pdf         struct {
		Download string `json:"download"`
	} `json:"pdf"`
}

// DecodeDraftInvoice decodes an item of the drafts view. The draft number
// doubles as the invoice identity and the payment status is always draft.
func DecodeDraftInvoice(raw json.RawMessage) (Invoice, error) {
	var p invoicePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Invoice{}, fmt.Errorf("failed to decode draft invoice: %w", err)
	}
	if p.DraftInvoiceNumber == 0 {
		return Invoice{}, fmt.Errorf("draft invoice payload missing draftInvoiceNumber")
	}
	inv := fromInvoicePayload(p)
	inv.InvoiceNumber = p.DraftInvoiceNumber
	inv.DraftInvoiceNumber = p.DraftInvoiceNumber
	inv.PaymentStatus = StatusDraft
	return inv, nil
}

// DecodeBookedInvoice decodes an item of any non-draft view. The payment
// status is left unset for the caller to resolve from the view kind, the
// due date and the remainder.
func DecodeBookedInvoice(raw json.RawMessage) (Invoice, error) {
	var p invoicePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Invoice{}, fmt.Errorf("failed to decode booked invoice: %w", err)
	}
	if p.BookedInvoiceNumber == 0 {
		return Invoice{}, fmt.Errorf("booked invoice payload missing bookedInvoiceNumber")
	}
	inv := fromInvoicePayload(p)
	inv.InvoiceNumber = p.BookedInvoiceNumber
	return inv, nil
}

func fromInvoicePayload(p invoicePayload) Invoice {
	remainder := p.GrossAmount
	if p.Remainder != nil {
		remainder = *p.Remainder
	}
	return Invoice{
		CustomerNumber: p.Customer.CustomerNumber,
		CustomerName:   p.Recipient.Name,
		Currency:       p.Currency,
		Date:           p.Date.Time,
		DueDate:        p.DueDate.Time,
		NetAmount:      p.NetAmount,
		GrossAmount:    p.GrossAmount,
		VatAmount:      p.VatAmount,
		Remainder:      remainder,
		PdfURL:         p.Pdf.Download,
	}
}

// InvoiceLine is one line of an invoice, replaced wholesale per invoice on
// every pass.
type InvoiceLine struct {
	LineNumber     int
	ProductNumber  string
	Description    string
	Quantity       decimal.Decimal
	UnitNetPrice   decimal.Decimal
	DiscountPct    decimal.Decimal
	TotalNetAmount decimal.Decimal
}

// DecodeInvoiceLines decodes the lines array of an invoice detail payload.
func DecodeInvoiceLines(raw json.RawMessage) ([]InvoiceLine, error) {
	var detail struct {
		Lines []struct {
			LineNumber int `json:"lineNumber"`
			Product    struct {
				ProductNumber string `json:"productNumber"`
			} `json:"product"`
			Description        string          `json:"description"`
			Quantity           decimal.Decimal `json:"quantity"`
			UnitNetPrice       decimal.Decimal `json:"unitNetPrice"`
			DiscountPercentage decimal.Decimal `json:"discountPercentage"`
			TotalNetAmount     decimal.Decimal `json:"totalNetAmount"`
		} `json:"lines"`
	}
	if err := json.Unmarshal(raw, &detail); err != nil {
		return nil, fmt.Errorf("failed to decode invoice lines: %w", err)
	}
	lines := make([]InvoiceLine, 0, len(detail.Lines))
	for i, l := range detail.Lines {
		lineNumber := l.LineNumber
		if lineNumber == 0 {
			lineNumber = i + 1
		}
		lines = append(lines, InvoiceLine{
			LineNumber:     lineNumber,
			ProductNumber:  l.Product.ProductNumber,
			Description:    l.Description,
			Quantity:       l.Quantity,
			UnitNetPrice:   l.UnitNetPrice,
			DiscountPct:    l.DiscountPercentage,
			TotalNetAmount: l.TotalNetAmount,
		})
	}
	return lines, nil
}

// Customer is one customer of an agreement.
type Customer struct {
	CustomerNumber     int
	Name               string
	Email              string
	Currency           string
	PaymentTermsNumber int
	Balance            decimal.Decimal
}

// DecodeCustomer decodes a customers collection item.
func DecodeCustomer(raw json.RawMessage) (Customer, error) {
	var p struct {
		CustomerNumber int    `json:"customerNumber"`
		Name           string `json:"name"`
		Email          string `json:"email"`
		Currency       string `json:"currency"`
		PaymentTerms   struct {
			PaymentTermsNumber int `json:"paymentTermsNumber"`
		} `json:"paymentTerms"`
		Balance decimal.Decimal `json:"balance"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return Customer{}, fmt.Errorf("failed to decode customer: %w", err)
	}
	return Customer{
		CustomerNumber:     p.CustomerNumber,
		Name:               p.Name,
		Email:              p.Email,
		Currency:           p.Currency,
		PaymentTermsNumber: p.PaymentTerms.PaymentTermsNumber,
		Balance:            p.Balance,
	}, nil
}

// Supplier is one supplier of an agreement.
type Supplier struct {
	SupplierNumber      int
	Name                string
	Email               string
	Currency            string
	SupplierGroupNumber int
}

// DecodeSupplier decodes a suppliers collection item.
func DecodeSupplier(raw json.RawMessage) (Supplier, error) {
	var p struct {
		SupplierNumber int    `json:"supplierNumber"`
		Name           string `json:"name"`
		Email          string `json:"email"`
		Currency       string `json:"currency"`
		SupplierGroup  struct {
			SupplierGroupNumber int `json:"supplierGroupNumber"`
		} `json:"supplierGroup"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return Supplier{}, fmt.Errorf("failed to decode supplier: %w", err)
	}
	return Supplier{
		SupplierNumber:      p.SupplierNumber,
		Name:                p.Name,
		Email:               p.Email,
		Currency:            p.Currency,
		SupplierGroupNumber: p.SupplierGroup.SupplierGroupNumber,
	}, nil
}

// Product is one product of an agreement.
type Product struct {
	ProductNumber      string
	Name               string
	ProductGroupNumber int
	SalesPrice         decimal.Decimal
	CostPrice          decimal.Decimal
	Barred             bool
}

// DecodeProduct decodes a products collection item.
func DecodeProduct(raw json.RawMessage) (Product, error) {
	var p struct {
		ProductNumber string `json:"productNumber"`
		Name          string `json:"name"`
		ProductGroup  struct {
			ProductGroupNumber int `json:"productGroupNumber"`
		} `json:"productGroup"`
		SalesPrice decimal.Decimal `json:"salesPrice"`
		CostPrice  decimal.Decimal `json:"costPrice"`
		Barred     bool            `json:"barred"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return Product{}, fmt.Errorf("failed to decode product: %w", err)
	}
	return Product{
		ProductNumber:      p.ProductNumber,
		Name:               p.Name,
		ProductGroupNumber: p.ProductGroup.ProductGroupNumber,
		SalesPrice:         p.SalesPrice,
		CostPrice:          p.CostPrice,
		Barred:             p.Barred,
	}, nil
}

// Account is one ledger account of an agreement's chart of accounts.
type Account struct {
	AccountNumber int
	Name          string
	AccountType   string
	Balance       decimal.Decimal
	Barred        bool
}

// DecodeAccount decodes an accounts collection item.
func DecodeAccount(raw json.RawMessage) (Account, error) {
	var p struct {
		AccountNumber int             `json:"accountNumber"`
		Name          string          `json:"name"`
		AccountType   string          `json:"accountType"`
		Balance       decimal.Decimal `json:"balance"`
		Barred        bool            `json:"barred"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return Account{}, fmt.Errorf("failed to decode account: %w", err)
	}
	return Account{
		AccountNumber: p.AccountNumber,
		Name:          p.Name,
		AccountType:   p.AccountType,
		Balance:       p.Balance,
		Barred:        p.Barred,
	}, nil
}

// PaymentTerm is one payment-terms definition of an agreement.
type PaymentTerm struct {
	PaymentTermsNumber int
	Name               string
	DaysOfCredit       int
	PaymentTermsType   string
}

// DecodePaymentTerm decodes a payment-terms collection item.
func DecodePaymentTerm(raw json.RawMessage) (PaymentTerm, error) {
	var p struct {
		PaymentTermsNumber int    `json:"paymentTermsNumber"`
		Name               string `json:"name"`
		DaysOfCredit       int    `json:"daysOfCredit"`
		PaymentTermsType   string `json:"paymentTermsType"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return PaymentTerm{}, fmt.Errorf("failed to decode payment term: %w", err)
	}
	return PaymentTerm{
		PaymentTermsNumber: p.PaymentTermsNumber,
		Name:               p.Name,
		DaysOfCredit:       p.DaysOfCredit,
		PaymentTermsType:   p.PaymentTermsType,
	}, nil
}

// NumberedName is the shared shape of the small grouping reference
// entities: product groups, supplier groups and departments.
type NumberedName struct {
	Number int
	Name   string
}

// DecodeProductGroup decodes a product-groups collection item.
func DecodeProductGroup(raw json.RawMessage) (NumberedName, error) {
	return decodeNumberedName(raw, "productGroupNumber", "product group")
}

// DecodeSupplierGroup decodes a supplier-groups collection item.
func DecodeSupplierGroup(raw json.RawMessage) (NumberedName, error) {
	return decodeNumberedName(raw, "supplierGroupNumber", "supplier group")
}

// DecodeDepartment decodes a departments collection item.
func DecodeDepartment(raw json.RawMessage) (NumberedName, error) {
	return decodeNumberedName(raw, "departmentNumber", "department")
}

func decodeNumberedName(raw json.RawMessage, numberField, what string) (NumberedName, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return NumberedName{}, fmt.Errorf("failed to decode %s: %w", what, err)
	}
	var out NumberedName
	if numRaw, ok := fields[numberField]; ok {
		if err := json.Unmarshal(numRaw, &out.Number); err != nil {
			return NumberedName{}, fmt.Errorf("failed to decode %s number: %w", what, err)
		}
	}
	if nameRaw, ok := fields["name"]; ok {
		if err := json.Unmarshal(nameRaw, &out.Name); err != nil {
			return NumberedName{}, fmt.Errorf("failed to decode %s name: %w", what, err)
		}
	}
	return out, nil
}

// VatAccount is one VAT code of an agreement.
type VatAccount struct {
	VatCode string
	Name    string
	RatePct decimal.Decimal
	VatType string
	Barred  bool
	Account int
}

// DecodeVatAccount decodes a vat-accounts collection item.
func DecodeVatAccount(raw json.RawMessage) (VatAccount, error) {
	var p struct {
		VatCode string          `json:"vatCode"`
		Name    string          `json:"name"`
		RatePct decimal.Decimal `json:"ratePercentage"`
		VatType struct {
			Name string `json:"name"`
		} `json:"vatType"`
		Barred  bool `json:"barred"`
		Account struct {
			AccountNumber int `json:"accountNumber"`
		} `json:"account"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return VatAccount{}, fmt.Errorf("failed to decode vat account: %w", err)
	}
	return VatAccount{
		VatCode: p.VatCode,
		Name:    p.Name,
		RatePct: p.RatePct,
		VatType: p.VatType.Name,
		Barred:  p.Barred,
		Account: p.Account.AccountNumber,
	}, nil
}

// DepartmentalDistribution is one cross-department allocation key.
type DepartmentalDistribution struct {
	Number int
	Name   string
	Type   string
}

// DecodeDepartmentalDistribution decodes a departmental-distributions
// collection item.
func DecodeDepartmentalDistribution(raw json.RawMessage) (DepartmentalDistribution, error) {
	var p struct {
		DepartmentalDistributionNumber int    `json:"departmentalDistributionNumber"`
		Name                           string `json:"name"`
		DistributionType               string `json:"distributionType"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return DepartmentalDistribution{}, fmt.Errorf("failed to decode departmental distribution: %w", err)
	}
	return DepartmentalDistribution{
		Number: p.DepartmentalDistributionNumber,
		Name:   p.Name,
		Type:   p.DistributionType,
	}, nil
}

// SelfAgreement is the agreement identity returned by the /self endpoint,
// used during token registration.
type SelfAgreement struct {
	AgreementNumber int
	CompanyName     string
}

// DecodeSelfAgreement decodes the /self payload.
func DecodeSelfAgreement(raw json.RawMessage) (SelfAgreement, error) {
	var p struct {
		AgreementNumber int `json:"agreementNumber"`
		Company         struct {
			Name string `json:"name"`
		} `json:"company"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return SelfAgreement{}, fmt.Errorf("failed to decode self agreement: %w", err)
	}
	if p.AgreementNumber == 0 {
		return SelfAgreement{}, fmt.Errorf("self payload missing agreementNumber")
	}
	return SelfAgreement{
		AgreementNumber: p.AgreementNumber,
		CompanyName:     p.Company.Name,
	}, nil
}
