/*
Package ledger provides the accounts-receivable document model shared by the
finance-charge engine and the check-printing layer.

PURPOSE:
  This package contains the invoice, payment and company-configuration types
  plus the storage interfaces they are persisted through. It knows nothing
  about HTTP, scheduling or rendering - those live in api/ and checkstub/.

KEY CONCEPTS:
  - Invoice: an outbound or inbound billing document. An invoice with a
    ParentID set is an accrual charge generated against its parent.
  - Chain: the ordered set of accrual charges belonging to one original
    invoice. The chain tail is always derived from the charges on read,
    never stored as a writable field.
  - Payment: a settlement applied against one or more invoices, the input
    of check-stub building.
  - CompanyConfig: per-company finance-charge settings (payment term,
    charge product, fallback income account, annual rate).

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal for every monetary value, never float64.
  2. Derived state: chain tails and "latest charge due date" are computed
     from the chain, so they can never drift from the truth.
  3. Type safety: distinct ID types prevent mixing invoice and payment IDs.

SEE ALSO:
  - invoice.go: Invoice, chain helpers
  - store.go: Persistence interfaces
  - errors.go: Sentinel and structured errors
*/
package ledger

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type InvoiceID string
type PaymentID string
type CompanyID string
type PartnerID string

// =============================================================================
// DOCUMENT STATES
// =============================================================================

// Direction distinguishes customer invoices from vendor bills.
type Direction string

const (
	DirectionOutbound Direction = "outbound" // customer invoice (receivable)
	DirectionInbound  Direction = "inbound"  // vendor bill (payable)
)

// PostingState is the document lifecycle state.
type PostingState string

const (
	StateDraft     PostingState = "draft"
	StatePosted    PostingState = "posted"
	StateCancelled PostingState = "cancelled"
)

// PaymentState tracks how much of the document has been settled.
type PaymentState string

const (
	PaymentUnpaid  PaymentState = "unpaid"
	PaymentPartial PaymentState = "partial"
	PaymentPaid    PaymentState = "paid"
)

// =============================================================================
// COMPANY CONFIGURATION - Finance-charge settings, resolved per invoice
// =============================================================================

// DefaultAnnualRate is the nominal yearly finance-charge rate applied when a
// company has no explicit override. Accrual is simple pro-ration by actual
// day count over a 365-day year, no compounding, no leap-year adjustment.
var DefaultAnnualRate = decimal.New(18, -2) // 0.18

// CompanyConfig holds the per-company settings the accrual engine needs.
// A missing required setting makes every invoice of that company ineligible
// for charge generation until fixed.
type CompanyConfig struct {
	CompanyID CompanyID

	// PaymentTermDays is applied to a charge's issue date to derive its due
	// date. Zero is a valid term (due on issue).
	PaymentTermDays int

	// ProductID identifies the finance-charge product used on charge lines.
	ProductID string

	// ProductIncomeAccountID is the income account configured on the product.
	// When empty, FallbackAccountID is used instead.
	ProductIncomeAccountID string

	// FallbackAccountID is required only when the product carries no income
	// account of its own.
	FallbackAccountID string

	// ChargeDescription is the line description on generated charges.
	ChargeDescription string

	// AnnualRate overrides DefaultAnnualRate when non-zero.
	AnnualRate decimal.Decimal

	// MultiStub allows check stubs to spill onto multiple pages. When false
	// the stub is cropped to a single page with an ellipsis line.
	MultiStub bool
}

// Rate returns the effective annual rate for this company.
func (c *CompanyConfig) Rate() decimal.Decimal {
	if c.AnnualRate.IsZero() {
		return DefaultAnnualRate
	}
	return c.AnnualRate
}

// IncomeAccountID returns the account a charge line posts to.
func (c *CompanyConfig) IncomeAccountID() string {
	if c.ProductIncomeAccountID != "" {
		return c.ProductIncomeAccountID
	}
	return c.FallbackAccountID
}

// Missing returns the names of required settings that are absent. The payment
// term is reported missing only when negative since zero is a valid term;
// term presence is modeled by PaymentTermDays >= 0.
func (c *CompanyConfig) Missing() []string {
	var missing []string
	if c.PaymentTermDays < 0 {
		missing = append(missing, "payment term")
	}
	if c.ProductID == "" {
		missing = append(missing, "charge product")
	}
	if c.ProductIncomeAccountID == "" && c.FallbackAccountID == "" {
		missing = append(missing, "income account")
	}
	return missing
}
