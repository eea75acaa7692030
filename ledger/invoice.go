package ledger

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// INVOICE - Billing document (original invoice or generated accrual charge)
// =============================================================================

// Invoice is a billing document. An invoice with ParentID == nil is an
// original document; with ParentID set it is an accrual charge generated
// against that original. All charges of a chain point directly at the
// original, never at each other, so a chain is a flat children query.
type Invoice struct {
	ID        InvoiceID
	Number    string
	CompanyID CompanyID
	PartnerID PartnerID
	Currency  string

	Direction Direction
	Refund    bool // credit note (refund of an invoice in the same direction)

	State        PostingState
	PaymentState PaymentState

	IssueDate Date
	DueDate   Date

	Total    decimal.Decimal
	Residual decimal.Decimal

	// ParentID links an accrual charge back to its original invoice.
	ParentID *InvoiceID

	Lines []LineItem

	// Early-payment discount honored on check stubs when the settling
	// payment lands on or before the deadline.
	EarlyPaymentDiscount decimal.Decimal
	EarlyPaymentDeadline *Date

	// Memo is a free-form reference shown alongside the number on stubs.
	Memo string

	CreatedAt Date
}

// LineItem is a single invoice line.
type LineItem struct {
	ProductID   string
	AccountID   string
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
}

// IsCharge reports whether this document is a generated accrual charge.
func (inv *Invoice) IsCharge() bool { return inv.ParentID != nil }

// Outstanding reports whether the document still carries an unpaid balance.
func (inv *Invoice) Outstanding() bool {
	return inv.PaymentState == PaymentUnpaid || inv.PaymentState == PaymentPartial
}

// =============================================================================
// CHAIN - Derived views over an original invoice and its charges
// =============================================================================

// ActiveCharges filters out cancelled charges and orders the rest by due
// date ascending. A non-cancelled charge without a due date is a corrupt
// chain member and yields a DataIntegrityError.
func ActiveCharges(original *Invoice, charges []*Invoice) ([]*Invoice, error) {
	active := make([]*Invoice, 0, len(charges))
	for _, c := range charges {
		if c.State == StateCancelled {
			continue
		}
		if c.DueDate.IsZero() {
			return nil, &DataIntegrityError{
				InvoiceID: original.ID,
				ChargeID:  c.ID,
				Reason:    "accrual charge has no due date",
			}
		}
		active = append(active, c)
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].DueDate.Before(active[j].DueDate)
	})
	return active, nil
}

// ChainTail returns the most recent document of an invoice's chain: the
// latest-due non-cancelled charge, or the original itself when no charge
// exists yet. This is the recompute-on-read replacement for a stored
// "last charge" pointer, so it can never go stale.
func ChainTail(original *Invoice, charges []*Invoice) (*Invoice, error) {
	active, err := ActiveCharges(original, charges)
	if err != nil {
		return nil, err
	}
	if len(active) == 0 {
		return original, nil
	}
	return active[len(active)-1], nil
}

// LatestChargeDueDate returns the due date of the chain tail. For an invoice
// with no charges this is its own due date; zero only if the original itself
// has no due date.
func LatestChargeDueDate(original *Invoice, charges []*Invoice) (Date, error) {
	tail, err := ChainTail(original, charges)
	if err != nil {
		return Date{}, err
	}
	return tail.DueDate, nil
}

// =============================================================================
// PAYMENT - Settlement applied against invoices
// =============================================================================

// Payment settles one or more invoices. Allocations record how much of the
// payment was applied to each invoice.
type Payment struct {
	ID        PaymentID
	CompanyID CompanyID
	PartnerID PartnerID
	Date      Date
	Currency  string
	Amount    decimal.Decimal
	Memo      string
}

// PaymentAllocation applies part of a payment to one invoice.
type PaymentAllocation struct {
	PaymentID PaymentID
	InvoiceID InvoiceID
	Amount    decimal.Decimal
}
