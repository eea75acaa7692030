/*
Package checkstub builds the printable stub accompanying a check payment:
one summary line per settled invoice, paginated onto fixed-size stub pages.

A stub line shows the invoice number, due date, total, open balance, the
amount this payment applied and any early-payment discount earned. When the
payment settles both bills and refunds, the lines are grouped under header
rows. Pages hold nine lines; a single-page stub is cropped leaving room for
an ellipsis row, and a multi-page stub never lets a section header land as
the last line of a page.
*/
package checkstub

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/clearbook/finance-engine/ledger"
)

// LinesPerStub is the number of stub lines that fit on one check page.
const LinesPerStub = 9

// Line is one row of the stub: either a section header or an invoice summary.
type Line struct {
	Header bool
	Name   string // header caption ("Bills", "Refunds")

	InvoiceID ledger.InvoiceID
	Number    string
	Memo      string
	DueDate   ledger.Date
	Total     decimal.Decimal
	Residual  decimal.Decimal
	Paid      decimal.Decimal
	Discount  decimal.Decimal
	Currency  string
}

// Stub is the built summary for one payment.
type Stub struct {
	Payment *ledger.Payment
	Lines   []Line
}

// Builder assembles stubs from the ledger.
type Builder struct {
	Invoices ledger.InvoiceStore
	Payments ledger.PaymentStore
}

func NewBuilder(invoices ledger.InvoiceStore, payments ledger.PaymentStore) *Builder {
	return &Builder{Invoices: invoices, Payments: payments}
}

// BuildStub loads a payment's allocations and produces its stub lines,
// ordered by invoice due date. Refund documents get their own "Refunds"
// section when present.
func (b *Builder) BuildStub(ctx context.Context, paymentID ledger.PaymentID) (*Stub, error) {
	payment, err := b.Payments.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	allocs, err := b.Payments.AllocationsOf(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	type settled struct {
		inv   *ledger.Invoice
		alloc ledger.PaymentAllocation
	}
	var bills, refunds []settled
	for _, a := range allocs {
		inv, err := b.Invoices.GetInvoice(ctx, a.InvoiceID)
		if err != nil {
			return nil, err
		}
		if inv.Refund {
			refunds = append(refunds, settled{inv, a})
		} else {
			bills = append(bills, settled{inv, a})
		}
	}
	byDueDate := func(s []settled) {
		sort.Slice(s, func(i, j int) bool { return s[i].inv.DueDate.Before(s[j].inv.DueDate) })
	}
	byDueDate(bills)
	byDueDate(refunds)

	var lines []Line
	if len(refunds) > 0 {
		lines = append(lines, Line{Header: true, Name: "Bills"})
		for _, s := range bills {
			lines = append(lines, stubLine(payment, s.inv, s.alloc))
		}
		lines = append(lines, Line{Header: true, Name: "Refunds"})
		for _, s := range refunds {
			lines = append(lines, stubLine(payment, s.inv, s.alloc))
		}
	} else {
		for _, s := range bills {
			lines = append(lines, stubLine(payment, s.inv, s.alloc))
		}
	}

	return &Stub{Payment: payment, Lines: lines}, nil
}

// stubLine summarizes one settled invoice. The early-payment discount is
// earned only when this payment settles the invoice in full on or before
// its discount deadline.
func stubLine(payment *ledger.Payment, inv *ledger.Invoice, alloc ledger.PaymentAllocation) Line {
	discount := decimal.Zero
	if inv.PaymentState == ledger.PaymentPaid &&
		inv.EarlyPaymentDeadline != nil &&
		payment.Date.BeforeOrEqual(*inv.EarlyPaymentDeadline) {
		discount = inv.EarlyPaymentDiscount
	}

	return Line{
		InvoiceID: inv.ID,
		Number:    inv.Number,
		Memo:      inv.Memo,
		DueDate:   inv.DueDate,
		Total:     inv.Total,
		Residual:  inv.Residual,
		Paid:      alloc.Amount.Sub(discount),
		Discount:  discount,
		Currency:  inv.Currency,
	}
}

// Pages splits the stub lines onto check pages. In single-stub mode the
// lines are cropped to one page, keeping a slot free for an ellipsis row
// when anything was cut. In multi-stub mode a page is shortened by one line
// whenever a section header would otherwise be its last line.
func (s *Stub) Pages(multiStub bool) [][]Line {
	lines := s.Lines
	if !multiStub {
		n := LinesPerStub
		if len(lines) > LinesPerStub {
			// Leave place for an ellipsis line.
			n = LinesPerStub - 1
		}
		if n > len(lines) {
			n = len(lines)
		}
		return [][]Line{lines[:n]}
	}

	var pages [][]Line
	i := 0
	for i < len(lines) {
		n := LinesPerStub
		// Never start a section header as the last line of a page.
		if len(lines) >= i+LinesPerStub && lines[i+LinesPerStub-1].Header {
			n = LinesPerStub - 1
		}
		end := i + n
		if end > len(lines) {
			end = len(lines)
		}
		pages = append(pages, lines[i:end])
		i += n
	}
	return pages
}

// Truncated reports whether single-stub cropping dropped lines, in which
// case the renderer appends an ellipsis row.
func (s *Stub) Truncated() bool {
	return len(s.Lines) > LinesPerStub
}
